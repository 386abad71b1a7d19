package signal

import (
	"sort"
)

// Graph is a weighted undirected graph keyed by string node identifiers.
// It is the substrate for co-bidding community detection.
type Graph struct {
	adjacency map[string]map[string]float64
	totalW    float64
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{adjacency: make(map[string]map[string]float64)}
}

// AddEdge adds weight to the undirected edge between a and b, creating the
// nodes as needed. Self-loops are ignored.
func (g *Graph) AddEdge(a, b string, weight float64) {
	if a == b || weight <= 0 {
		return
	}
	g.addHalf(a, b, weight)
	g.addHalf(b, a, weight)
	g.totalW += weight
}

func (g *Graph) addHalf(from, to string, weight float64) {
	if g.adjacency[from] == nil {
		g.adjacency[from] = make(map[string]float64)
	}
	g.adjacency[from][to] += weight
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.adjacency)
}

// Nodes returns all node identifiers in sorted order.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adjacency))
	for n := range g.adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// Degree returns the weighted degree of a node.
func (g *Graph) Degree(node string) float64 {
	d := 0.0
	for _, w := range g.adjacency[node] {
		d += w
	}
	return d
}

// Weight returns the edge weight between a and b (0 when absent).
func (g *Graph) Weight(a, b string) float64 {
	return g.adjacency[a][b]
}

// Community is a detected group of densely connected nodes.
type Community struct {
	Nodes []string

	// InternalWeight is the total weight of edges inside the community.
	InternalWeight float64

	// Density is InternalWeight relative to the maximum possible number of
	// internal edges, in [0,1] for unit-weight graphs.
	Density float64
}

// Communities partitions the graph using synchronous label propagation with
// deterministic node ordering, then packages each label group with its
// internal weight and density. Label propagation converges quickly on the
// small vendor graphs this engine sees; ties resolve to the smallest label
// so repeated runs are stable.
func (g *Graph) Communities() []Community {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil
	}

	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n] = n
	}

	const maxIterations = 32
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, n := range nodes {
			best := bestLabel(g, labels, n)
			if best != labels[n] {
				labels[n] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groups := make(map[string][]string)
	for _, n := range nodes {
		groups[labels[n]] = append(groups[labels[n]], n)
	}

	communities := make([]Community, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		communities = append(communities, g.packCommunity(members))
	}
	sort.Slice(communities, func(i, j int) bool {
		if len(communities[i].Nodes) != len(communities[j].Nodes) {
			return len(communities[i].Nodes) > len(communities[j].Nodes)
		}
		return communities[i].Nodes[0] < communities[j].Nodes[0]
	})
	return communities
}

// bestLabel returns the label with the highest total incident edge weight
// among n's neighbors, breaking ties toward the lexically smallest label.
func bestLabel(g *Graph, labels map[string]string, n string) string {
	weightByLabel := make(map[string]float64)
	for neighbor, w := range g.adjacency[n] {
		weightByLabel[labels[neighbor]] += w
	}
	if len(weightByLabel) == 0 {
		return labels[n]
	}

	best := labels[n]
	bestW := weightByLabel[best]
	candidates := make([]string, 0, len(weightByLabel))
	for label := range weightByLabel {
		candidates = append(candidates, label)
	}
	sort.Strings(candidates)
	for _, label := range candidates {
		if weightByLabel[label] > bestW {
			best = label
			bestW = weightByLabel[label]
		}
	}
	return best
}

func (g *Graph) packCommunity(members []string) Community {
	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}

	internal := 0.0
	for _, m := range members {
		for neighbor, w := range g.adjacency[m] {
			if inSet[neighbor] {
				internal += w
			}
		}
	}
	internal /= 2 // each internal edge counted from both ends

	density := 0.0
	n := len(members)
	if n > 1 {
		maxEdges := float64(n*(n-1)) / 2
		density = internal / maxEdges
		if density > 1 {
			density = 1
		}
	}

	return Community{Nodes: members, InternalWeight: internal, Density: density}
}

// Modularity computes the Newman modularity of the given partition
// (community index per node). Higher values indicate stronger community
// structure; values above ~0.3 usually indicate significant clustering.
func (g *Graph) Modularity(communities []Community) float64 {
	if g.totalW == 0 {
		return 0
	}
	m2 := 2 * g.totalW

	q := 0.0
	for _, c := range communities {
		degSum := 0.0
		for _, n := range c.Nodes {
			degSum += g.Degree(n)
		}
		q += (2*c.InternalWeight)/m2 - (degSum/m2)*(degSum/m2)
	}
	return q
}
