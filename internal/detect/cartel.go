package detect

import (
	"fmt"
	"sort"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/signal"
)

// CartelDetector builds a co-bidding graph (vendors connected when they bid
// on the same tender) and flags dense communities and rotating win patterns.
type CartelDetector struct {
	// MinBids is the minimum number of valid bids required.
	MinBids int

	// MinCommunitySize is the smallest vendor community worth flagging.
	MinCommunitySize int

	// DensityThreshold is the minimum internal edge density for a community
	// to be considered a potential cartel.
	DensityThreshold float64

	// RotationMinTenders is how many shared tenders a community needs before
	// win rotation is evaluated.
	RotationMinTenders int
}

// NewCartelDetector returns a detector with calibrated defaults.
func NewCartelDetector() *CartelDetector {
	return &CartelDetector{
		MinBids:            10,
		MinCommunitySize:   3,
		DensityThreshold:   0.5,
		RotationMinTenders: 4,
	}
}

// DetectBids analyzes bid records for collusion patterns. Bids failing
// validation are skipped and counted.
func (d *CartelDetector) DetectBids(bids []procurement.Bid) Report {
	valid := make([]procurement.Bid, 0, len(bids))
	skipped := 0
	for _, b := range bids {
		if err := b.Validate(); err != nil {
			skipped++
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) < d.MinBids {
		return insufficientReport(len(valid), skipped)
	}

	byTender := make(map[string][]procurement.Bid)
	for _, b := range valid {
		byTender[b.TenderKey] = append(byTender[b.TenderKey], b)
	}

	graph := signal.NewGraph()
	for _, tenderBids := range byTender {
		vendors := distinctVendors(tenderBids)
		for i := 0; i < len(vendors); i++ {
			for j := i + 1; j < len(vendors); j++ {
				graph.AddEdge(vendors[i], vendors[j], 1)
			}
		}
	}

	report := Report{SampleSize: len(valid), SkippedRecords: skipped}
	if graph.NodeCount() < d.MinCommunitySize {
		return report
	}

	communities := graph.Communities()
	// A strong partition means the communities are real structure, not an
	// artifact of the greedy merge.
	modularity := graph.Modularity(communities)

	for _, community := range communities {
		if len(community.Nodes) < d.MinCommunitySize || community.Density < d.DensityThreshold {
			continue
		}

		sharedTenders, winners := communityActivity(byTender, community.Nodes)
		severity := d.communitySeverity(community, sharedTenders)

		f := finding.New(
			finding.KindCartelCommunity,
			fmt.Sprintf("dense co-bidding community of %d vendors across %d tenders (density %.2f)",
				len(community.Nodes), sharedTenders, community.Density),
			severity,
		).WithConfidence(community.Density).WithEntities(community.Nodes...).WithEvidence(
			finding.NewEvidence("community statistics", map[string]any{
				"vendors":              community.Nodes,
				"density":              community.Density,
				"internal_weight":      community.InternalWeight,
				"shared_tenders":       sharedTenders,
				"partition_modularity": modularity,
			}),
		)
		report.Findings = append(report.Findings, f)

		// Rotation: most members of a tight community take turns winning.
		if sharedTenders >= d.RotationMinTenders &&
			len(winners)*3 >= len(community.Nodes)*2 {
			rf := finding.New(
				finding.KindBidRotation,
				fmt.Sprintf("win rotation among %d of %d community vendors over %d tenders",
					len(winners), len(community.Nodes), sharedTenders),
				finding.SeverityHigh,
			).WithConfidence(float64(len(winners))/float64(len(community.Nodes))).
				WithEntities(community.Nodes...).
				WithEvidence(finding.NewEvidence("distinct winners in community", map[string]any{
					"winners":        winners,
					"shared_tenders": sharedTenders,
				}))
			report.Findings = append(report.Findings, rf)
		}
	}

	return report
}

// communitySeverity scales severity with community size and concentration.
func (d *CartelDetector) communitySeverity(c signal.Community, sharedTenders int) finding.Severity {
	severity := finding.SeverityMedium
	if len(c.Nodes) >= 5 || c.Density >= 0.8 {
		severity = finding.SeverityHigh
	}
	if len(c.Nodes) >= 5 && c.Density >= 0.8 && sharedTenders >= 2*d.RotationMinTenders {
		severity = finding.SeverityCritical
	}
	return severity
}

// communityActivity counts tenders where at least two community members bid
// together and collects the distinct winning vendors among them.
func communityActivity(byTender map[string][]procurement.Bid, members []string) (int, []string) {
	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}

	shared := 0
	winnerSet := make(map[string]bool)
	for _, tenderBids := range byTender {
		present := 0
		for _, v := range distinctVendors(tenderBids) {
			if inSet[v] {
				present++
			}
		}
		if present < 2 {
			continue
		}
		shared++
		for _, b := range tenderBids {
			if b.Won && inSet[b.VendorID] {
				winnerSet[b.VendorID] = true
			}
		}
	}

	winners := make([]string, 0, len(winnerSet))
	for w := range winnerSet {
		winners = append(winners, w)
	}
	sort.Strings(winners)
	return shared, winners
}

func distinctVendors(bids []procurement.Bid) []string {
	set := make(map[string]bool, len(bids))
	for _, b := range bids {
		set[b.VendorID] = true
	}
	vendors := make([]string, 0, len(set))
	for v := range set {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors
}
