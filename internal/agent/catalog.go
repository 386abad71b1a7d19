package agent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Capability names of the built-in agents.
const (
	CapabilityStatistical = "statistical-analysis"
	CapabilitySpectral    = "spectral-analysis"
	CapabilityCartel      = "cartel-detection"
	CapabilityTemporal    = "temporal-analysis"
	CapabilityStructuring = "structuring-detection"
	CapabilityLegal       = "legal-compliance"
	CapabilityReport      = "report-synthesis"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Capability describes one catalog entry: what the capability analyzes, which
// keywords make the planner select it, and which capabilities must run first.
type Capability struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Keywords      []string `yaml:"keywords"`
	Prerequisites []string `yaml:"prerequisites,omitempty"`

	// RequiredKinds names the record kinds (contracts, payments, bids) the
	// capability needs at least one of. Empty means any.
	RequiredKinds []string `yaml:"required_kinds,omitempty"`

	// Importance weights this capability's quality score in the final
	// confidence aggregation.
	Importance float64 `yaml:"importance"`

	// Depths lists the investigation depths on which the capability runs
	// by default, even without a keyword match.
	Depths []types.Depth `yaml:"depths,omitempty"`

	// Optional capabilities do not cause dependents to be skipped when
	// they fail.
	Optional bool `yaml:"optional,omitempty"`
}

// Catalog is the set of capabilities the planner can select from.
type Catalog struct {
	capabilities map[string]Capability
	order        []string
}

// DefaultCatalog loads the embedded capability catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from a YAML file, falling back to the embedded
// default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("reading capability catalog %s", path), err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Capabilities []Capability `yaml:"capabilities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			"parsing capability catalog", err)
	}

	c := &Catalog{capabilities: make(map[string]Capability)}
	for _, cap := range doc.Capabilities {
		if cap.Name == "" {
			return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
				"capability catalog entry missing name")
		}
		if _, dup := c.capabilities[cap.Name]; dup {
			return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("duplicate capability %q in catalog", cap.Name))
		}
		if cap.Importance <= 0 {
			cap.Importance = 1.0
		}
		c.capabilities[cap.Name] = cap
		c.order = append(c.order, cap.Name)
	}

	// Prerequisites must resolve inside the catalog.
	for _, cap := range c.capabilities {
		for _, prereq := range cap.Prerequisites {
			if _, ok := c.capabilities[prereq]; !ok {
				return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
					fmt.Sprintf("capability %q requires unknown prerequisite %q", cap.Name, prereq))
			}
		}
	}
	return c, nil
}

// Get returns the capability by name.
func (c *Catalog) Get(name string) (Capability, bool) {
	cap, ok := c.capabilities[name]
	return cap, ok
}

// Names returns all capability names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// All returns all capabilities in catalog order.
func (c *Catalog) All() []Capability {
	out := make([]Capability, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.capabilities[name])
	}
	return out
}
