package workflows

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// StepDef declares one workflow step: the task category that drives
// agent selection, the predecessor results fed into the task, and the
// task's requirement tags.
type StepDef struct {
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	Inputs       []string `yaml:"inputs"`
	Requirements []string `yaml:"requirements"`
	Priority     int      `yaml:"priority"`
}

// Node is either a single sequential step or a fanout group of
// concurrent sibling steps joined before the workflow advances.
type Node struct {
	StepDef `yaml:",inline"`
	Fanout  []StepDef `yaml:"fanout"`
}

// IsFanout reports whether the node is a fork-join group.
func (n Node) IsFanout() bool { return len(n.Fanout) > 0 }

// Graph is a fixed, declaratively defined workflow topology.
type Graph struct {
	Kind  Kind   `yaml:"kind"`
	Steps []Node `yaml:"steps"`
}

// NodeCount returns the number of nodes; a fanout group counts once.
func (g *Graph) NodeCount() int { return len(g.Steps) }

// Catalog is the loaded set of workflow graphs keyed by kind.
type Catalog struct {
	graphs map[Kind]*Graph
}

type catalogFile struct {
	Workflows []*Graph `yaml:"workflows"`
}

// DefaultCatalog loads the embedded graph catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
}

// LoadCatalog parses and validates a catalog from the reader.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cf catalogFile
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("decode workflow catalog: %w", err)
	}

	c := &Catalog{graphs: make(map[Kind]*Graph, len(cf.Workflows))}
	for _, g := range cf.Workflows {
		if err := validateGraph(g); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", g.Kind, err)
		}
		if _, dup := c.graphs[g.Kind]; dup {
			return nil, fmt.Errorf("workflow %q declared twice", g.Kind)
		}
		c.graphs[g.Kind] = g
	}
	return c, nil
}

// Graph returns the topology for a workflow kind.
func (c *Catalog) Graph(kind Kind) (*Graph, bool) {
	g, ok := c.graphs[kind]
	return g, ok
}

// Kinds returns every kind present in the catalog.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, 0, len(c.graphs))
	for k := range c.graphs {
		out = append(out, k)
	}
	return out
}

func validateGraph(g *Graph) error {
	if _, err := ParseKind(string(g.Kind)); err != nil {
		return err
	}
	if len(g.Steps) == 0 {
		return fmt.Errorf("no steps declared")
	}

	seen := make(map[string]bool)
	for i, node := range g.Steps {
		var steps []StepDef
		if node.IsFanout() {
			if node.Name != "" || node.Category != "" {
				return fmt.Errorf("node %d: fanout group must not carry step fields", i)
			}
			steps = node.Fanout
		} else {
			steps = []StepDef{node.StepDef}
		}
		for _, s := range steps {
			if s.Name == "" {
				return fmt.Errorf("node %d: step without a name", i)
			}
			if s.Category == "" {
				return fmt.Errorf("step %q: no task category", s.Name)
			}
			if seen[s.Name] {
				return fmt.Errorf("step %q declared twice", s.Name)
			}
			for _, in := range s.Inputs {
				if !seen[in] {
					return fmt.Errorf("step %q: input %q is not an earlier step", s.Name, in)
				}
			}
			seen[s.Name] = true
		}
	}
	return nil
}
