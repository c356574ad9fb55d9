// Package loader reads network definitions (variables, edges and optional
// hand-written CPDs) and turns them into a model.Structure.
package loader

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/dataset"
)

// Definition is the file form of a network.
type Definition struct {
	Name      string         `yaml:"name,omitempty"`
	Variables []VariableYAML `yaml:"variables,omitempty"`
	Edges     []model.Edge   `yaml:"edges"`
	CPDs      []CPDYAML      `yaml:"cpds,omitempty"`
}

// VariableYAML declares a node. An empty States list means the domain is
// taken from the data.
type VariableYAML struct {
	Name   string   `yaml:"name"`
	States []string `yaml:"states,omitempty,flow"`
}

// CPDYAML is a hand-written table: one row per parent combination, last
// parent varying fastest, one column per node state.
type CPDYAML struct {
	Node    string      `yaml:"node"`
	Parents []string    `yaml:"parents,omitempty,flow"`
	Values  [][]float64 `yaml:"values,flow"`
}

// LoadYAML loads a network definition from a YAML file
func LoadYAML(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()
	return ParseYAML(f)
}

// ParseYAML parses a network definition from YAML
func ParseYAML(r io.Reader) (*Definition, error) {
	var def Definition
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &def, nil
}

// WriteYAML exports a definition with two-space indentation.
func WriteYAML(w io.Writer, def *Definition) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(def); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// FromConfig reads the definition file named by cfg, if any, and appends the
// inline variables and edges.
func FromConfig(cfg config.NetworkConfig) (*Definition, error) {
	def := &Definition{}
	if cfg.File != "" {
		var err error
		if def, err = LoadYAML(cfg.File); err != nil {
			return nil, err
		}
	}
	for _, v := range cfg.Variables {
		def.Variables = append(def.Variables, VariableYAML{Name: v.Name, States: v.States})
	}
	def.Edges = append(def.Edges, cfg.Edges...)
	if len(def.Variables) == 0 && len(def.Edges) == 0 {
		return nil, fmt.Errorf("network defines no variables or edges")
	}
	return def, nil
}

// Nodes lists every node name once: declared variables first, then edge
// endpoints in order of appearance.
func (d *Definition) Nodes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, v := range d.Variables {
		add(v.Name)
	}
	for _, e := range d.Edges {
		add(e.Parent)
		add(e.Child)
	}
	return out
}

// Structure declares every node and adds every edge. Variables without
// declared states get the domain observed in ds; ds may be nil when every
// domain is declared.
func (d *Definition) Structure(ds *dataset.Dataset) (*model.Structure, error) {
	reg := model.NewRegistry()
	for _, v := range d.Variables {
		if len(v.States) == 0 {
			continue
		}
		if _, err := reg.Declare(v.Name, v.States...); err != nil {
			return nil, err
		}
	}
	nodes := d.Nodes()
	for _, n := range nodes {
		if reg.Has(n) {
			continue
		}
		if ds == nil {
			return nil, fmt.Errorf("no states declared for %q and no data to infer them: %w", n, model.ErrEmptyDomain)
		}
		if err := ds.Declare(reg, n); err != nil {
			return nil, err
		}
	}
	s := model.NewStructure(reg)
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range d.Edges {
		if err := s.AddEdge(e.Parent, e.Child); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildCPDs turns the hand-written tables into CPDs over s's registry.
func (d *Definition) BuildCPDs(s *model.Structure) ([]*model.CPD, error) {
	reg := s.Registry()
	out := make([]*model.CPD, 0, len(d.CPDs))
	for _, c := range d.CPDs {
		node, err := reg.Lookup(c.Node)
		if err != nil {
			return nil, err
		}
		parents := make([]model.Variable, len(c.Parents))
		for i, p := range c.Parents {
			if parents[i], err = reg.Lookup(p); err != nil {
				return nil, err
			}
		}
		cpd, err := model.NewCPD(node, parents, c.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, cpd)
	}
	return out, nil
}

// Export describes a fitted model as a self-contained definition, domains
// and tables included.
func Export(m *model.Model) *Definition {
	s := m.Structure()
	def := &Definition{Edges: s.Edges()}
	for _, id := range s.NodeIDs() {
		v := m.Registry().Variable(id)
		def.Variables = append(def.Variables, VariableYAML{Name: v.Name, States: append([]string(nil), v.States...)})
	}
	for _, cpd := range m.CPDs() {
		rows := make([][]float64, cpd.NumRows())
		for i := range rows {
			rows[i] = append([]float64(nil), cpd.Row(i)...)
		}
		def.CPDs = append(def.CPDs, CPDYAML{Node: cpd.Node.Name, Parents: cpd.ParentNames(), Values: rows})
	}
	return def
}
