package model

import (
	"fmt"
	"sort"
)

// Edge is a directed dependency parent -> child.
type Edge struct {
	Parent string `json:"parent" yaml:"parent" toml:"parent"`
	Child  string `json:"child" yaml:"child" toml:"child"`
}

// Structure is a directed acyclic graph over variables of a Registry.
// Parent order is the order in which edges were added.
type Structure struct {
	reg      *Registry
	order    []VarID
	member   map[VarID]bool
	parents  map[VarID][]VarID
	children map[VarID][]VarID
}

func NewStructure(reg *Registry) *Structure {
	return &Structure{
		reg:      reg,
		member:   make(map[VarID]bool),
		parents:  make(map[VarID][]VarID),
		children: make(map[VarID][]VarID),
	}
}

// StructureFromEdges builds a Structure whose nodes are the edge endpoints,
// in order of first appearance.
func StructureFromEdges(reg *Registry, edges []Edge) (*Structure, error) {
	s := NewStructure(reg)
	for _, e := range edges {
		if err := s.AddEdge(e.Parent, e.Child); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Structure) Registry() *Registry {
	return s.reg
}

// AddNode adds a declared variable as an isolated node. Adding an existing node is a no-op.
func (s *Structure) AddNode(name string) error {
	id, err := s.reg.ID(name)
	if err != nil {
		return err
	}
	s.addNode(id)
	return nil
}

func (s *Structure) addNode(id VarID) {
	if s.member[id] {
		return
	}
	s.member[id] = true
	s.order = append(s.order, id)
}

// AddEdge adds parent -> child. Re-adding an existing edge is a no-op.
func (s *Structure) AddEdge(parent, child string) error {
	p, err := s.reg.ID(parent)
	if err != nil {
		return err
	}
	c, err := s.reg.ID(child)
	if err != nil {
		return err
	}
	if p == c {
		return &CycleError{Parent: parent, Child: child, Path: []string{parent, child}}
	}
	if s.hasEdge(p, c) {
		return nil
	}
	if path := s.path(c, p); path != nil {
		names := make([]string, 0, len(path)+1)
		for _, id := range path {
			names = append(names, s.reg.Variable(id).Name)
		}
		names = append(names, child)
		return &CycleError{Parent: parent, Child: child, Path: names}
	}

	s.addNode(p)
	s.addNode(c)
	s.parents[c] = append(s.parents[c], p)
	s.children[p] = append(s.children[p], c)
	return nil
}

func (s *Structure) hasEdge(p, c VarID) bool {
	for _, x := range s.parents[c] {
		if x == p {
			return true
		}
	}
	return false
}

// path returns a directed path from -> ... -> to, or nil.
func (s *Structure) path(from, to VarID) []VarID {
	prev := map[VarID]VarID{from: from}
	stack := []VarID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			var rev []VarID
			for cur := to; cur != from; cur = prev[cur] {
				rev = append(rev, cur)
			}
			rev = append(rev, from)
			out := make([]VarID, len(rev))
			for i := range rev {
				out[i] = rev[len(rev)-1-i]
			}
			return out
		}
		for _, ch := range s.children[n] {
			if _, seen := prev[ch]; !seen {
				prev[ch] = n
				stack = append(stack, ch)
			}
		}
	}
	return nil
}

func (s *Structure) resolveNode(name string) (VarID, error) {
	id, err := s.reg.ID(name)
	if err != nil {
		return 0, err
	}
	if !s.member[id] {
		return 0, fmt.Errorf("variable %q is not a node of the network: %w", name, &UnknownVariableError{Name: name})
	}
	return id, nil
}

// ParentsOf returns the parents of node in edge insertion order.
func (s *Structure) ParentsOf(node string) ([]string, error) {
	id, err := s.resolveNode(node)
	if err != nil {
		return nil, err
	}
	ps := s.parents[id]
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = s.reg.Variable(p).Name
	}
	return names, nil
}

// ChildrenOf returns the children of node in edge insertion order.
func (s *Structure) ChildrenOf(node string) ([]string, error) {
	id, err := s.resolveNode(node)
	if err != nil {
		return nil, err
	}
	cs := s.children[id]
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = s.reg.Variable(c).Name
	}
	return names, nil
}

func (s *Structure) ParentIDs(id VarID) []VarID {
	return s.parents[id]
}

func (s *Structure) ChildIDs(id VarID) []VarID {
	return s.children[id]
}

func (s *Structure) Contains(id VarID) bool {
	return s.member[id]
}

// Nodes returns node names in insertion order, not topological order.
func (s *Structure) Nodes() []string {
	names := make([]string, len(s.order))
	for i, id := range s.order {
		names[i] = s.reg.Variable(id).Name
	}
	return names
}

func (s *Structure) NodeIDs() []VarID {
	return append([]VarID(nil), s.order...)
}

func (s *Structure) Len() int {
	return len(s.order)
}

// Edges returns every edge grouped by child in node order.
func (s *Structure) Edges() []Edge {
	var edges []Edge
	for _, c := range s.order {
		for _, p := range s.parents[c] {
			edges = append(edges, Edge{
				Parent: s.reg.Variable(p).Name,
				Child:  s.reg.Variable(c).Name,
			})
		}
	}
	return edges
}

// TopologicalOrder returns the nodes so that every parent precedes its
// children. Ties are broken by declaration order.
func (s *Structure) TopologicalOrder() ([]string, error) {
	ids, err := s.TopologicalIDs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = s.reg.Variable(id).Name
	}
	return names, nil
}

func (s *Structure) TopologicalIDs() ([]VarID, error) {
	indeg := make(map[VarID]int, len(s.order))
	for _, id := range s.order {
		indeg[id] = len(s.parents[id])
	}
	var ready []VarID
	for _, id := range s.order {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]VarID, 0, len(s.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, c := range s.children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(out) != len(s.order) {
		for _, id := range s.order {
			if indeg[id] > 0 {
				name := s.reg.Variable(id).Name
				return nil, &CycleError{Parent: s.reg.Variable(s.parents[id][0]).Name, Child: name}
			}
		}
	}
	return out, nil
}

// Ancestors returns the given nodes together with all of their ancestors.
func (s *Structure) Ancestors(ids []VarID) map[VarID]bool {
	seen := make(map[VarID]bool, len(ids))
	stack := append([]VarID(nil), ids...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, s.parents[n]...)
	}
	return seen
}
