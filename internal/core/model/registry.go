package model

import (
	"fmt"
	"sort"
	"strings"
)

// VarID is the arena index of a declared variable.
type VarID int

// Variable is a named discrete variable with an ordered, finite domain.
type Variable struct {
	ID     VarID    `json:"id"`
	Name   string   `json:"name"`
	States []string `json:"states"`
}

// Card returns the domain size.
func (v Variable) Card() int {
	return len(v.States)
}

// Registry maps variable names to their domains. It is append-only and
// read-only once a Structure has been built on top of it.
type Registry struct {
	vars   []Variable
	byName map[string]VarID
	states []map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]VarID),
	}
}

// Declare adds a variable with the given ordered domain.
func (r *Registry) Declare(name string, states ...string) (VarID, error) {
	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateVariable, name)
	}
	if len(states) == 0 {
		return 0, fmt.Errorf("%w: variable %q", ErrEmptyDomain, name)
	}
	index := make(map[string]int, len(states))
	for i, s := range states {
		if _, dup := index[s]; dup {
			return 0, fmt.Errorf("%w: %q in domain of %q", ErrDuplicateValue, s, name)
		}
		index[s] = i
	}

	id := VarID(len(r.vars))
	r.vars = append(r.vars, Variable{
		ID:     id,
		Name:   name,
		States: append([]string(nil), states...),
	})
	r.byName[name] = id
	r.states = append(r.states, index)
	return id, nil
}

// ID resolves a name to its arena index.
func (r *Registry) ID(name string) (VarID, error) {
	id, ok := r.byName[name]
	if !ok {
		return 0, &UnknownVariableError{Name: name}
	}
	return id, nil
}

// Variable returns the variable stored at id. id must come from this Registry.
func (r *Registry) Variable(id VarID) Variable {
	return r.vars[id]
}

// Lookup resolves a name to its Variable.
func (r *Registry) Lookup(name string) (Variable, error) {
	id, err := r.ID(name)
	if err != nil {
		return Variable{}, err
	}
	return r.vars[id], nil
}

// DomainOf returns a copy of the ordered domain of name.
func (r *Registry) DomainOf(name string) ([]string, error) {
	v, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.States...), nil
}

// StateIndex returns the position of value within the domain of id.
func (r *Registry) StateIndex(id VarID, value string) (int, error) {
	idx, ok := r.states[id][value]
	if !ok {
		return 0, &UnknownValueError{Variable: r.vars[id].Name, Value: value}
	}
	return idx, nil
}

// Has reports whether name was declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Len() int {
	return len(r.vars)
}

// Names returns variable names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.vars))
	for i, v := range r.vars {
		names[i] = v.Name
	}
	return names
}

// FormatAssignment renders an assignment with keys in lexical order.
func FormatAssignment(a map[string]string) string {
	if len(a) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + a[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
