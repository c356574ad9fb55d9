package inference

import (
	"fmt"

	"github.com/agenthands/bayesnet/internal/core/model"
)

// Distribution is a normalised probability table over query targets. A
// target fixed by evidence has a single-state domain holding the observed value.
type Distribution struct {
	Variables []model.Variable
	Values    []float64
}

// Entry is one joint assignment of the targets and its probability.
type Entry struct {
	Assignment map[string]string `json:"assignment"`
	P          float64           `json:"p"`
}

func (d *Distribution) Names() []string {
	names := make([]string, len(d.Variables))
	for i, v := range d.Variables {
		names[i] = v.Name
	}
	return names
}

// Entries enumerates every joint assignment, last variable varying fastest.
func (d *Distribution) Entries() []Entry {
	out := make([]Entry, 0, len(d.Values))
	assign := make([]int, len(d.Variables))
	for _, p := range d.Values {
		a := make(map[string]string, len(d.Variables))
		for k, v := range d.Variables {
			a[v.Name] = v.States[assign[k]]
		}
		out = append(out, Entry{Assignment: a, P: p})
		advance(assign, d.Variables)
	}
	return out
}

// Prob looks up the probability of a complete assignment of the targets.
func (d *Distribution) Prob(assignment map[string]string) (float64, error) {
	idx := 0
	st := strides(d.Variables)
	for k, v := range d.Variables {
		value, ok := assignment[v.Name]
		if !ok {
			return 0, fmt.Errorf("%w: assignment missing %q", model.ErrInvalidQuery, v.Name)
		}
		s := -1
		for i, state := range v.States {
			if state == value {
				s = i
				break
			}
		}
		if s < 0 {
			return 0, &model.UnknownValueError{Variable: v.Name, Value: value}
		}
		idx += s * st[k]
	}
	return d.Values[idx], nil
}

// Marginal sums out every variable not in names. The result keeps the order
// of names, each of which may appear once.
func (d *Distribution) Marginal(names ...string) (*Distribution, error) {
	f := &Factor{Vars: d.Variables, Values: d.Values}
	keep := make([]model.Variable, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, fmt.Errorf("%w: %q named twice", model.ErrInvalidQuery, n)
		}
		seen[n] = true
		found := false
		for _, v := range d.Variables {
			if v.Name == n {
				keep = append(keep, v)
				found = true
				break
			}
		}
		if !found {
			return nil, &model.UnknownVariableError{Name: n}
		}
	}
	for _, v := range d.Variables {
		drop := true
		for _, k := range keep {
			if k.ID == v.ID {
				drop = false
				break
			}
		}
		if drop {
			f = f.SumOut(v.ID)
		}
	}
	f = f.Reorder(keep)
	return &Distribution{Variables: f.Vars, Values: f.Values}, nil
}
