package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// RowSumTolerance bounds |sum(row) - 1| for a valid CPD row.
const RowSumTolerance = 1e-6

// check runs every consistency rule and accumulates the violations in rule
// order: coverage, parent sets, domains, row sums, value range. Tables whose
// variables disagree with the registry are not shape or row checked.
func check(s *Structure, cpds []*CPD) ValidationErrors {
	var errs ValidationErrors

	owned := make(map[VarID][]*CPD)
	for _, cpd := range cpds {
		if cpd == nil {
			continue
		}
		id, err := s.reg.ID(cpd.Node.Name)
		if err != nil || id != cpd.Node.ID || !s.member[id] {
			errs = append(errs, ValidationError{
				Kind:   ViolationOrphanCPD,
				Node:   cpd.Node.Name,
				Detail: "cpd does not belong to a node of the network",
			})
			continue
		}
		owned[id] = append(owned[id], cpd)
	}
	for _, id := range s.order {
		name := s.reg.Variable(id).Name
		switch n := len(owned[id]); {
		case n == 0:
			errs = append(errs, ValidationError{Kind: ViolationMissingCPD, Node: name, Detail: "node has no cpd"})
		case n > 1:
			errs = append(errs, ValidationError{Kind: ViolationDuplicateCPD, Node: name, Detail: fmt.Sprintf("node has %d cpds", n)})
		}
	}

	var tables []*CPD
	for _, id := range s.order {
		if len(owned[id]) == 1 {
			tables = append(tables, owned[id][0])
		}
	}

	for _, cpd := range tables {
		want := make([]string, 0, len(s.parents[cpd.Node.ID]))
		for _, p := range s.parents[cpd.Node.ID] {
			want = append(want, s.reg.Variable(p).Name)
		}
		got := cpd.ParentNames()
		if !sameSet(want, got) {
			errs = append(errs, ValidationError{
				Kind:   ViolationParents,
				Node:   cpd.Node.Name,
				Detail: fmt.Sprintf("cpd parents [%s], structure parents [%s]", strings.Join(got, ", "), strings.Join(want, ", ")),
			})
		}
	}

	consistent := tables[:0:0]
	for _, cpd := range tables {
		bad := false
		for _, v := range append([]Variable{cpd.Node}, cpd.Parents...) {
			if detail := s.reg.mismatch(v); detail != "" {
				errs = append(errs, ValidationError{Kind: ViolationDomain, Node: cpd.Node.Name, Detail: detail})
				bad = true
			}
		}
		if !bad {
			consistent = append(consistent, cpd)
		}
	}

	shaped := tables[:0:0]
	for _, cpd := range consistent {
		if want := cpd.NumRows() * cpd.Node.Card(); len(cpd.Values) != want {
			errs = append(errs, ValidationError{
				Kind:   ViolationShape,
				Node:   cpd.Node.Name,
				Detail: fmt.Sprintf("table has %d values, expected %d", len(cpd.Values), want),
			})
			continue
		}
		shaped = append(shaped, cpd)
	}

	for _, cpd := range shaped {
		for i := 0; i < cpd.NumRows(); i++ {
			sum := 0.0
			for _, v := range cpd.Row(i) {
				sum += v
			}
			if math.IsNaN(sum) || math.Abs(sum-1) > RowSumTolerance {
				errs = append(errs, ValidationError{
					Kind:        ViolationRowSum,
					Node:        cpd.Node.Name,
					Combination: cpd.CombinationNames(i),
					Detail:      fmt.Sprintf("row sums to %g", sum),
				})
			}
		}
	}

	for _, cpd := range shaped {
		for i := 0; i < cpd.NumRows(); i++ {
			for k, v := range cpd.Row(i) {
				if math.IsNaN(v) || v < 0 || v > 1 {
					errs = append(errs, ValidationError{
						Kind:        ViolationOutOfRange,
						Node:        cpd.Node.Name,
						Combination: cpd.CombinationNames(i),
						Detail:      fmt.Sprintf("P(%s=%s) = %g", cpd.Node.Name, cpd.Node.States[k], v),
					})
				}
			}
		}
	}

	return errs
}

// mismatch describes how v differs from the registry's declaration of the
// same name, or returns "" when they agree.
func (r *Registry) mismatch(v Variable) string {
	id, err := r.ID(v.Name)
	if err != nil {
		return fmt.Sprintf("variable %q is not declared", v.Name)
	}
	if id != v.ID {
		return fmt.Sprintf("variable %q has id %d, registry has %d", v.Name, v.ID, id)
	}
	declared := r.Variable(id).States
	if len(declared) != len(v.States) {
		return fmt.Sprintf("variable %q has states [%s], registry has [%s]", v.Name, strings.Join(v.States, ", "), strings.Join(declared, ", "))
	}
	for i := range declared {
		if declared[i] != v.States[i] {
			return fmt.Sprintf("variable %q has states [%s], registry has [%s]", v.Name, strings.Join(v.States, ", "), strings.Join(declared, ", "))
		}
	}
	return ""
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
