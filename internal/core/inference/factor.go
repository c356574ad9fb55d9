package inference

import (
	"github.com/agenthands/bayesnet/internal/core/model"
)

// Factor is a non-negative table over a scope of variables, laid out in
// mixed radix order with the last variable varying fastest. Factors are
// owned by a single query and never shared.
type Factor struct {
	Vars   []model.Variable
	Values []float64
}

func factorFromCPD(cpd *model.CPD) *Factor {
	vars := make([]model.Variable, 0, len(cpd.Parents)+1)
	vars = append(vars, cpd.Parents...)
	vars = append(vars, cpd.Node)
	return &Factor{
		Vars:   vars,
		Values: append([]float64(nil), cpd.Values...),
	}
}

func size(vars []model.Variable) int {
	n := 1
	for _, v := range vars {
		n *= v.Card()
	}
	return n
}

func strides(vars []model.Variable) []int {
	s := make([]int, len(vars))
	acc := 1
	for i := len(vars) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= vars[i].Card()
	}
	return s
}

// advance increments a mixed radix counter, last digit fastest.
func advance(assign []int, vars []model.Variable) {
	for k := len(assign) - 1; k >= 0; k-- {
		assign[k]++
		if assign[k] < vars[k].Card() {
			return
		}
		assign[k] = 0
	}
}

func (f *Factor) position(id model.VarID) int {
	for i, v := range f.Vars {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is in the factor's scope.
func (f *Factor) Contains(id model.VarID) bool {
	return f.position(id) >= 0
}

// projection maps each variable of f to its position in vars.
func (f *Factor) projection(vars []model.Variable) []int {
	pos := make([]int, len(f.Vars))
	for i, v := range f.Vars {
		pos[i] = -1
		for j, w := range vars {
			if w.ID == v.ID {
				pos[i] = j
				break
			}
		}
	}
	return pos
}

// Reduce fixes evidence variables and drops them from the scope.
func (f *Factor) Reduce(evidence map[model.VarID]int) *Factor {
	var keep []model.Variable
	for _, v := range f.Vars {
		if _, fixed := evidence[v.ID]; !fixed {
			keep = append(keep, v)
		}
	}
	if len(keep) == len(f.Vars) {
		return f
	}

	st := strides(f.Vars)
	base := 0
	for i, v := range f.Vars {
		if s, fixed := evidence[v.ID]; fixed {
			base += s * st[i]
		}
	}
	keepStride := make([]int, len(keep))
	for j, v := range keep {
		keepStride[j] = st[f.position(v.ID)]
	}

	out := &Factor{Vars: keep, Values: make([]float64, size(keep))}
	assign := make([]int, len(keep))
	for i := range out.Values {
		idx := base
		for j, s := range assign {
			idx += s * keepStride[j]
		}
		out.Values[i] = f.Values[idx]
		advance(assign, keep)
	}
	return out
}

// Product multiplies two factors pointwise over the union of their scopes.
func Product(a, b *Factor) *Factor {
	vars := append([]model.Variable(nil), a.Vars...)
	for _, v := range b.Vars {
		if !a.Contains(v.ID) {
			vars = append(vars, v)
		}
	}

	aPos, bPos := a.projection(vars), b.projection(vars)
	aSt, bSt := strides(a.Vars), strides(b.Vars)

	out := &Factor{Vars: vars, Values: make([]float64, size(vars))}
	assign := make([]int, len(vars))
	for i := range out.Values {
		ai, bi := 0, 0
		for k, p := range aPos {
			ai += assign[p] * aSt[k]
		}
		for k, p := range bPos {
			bi += assign[p] * bSt[k]
		}
		out.Values[i] = a.Values[ai] * b.Values[bi]
		advance(assign, vars)
	}
	return out
}

// SumOut marginalises id out of the factor.
func (f *Factor) SumOut(id model.VarID) *Factor {
	drop := f.position(id)
	if drop < 0 {
		return f
	}
	vars := make([]model.Variable, 0, len(f.Vars)-1)
	vars = append(vars, f.Vars[:drop]...)
	vars = append(vars, f.Vars[drop+1:]...)

	outSt := strides(vars)
	out := &Factor{Vars: vars, Values: make([]float64, size(vars))}
	assign := make([]int, len(f.Vars))
	for _, v := range f.Values {
		idx, j := 0, 0
		for k, s := range assign {
			if k == drop {
				continue
			}
			idx += s * outSt[j]
			j++
		}
		out.Values[idx] += v
		advance(assign, f.Vars)
	}
	return out
}

// Reorder returns the factor with its scope permuted to vars, which must be
// the same set of variables.
func (f *Factor) Reorder(vars []model.Variable) *Factor {
	pos := f.projection(vars)
	st := strides(f.Vars)
	out := &Factor{Vars: append([]model.Variable(nil), vars...), Values: make([]float64, len(f.Values))}
	assign := make([]int, len(vars))
	for i := range out.Values {
		src := 0
		for k, p := range pos {
			src += assign[p] * st[k]
		}
		out.Values[i] = f.Values[src]
		advance(assign, vars)
	}
	return out
}

// Sum returns the total weight after clamping negative rounding residue to 0.
func (f *Factor) Sum() float64 {
	total := 0.0
	for i, v := range f.Values {
		if v < 0 {
			f.Values[i] = 0
			continue
		}
		total += v
	}
	return total
}

func (f *Factor) allZero() bool {
	for _, v := range f.Values {
		if v > 0 {
			return false
		}
	}
	return true
}
