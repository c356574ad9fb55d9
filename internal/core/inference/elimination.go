package inference

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agenthands/bayesnet/internal/core/model"
)

// Engine answers exact queries against a validated Model by variable
// elimination. It holds no per-query state and is safe for concurrent use.
type Engine struct {
	model    *model.Model
	ordering Ordering
}

// NewEngine refuses models that fail Check.
func NewEngine(m *model.Model, ordering Ordering) (*Engine, error) {
	if err := model.Check(m); err != nil {
		return nil, err
	}
	switch ordering {
	case "":
		ordering = MinDegree
	case MinDegree, MinFill, ReverseDeclaration:
	default:
		return nil, fmt.Errorf("unsupported elimination order: %s", ordering)
	}
	return &Engine{model: m, ordering: ordering}, nil
}

func (e *Engine) Model() *model.Model {
	return e.model
}

func (e *Engine) Ordering() Ordering {
	return e.ordering
}

// Trace describes how a query was executed.
type Trace struct {
	Order   []string `json:"elimination_order"`
	Pruned  []string `json:"pruned,omitempty"`
	Factors int      `json:"factors"`
	MaxSize int      `json:"max_factor_size"`
}

// Query returns P(targets | evidence).
func (e *Engine) Query(targets []string, evidence map[string]string) (*Distribution, error) {
	d, _, err := e.QueryTrace(targets, evidence)
	return d, err
}

// QueryTrace is Query plus a description of the elimination that ran.
func (e *Engine) QueryTrace(targets []string, evidence map[string]string) (*Distribution, *Trace, error) {
	reg := e.model.Registry()
	s := e.model.Structure()

	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("%w: no target variables", model.ErrInvalidQuery)
	}

	names := make([]string, 0, len(evidence))
	for name := range evidence {
		names = append(names, name)
	}
	sort.Strings(names)

	ev := make(map[model.VarID]int, len(evidence))
	for _, name := range names {
		value := evidence[name]
		v, err := e.node(name)
		if err != nil {
			return nil, nil, err
		}
		idx, err := reg.StateIndex(v.ID, value)
		if err != nil {
			return nil, nil, err
		}
		ev[v.ID] = idx
	}

	var all, free []model.Variable
	seen := make(map[model.VarID]bool)
	for _, name := range targets {
		v, err := e.node(name)
		if err != nil {
			return nil, nil, err
		}
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		all = append(all, v)
		if _, fixed := ev[v.ID]; !fixed {
			free = append(free, v)
		}
	}

	roots := make([]model.VarID, 0, len(free)+len(ev))
	for _, v := range free {
		roots = append(roots, v.ID)
	}
	for id := range ev {
		roots = append(roots, id)
	}
	relevant := s.Ancestors(roots)

	trace := &Trace{}
	var factors []*Factor
	var elim []model.Variable
	for _, id := range s.NodeIDs() {
		v := reg.Variable(id)
		if !relevant[id] {
			trace.Pruned = append(trace.Pruned, v.Name)
			continue
		}
		f := factorFromCPD(e.model.CPDByID(id)).Reduce(ev)
		if f.allZero() {
			return nil, nil, &model.InconsistentEvidenceError{Evidence: copyEvidence(evidence), Node: v.Name}
		}
		factors = append(factors, f)
		if _, fixed := ev[id]; !fixed && !seen[id] {
			elim = append(elim, v)
		}
	}

	order := eliminationOrder(e.ordering, factors, elim)
	for _, v := range order {
		trace.Order = append(trace.Order, v.Name)

		var joint *Factor
		rest := factors[:0:0]
		for _, f := range factors {
			if !f.Contains(v.ID) {
				rest = append(rest, f)
				continue
			}
			if joint == nil {
				joint = f
			} else {
				joint = Product(joint, f)
			}
		}
		if joint == nil {
			continue
		}
		if n := len(joint.Values); n > trace.MaxSize {
			trace.MaxSize = n
		}
		factors = append(rest, joint.SumOut(v.ID))
	}

	result := &Factor{Values: []float64{1}}
	for _, f := range factors {
		result = Product(result, f)
	}
	if n := len(result.Values); n > trace.MaxSize {
		trace.MaxSize = n
	}
	trace.Factors = len(factors)
	result = result.Reorder(free)

	total := result.Sum()
	if total <= 0 {
		return nil, nil, &model.InconsistentEvidenceError{Evidence: copyEvidence(evidence)}
	}
	for i := range result.Values {
		result.Values[i] /= total
	}

	vars := make([]model.Variable, len(all))
	for i, v := range all {
		if idx, fixed := ev[v.ID]; fixed {
			v.States = []string{v.States[idx]}
		}
		vars[i] = v
	}
	return &Distribution{Variables: vars, Values: result.Values}, trace, nil
}

// node resolves name to a declared variable that is part of the network.
func (e *Engine) node(name string) (model.Variable, error) {
	v, err := e.model.Registry().Lookup(name)
	if err != nil {
		return model.Variable{}, err
	}
	if !e.model.Structure().Contains(v.ID) {
		return model.Variable{}, fmt.Errorf("variable %q is not a node of the network: %w", name, &model.UnknownVariableError{Name: name})
	}
	return v, nil
}

func copyEvidence(ev map[string]string) map[string]string {
	out := make(map[string]string, len(ev))
	for k, v := range ev {
		out[k] = v
	}
	return out
}

// IsInconsistentEvidence reports whether err means the evidence is impossible.
func IsInconsistentEvidence(err error) bool {
	return errors.Is(err, model.ErrInconsistentEvidence)
}
