package model

import "fmt"

// CPD stores P(Node | Parents) as a dense table. Rows enumerate parent
// value combinations in mixed radix order (last parent varies fastest);
// each row holds one probability per node state.
type CPD struct {
	Node     Variable                  `json:"node"`
	Parents  []Variable                `json:"parents"`
	Values   []float64                 `json:"values"`
	Warnings []InsufficientDataWarning `json:"warnings,omitempty"`
}

// NewCPD builds a CPD from explicit rows. It only checks the table shape;
// probabilistic consistency is the job of Check.
func NewCPD(node Variable, parents []Variable, rows [][]float64) (*CPD, error) {
	cpd := &CPD{
		Node:    node,
		Parents: append([]Variable(nil), parents...),
	}
	if len(rows) != cpd.NumRows() {
		return nil, fmt.Errorf("cpd %q: expected %d rows, got %d", node.Name, cpd.NumRows(), len(rows))
	}
	cpd.Values = make([]float64, 0, cpd.NumRows()*node.Card())
	for i, row := range rows {
		if len(row) != node.Card() {
			return nil, fmt.Errorf("cpd %q: row %d has %d values, domain has %d", node.Name, i, len(row), node.Card())
		}
		cpd.Values = append(cpd.Values, row...)
	}
	return cpd, nil
}

// NumRows is the number of parent value combinations.
func (c *CPD) NumRows() int {
	n := 1
	for _, p := range c.Parents {
		n *= p.Card()
	}
	return n
}

// Row returns the distribution over node states for parent combination i.
// The returned slice aliases the table.
func (c *CPD) Row(i int) []float64 {
	k := c.Node.Card()
	return c.Values[i*k : (i+1)*k]
}

// RowIndex maps parent state indices (in Parents order) to a row number.
func (c *CPD) RowIndex(parentStates []int) int {
	idx := 0
	for i, p := range c.Parents {
		idx = idx*p.Card() + parentStates[i]
	}
	return idx
}

// Combination decodes row i into parent state indices.
func (c *CPD) Combination(i int) []int {
	states := make([]int, len(c.Parents))
	for k := len(c.Parents) - 1; k >= 0; k-- {
		card := c.Parents[k].Card()
		states[k] = i % card
		i /= card
	}
	return states
}

// CombinationNames decodes row i into a parent name -> value assignment.
func (c *CPD) CombinationNames(i int) map[string]string {
	out := make(map[string]string, len(c.Parents))
	for k, s := range c.Combination(i) {
		out[c.Parents[k].Name] = c.Parents[k].States[s]
	}
	return out
}

// Prob returns P(Node = state | Parents = parentStates).
func (c *CPD) Prob(state int, parentStates []int) float64 {
	return c.Row(c.RowIndex(parentStates))[state]
}

// Lookup is Prob addressed by value names.
func (c *CPD) Lookup(value string, parents map[string]string) (float64, error) {
	state := -1
	for i, s := range c.Node.States {
		if s == value {
			state = i
			break
		}
	}
	if state < 0 {
		return 0, &UnknownValueError{Variable: c.Node.Name, Value: value}
	}
	ps := make([]int, len(c.Parents))
	for k, p := range c.Parents {
		v, ok := parents[p.Name]
		if !ok {
			return 0, fmt.Errorf("%w: missing value for parent %q of %q", ErrInvalidQuery, p.Name, c.Node.Name)
		}
		ps[k] = -1
		for i, s := range p.States {
			if s == v {
				ps[k] = i
				break
			}
		}
		if ps[k] < 0 {
			return 0, &UnknownValueError{Variable: p.Name, Value: v}
		}
	}
	return c.Prob(state, ps), nil
}

func (c *CPD) ParentNames() []string {
	names := make([]string, len(c.Parents))
	for i, p := range c.Parents {
		names[i] = p.Name
	}
	return names
}
