// Package dataset holds fully materialised tabular observations: one row per
// independent observation, one named column per discrete variable.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/agenthands/bayesnet/internal/core/model"
)

// Dataset is immutable after construction and safe for concurrent reads.
type Dataset struct {
	columns []string
	index   map[string]int
	cols    [][]string
	rows    int
}

// New builds a Dataset from a header and row-major records.
func New(columns []string, records [][]string) (*Dataset, error) {
	d := &Dataset{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		cols:    make([][]string, len(columns)),
		rows:    len(records),
	}
	for i, c := range columns {
		if _, dup := d.index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		d.index[c] = i
		d.cols[i] = make([]string, len(records))
	}
	for r, rec := range records {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", r+1, len(rec), len(columns))
		}
		for i, v := range rec {
			d.cols[i][r] = v
		}
	}
	return d, nil
}

func (d *Dataset) Len() int {
	return d.rows
}

func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the values of a column. The slice must not be modified.
func (d *Dataset) Column(name string) ([]string, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("dataset has no column %q: %w", name, &model.UnknownVariableError{Name: name})
	}
	return d.cols[i], nil
}

// States returns the distinct values of a column in sorted order. Columns
// whose values are all numeric (NaN excluded) sort numerically.
func (d *Dataset) States(name string) ([]string, error) {
	col, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var states []string
	for _, v := range col {
		if !seen[v] {
			seen[v] = true
			states = append(states, v)
		}
	}
	sortStates(states)
	return states, nil
}

func sortStates(states []string) {
	nums := make([]float64, len(states))
	numeric := true
	for i, s := range states {
		f, err := strconv.ParseFloat(s, 64)
		// NaN has no place in a total order.
		if err != nil || math.IsNaN(f) {
			numeric = false
			break
		}
		nums[i] = f
	}
	if !numeric {
		sort.Strings(states)
		return
	}
	sort.Sort(byNumber{states, nums})
}

type byNumber struct {
	s []string
	n []float64
}

func (b byNumber) Len() int { return len(b.s) }
func (b byNumber) Less(i, j int) bool {
	if b.n[i] != b.n[j] {
		return b.n[i] < b.n[j]
	}
	return b.s[i] < b.s[j]
}
func (b byNumber) Swap(i, j int) {
	b.s[i], b.s[j] = b.s[j], b.s[i]
	b.n[i], b.n[j] = b.n[j], b.n[i]
}

// Declare adds name to reg with the domain observed in the data. Variables
// already declared are left untouched.
func (d *Dataset) Declare(reg *model.Registry, names ...string) error {
	for _, name := range names {
		if reg.Has(name) {
			continue
		}
		states, err := d.States(name)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return fmt.Errorf("cannot infer domain of %q from an empty dataset: %w", name, model.ErrEmptyDomain)
		}
		if _, err := reg.Declare(name, states...); err != nil {
			return err
		}
	}
	return nil
}

// Encode maps a column to state indices of v's domain. It fails on the first
// value outside the domain, naming the row.
func (d *Dataset) Encode(v model.Variable) ([]int, error) {
	col, err := d.Column(v.Name)
	if err != nil {
		return nil, err
	}
	lookup := make(map[string]int, len(v.States))
	for i, s := range v.States {
		lookup[s] = i
	}
	out := make([]int, len(col))
	for r, val := range col {
		idx, ok := lookup[val]
		if !ok {
			return nil, fmt.Errorf("row %d: %w", r+1, &model.UnknownValueError{Variable: v.Name, Value: val})
		}
		out[r] = idx
	}
	return out, nil
}
