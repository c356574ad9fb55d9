package inference

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bayesnet/internal/core/estimation"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/dataset"
)

// sprinklerModel: Rain -> WetGrass <- Sprinkler
func sprinklerModel(t *testing.T) *model.Model {
	t.Helper()
	reg := model.NewRegistry()
	for _, n := range []string{"Rain", "Sprinkler", "WetGrass"} {
		_, err := reg.Declare(n, "no", "yes")
		require.NoError(t, err)
	}
	s, err := model.StructureFromEdges(reg, []model.Edge{
		{Parent: "Rain", Child: "WetGrass"},
		{Parent: "Sprinkler", Child: "WetGrass"},
	})
	require.NoError(t, err)

	cpd := func(node string, parents []string, rows [][]float64) *model.CPD {
		n, _ := reg.Lookup(node)
		ps := make([]model.Variable, len(parents))
		for i, p := range parents {
			ps[i], _ = reg.Lookup(p)
		}
		c, err := model.NewCPD(n, ps, rows)
		require.NoError(t, err)
		return c
	}
	m, err := model.NewBuilder(s).Add(
		cpd("Rain", nil, [][]float64{{0.8, 0.2}}),
		cpd("Sprinkler", nil, [][]float64{{0.6, 0.4}}),
		cpd("WetGrass", []string{"Rain", "Sprinkler"}, [][]float64{
			{1.0, 0.0},
			{0.1, 0.9},
			{0.2, 0.8},
			{0.01, 0.99},
		}),
	).Build()
	require.NoError(t, err)
	return m
}

// bruteForce computes P(targets | evidence) by enumerating the full joint.
func bruteForce(t *testing.T, m *model.Model, targets []string, evidence map[string]string) map[string]float64 {
	t.Helper()
	reg := m.Registry()
	ids := m.Structure().NodeIDs()
	vars := make([]model.Variable, len(ids))
	for i, id := range ids {
		vars[i] = reg.Variable(id)
	}

	out := make(map[string]float64)
	total := 0.0
	assign := make([]int, len(vars))
	for n := 0; n < size(vars); n++ {
		values := make(map[string]string, len(vars))
		for k, v := range vars {
			values[v.Name] = v.States[assign[k]]
		}
		consistent := true
		for k, v := range evidence {
			if values[k] != v {
				consistent = false
			}
		}
		if consistent {
			p := 1.0
			for _, cpd := range m.CPDs() {
				parents := make(map[string]string)
				for _, pn := range cpd.ParentNames() {
					parents[pn] = values[pn]
				}
				x, err := cpd.Lookup(values[cpd.Node.Name], parents)
				require.NoError(t, err)
				p *= x
			}
			key := ""
			for _, tn := range targets {
				key += tn + "=" + values[tn] + ";"
			}
			out[key] += p
			total += p
		}
		advance(assign, vars)
	}
	for k := range out {
		out[k] /= total
	}
	return out
}

func assertMatchesBruteForce(t *testing.T, m *model.Model, d *Distribution, evidence map[string]string) {
	t.Helper()
	want := bruteForce(t, m, d.Names(), evidence)
	for _, e := range d.Entries() {
		key := ""
		for _, n := range d.Names() {
			key += n + "=" + e.Assignment[n] + ";"
		}
		assert.InDelta(t, want[key], e.P, 1e-12, key)
	}
}

func TestQuery_MatchesBruteForce(t *testing.T) {
	m := sprinklerModel(t)

	cases := []struct {
		name     string
		targets  []string
		evidence map[string]string
	}{
		{"prior", []string{"WetGrass"}, nil},
		{"diagnostic", []string{"Rain"}, map[string]string{"WetGrass": "yes"}},
		{"explaining away", []string{"Rain"}, map[string]string{"WetGrass": "yes", "Sprinkler": "yes"}},
		{"joint", []string{"Sprinkler", "Rain"}, map[string]string{"WetGrass": "yes"}},
	}
	for _, ordering := range []Ordering{MinDegree, MinFill, ReverseDeclaration} {
		engine, err := NewEngine(m, ordering)
		require.NoError(t, err)
		for _, tc := range cases {
			t.Run(string(ordering)+"/"+tc.name, func(t *testing.T) {
				d, err := engine.Query(tc.targets, tc.evidence)
				require.NoError(t, err)
				assert.Equal(t, tc.targets, d.Names())

				sum := 0.0
				for _, v := range d.Values {
					sum += v
				}
				assert.InDelta(t, 1.0, sum, 1e-12)
				assertMatchesBruteForce(t, m, d, tc.evidence)
			})
		}
	}
}

func TestQuery_KnownValue(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)

	d, err := engine.Query([]string{"Rain"}, map[string]string{"WetGrass": "yes"})
	require.NoError(t, err)
	p, err := d.Prob(map[string]string{"Rain": "yes"})
	require.NoError(t, err)
	assert.InDelta(t, 0.1752/0.4632, p, 1e-12)
}

func TestQuery_Idempotent(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinFill)
	require.NoError(t, err)

	ev := map[string]string{"WetGrass": "yes"}
	a, err := engine.Query([]string{"Rain", "Sprinkler"}, ev)
	require.NoError(t, err)
	b, err := engine.Query([]string{"Rain", "Sprinkler"}, ev)
	require.NoError(t, err)
	require.Equal(t, len(a.Values), len(b.Values))
	for i := range a.Values {
		assert.Equal(t, math.Float64bits(a.Values[i]), math.Float64bits(b.Values[i]))
	}
}

func TestQuery_LawOfTotalProbability(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)

	ev := map[string]string{"WetGrass": "yes"}
	joint, err := engine.Query([]string{"Rain", "Sprinkler"}, ev)
	require.NoError(t, err)
	marg, err := joint.Marginal("Rain")
	require.NoError(t, err)
	direct, err := engine.Query([]string{"Rain"}, ev)
	require.NoError(t, err)

	require.Equal(t, direct.Names(), marg.Names())
	for i := range direct.Values {
		assert.InDelta(t, direct.Values[i], marg.Values[i], 1e-12)
	}

	_, err = joint.Marginal("Nope")
	assert.ErrorIs(t, err, model.ErrUnknownVariable)
}

func TestQuery_FullyObserved(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)

	ev := map[string]string{"Rain": "yes", "Sprinkler": "no", "WetGrass": "yes"}
	d, err := engine.Query([]string{"Rain"}, ev)
	require.NoError(t, err)
	require.Len(t, d.Values, 1)
	assert.InDelta(t, 1.0, d.Values[0], 1e-12)
	assert.Equal(t, []string{"yes"}, d.Variables[0].States)

	// A fixed target alongside a free one keeps the free one's distribution.
	d, err = engine.Query([]string{"Sprinkler", "Rain"}, map[string]string{"Rain": "yes"})
	require.NoError(t, err)
	require.Len(t, d.Values, 2)
	assert.InDelta(t, 0.6, d.Values[0], 1e-12)
	assert.InDelta(t, 0.4, d.Values[1], 1e-12)
}

func TestQuery_Errors(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)

	_, err = engine.Query(nil, nil)
	assert.ErrorIs(t, err, model.ErrInvalidQuery)

	_, err = engine.Query([]string{"Nope"}, nil)
	assert.ErrorIs(t, err, model.ErrUnknownVariable)

	_, err = engine.Query([]string{"Rain"}, map[string]string{"Nope": "yes"})
	assert.ErrorIs(t, err, model.ErrUnknownVariable)

	_, err = engine.Query([]string{"Rain"}, map[string]string{"WetGrass": "value_not_in_domain"})
	assert.ErrorIs(t, err, model.ErrUnknownValue)

	_, err = engine.Query([]string{"Rain"}, map[string]string{"Rain": "no", "Sprinkler": "no", "WetGrass": "yes"})
	require.Error(t, err)
	assert.True(t, IsInconsistentEvidence(err))
	var inconsistent *model.InconsistentEvidenceError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, "WetGrass", inconsistent.Node)
}

func TestQuery_PrunesBarrenNodes(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)

	d, trace, err := engine.QueryTrace([]string{"Rain"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"WetGrass", "Sprinkler"}, trace.Pruned)
	assert.Empty(t, trace.Order)
	assert.InDelta(t, 0.2, d.Values[1], 1e-12)
}

func TestQuery_Concurrent(t *testing.T) {
	engine, err := NewEngine(sprinklerModel(t), MinDegree)
	require.NoError(t, err)
	want, err := engine.Query([]string{"Rain"}, map[string]string{"WetGrass": "yes"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.Query([]string{"Rain"}, map[string]string{"WetGrass": "yes"})
			assert.NoError(t, err)
			assert.Equal(t, want.Values, got.Values)
		}()
	}
	wg.Wait()
}

func TestNewEngine_RejectsInvalid(t *testing.T) {
	_, err := NewEngine(nil, MinDegree)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewEngine(sprinklerModel(t), Ordering("random"))
	assert.Error(t, err)
}

// A,B independent parents of C = XOR(A,B), balanced over all (A,B) combinations.
func TestQuery_XORReproducesEmpiricalFrequency(t *testing.T) {
	reg := model.NewRegistry()
	for _, n := range []string{"A", "B", "C"} {
		_, err := reg.Declare(n, "0", "1")
		require.NoError(t, err)
	}
	s, err := model.StructureFromEdges(reg, []model.Edge{{Parent: "A", Child: "C"}, {Parent: "B", Child: "C"}})
	require.NoError(t, err)

	records := [][]string{
		{"0", "0", "0"}, {"0", "1", "1"}, {"1", "0", "1"}, {"1", "1", "0"},
		{"0", "0", "0"}, {"0", "1", "1"}, {"1", "0", "1"}, {"1", "1", "0"},
	}
	ds, err := dataset.New([]string{"A", "B", "C"}, records)
	require.NoError(t, err)

	cpds, err := estimation.NewEstimator(estimation.MaximumLikelihood).EstimateAll(context.Background(), s, ds)
	require.NoError(t, err)
	m, err := model.NewBuilder(s).Add(cpds...).Build()
	require.NoError(t, err)

	engine, err := NewEngine(m, MinDegree)
	require.NoError(t, err)
	d, err := engine.Query([]string{"C"}, map[string]string{"A": "1"})
	require.NoError(t, err)

	var withA, withAC float64
	for _, r := range records {
		if r[0] == "1" {
			withA++
			if r[2] == "1" {
				withAC++
			}
		}
	}
	p, err := d.Prob(map[string]string{"C": "1"})
	require.NoError(t, err)
	assert.Equal(t, withAC/withA, p)
}

func TestEliminationOrder_Chain(t *testing.T) {
	reg := model.NewRegistry()
	var vars []model.Variable
	for _, n := range []string{"A", "B", "C", "D"} {
		id, err := reg.Declare(n, "0", "1")
		require.NoError(t, err)
		vars = append(vars, reg.Variable(id))
	}
	factors := []*Factor{
		{Vars: []model.Variable{vars[0]}},
		{Vars: []model.Variable{vars[0], vars[1]}},
		{Vars: []model.Variable{vars[1], vars[2]}},
		{Vars: []model.Variable{vars[2], vars[3]}},
	}
	names := func(vs []model.Variable) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.Name
		}
		return out
	}
	elim := []model.Variable{vars[2], vars[0], vars[1]}

	assert.Equal(t, []string{"A", "B", "C"}, names(eliminationOrder(MinDegree, factors, elim)))
	assert.Equal(t, []string{"A", "B", "C"}, names(eliminationOrder(MinFill, factors, elim)))
	assert.Equal(t, []string{"C", "B", "A"}, names(eliminationOrder(ReverseDeclaration, factors, elim)))
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("")
	require.NoError(t, err)
	assert.Equal(t, MinDegree, o)
	o, err = ParseOrdering("MIN_FILL")
	require.NoError(t, err)
	assert.Equal(t, MinFill, o)
	_, err = ParseOrdering("weighted")
	assert.Error(t, err)
}
