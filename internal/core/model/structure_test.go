package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func financeRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	_, err := reg.Declare("Market_Trend", "Bear", "Bull")
	require.NoError(t, err)
	_, err = reg.Declare("Economic_Outlook", "Negative", "Positive")
	require.NoError(t, err)
	_, err = reg.Declare("Stock_Performance", "Down", "Up")
	require.NoError(t, err)
	_, err = reg.Declare("Investor_Sentiment", "Fearful", "Greedy")
	require.NoError(t, err)
	return reg
}

func TestRegistry_Declare(t *testing.T) {
	reg := NewRegistry()

	id, err := reg.Declare("A", "0", "1")
	require.NoError(t, err)
	assert.Equal(t, VarID(0), id)

	_, err = reg.Declare("A", "x")
	assert.ErrorIs(t, err, ErrDuplicateVariable)

	_, err = reg.Declare("B")
	assert.ErrorIs(t, err, ErrEmptyDomain)

	_, err = reg.Declare("C", "x", "y", "x")
	assert.ErrorIs(t, err, ErrDuplicateValue)
	assert.False(t, reg.Has("C"))

	domain, err := reg.DomainOf("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, domain)

	// Returned domain is a copy.
	domain[0] = "mutated"
	again, _ := reg.DomainOf("A")
	assert.Equal(t, "0", again[0])

	_, err = reg.DomainOf("Z")
	var unknown *UnknownVariableError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Z", unknown.Name)
	assert.ErrorIs(t, err, ErrUnknownVariable)

	idx, err := reg.StateIndex(id, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = reg.StateIndex(id, "2")
	assert.ErrorIs(t, err, ErrUnknownValue)
}

func TestStructure_AddEdge(t *testing.T) {
	reg := financeRegistry(t)
	s := NewStructure(reg)

	require.NoError(t, s.AddEdge("Market_Trend", "Stock_Performance"))
	require.NoError(t, s.AddEdge("Economic_Outlook", "Stock_Performance"))
	require.NoError(t, s.AddEdge("Stock_Performance", "Investor_Sentiment"))
	// Idempotent.
	require.NoError(t, s.AddEdge("Market_Trend", "Stock_Performance"))

	parents, err := s.ParentsOf("Stock_Performance")
	require.NoError(t, err)
	assert.Equal(t, []string{"Market_Trend", "Economic_Outlook"}, parents)

	children, err := s.ChildrenOf("Stock_Performance")
	require.NoError(t, err)
	assert.Equal(t, []string{"Investor_Sentiment"}, children)

	assert.Equal(t, []string{"Market_Trend", "Stock_Performance", "Economic_Outlook", "Investor_Sentiment"}, s.Nodes())
	assert.Len(t, s.Edges(), 3)

	t.Run("cycle", func(t *testing.T) {
		err := s.AddEdge("Investor_Sentiment", "Market_Trend")
		var cycle *CycleError
		require.True(t, errors.As(err, &cycle))
		assert.ErrorIs(t, err, ErrCycle)
		assert.Equal(t, []string{"Market_Trend", "Stock_Performance", "Investor_Sentiment", "Market_Trend"}, cycle.Path)

		// Failed edge leaves the graph untouched.
		parents, _ := s.ParentsOf("Market_Trend")
		assert.Empty(t, parents)
	})

	t.Run("self loop", func(t *testing.T) {
		assert.ErrorIs(t, s.AddEdge("Market_Trend", "Market_Trend"), ErrCycle)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		assert.ErrorIs(t, s.AddEdge("Market_Trend", "Nope"), ErrUnknownVariable)
		assert.ErrorIs(t, s.AddEdge("Nope", "Market_Trend"), ErrUnknownVariable)
	})

	t.Run("undeclared node", func(t *testing.T) {
		_, err := s.ParentsOf("Nope")
		assert.ErrorIs(t, err, ErrUnknownVariable)
	})
}

func TestStructure_TopologicalOrder(t *testing.T) {
	reg := financeRegistry(t)
	s, err := StructureFromEdges(reg, []Edge{
		{Parent: "Stock_Performance", Child: "Investor_Sentiment"},
		{Parent: "Economic_Outlook", Child: "Stock_Performance"},
		{Parent: "Market_Trend", Child: "Stock_Performance"},
	})
	require.NoError(t, err)

	order, err := s.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Market_Trend", "Economic_Outlook", "Stock_Performance", "Investor_Sentiment"}, order)

	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	for _, e := range s.Edges() {
		assert.Less(t, pos[e.Parent], pos[e.Child], "%s -> %s", e.Parent, e.Child)
	}
}

func TestStructure_AddNode(t *testing.T) {
	reg := financeRegistry(t)
	s := NewStructure(reg)
	require.NoError(t, s.AddNode("Market_Trend"))
	require.NoError(t, s.AddNode("Market_Trend"))
	assert.Equal(t, 1, s.Len())
	assert.ErrorIs(t, s.AddNode("Nope"), ErrUnknownVariable)
}
