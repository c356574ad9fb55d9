package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
)

type MockLLMClient struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func stockDistribution(t *testing.T) *inference.Distribution {
	t.Helper()
	reg := model.NewRegistry()
	id, err := reg.Declare("Stock_Performance", "Down", "Up")
	require.NoError(t, err)
	return &inference.Distribution{Variables: []model.Variable{reg.Variable(id)}, Values: []float64{0.3, 0.7}}
}

func TestExplain(t *testing.T) {
	mock := &MockLLMClient{Response: "```json\n{\"summary\": \"Stocks are likely to go up.\"}\n```"}
	n := NewNarrator(mock, "")

	q := Query{Targets: []string{"Stock_Performance"}, Evidence: map[string]string{"Market_Trend": "Bull"}}
	exp, err := n.Explain(context.Background(), q, stockDistribution(t))
	require.NoError(t, err)

	assert.Equal(t, "Stocks are likely to go up.", exp.Summary)
	assert.Equal(t, map[string]string{"Stock_Performance": "Up"}, exp.MostLikely)
	assert.Equal(t, 0.7, exp.P)

	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "{Market_Trend=Bull}")
	assert.Contains(t, mock.Prompts[0], "0.7000")
}

func TestExplain_PlainTextReply(t *testing.T) {
	mock := &MockLLMClient{Response: "  Up is more likely.  "}
	exp, err := NewNarrator(mock, "evidence %s table %s").Explain(context.Background(), Query{Targets: []string{"Stock_Performance"}}, stockDistribution(t))
	require.NoError(t, err)
	assert.Equal(t, "Up is more likely.", exp.Summary)
	assert.Contains(t, mock.Prompts[0], "evidence none table")
}

func TestExplain_Errors(t *testing.T) {
	n := NewNarrator(&MockLLMClient{Err: errors.New("rate limited")}, "")
	_, err := n.Explain(context.Background(), Query{}, stockDistribution(t))
	assert.ErrorContains(t, err, "rate limited")

	_, err = n.Explain(context.Background(), Query{}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
}

func TestMostLikely_Tie(t *testing.T) {
	d := stockDistribution(t)
	d.Values = []float64{0.5, 0.5}
	assert.Equal(t, "Down", MostLikely(d).Assignment["Stock_Performance"])
}
