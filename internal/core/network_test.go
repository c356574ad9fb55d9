package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/core/estimation"
	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/dataset"
	"github.com/agenthands/bayesnet/internal/driver"
	"github.com/agenthands/bayesnet/internal/loader"
	"github.com/agenthands/bayesnet/internal/metrics"
)

const financeCSV = `Market_Trend,Economic_Outlook,Stock_Performance,Investor_Sentiment
Bull,Good,Up,Positive
Bull,Good,Up,Positive
Bull,Bad,Up,Negative
Bull,Bad,Down,Negative
Bear,Good,Up,Positive
Bear,Good,Down,Negative
Bear,Bad,Down,Negative
Bear,Bad,Down,Negative
`

func financeDefinition() *loader.Definition {
	return &loader.Definition{Edges: []model.Edge{
		{Parent: "Market_Trend", Child: "Stock_Performance"},
		{Parent: "Economic_Outlook", Child: "Stock_Performance"},
		{Parent: "Stock_Performance", Child: "Investor_Sentiment"},
	}}
}

func financeData(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(financeCSV))
	require.NoError(t, err)
	return ds
}

func newTestNetwork(workers int) *Network {
	est := estimation.NewEstimator(estimation.MaximumLikelihood)
	est.Workers = workers
	return NewNetwork(est, inference.MinDegree, metrics.New(prometheus.NewRegistry()))
}

func TestNetwork_FitAndQuery(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(2)

	_, err := n.Query(ctx, []string{"Stock_Performance"}, nil)
	assert.ErrorIs(t, err, ErrNotFitted)

	m, err := n.Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)
	assert.Same(t, m, n.Model())
	assert.NoError(t, n.Check())

	cpd, err := m.CPD("Stock_Performance")
	require.NoError(t, err)
	p, err := cpd.Lookup("Up", map[string]string{"Market_Trend": "Bull", "Economic_Outlook": "Bad"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	res, err := n.Query(ctx, []string{"Stock_Performance"}, map[string]string{"Market_Trend": "Bull"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.QueryID)
	assert.Equal(t, m.ID(), res.ModelID)
	// P(Up | Bull) = 0.5 * P(Up | Bull, Good) + 0.5 * P(Up | Bull, Bad) = 0.5 * 1 + 0.5 * 0.5
	up, err := res.Distribution.Prob(map[string]string{"Stock_Performance": "Up"})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, up, 1e-12)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, []string{"Investor_Sentiment"}, res.Trace.Pruned)
}

func TestNetwork_FitWarnsOnUnseenCombination(t *testing.T) {
	data := "A,B\nx,p\nx,q\n"
	ds, err := dataset.ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	def := &loader.Definition{
		Variables: []loader.VariableYAML{{Name: "A", States: []string{"x", "y"}}},
		Edges:     []model.Edge{{Parent: "A", Child: "B"}},
	}

	m, err := newTestNetwork(1).Fit(context.Background(), def, ds)
	require.NoError(t, err)
	require.Len(t, m.Warnings(), 1)
	assert.Equal(t, map[string]string{"A": "y"}, m.Warnings()[0].Combination)
}

func TestNetwork_FitMixesSuppliedAndEstimatedCPDs(t *testing.T) {
	def := financeDefinition()
	def.Variables = []loader.VariableYAML{{Name: "Market_Trend", States: []string{"Bear", "Bull"}}}
	def.CPDs = []loader.CPDYAML{{Node: "Market_Trend", Values: [][]float64{{0.9, 0.1}}}}

	m, err := newTestNetwork(1).Fit(context.Background(), def, financeData(t))
	require.NoError(t, err)
	cpd, err := m.CPD("Market_Trend")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1}, cpd.Values)
}

func TestNetwork_FitErrors(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(1)

	def := &loader.Definition{
		Variables: []loader.VariableYAML{{Name: "A", States: []string{"0", "1"}}},
	}
	_, err := n.Fit(ctx, def, nil)
	assert.ErrorContains(t, err, "no data to estimate")

	def.CPDs = []loader.CPDYAML{{Node: "A", Values: [][]float64{{0.5, 0.6}}}}
	_, err = n.Fit(ctx, def, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Nil(t, n.Model())

	partial, err := dataset.ReadCSV(strings.NewReader("Market_Trend\nBull\n"))
	require.NoError(t, err)
	_, err = n.Fit(ctx, financeDefinition(), partial)
	assert.ErrorIs(t, err, model.ErrUnknownVariable)
}

func TestNetwork_DeterministicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	m1, err := newTestNetwork(1).Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)
	m8, err := newTestNetwork(8).Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)
	assert.Equal(t, m1.Fingerprint(), m8.Fingerprint())
	assert.NotEqual(t, m1.ID(), m8.ID())
}

func TestNetwork_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(2)
	_, err := n.Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := n.Query(ctx, []string{"Investor_Sentiment"}, map[string]string{"Economic_Outlook": "Good"})
			assert.NoError(t, err)
			if res != nil {
				assert.Len(t, res.Entries, 2)
			}
		}()
	}
	wg.Wait()
}

func TestNetwork_QueryErrors(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(1)
	_, err := n.Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)

	_, err = n.Query(ctx, []string{"Nope"}, nil)
	assert.ErrorIs(t, err, model.ErrUnknownVariable)
	_, err = n.Query(ctx, []string{"Stock_Performance"}, map[string]string{"Market_Trend": "Sideways"})
	assert.ErrorIs(t, err, model.ErrUnknownValue)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = n.Query(cancelled, []string{"Stock_Performance"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNetwork_Publish(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(1)
	mock := &MockDriver{}

	assert.ErrorContains(t, n.Publish(ctx), "no graph driver")
	n.Driver = mock
	assert.ErrorIs(t, n.Publish(ctx), ErrNotFitted)

	m, err := n.Fit(ctx, financeDefinition(), financeData(t))
	require.NoError(t, err)
	require.NoError(t, n.Publish(ctx))
	assert.Equal(t, driver.DeleteModelQuery, mock.Queries[0])
	assert.Equal(t, m.ID(), mock.QueryParams[0]["model_id"])

	mock.Err = errors.New("unavailable")
	assert.ErrorContains(t, n.Publish(ctx), "unavailable")
}

func TestFromConfigAndLoadData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finance.csv")
	require.NoError(t, os.WriteFile(path, []byte(financeCSV), 0o644))

	cfg := config.Default()
	cfg.Data.Path = path
	cfg.Estimator.Method = "k2"
	cfg.Estimator.Workers = 3
	cfg.Inference.EliminationOrder = "min_fill"

	n, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, estimation.K2, n.Estimator.Method)
	assert.Equal(t, 3, n.Estimator.Workers)
	assert.Equal(t, inference.MinFill, n.Ordering)

	ds, err := LoadData(context.Background(), cfg.Data)
	require.NoError(t, err)
	assert.Equal(t, 8, ds.Len())

	_, err = LoadData(context.Background(), config.DataConfig{Source: "parquet"})
	assert.ErrorContains(t, err, "unsupported data source")

	cfg.Estimator.Method = "magic"
	_, err = FromConfig(cfg, nil)
	assert.Error(t, err)
}
