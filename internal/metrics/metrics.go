// Package metrics exports Prometheus metrics about model fitting and inference.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agenthands/bayesnet/internal/core/model"
)

const namespace = "bayesnet"

var latencyObjectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.95: 0.005, 0.99: 0.001}

// Query results as used in the "result" label.
const (
	ResultOK           = "ok"
	ResultInconsistent = "inconsistent_evidence"
	ResultInvalid      = "invalid_query"
	ResultError        = "error"
)

type Metrics struct {
	modelsBuilt         prometheus.Counter
	buildFailures       prometheus.Counter
	estimationSeconds   prometheus.Summary
	insufficientData    *prometheus.CounterVec
	queries             *prometheus.CounterVec
	queryLatencySeconds prometheus.Summary
	maxFactorSize       prometheus.Gauge
}

// New creates the metrics and registers them with r. A nil r leaves them
// unregistered.
func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		modelsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "models_built",
			Help:      `The number of models fitted from data that passed validation.`,
		}),
		buildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "build_failures",
			Help:      `The number of times fitting or validating a model returned an error.`,
		}),
		estimationSeconds: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  namespace,
			Subsystem:  "estimation",
			Name:       "duration_seconds",
			Help:       `The time it takes to estimate every CPD of a network.`,
			Objectives: latencyObjectives,
		}),
		insufficientData: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "insufficient_data_rows",
			Help: `The number of CPD rows filled without any matching observation.

Each such row is a parent combination absent from the data. It is filled
uniformly (MLE) or from the prior alone (K2, BDeu).
`,
		}, []string{"node"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "queries",
			Help:      `The number of inference queries, by result.`,
		}, []string{"result"}),
		queryLatencySeconds: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  namespace,
			Subsystem:  "inference",
			Name:       "query_latency_seconds",
			Help:       `The time it takes to answer a query by variable elimination.`,
			Objectives: latencyObjectives,
		}),
		maxFactorSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "last_max_factor_size",
			Help:      `The largest intermediate factor built by the most recent successful query.`,
		}),
	}
	if r != nil {
		r.MustRegister(m.modelsBuilt, m.buildFailures, m.estimationSeconds, m.insufficientData,
			m.queries, m.queryLatencySeconds, m.maxFactorSize)
	}
	return m
}

// ObserveBuild records one attempt to fit and validate a model.
func (m *Metrics) ObserveBuild(d time.Duration, warnings []model.InsufficientDataWarning, err error) {
	if err != nil {
		m.buildFailures.Inc()
		return
	}
	m.modelsBuilt.Inc()
	m.estimationSeconds.Observe(d.Seconds())
	for _, w := range warnings {
		m.insufficientData.WithLabelValues(w.Node).Inc()
	}
}

// ObserveQuery records one query. maxFactorSize is ignored on error.
func (m *Metrics) ObserveQuery(d time.Duration, maxFactorSize int, err error) {
	result := QueryResult(err)
	m.queries.WithLabelValues(result).Inc()
	if result != ResultOK {
		return
	}
	m.queryLatencySeconds.Observe(d.Seconds())
	m.maxFactorSize.Set(float64(maxFactorSize))
}

// QueryResult classifies a query error for the "result" label.
func QueryResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, model.ErrInconsistentEvidence):
		return ResultInconsistent
	case errors.Is(err, model.ErrInvalidQuery),
		errors.Is(err, model.ErrUnknownVariable),
		errors.Is(err, model.ErrUnknownValue):
		return ResultInvalid
	default:
		return ResultError
	}
}
