// Package core ties the pieces together: it fits a model from a network
// definition and a dataset, and answers queries against it.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/core/estimation"
	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/dataset"
	"github.com/agenthands/bayesnet/internal/driver"
	"github.com/agenthands/bayesnet/internal/loader"
	"github.com/agenthands/bayesnet/internal/metrics"
)

// ErrNotFitted is returned by operations that need a model before Fit succeeded.
var ErrNotFitted = errors.New("network has no fitted model")

type Network struct {
	Estimator *estimation.Estimator
	Ordering  inference.Ordering
	Metrics   *metrics.Metrics
	Driver    driver.GraphDriver

	mu     sync.RWMutex
	engine *inference.Engine
}

func NewNetwork(estimator *estimation.Estimator, ordering inference.Ordering, m *metrics.Metrics) *Network {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Network{Estimator: estimator, Ordering: ordering, Metrics: m}
}

// FromConfig builds an unfitted Network from the estimator and inference sections.
func FromConfig(cfg *config.Config, m *metrics.Metrics) (*Network, error) {
	method, err := estimation.ParseMethod(cfg.Estimator.Method)
	if err != nil {
		return nil, err
	}
	ordering, err := inference.ParseOrdering(cfg.Inference.EliminationOrder)
	if err != nil {
		return nil, err
	}
	est := estimation.NewEstimator(method)
	if cfg.Estimator.EquivalentSampleSize > 0 {
		est.EquivalentSampleSize = cfg.Estimator.EquivalentSampleSize
	}
	if cfg.Estimator.Workers > 0 {
		est.Workers = cfg.Estimator.Workers
	}
	return NewNetwork(est, ordering, m), nil
}

// LoadData reads the dataset named by the [data] section.
func LoadData(ctx context.Context, cfg config.DataConfig) (*dataset.Dataset, error) {
	switch cfg.Source {
	case "", "csv":
		return dataset.LoadCSV(cfg.Path)
	case "sqlite":
		return dataset.LoadSQLite(ctx, cfg.Path, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported data source: %s", cfg.Source)
	}
}

// Fit declares the network of def, estimates every CPD the definition does
// not supply from ds, validates the result and makes it the current model.
// ds may be nil when def declares every domain and table.
func (n *Network) Fit(ctx context.Context, def *loader.Definition, ds *dataset.Dataset) (*model.Model, error) {
	start := time.Now()
	m, warnings, err := n.fit(ctx, def, ds)
	n.Metrics.ObserveBuild(time.Since(start), warnings, err)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Failed to fit network")
		return nil, err
	}

	engine, err := inference.NewEngine(m, n.Ordering)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.engine = engine
	n.mu.Unlock()

	fields := log.Fields{
		"model_id":    m.ID(),
		"nodes":       m.Structure().Len(),
		"fingerprint": fmt.Sprintf("%016x", m.Fingerprint()),
		"duration":    time.Since(start),
	}
	if ds != nil {
		fields["rows"] = ds.Len()
	}
	log.WithFields(fields).Info("Fitted network")
	return m, nil
}

func (n *Network) fit(ctx context.Context, def *loader.Definition, ds *dataset.Dataset) (*model.Model, []model.InsufficientDataWarning, error) {
	s, err := def.Structure(ds)
	if err != nil {
		return nil, nil, err
	}
	supplied, err := def.BuildCPDs(s)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[string]bool, len(supplied))
	for _, cpd := range supplied {
		have[cpd.Node.Name] = true
	}

	var cpds []*model.CPD
	if len(supplied) < s.Len() {
		if ds == nil {
			return nil, nil, fmt.Errorf("%d nodes have no CPD and there is no data to estimate them", s.Len()-len(supplied))
		}
		if len(supplied) == 0 {
			if cpds, err = n.Estimator.EstimateAll(ctx, s, ds); err != nil {
				return nil, nil, err
			}
		} else {
			for _, name := range s.Nodes() {
				if have[name] {
					continue
				}
				cpd, err := n.Estimator.EstimateNode(s, name, ds)
				if err != nil {
					return nil, nil, err
				}
				cpds = append(cpds, cpd)
			}
		}
	}

	var warnings []model.InsufficientDataWarning
	for _, cpd := range cpds {
		for _, w := range cpd.Warnings {
			log.WithFields(log.Fields{
				"node":    w.Node,
				"parents": model.FormatAssignment(w.Combination),
			}).Warn("No observations for parent combination, using uniform distribution")
			warnings = append(warnings, w)
		}
	}

	m, err := model.NewBuilder(s).Add(supplied...).Add(cpds...).Build()
	if err != nil {
		return nil, warnings, err
	}
	return m, warnings, nil
}

// Model returns the current model, or nil before the first successful Fit.
func (n *Network) Model() *model.Model {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.engine == nil {
		return nil
	}
	return n.engine.Model()
}

func (n *Network) currentEngine() (*inference.Engine, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.engine == nil {
		return nil, ErrNotFitted
	}
	return n.engine, nil
}

// Check re-validates the current model.
func (n *Network) Check() error {
	engine, err := n.currentEngine()
	if err != nil {
		return err
	}
	return model.Check(engine.Model())
}

// Result is an answered query.
type Result struct {
	QueryID      string                  `json:"query_id"`
	ModelID      string                  `json:"model_id"`
	Distribution *inference.Distribution `json:"-"`
	Entries      []inference.Entry       `json:"distribution"`
	Trace        *inference.Trace        `json:"trace"`
	Duration     time.Duration           `json:"duration_ns"`
}

// Query answers P(targets | evidence) against the current model.
func (n *Network) Query(ctx context.Context, targets []string, evidence map[string]string) (*Result, error) {
	engine, err := n.currentEngine()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryID := uuid.New().String()
	start := time.Now()
	d, trace, err := engine.QueryTrace(targets, evidence)
	elapsed := time.Since(start)

	maxSize := 0
	if trace != nil {
		maxSize = trace.MaxSize
	}
	n.Metrics.ObserveQuery(elapsed, maxSize, err)

	fields := log.Fields{
		"query_id": queryID,
		"targets":  targets,
		"evidence": model.FormatAssignment(evidence),
		"duration": elapsed,
	}
	if err != nil {
		fields["error"] = err
		log.WithFields(fields).Debug("Query failed")
		return nil, err
	}
	fields["elimination_order"] = trace.Order
	fields["pruned"] = trace.Pruned
	log.WithFields(fields).Debug("Query answered")

	return &Result{
		QueryID:      queryID,
		ModelID:      engine.Model().ID(),
		Distribution: d,
		Entries:      d.Entries(),
		Trace:        trace,
		Duration:     elapsed,
	}, nil
}

// Publish writes the current model to the graph database.
func (n *Network) Publish(ctx context.Context) error {
	if n.Driver == nil {
		return fmt.Errorf("no graph driver configured")
	}
	m := n.Model()
	if m == nil {
		return ErrNotFitted
	}
	if err := driver.PublishModel(ctx, n.Driver, m); err != nil {
		return err
	}
	log.WithFields(log.Fields{"model_id": m.ID()}).Info("Published network to graph")
	return nil
}
