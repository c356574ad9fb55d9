package estimation

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/dataset"
)

// Method selects how counts are turned into probabilities.
type Method string

const (
	// MaximumLikelihood uses raw relative frequencies.
	MaximumLikelihood Method = "mle"
	// K2 adds a pseudo-count of 1 to every cell.
	K2 Method = "k2"
	// BDeu spreads EquivalentSampleSize pseudo-counts uniformly over every
	// (parent combination, state) cell.
	BDeu Method = "bdeu"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MaximumLikelihood:
		return MaximumLikelihood, nil
	case K2, BDeu:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported estimator method: %s", s)
	}
}

type Estimator struct {
	Method               Method
	EquivalentSampleSize float64
	Workers              int
}

func NewEstimator(method Method) *Estimator {
	return &Estimator{
		Method:               method,
		EquivalentSampleSize: 5,
		Workers:              runtime.NumCPU(),
	}
}

// Estimate computes P(node | parents) from ds. Parent combinations without
// observations get a uniform row and an InsufficientDataWarning. The result
// is a pure function of its inputs.
func (e *Estimator) Estimate(node model.Variable, parents []model.Variable, ds *dataset.Dataset) (*model.CPD, error) {
	nodeCodes, err := ds.Encode(node)
	if err != nil {
		return nil, fmt.Errorf("estimate %q: %w", node.Name, err)
	}
	parentCodes := make([][]int, len(parents))
	for i, p := range parents {
		parentCodes[i], err = ds.Encode(p)
		if err != nil {
			return nil, fmt.Errorf("estimate %q: %w", node.Name, err)
		}
	}

	cpd := &model.CPD{
		Node:    node,
		Parents: append([]model.Variable(nil), parents...),
	}
	card := node.Card()
	numRows := cpd.NumRows()

	counts := make([]float64, numRows*card)
	for r := range nodeCodes {
		row := 0
		for i, p := range parents {
			row = row*p.Card() + parentCodes[i][r]
		}
		counts[row*card+nodeCodes[r]]++
	}

	alpha, err := e.pseudoCount(numRows, card)
	if err != nil {
		return nil, err
	}

	cpd.Values = make([]float64, numRows*card)
	for row := 0; row < numRows; row++ {
		cells := counts[row*card : (row+1)*card]
		out := cpd.Values[row*card : (row+1)*card]

		total := 0.0
		for _, c := range cells {
			total += c
		}
		if total == 0 {
			cpd.Warnings = append(cpd.Warnings, model.InsufficientDataWarning{
				Node:        node.Name,
				Combination: cpd.CombinationNames(row),
			})
			for k := range out {
				out[k] = 1 / float64(card)
			}
			continue
		}
		denom := total + alpha*float64(card)
		for k, c := range cells {
			out[k] = (c + alpha) / denom
		}
	}
	return cpd, nil
}

func (e *Estimator) pseudoCount(numRows, card int) (float64, error) {
	switch e.Method {
	case "", MaximumLikelihood:
		return 0, nil
	case K2:
		return 1, nil
	case BDeu:
		if e.EquivalentSampleSize <= 0 {
			return 0, fmt.Errorf("bdeu requires a positive equivalent sample size, got %g", e.EquivalentSampleSize)
		}
		return e.EquivalentSampleSize / float64(numRows*card), nil
	default:
		return 0, fmt.Errorf("unsupported estimator method: %s", e.Method)
	}
}

// EstimateNode estimates the CPD of a node of s using its structural parents.
func (e *Estimator) EstimateNode(s *model.Structure, name string, ds *dataset.Dataset) (*model.CPD, error) {
	reg := s.Registry()
	node, err := reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !s.Contains(node.ID) {
		return nil, fmt.Errorf("variable %q is not a node of the network: %w", name, &model.UnknownVariableError{Name: name})
	}
	pids := s.ParentIDs(node.ID)
	parents := make([]model.Variable, len(pids))
	for i, id := range pids {
		parents[i] = reg.Variable(id)
	}
	return e.Estimate(node, parents, ds)
}

// EstimateAll estimates every node of s concurrently. CPDs are returned in
// node order regardless of scheduling.
func (e *Estimator) EstimateAll(ctx context.Context, s *model.Structure, ds *dataset.Dataset) ([]*model.CPD, error) {
	nodes := s.Nodes()
	out := make([]*model.CPD, len(nodes))

	g, ctx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		g.SetLimit(e.Workers)
	}
	for i, name := range nodes {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cpd, err := e.EstimateNode(s, name, ds)
			if err != nil {
				return err
			}
			out[i] = cpd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
