package driver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/agenthands/bayesnet/internal/core/model"
)

// PublishModel writes m to the graph as Variable nodes, DEPENDS_ON edges from
// child to parent and one CPDRow per parent combination. Anything previously
// published under the same model ID is replaced.
func PublishModel(ctx context.Context, d GraphDriver, m *model.Model) error {
	modelID := m.ID()
	fingerprint := strconv.FormatUint(m.Fingerprint(), 16)
	now := time.Now().UTC()

	if _, err := d.ExecuteQuery(ctx, DeleteModelQuery, map[string]interface{}{"model_id": modelID}); err != nil {
		return fmt.Errorf("failed to clear model %s: %w", modelID, err)
	}

	s := m.Structure()
	for i, name := range s.Nodes() {
		states, err := s.Registry().DomainOf(name)
		if err != nil {
			return err
		}
		params := map[string]interface{}{
			"model_id":     modelID,
			"name":         name,
			"states":       states,
			"position":     i,
			"fingerprint":  fingerprint,
			"published_at": now,
		}
		if _, err := d.ExecuteQuery(ctx, SaveVariableQuery, params); err != nil {
			return fmt.Errorf("failed to save variable %q: %w", name, err)
		}
	}

	for _, name := range s.Nodes() {
		parents, err := s.ParentsOf(name)
		if err != nil {
			return err
		}
		for i, p := range parents {
			params := map[string]interface{}{
				"model_id": modelID,
				"parent":   p,
				"child":    name,
				"position": i,
			}
			if _, err := d.ExecuteQuery(ctx, SaveDependsOnQuery, params); err != nil {
				return fmt.Errorf("failed to save edge %s -> %s: %w", p, name, err)
			}
		}
	}

	for _, cpd := range m.CPDs() {
		params := map[string]interface{}{
			"model_id": modelID,
			"node":     cpd.Node.Name,
			"rows":     cpdRows(cpd),
		}
		if _, err := d.ExecuteQuery(ctx, SaveCPDRowsQuery, params); err != nil {
			return fmt.Errorf("failed to save CPD of %q: %w", cpd.Node.Name, err)
		}
	}
	return nil
}

// cpdRows flattens a CPD into driver parameters. Combinations are stored as
// "Parent=value" strings so the rows stay portable to Neo4j, which has no
// map-valued properties.
func cpdRows(cpd *model.CPD) []interface{} {
	unobserved := make(map[string]bool, len(cpd.Warnings))
	for _, w := range cpd.Warnings {
		unobserved[model.FormatAssignment(w.Combination)] = true
	}

	rows := make([]interface{}, cpd.NumRows())
	for i := range rows {
		combo := cpd.CombinationNames(i)
		pairs := make([]string, 0, len(combo))
		for k, v := range combo {
			pairs = append(pairs, k+"="+v)
		}
		sort.Strings(pairs)
		rows[i] = map[string]interface{}{
			"index":         i,
			"combination":   pairs,
			"probabilities": append([]float64(nil), cpd.Row(i)...),
			"observed":      !unobserved[model.FormatAssignment(combo)],
		}
	}
	return rows
}

// PublishedVariable is a Variable node read back from the graph.
type PublishedVariable struct {
	Name    string   `json:"name"`
	States  []string `json:"states"`
	Parents []string `json:"parents"`
}

// FetchVariables reads the published variables of a model in node order.
func FetchVariables(ctx context.Context, d GraphDriver, modelID string) ([]PublishedVariable, error) {
	res, err := d.ExecuteQuery(ctx, GetVariablesQuery, map[string]interface{}{"model_id": modelID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch variables of model %s: %w", modelID, err)
	}
	out := make([]PublishedVariable, 0, len(res.Records))
	for _, rec := range res.Records {
		name, _ := rec.Get("name")
		states, _ := rec.Get("states")
		parents, _ := rec.Get("parents")
		v := PublishedVariable{
			States:  toStrings(states),
			Parents: toStrings(parents),
		}
		v.Name, _ = name.(string)
		out = append(out, v)
	}
	return out, nil
}

func toStrings(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
