// Package summary asks an LLM to explain inference results in plain language.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/llm"
	"github.com/agenthands/bayesnet/internal/report"
)

// DefaultPrompt takes the evidence and the result table, in that order.
const DefaultPrompt = `You are explaining the output of a Bayesian network query to a non-specialist.
Evidence observed: %s

Posterior distribution:
%s
Summarise what the distribution says in one short paragraph. Mention the most likely outcome and how confident the model is.
Respond with JSON: {"summary": "..."}`

// Query is the question a distribution answers.
type Query struct {
	Targets  []string          `json:"targets"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

type Explanation struct {
	Summary    string            `json:"summary"`
	MostLikely map[string]string `json:"most_likely"`
	P          float64           `json:"p"`
}

type Narrator struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewNarrator(client llm.LLMClient, prompt string) *Narrator {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Narrator{LLM: client, Prompt: prompt}
}

// Explain describes d. The most likely assignment is computed locally; only
// the prose comes from the LLM. A reply that is not JSON is used verbatim.
func (n *Narrator) Explain(ctx context.Context, q Query, d *inference.Distribution) (*Explanation, error) {
	if d == nil || len(d.Values) == 0 {
		return nil, fmt.Errorf("%w: nothing to explain", model.ErrInvalidQuery)
	}
	best := MostLikely(d)

	evidence := "none"
	if len(q.Evidence) > 0 {
		evidence = model.FormatAssignment(q.Evidence)
	}
	var table bytes.Buffer
	report.WriteDistribution(&table, d)

	response, err := n.LLM.Generate(ctx, fmt.Sprintf(n.Prompt, evidence, table.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to generate explanation: %w", err)
	}

	summary := strings.TrimSpace(response)
	if parsed, err := parseJSON[Explanation](response); err == nil && parsed.Summary != "" {
		summary = parsed.Summary
	}
	return &Explanation{Summary: summary, MostLikely: best.Assignment, P: best.P}, nil
}

// MostLikely returns the entry with the highest probability. Ties go to the
// earliest entry.
func MostLikely(d *inference.Distribution) inference.Entry {
	entries := d.Entries()
	best := entries[0]
	for _, e := range entries[1:] {
		if e.P > best.P {
			best = e
		}
	}
	return best
}

// parseJSON unmarshals the outermost JSON object in an LLM reply, ignoring
// markdown fences or prose around it.
func parseJSON[T any](response string) (T, error) {
	var result T
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return result, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
