package llm

import (
	"context"
)

// SystemInstruction frames every completion as an explanation of a
// probability table, never as a free-form chat.
const SystemInstruction = "You explain the results of Bayesian network queries to non-statisticians. " +
	"Only use the probabilities you are given. Do not invent variables or states."

// Completions are kept short and as repeatable as the provider allows.
const (
	maxTokens   = 512
	temperature = 0.1
)

// LLMClient turns a prompt into a completion.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
