// Package llm defines the text-generation boundary shared by the model
// providers and the classifier.
package llm

import "context"

// Request is one single-turn, non-streaming generation call.
type Request struct {
	Model       string // empty means the provider's default
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

// Generator turns a prompt into text.
type Generator interface {
	GenerateText(ctx context.Context, req Request) (string, error)
}

// ModelChecker is implemented by generators that can tell whether a model id
// belongs to their provider.
type ModelChecker interface {
	SupportsModel(model string) bool
}
