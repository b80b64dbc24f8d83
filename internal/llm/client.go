package llm

import (
	"context"
	"errors"
)

// LLMClient is the single capability the matcher needs from a model: turn a
// prompt into text.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned no text")

// Every prompt the matcher sends asks for a small JSON object back.
const systemInstruction = "You help a workplace bot match colleagues by shared interests. " +
	"Reply with exactly one JSON object and no other text."

const (
	temperature = 0.2
	maxTokens   = 1024
)
