package topics

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/micromatch/internal/core/common"
	"github.com/agenthands/micromatch/internal/llm"
)

// Canonicalizer maps raw topics to canonical categories. Implementations are
// best effort and may return a partial or empty mapping.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, topics []string) (map[string]string, error)
}

// IdentityCanonicalizer maps nothing; every topic falls back to itself.
type IdentityCanonicalizer struct{}

func (IdentityCanonicalizer) Canonicalize(ctx context.Context, topics []string) (map[string]string, error) {
	return map[string]string{}, nil
}

const defaultCanonicalizePrompt = `Map every interest topic below to a short lowercase category name.
Merge synonyms and close variants, keep unrelated topics apart.

Topics:
%s

Return a JSON object with a single key "mapping" whose value maps every input topic to its category.
Example: { "mapping": { "yoga": "fitness", "movies": "cinema" } }`

type canonicalMapping struct {
	Mapping map[string]string `json:"mapping"`
}

type LLMCanonicalizer struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewLLMCanonicalizer(client llm.LLMClient, prompt string) *LLMCanonicalizer {
	return &LLMCanonicalizer{
		LLM:    client,
		Prompt: prompt,
	}
}

func (c *LLMCanonicalizer) Canonicalize(ctx context.Context, topics []string) (map[string]string, error) {
	if len(topics) == 0 {
		return map[string]string{}, nil
	}

	var list strings.Builder
	for _, t := range topics {
		fmt.Fprintf(&list, "- %s\n", t)
	}

	promptTemplate := c.Prompt
	if promptTemplate == "" {
		promptTemplate = defaultCanonicalizePrompt
	}
	prompt := fmt.Sprintf(promptTemplate, list.String())

	response, err := c.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate topic mapping: %w", err)
	}

	result, err := common.ParseJSON[canonicalMapping](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse topic mapping: %w", err)
	}
	return result.Mapping, nil
}
