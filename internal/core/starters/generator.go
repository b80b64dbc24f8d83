package starters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/agenthands/micromatch/internal/core/common"
	"github.com/agenthands/micromatch/internal/llm"
)

// Generator produces conversation-starter questions for a topic. It is best
// effort: an empty result or an error means "use the generic starter".
type Generator interface {
	Generate(ctx context.Context, topic string, count int) ([]string, error)
}

type NoopGenerator struct{}

func (NoopGenerator) Generate(ctx context.Context, topic string, count int) ([]string, error) {
	return nil, nil
}

const defaultStartersPrompt = `Write %d short, friendly ice breaker questions for colleagues who share an interest in "%s".
Return a JSON object with a single key "questions" holding a list of strings.
Example: { "questions": ["What got you into it?"] }`

type questionList struct {
	Questions []string `json:"questions"`
}

// LLMGenerator asks the model for questions and caches them per topic, so the
// rooms of one topic in a cycle share a single call.
type LLMGenerator struct {
	LLM    llm.LLMClient
	Prompt string
	cache  *cache.Cache
}

func NewLLMGenerator(client llm.LLMClient, prompt string, ttl time.Duration) *LLMGenerator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LLMGenerator{
		LLM:    client,
		Prompt: prompt,
		cache:  cache.New(ttl, ttl/2),
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, topic string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	key := fmt.Sprintf("%s|%d", topic, count)
	if x, found := g.cache.Get(key); found {
		return x.([]string), nil
	}

	promptTemplate := g.Prompt
	if promptTemplate == "" {
		promptTemplate = defaultStartersPrompt
	}
	prompt := fmt.Sprintf(promptTemplate, count, topic)

	response, err := g.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate starters: %w", err)
	}

	result, err := common.ParseJSON[questionList](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse starters: %w", err)
	}

	var questions []string
	for _, q := range result.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}

	if len(questions) > 0 {
		g.cache.Set(key, questions, cache.DefaultExpiration)
	}
	return questions, nil
}

// Fallback is the single generic starter used when nothing was generated.
func Fallback(topic string) string {
	return fmt.Sprintf("What's something new you learned about %s recently?", topic)
}
