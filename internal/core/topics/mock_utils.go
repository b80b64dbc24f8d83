package topics

import (
	"context"
)

type MockLLMClient struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

type MockCanonicalizer struct {
	Mapping map[string]string
	Err     error
	Calls   [][]string
	Block   bool
}

func (m *MockCanonicalizer) Canonicalize(ctx context.Context, topics []string) (map[string]string, error) {
	m.Calls = append(m.Calls, topics)
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Mapping, nil
}
