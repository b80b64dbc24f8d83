package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProvider(t *testing.T, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv, got := fakeProvider(t, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
		"choices":[{"index":0,"message":{"role":"assistant","content":" {\"mapping\":{}} "},"finish_reason":"stop"}]}`)

	c := NewOpenAIClient("k", "m", srv.URL+"/v1")
	text, err := c.Generate(context.Background(), "map these topics")
	require.NoError(t, err)
	assert.Equal(t, `{"mapping":{}}`, text)

	req := *got
	assert.Equal(t, "m", req["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "map these topics", msgs[1].(map[string]any)["content"])
}

func TestOpenAIClient_EmptyReply(t *testing.T) {
	srv, _ := fakeProvider(t, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)

	_, err := NewOpenAIClient("k", "m", srv.URL+"/v1").Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClaudeClient_Generate(t *testing.T) {
	srv, got := fakeProvider(t, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
		"content":[{"type":"text","text":"{\"questions\":"},{"type":"text","text":"[\"Why?\"]}"}],
		"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)

	c := NewClaudeClient("k", "m", srv.URL)
	text, err := c.Generate(context.Background(), "ask about chess")
	require.NoError(t, err)
	assert.Equal(t, `{"questions":["Why?"]}`, text)

	req := *got
	assert.Equal(t, systemInstruction, req["system"])
	assert.EqualValues(t, maxTokens, req["max_tokens"])
}

func TestClaudeClient_EmptyReply(t *testing.T) {
	srv, _ := fakeProvider(t, `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],
		"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`)

	_, err := NewClaudeClient("k", "m", srv.URL).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
