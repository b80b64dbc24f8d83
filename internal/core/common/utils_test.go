package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type questions struct {
	Questions []string `json:"questions"`
}

func TestParseJSON(t *testing.T) {
	resp := "Sure! Here you go:\n```json\n{\"questions\": [\"a?\", \"b?\"]}\n```\nEnjoy."

	got, err := ParseJSON[questions](resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a?", "b?"}, got.Questions)
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON[questions]("no json here")
	assert.Error(t, err)

	_, err = ParseJSON[questions]("} backwards {")
	assert.Error(t, err)

	_, err = ParseJSON[questions](`{"questions": "not a list"}`)
	assert.Error(t, err)
}
