package parse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBodyFencedBlock(t *testing.T) {
	response := "Here is an improved version:\n\n" +
		"```go\n" +
		"func Target(x int) int {\n" +
		"\tv := x * x\n" +
		"\treturn v\n" +
		"}\n" +
		"```\n\n" +
		"This squares the input."
	body, err := ExtractBody(response, "Target")
	require.NoError(t, err)
	assert.Equal(t, "\tv := x * x\n\treturn v", body)
}

func TestExtractBodyLastDefinitionWins(t *testing.T) {
	response := "```go\n" +
		"func Target(x int) int {\n" +
		"\treturn 0\n" +
		"}\n" +
		"\n" +
		"func Target(x int) int {\n" +
		"\treturn x * x\n" +
		"}\n" +
		"```\n"
	body, err := ExtractBody(response, "Target")
	require.NoError(t, err)
	assert.Contains(t, body, "return x * x")
	assert.NotContains(t, body, "return 0")
}

func TestExtractBodyWithoutSignature(t *testing.T) {
	// Bare statements at some foreign indentation, no func line at all.
	response := "```go\n" +
		"    v := x * x\n" +
		"    return v\n" +
		"```\n"
	body, err := ExtractBody(response, "Target")
	require.NoError(t, err)
	assert.Equal(t, "\tv := x * x\n\treturn v", body)
}

func TestExtractBodyTruncatesTrailingGarbage(t *testing.T) {
	response := "func Target(x int) int {\n" +
		"\treturn x + 1\n" +
		"}\n" +
		"\n" +
		"Hope that helps! Let me know if you need anything else.\n"
	body, err := ExtractBody(response, "Target")
	require.NoError(t, err)
	assert.Contains(t, body, "return x + 1")
	assert.NotContains(t, body, "Hope that helps")
}

func TestExtractBodyErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty response", ""},
		{"whitespace only", "  \n\t\n"},
		{"nothing parseable", "```go\n%%% not go at all ((\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractBody(tt.response, "Target")
			var ee *ExtractionError
			require.True(t, errors.As(err, &ee), "want ExtractionError, got %v", err)
		})
	}
}

func TestExtractBodyPrefersFenceOverProse(t *testing.T) {
	// The prose mentions the function; only the fenced block should count.
	response := "The old func Target(x int) was wrong.\n" +
		"```go\n" +
		"func Target(x int) int {\n" +
		"\treturn 42\n" +
		"}\n" +
		"```\n"
	body, err := ExtractBody(response, "Target")
	require.NoError(t, err)
	assert.Contains(t, body, "return 42")
	assert.NotContains(t, body, "was wrong")
}
