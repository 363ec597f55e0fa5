package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShowCmd_Defaults(t *testing.T) {
	useTempDirs(t)

	out, err := execute(t, "", "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Tick period: 500ms")
	assert.Contains(t, out, "Extensions: txt, md")
	assert.Contains(t, out, "Process timeout: none")
	assert.Contains(t, out, "Similar pages (k): 3")
	assert.Contains(t, out, "Max tokens: 1024")
	assert.Contains(t, out, "Status: not configured")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsSetCmd(t *testing.T) {
	useTempDirs(t)

	out, err := execute(t, "", "settings", "set", "watch.debounce_delay", "2s")
	require.NoError(t, err)
	assert.Contains(t, out, "watch.debounce_delay updated.")

	_, err = execute(t, "", "settings", "set", "watch.extensions", "txt, org")
	require.NoError(t, err)

	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, "2s", settings.Watch.DebounceDelay.String())
	assert.Equal(t, []string{"txt", "org"}, settings.Watch.Extensions)

	out, err = execute(t, "", "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "Debounce delay: 2s")
}

func TestSettingsSetCmd_Rejects(t *testing.T) {
	useTempDirs(t)

	_, err := execute(t, "", "settings", "set", "no.such.key", "1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = execute(t, "", "settings", "set", "watch.tick_period", "fast")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = execute(t, "", "settings", "set", "watch.tick_period")
	assert.Error(t, err)
}

func TestSettingsSetKeyCmd(t *testing.T) {
	useTempDirs(t)

	out, err := execute(t, "sk-secret-123456\n", "settings", "set-key", "llm")

	require.NoError(t, err)
	assert.Contains(t, out, "sk-s...3456")
	assert.NotContains(t, out, "sk-secret-123456")
	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-123456", settings.LLM.APIKey)

	_, err = execute(t, "\n", "settings", "set-key", "embedding")
	assert.ErrorContains(t, err, "API key is empty")

	_, err = execute(t, "key\n", "settings", "set-key", "search")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsLLMCmd_Interactive(t *testing.T) {
	useTempDirs(t)
	ollama := newFakeOllama(t, "")

	_, err := execute(t, "", "settings", "set", "llm.base_url", ollama.URL)
	require.NoError(t, err)

	out, err := execute(t, "1\nllama3.1\n", "settings", "llm")
	require.NoError(t, err)
	assert.Contains(t, out, "Validating configuration... OK")

	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, settings.LLM.Provider)
	assert.Equal(t, "llama3.1", settings.LLM.Model)
	assert.Equal(t, ollama.URL, settings.LLM.BaseURL)
}

func TestSettingsEmbeddingCmd_RequiresAPIKey(t *testing.T) {
	useTempDirs(t)

	// OpenAI is the second embedding provider.
	_, err := execute(t, "2\n\n\n", "settings", "embedding")

	assert.ErrorContains(t, err, "API key is required")
}

func TestSettingsSetCmd_LongHelpListsKeys(t *testing.T) {
	for _, key := range []string{"watch.tick_period", "context.k", "llm.api_key"} {
		assert.True(t, strings.Contains(settingsSetCmd.Long, "\n  "+key), key)
	}
}
