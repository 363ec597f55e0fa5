package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAssistants_Valid(t *testing.T) {
	require.NoError(t, ValidateAssistants(DefaultAssistants()))
}

func TestFindAssistant(t *testing.T) {
	assistants := DefaultAssistants()

	tests := []struct {
		content string
		found   bool
		mode    PromptMode
	}{
		{"@ask what is this?", true, PromptQuestion},
		{"@ask+ summarise", true, PromptFullText},
		{"@ask* explain", true, PromptSelection},
		{"@ask# where is X defined?", true, PromptPages},
		{"@askwhat", false, ""},
		{"just a note", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			a, ok := FindAssistant(assistants, tt.content)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.mode, a.Prompt)
		})
	}
}

func TestValidateAssistants_Shadowing(t *testing.T) {
	assistants := []Assistant{
		{Prefix: "@a", Prompt: PromptQuestion},
		{Prefix: "@ab", Prompt: PromptFullText},
	}

	err := ValidateAssistants(assistants)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidateAssistants_InvalidEntries(t *testing.T) {
	t.Run("empty prefix", func(t *testing.T) {
		err := ValidateAssistants([]Assistant{{Prefix: "", Prompt: PromptQuestion}})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown prompt", func(t *testing.T) {
		err := ValidateAssistants([]Assistant{{Prefix: "@x ", Prompt: "nope"}})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestAssistant_NeedsEmbeddings(t *testing.T) {
	assert.True(t, Assistant{Prompt: PromptPages}.NeedsEmbeddings())
	assert.False(t, Assistant{Prompt: PromptFullText}.NeedsEmbeddings())
}

func TestDocument_FullTextAndChanged(t *testing.T) {
	doc := Document{
		Pages:       []string{"one ", "two"},
		Annotations: []Annotation{{Content: "@ask q"}},
	}

	assert.Equal(t, "one two", doc.FullText())
	assert.False(t, doc.Changed())

	doc.Annotations[0].Reply = "answer"
	assert.True(t, doc.Changed())
}
