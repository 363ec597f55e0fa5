package domain

import (
	"fmt"
	"sort"
	"strings"
)

// PromptMode selects which prompt template and context an assistant uses.
type PromptMode string

// Available prompt modes.
const (
	// PromptQuestion sends the question on its own.
	PromptQuestion PromptMode = "question"

	// PromptFullText adds the whole document text.
	PromptFullText PromptMode = "fulltext"

	// PromptSelection adds the text the annotation is attached to.
	PromptSelection PromptMode = "selection"

	// PromptPages adds the pages most similar to the question.
	PromptPages PromptMode = "pages"
)

// IsValid returns true if the prompt mode is recognised.
func (m PromptMode) IsValid() bool {
	switch m {
	case PromptQuestion, PromptFullText, PromptSelection, PromptPages:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m PromptMode) String() string {
	return string(m)
}

// Assistant maps an annotation prefix to a prompt mode.
type Assistant struct {
	// Prefix starts the annotation content, e.g. "@ask ".
	Prefix string

	// Prompt is the template used to build the question.
	Prompt PromptMode
}

// NeedsEmbeddings reports whether the assistant requires page embeddings.
func (a Assistant) NeedsEmbeddings() bool {
	return a.Prompt == PromptPages
}

// DefaultAssistants returns the built-in assistants.
func DefaultAssistants() []Assistant {
	return []Assistant{
		{Prefix: "@ask ", Prompt: PromptQuestion},
		{Prefix: "@ask+ ", Prompt: PromptFullText},
		{Prefix: "@ask* ", Prompt: PromptSelection},
		{Prefix: "@ask# ", Prompt: PromptPages},
	}
}

// FindAssistant returns the assistant whose prefix starts content.
func FindAssistant(assistants []Assistant, content string) (Assistant, bool) {
	for _, a := range assistants {
		if strings.HasPrefix(content, a.Prefix) {
			return a, true
		}
	}
	return Assistant{}, false
}

// ValidateAssistants checks that no prefix is a prefix of another, so that
// lookup is unambiguous regardless of order.
func ValidateAssistants(assistants []Assistant) error {
	prefixes := make([]string, 0, len(assistants))
	for _, a := range assistants {
		if a.Prefix == "" {
			return fmt.Errorf("%w: empty assistant prefix", ErrInvalidConfig)
		}
		if !a.Prompt.IsValid() {
			return fmt.Errorf("%w: assistant %q has unknown prompt %q", ErrInvalidConfig, a.Prefix, a.Prompt)
		}
		prefixes = append(prefixes, a.Prefix)
	}
	sort.Strings(prefixes)
	for i := 0; i+1 < len(prefixes); i++ {
		if strings.HasPrefix(prefixes[i+1], prefixes[i]) {
			return fmt.Errorf("%w: prefix %q shadows %q", ErrInvalidConfig, prefixes[i], prefixes[i+1])
		}
	}
	return nil
}
