package driven

// PromptStore provides access to LLM prompt templates.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations return the built-in default
	// or an error if there is none.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Prompt template placeholders. Templates are rendered by plain substitution.
const (
	// PlaceholderQuestion is replaced with the annotation question.
	PlaceholderQuestion = "{{question}}"

	// PlaceholderSelection is replaced with the annotated selection.
	PlaceholderSelection = "{{selection}}"

	// PlaceholderFullText is replaced with the whole document text.
	PlaceholderFullText = "{{fulltext}}"

	// PlaceholderPages is replaced with the retrieved context pages.
	PlaceholderPages = "{{pages}}"
)
