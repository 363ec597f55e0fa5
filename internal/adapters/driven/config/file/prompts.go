package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor. This makes testing easier and avoids unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts, keyed by prompt mode.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	domain.PromptQuestion.String(): `You are a scientist helping a reader with a question they wrote in the margin of a document. Answer the question in <question></question> tags as best as you can, using your general knowledge.

<question>{{question}}</question>`,

	domain.PromptFullText.String(): `You are a scientist who wrote the document below. Using the document text in <document></document> tags, the relevant selection from the document in <selection></selection> tags and the reader's question in <question></question> tags, answer that question as best as you can. You shall use both the document content and your general knowledge.

<document>{{fulltext}}</document>

<selection>{{selection}}</selection>

<question>{{question}}</question>`,

	domain.PromptSelection.String(): `You are a scientist who wrote the document the selection below comes from. Using the relevant selection from the document in <selection></selection> tags and the reader's question in <question></question> tags, answer that question as best as you can. You shall use both the selection and your general knowledge.

<selection>{{selection}}</selection>

<question>{{question}}</question>`,

	domain.PromptPages.String(): `You are a scientist who wrote the document the pages below come from. Using the most relevant pages of the document in <pages></pages> tags, the relevant selection in <selection></selection> tags and the reader's question in <question></question> tags, answer that question as best as you can. You shall use both the pages and your general knowledge.

<pages>{{pages}}</pages>

<selection>{{selection}}</selection>

<question>{{question}}</question>`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.marginalia/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".marginalia", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to embedded default if file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# Marginalia Prompts

Each file is the template for one kind of margin question.

## Files

- ` + "`question.txt`" + ` - ` + "`@ask`" + `, the question on its own
- ` + "`fulltext.txt`" + ` - ` + "`@ask+`" + `, the question with the whole document
- ` + "`selection.txt`" + ` - ` + "`@ask*`" + `, the question with the annotated text
- ` + "`pages.txt`" + ` - ` + "`@ask#`" + `, the question with the most relevant pages

## Placeholders

Templates are filled by plain substitution:

- ` + "`{{question}}`" + ` - the question text
- ` + "`{{selection}}`" + ` - the text the annotation is attached to
- ` + "`{{fulltext}}`" + ` - the whole document
- ` + "`{{pages}}`" + ` - the retrieved pages

Changes take effect the next time the watcher starts.
`
	return os.WriteFile(path, []byte(content), 0600)
}
