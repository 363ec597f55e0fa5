package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure Answerer implements the interface.
var _ driven.Processor = (*Answerer)(nil)

// pageSeparator joins retrieved pages in a prompt.
const pageSeparator = "\n\n---\n\n"

// Answerer answers the question annotations of a document and writes the
// replies back. It is the processor the change scheduler runs.
type Answerer struct {
	documents  driven.DocumentStore
	prompts    driven.PromptStore
	llm        driven.LLMService
	context    driving.ContextProvider
	assistants []domain.Assistant
	k          int
	opts       driven.GenerateOptions
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithAssistants replaces the default assistant table.
func WithAssistants(assistants []domain.Assistant) AnswererOption {
	return func(a *Answerer) {
		a.assistants = assistants
	}
}

// WithGenerateOptions sets the options passed to the LLM.
func WithGenerateOptions(opts driven.GenerateOptions) AnswererOption {
	return func(a *Answerer) {
		a.opts = opts
	}
}

// NewAnswerer creates an answerer. llm and contextProvider may be nil; the
// annotations that need them are then reported as failures and retried.
func NewAnswerer(
	documents driven.DocumentStore,
	prompts driven.PromptStore,
	llm driven.LLMService,
	contextProvider driving.ContextProvider,
	config domain.ContextConfig,
	opts ...AnswererOption,
) (*Answerer, error) {
	a := &Answerer{
		documents:  documents,
		prompts:    prompts,
		llm:        llm,
		context:    contextProvider,
		assistants: domain.DefaultAssistants(),
		k:          config.K,
	}
	for _, opt := range opts {
		opt(a)
	}

	if documents == nil || prompts == nil {
		return nil, fmt.Errorf("%w: answerer needs a document store and prompts", domain.ErrInvalidConfig)
	}
	if a.k < 0 {
		return nil, fmt.Errorf("%w: context k must not be negative", domain.ErrInvalidConfig)
	}
	if err := domain.ValidateAssistants(a.assistants); err != nil {
		return nil, err
	}
	return a, nil
}

// Process answers every unanswered annotation in the document at path.
// It returns false when at least one annotation should be retried.
func (a *Answerer) Process(ctx context.Context, path string) bool {
	if !a.documents.Supports(path) {
		logger.Debug("answerer: %s is not a supported document", path)
		return true
	}

	doc, err := a.documents.Load(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("answerer: %s disappeared", path)
		return true
	}
	if err != nil {
		logger.Warn("answerer: failed to load %s: %v", path, err)
		return false
	}

	hasFailures := false
	for i := range doc.Annotations {
		annotation := &doc.Annotations[i]
		if annotation.Answered {
			continue
		}
		assistant, ok := domain.FindAssistant(a.assistants, annotation.Content)
		if !ok {
			continue
		}
		question := strings.TrimSpace(strings.TrimPrefix(annotation.Content, assistant.Prefix))
		if question == "" {
			continue
		}

		reply, err := a.answer(ctx, doc, annotation, assistant, question)
		switch {
		case errors.Is(err, domain.ErrNotReady):
			logger.Info("answerer: waiting for embeddings of %s", path)
			hasFailures = true
		case err != nil:
			logger.Warn("answerer: %q in %s: %v", question, path, err)
			hasFailures = true
		default:
			annotation.Reply = reply
			logger.Info("answered %q in %s", question, path)
		}
	}

	if doc.Changed() {
		if err := a.documents.Save(ctx, doc); err != nil {
			logger.Error("answerer: failed to save %s: %v", path, err)
			return false
		}
	}
	return !hasFailures
}

// answer builds the prompt for one annotation and asks the LLM.
func (a *Answerer) answer(
	ctx context.Context,
	doc *domain.Document,
	annotation *domain.Annotation,
	assistant domain.Assistant,
	question string,
) (string, error) {
	if a.llm == nil {
		return "", domain.ErrLLMUnavailable
	}

	prompt, err := a.buildPrompt(ctx, doc, annotation, assistant, question)
	if err != nil {
		return "", err
	}

	reply, err := a.llm.Generate(ctx, prompt, a.opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", domain.ErrLLMUnavailable)
	}
	return reply, nil
}

func (a *Answerer) buildPrompt(
	ctx context.Context,
	doc *domain.Document,
	annotation *domain.Annotation,
	assistant domain.Assistant,
	question string,
) (string, error) {
	template, err := a.prompts.Load(assistant.Prompt.String())
	if err != nil {
		return "", err
	}

	var fullText, pages string
	switch assistant.Prompt {
	case domain.PromptFullText:
		fullText = doc.FullText()
	case domain.PromptPages:
		if a.context == nil {
			return "", domain.ErrEmbeddingUnavailable
		}
		texts, err := a.context.TopK(ctx, doc.Path, doc.Pages, question, annotation.Page, a.k)
		if err != nil {
			return "", err
		}
		pages = strings.Join(texts, pageSeparator)
	}

	return strings.NewReplacer(
		driven.PlaceholderQuestion, question,
		driven.PlaceholderSelection, annotation.Selection,
		driven.PlaceholderFullText, fullText,
		driven.PlaceholderPages, pages,
	).Replace(template), nil
}
