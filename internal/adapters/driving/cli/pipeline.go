package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/ai"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/config/file"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/document/plaintext"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/vectorfile"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/services"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// pipeline wires the services that answer annotations.
type pipeline struct {
	settings *domain.AppSettings
	ai       *ai.Services
	cache    *services.EmbeddingCache
	answerer *services.Answerer
}

// openPipeline loads settings, connects to the AI providers and loads the
// durable embedding cache.
func openPipeline(ctx context.Context) (*pipeline, error) {
	if settingsService == nil {
		return nil, errors.New("settings service not configured")
	}
	if err := settingsService.Validate(); err != nil {
		return nil, err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	aiServices, err := ai.NewServices(ctx, settings)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorfile.NewStore(cacheDir(settings))
	if err != nil {
		aiServices.Close()
		return nil, err
	}
	cache := services.NewEmbeddingCache(aiServices.Embedding, vectors)
	if err := cache.Load(ctx); err != nil {
		aiServices.Close()
		return nil, fmt.Errorf("failed to load embedding cache: %w", err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		aiServices.Close()
		return nil, err
	}

	answerer, err := services.NewAnswerer(
		plaintext.NewStore(settings.Watch.Extensions, settings.Context.PageSize),
		prompts,
		aiServices.LLM,
		cache,
		settings.Context,
		services.WithGenerateOptions(driven.GenerateOptions{MaxTokens: settings.LLM.MaxTokens}),
	)
	if err != nil {
		aiServices.Close()
		return nil, err
	}

	logger.Debug("pipeline: embedding model %s, LLM %s", aiServices.Embedding.ModelName(), aiServices.LLM.ModelName())
	return &pipeline{
		settings: settings,
		ai:       aiServices,
		cache:    cache,
		answerer: answerer,
	}, nil
}

// Close releases the AI services.
func (p *pipeline) Close() {
	p.ai.Close()
}

// cacheDir returns the configured cache directory or the default below
// the data directory.
func cacheDir(settings *domain.AppSettings) string {
	if settings.CacheDir != "" {
		return settings.CacheDir
	}
	return filepath.Join(dataDir, "embeddings")
}
