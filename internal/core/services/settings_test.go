package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// mockAIValidator implements driven.AIConfigValidator.
type mockAIValidator struct {
	embeddingErr error
	llmErr       error
	embedding    *domain.EmbeddingSettings
	llm          *domain.LLMSettings
}

func (m *mockAIValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	m.embedding = config
	return m.embeddingErr
}

func (m *mockAIValidator) ValidateLLM(config *domain.LLMSettings) error {
	m.llm = config
	return m.llmErr
}

var _ driven.AIConfigValidator = (*mockAIValidator)(nil)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Watch, settings.Watch)
	assert.Equal(t, defaults.Context, settings.Context)
	assert.Equal(t, defaults.LLM.MaxTokens, settings.LLM.MaxTokens)
	assert.False(t, settings.Embedding.IsConfigured())
	assert.False(t, settings.LLM.IsConfigured())
	assert.Empty(t, settings.CacheDir)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("watch.tick_period", "250ms")
	_ = store.Set("watch.debounce_delay", "3s")
	_ = store.Set("watch.extensions", []string{"org"})
	_ = store.Set("watch.max_process_rate", 0.5)
	_ = store.Set("context.k", 0)
	_ = store.Set("cache.dir", "/var/cache/marginalia")
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("embedding.model", "text-embedding-3-large")
	_ = store.Set("llm.provider", "anthropic")
	_ = store.Set("llm.max_tokens", 2048)

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, settings.Watch.TickPeriod)
	assert.Equal(t, 3*time.Second, settings.Watch.DebounceDelay)
	assert.Equal(t, []string{"org"}, settings.Watch.Extensions)
	assert.InDelta(t, 0.5, settings.Watch.MaxProcessRate, 1e-9)
	assert.Equal(t, 0, settings.Context.K, "an explicit zero is kept")
	assert.Equal(t, "/var/cache/marginalia", settings.CacheDir)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, 2048, settings.LLM.MaxTokens)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("watch.tick_period", "soon")
	_ = store.Set("embedding.provider", "invalid_provider")

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWatchConfig().TickPeriod, settings.Watch.TickPeriod)
	assert.Empty(t, settings.Embedding.Provider)
}

func TestSettingsService_Set_ConvertsStrings(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, nil)

	require.NoError(t, service.Set("watch.debounce_delay", "1500ms"))
	require.NoError(t, service.Set("context.k", "5"))
	require.NoError(t, service.Set("watch.max_process_rate", "2.5"))
	require.NoError(t, service.Set("watch.extensions", "txt, md ,,org"))
	require.NoError(t, service.Set("llm.provider", "ollama"))
	require.NoError(t, service.Set("llm.model", "llama3.2"))

	assert.Equal(t, "1.5s", store.GetString("watch.debounce_delay"))
	assert.Equal(t, 5, store.GetInt("context.k"))
	assert.InDelta(t, 2.5, store.GetFloat("watch.max_process_rate"), 1e-9)
	assert.Equal(t, []string{"txt", "md", "org"}, store.GetStringSlice("watch.extensions"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, settings.Watch.DebounceDelay)
	assert.Equal(t, domain.AIProviderOllama, settings.LLM.Provider)
	assert.Equal(t, "llama3.2", settings.LLM.Model)
}

func TestSettingsService_Set_Rejects(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "search.mode", "hybrid"},
		{"bad duration", "watch.tick_period", "fast"},
		{"negative duration", "watch.debounce_delay", "-1s"},
		{"bad int", "context.k", "three"},
		{"negative int", "document.page_size", "-4"},
		{"bad float", "watch.max_process_rate", "lots"},
		{"unknown provider", "embedding.provider", "cohere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Set(tt.key, tt.value)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSettingsService_Set_NonStringPassesThrough(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, nil)

	require.NoError(t, service.Set("llm.max_tokens", 512))

	assert.Equal(t, 512, store.GetInt("llm.max_tokens"))
}

func TestKnownKeys_Sorted(t *testing.T) {
	keys := KnownKeys()

	assert.Contains(t, keys, "watch.tick_period")
	assert.Contains(t, keys, "llm.api_key")
	assert.IsNonDecreasing(t, keys)
}

func TestSettingsService_Validate(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"zero tick", map[string]any{"watch.tick_period": "0s"}, true},
		{"unparsable duration", map[string]any{"watch.stats_period": "often"}, true},
		{"negative rate", map[string]any{"watch.max_process_rate": -1.0}, true},
		{"negative k", map[string]any{"context.k": -1}, true},
		{"zero page size", map[string]any{"document.page_size": 0}, true},
		{"unknown provider", map[string]any{"llm.provider": "bard"}, true},
		{"valid overrides", map[string]any{"watch.tick_period": "2s", "context.k": 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore()
			for k, v := range tt.values {
				require.NoError(t, store.Set(k, v))
			}

			err := NewSettingsService(store, nil).Validate()

			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsService_SetEmbeddingProvider(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, nil)

	require.NoError(t, service.SetEmbeddingProvider(domain.AIProviderOllama, "", ""))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", settings.Embedding.Model)
	assert.Equal(t, "http://localhost:11434", settings.Embedding.BaseURL)

	require.NoError(t, service.SetEmbeddingProvider(domain.AIProviderOpenAI, "text-embedding-3-large", "sk-test"))
	settings, err = service.Get()
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.Empty(t, settings.Embedding.BaseURL)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
}

func TestSettingsService_SetEmbeddingProvider_Errors(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	assert.Error(t, service.SetEmbeddingProvider("invalid", "", ""))
	assert.Error(t, service.SetEmbeddingProvider(domain.AIProviderAnthropic, "", "key"))
	assert.Error(t, service.SetEmbeddingProvider(domain.AIProviderOpenAI, "", ""))
}

func TestSettingsService_SetLLMProvider(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	require.NoError(t, service.SetLLMProvider(domain.AIProviderAnthropic, "", "sk-ant"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", settings.LLM.Model)
	assert.Equal(t, "sk-ant", settings.LLM.APIKey)
	assert.True(t, settings.LLM.IsConfigured())

	assert.Error(t, service.SetLLMProvider(domain.AIProviderOpenAI, "", ""))
	assert.Error(t, service.SetLLMProvider("invalid", "", ""))
}

func TestSettingsService_ValidateConfigs(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "ollama")
	_ = store.Set("llm.provider", "openai")
	validator := &mockAIValidator{llmErr: errors.New("unauthorised")}
	service := NewSettingsService(store, validator)

	require.NoError(t, service.ValidateEmbeddingConfig())
	require.NotNil(t, validator.embedding)
	assert.Equal(t, domain.AIProviderOllama, validator.embedding.Provider)

	assert.Error(t, service.ValidateLLMConfig())
	require.NotNil(t, validator.llm)
	assert.Equal(t, domain.AIProviderOpenAI, validator.llm.Provider)
}

func TestSettingsService_ValidateConfigs_NoValidator(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	assert.NoError(t, service.ValidateEmbeddingConfig())
	assert.NoError(t, service.ValidateLLMConfig())
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	assert.Equal(t, domain.DefaultAppSettings(), service.GetDefaults())
}
