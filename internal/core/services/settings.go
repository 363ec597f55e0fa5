package services

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyTickPeriod     = "watch.tick_period"
	keyDebounceDelay  = "watch.debounce_delay"
	keyExtensions     = "watch.extensions"
	keyStatsPeriod    = "watch.stats_period"
	keyProcessTimeout = "watch.process_timeout"
	keyMaxProcessRate = "watch.max_process_rate"
	keyContextK       = "context.k"
	keyCacheDir       = "cache.dir"
	keyPageSize       = "document.page_size"
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMMaxTokens   = "llm.max_tokens"
)

// keyKind describes how a config value is parsed.
type keyKind int

const (
	kindString keyKind = iota
	kindDuration
	kindInt
	kindFloat
	kindStringSlice
	kindProvider
)

// knownKeys lists every key Set accepts.
var knownKeys = map[string]keyKind{
	keyTickPeriod:     kindDuration,
	keyDebounceDelay:  kindDuration,
	keyExtensions:     kindStringSlice,
	keyStatsPeriod:    kindDuration,
	keyProcessTimeout: kindDuration,
	keyMaxProcessRate: kindFloat,
	keyContextK:       kindInt,
	keyCacheDir:       kindString,
	keyPageSize:       kindInt,
	keyEmbedProvider:  kindProvider,
	keyEmbedModel:     kindString,
	keyEmbedBaseURL:   kindString,
	keyEmbedAPIKey:    kindString,
	keyLLMProvider:    kindProvider,
	keyLLMModel:       kindString,
	keyLLMBaseURL:     kindString,
	keyLLMAPIKey:      kindString,
	keyLLMMaxTokens:   kindInt,
}

// KnownKeys returns the configuration keys accepted by Set, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Values that do not parse
// fall back to their defaults; Validate reports them.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Watch: domain.WatchConfig{
			TickPeriod:     s.getDuration(keyTickPeriod, defaults.Watch.TickPeriod),
			DebounceDelay:  s.getDuration(keyDebounceDelay, defaults.Watch.DebounceDelay),
			Extensions:     s.getStringSlice(keyExtensions, defaults.Watch.Extensions),
			StatsPeriod:    s.getDuration(keyStatsPeriod, defaults.Watch.StatsPeriod),
			ProcessTimeout: s.getDuration(keyProcessTimeout, defaults.Watch.ProcessTimeout),
			MaxProcessRate: s.getFloat(keyMaxProcessRate, defaults.Watch.MaxProcessRate),
		},
		Context: domain.ContextConfig{
			K:        s.getInt(keyContextK, defaults.Context.K),
			PageSize: s.getInt(keyPageSize, defaults.Context.PageSize),
		},
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		LLM: domain.LLMSettings{
			Provider:  s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:     s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:   s.configStore.GetString(keyLLMBaseURL), // No default - empty is valid for cloud providers
			APIKey:    s.configStore.GetString(keyLLMAPIKey),
			MaxTokens: s.getInt(keyLLMMaxTokens, defaults.LLM.MaxTokens),
		},
		CacheDir: s.configStore.GetString(keyCacheDir),
	}

	return settings, nil
}

// Set persists a single key. String values are converted to the key's type,
// so CLI input like "2s" or "5" is stored as a duration string or a number.
func (s *SettingsService) Set(key string, value any) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	str, isString := value.(string)
	if !isString {
		return s.configStore.Set(key, value)
	}

	var converted any
	switch kind {
	case kindDuration:
		d, err := time.ParseDuration(str)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration like 500ms or 2s", domain.ErrInvalidInput, key)
		}
		converted = d.String()
	case kindInt:
		n, err := strconv.Atoi(str)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		converted = n
	case kindFloat:
		f, err := strconv.ParseFloat(str, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		converted = f
	case kindStringSlice:
		var parts []string
		for _, p := range strings.Split(str, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		converted = parts
	case kindProvider:
		if !domain.AIProvider(str).IsValid() {
			return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, str)
		}
		converted = str
	default:
		converted = str
	}

	if err := s.configStore.Set(key, converted); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Save persists the provider sections of settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	// Save embedding settings
	if err := s.configStore.Set(keyEmbedProvider, settings.Embedding.Provider.String()); err != nil {
		return fmt.Errorf("save embedding provider: %w", err)
	}
	if err := s.configStore.Set(keyEmbedModel, settings.Embedding.Model); err != nil {
		return fmt.Errorf("save embedding model: %w", err)
	}
	if err := s.configStore.Set(keyEmbedBaseURL, settings.Embedding.BaseURL); err != nil {
		return fmt.Errorf("save embedding base_url: %w", err)
	}
	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}

	// Save LLM settings
	if err := s.configStore.Set(keyLLMProvider, settings.LLM.Provider.String()); err != nil {
		return fmt.Errorf("save llm provider: %w", err)
	}
	if err := s.configStore.Set(keyLLMModel, settings.LLM.Model); err != nil {
		return fmt.Errorf("save llm model: %w", err)
	}
	if err := s.configStore.Set(keyLLMBaseURL, settings.LLM.BaseURL); err != nil {
		return fmt.Errorf("save llm base_url: %w", err)
	}
	if settings.LLM.APIKey != "" {
		if err := s.configStore.Set(keyLLMAPIKey, settings.LLM.APIKey); err != nil {
			return fmt.Errorf("save llm api_key: %w", err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	// Set base URL based on provider type
	if provider.IsLocal() {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.LLM.Model = model
	} else if defaultModel, ok := domain.DefaultLLMModels()[provider]; ok {
		settings.LLM.Model = defaultModel
	}

	// Set base URL based on provider type
	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.LLM.BaseURL = ""
	}

	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that every stored value parses and is in range.
func (s *SettingsService) Validate() error {
	for _, key := range []string{keyTickPeriod, keyDebounceDelay, keyStatsPeriod, keyProcessTimeout} {
		raw := s.configStore.GetString(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, key, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidConfig, key)
		}
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	if settings.Watch.TickPeriod <= 0 {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, keyTickPeriod)
	}
	if settings.Watch.MaxProcessRate < 0 {
		return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidConfig, keyMaxProcessRate)
	}
	if len(settings.Watch.Extensions) == 0 {
		return fmt.Errorf("%w: %s must list at least one extension", domain.ErrInvalidConfig, keyExtensions)
	}
	if settings.Context.K < 0 {
		return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidConfig, keyContextK)
	}
	if settings.Context.PageSize <= 0 {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, keyPageSize)
	}

	for _, key := range []string{keyEmbedProvider, keyLLMProvider} {
		if raw := s.configStore.GetString(key); raw != "" && !domain.AIProvider(raw).IsValid() {
			return fmt.Errorf("%w: %s: unknown provider %q", domain.ErrInvalidConfig, key, raw)
		}
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if val := s.configStore.GetStringSlice(key); len(val) > 0 {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
