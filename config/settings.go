// Package config provides application settings loaded from defaults, an
// optional YAML file and environment variables.
//
// Settings are created via New() or Load() which handle:
// - Default value application
// - Config file discovery (./spindle.yaml) or an explicit path
// - SPINDLE_* overrides plus the provider env vars (OPENAI_MODEL, LLM_MAX_TOKENS, ...)
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every settings key in the environment,
// e.g. SPINDLE_JOURNAL_PATH for journal.path.
const EnvPrefix = "SPINDLE"

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Research ResearchConfig `mapstructure:"research"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Log      LogConfig      `mapstructure:"log"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	MaxTokens   uint32  `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ResearchConfig bounds a research run.
type ResearchConfig struct {
	DefaultDepth int           `mapstructure:"default_depth"`
	MaxRounds    int           `mapstructure:"max_rounds"`
	// MaxAttempts bounds oracle calls per step on the local substrate.
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"` // 0 means none
}

// JournalConfig locates the durable journal.
type JournalConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `mapstructure:"path"`
}

// TemporalConfig locates the Temporal frontend used by worker and submit.
type TemporalConfig struct {
	HostPort        string        `mapstructure:"host_port"`
	Namespace       string        `mapstructure:"namespace"`
	TaskQueue       string        `mapstructure:"task_queue"`
	ActivityTimeout time.Duration `mapstructure:"activity_timeout"`
	MaxAttempts     int32         `mapstructure:"max_attempts"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TraceConfig holds tracing settings.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"` // empty means stdout
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

var journalDrivers = map[string]bool{"sqlite3": true, "sqlite": true}

// New creates settings for the specified provider without an explicit
// config file. An empty provider falls back to llm.provider.
func New(provider string) (Settings, error) {
	return Load(provider, "")
}

// Load creates settings from path, or from ./spindle.yaml when path is
// empty and that file exists. Precedence, highest first: environment,
// config file, defaults. A non-empty provider overrides all three.
func Load(provider, path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName("spindle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if provider == "" {
		provider = v.GetString("llm.provider")
	}
	provider = normalizeProvider(provider)
	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}
	// the provider's own model variable applies only to that provider
	_ = v.BindEnv("llm.model", EnvPrefix+"_LLM_MODEL", info.modelEnv)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	s.LLM.Provider = provider
	if s.LLM.Model == "" {
		s.LLM.Model = info.defaultModel
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate rejects settings no component can run with.
func (s Settings) Validate() error {
	if s.Research.DefaultDepth < 0 {
		return fmt.Errorf("research.default_depth must be >= 0, got %d", s.Research.DefaultDepth)
	}
	if s.Research.MaxRounds <= 0 {
		return fmt.Errorf("research.max_rounds must be > 0, got %d", s.Research.MaxRounds)
	}
	if s.Research.MaxAttempts <= 0 {
		return fmt.Errorf("research.max_attempts must be > 0, got %d", s.Research.MaxAttempts)
	}
	if !journalDrivers[s.Journal.Driver] {
		return fmt.Errorf("journal.driver must be sqlite3 or sqlite, got %q", s.Journal.Driver)
	}
	if s.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	if s.Temporal.TaskQueue == "" {
		return errors.New("temporal.task_queue must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("research.default_depth", 1)
	v.SetDefault("research.max_rounds", 8)
	v.SetDefault("research.max_attempts", 1)
	v.SetDefault("research.timeout", "0s")

	v.SetDefault("journal.driver", "sqlite3")
	v.SetDefault("journal.path", ".spindle/spindle.db")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "spindle-research")
	v.SetDefault("temporal.activity_timeout", "2m")
	v.SetDefault("temporal.max_attempts", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.output", "")
}

// bindLegacyEnv keeps the unprefixed variables working alongside SPINDLE_*.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.provider", EnvPrefix+"_LLM_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("llm.max_tokens", EnvPrefix+"_LLM_MAX_TOKENS", "LLM_MAX_TOKENS")
	_ = v.BindEnv("llm.temperature", EnvPrefix+"_LLM_TEMPERATURE", "LLM_TEMPERATURE")
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
