// Provider factory: a builder that turns a provider name plus options into
// a Provider for the research oracle.
//
//	p, err := llm.ProviderAnthropic.
//	    Model("claude-sonnet-4-20250514").
//	    MaxTokens(2048).
//	    FromEnv()
//
// An empty model or zero max tokens falls back to the provider defaults.

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	ProviderDeepSeek
	ProviderGemini
)

// Builder defaults.
const (
	DefaultMaxTokens   uint32  = 4096
	DefaultTemperature float32 = 0.7
)

type constructor func(apiKey, model string, maxTokens uint32, temperature float32) Provider

// providerProfile describes one provider: its canonical name, accepted
// aliases, key variable, default model and constructor.
type providerProfile struct {
	name         string
	aliases      []string
	apiKeyEnv    string
	defaultModel string
	build        constructor
}

var providerProfiles = map[ProviderType]providerProfile{
	ProviderOpenAI: {
		name: "openai", aliases: []string{"gpt"}, apiKeyEnv: "OPENAI_API_KEY", defaultModel: "gpt-4o",
		build: func(k, m string, n uint32, t float32) Provider { return NewOpenAIProvider(k, m, n, t) },
	},
	ProviderAnthropic: {
		name: "anthropic", aliases: []string{"claude"}, apiKeyEnv: "ANTHROPIC_API_KEY", defaultModel: "claude-sonnet-4-20250514",
		build: func(k, m string, n uint32, t float32) Provider { return NewAnthropicProvider(k, m, n, t) },
	},
	ProviderDeepSeek: {
		name: "deepseek", apiKeyEnv: "DEEPSEEK_API_KEY", defaultModel: "deepseek-chat",
		build: func(k, m string, n uint32, t float32) Provider { return NewDeepSeekProvider(k, m, n, t) },
	},
	ProviderGemini: {
		name: "gemini", aliases: []string{"google"}, apiKeyEnv: "GEMINI_API_KEY", defaultModel: "gemini-2.5-flash",
		build: func(k, m string, n uint32, t float32) Provider { return NewGeminiProvider(k, m, n, t) },
	},
}

// ProviderTypes lists the supported providers in declaration order.
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini}
}

func (p ProviderType) profile() (providerProfile, bool) {
	s, ok := providerProfiles[p]
	return s, ok
}

// String returns the canonical provider name.
func (p ProviderType) String() string {
	if s, ok := p.profile(); ok {
		return s.name
	}
	return "unknown"
}

// EnvVar returns the environment variable holding this provider's API key.
func (p ProviderType) EnvVar() string {
	s, _ := p.profile()
	return s.apiKeyEnv
}

// DefaultModel returns the model used when none is configured.
func (p ProviderType) DefaultModel() string {
	s, _ := p.profile()
	return s.defaultModel
}

// ParseProviderType parses a provider name or alias, case-insensitively.
func ParseProviderType(s string) (ProviderType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, p := range ProviderTypes() {
		prof := providerProfiles[p]
		if prof.name == name {
			return p, nil
		}
		for _, alias := range prof.aliases {
			if alias == name {
				return p, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// FromEnv creates a provider with defaults, reading the API key from the environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key and default settings.
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder configures a provider before it is built.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{providerType: providerType}
}

func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets sampling temperature (0.0 = deterministic).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading the API key from the environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	prof, ok := b.providerType.profile()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %d", int(b.providerType))
	}

	model := b.model
	if model == "" {
		model = prof.defaultModel
	}
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if b.temperature != nil {
		temperature = *b.temperature
	}

	return prof.build(apiKey, model, maxTokens, temperature), nil
}
