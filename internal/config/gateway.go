package config

import (
	"strings"
	"time"
)

// Provider identifies the backend behind the LLM gateway.
type Provider string

const (
	ProviderNone        Provider = "none"
	ProviderAzure       Provider = "azure"
	ProviderHuggingFace Provider = "huggingface"
	ProviderGroq        Provider = "groq"
	ProviderAnthropic   Provider = "anthropic"
	ProviderGemini      Provider = "gemini"
)

const (
	DefaultAzureAPIVersion = "2025-01-01-preview"
	DefaultHFBaseURL       = "https://router.huggingface.co/v1"
	DefaultHFModel         = "moonshotai/Kimi-K2-Instruct"
	DefaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	DefaultGroqModel       = "llama-3.3-70b-versatile"
	DefaultAnthropicModel  = "claude-3-5-haiku-latest"
	DefaultGeminiModel     = "gemini-2.0-flash"
)

// GatewayConfig is resolved once at startup and never mutated.
type GatewayConfig struct {
	Provider   Provider
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	Timeout    time.Duration
}

// Configured reports whether a provider resolved.
func (g GatewayConfig) Configured() bool {
	return g.Provider != "" && g.Provider != ProviderNone
}

// OpenAICompatible reports whether the provider speaks the OpenAI chat
// completions protocol.
func (g GatewayConfig) OpenAICompatible() bool {
	switch g.Provider {
	case ProviderAzure, ProviderHuggingFace, ProviderGroq:
		return true
	}
	return false
}

// ResolveGateway picks the provider by precedence: Azure when endpoint, key
// and deployment are all set, then the HuggingFace router, Groq, Anthropic
// and Gemini by their credentials. lookup is usually os.Getenv. providers
// fills in values the environment leaves empty.
func ResolveGateway(lookup func(string) string, providers map[string]ProviderConfig) GatewayConfig {
	get := func(provider Provider, key string, pick func(ProviderConfig) string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		if p, ok := providers[string(provider)]; ok {
			return strings.TrimSpace(pick(p))
		}
		return ""
	}
	baseURL := func(p ProviderConfig) string { return p.BaseURL }
	apiKey := func(p ProviderConfig) string { return p.APIKey }
	model := func(p ProviderConfig) string { return p.Model }
	version := func(p ProviderConfig) string { return p.APIVersion }
	orDefault := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	endpoint := get(ProviderAzure, "AZURE_OPENAI_ENDPOINT", baseURL)
	key := get(ProviderAzure, "AZURE_OPENAI_API_KEY", apiKey)
	deployment := get(ProviderAzure, "AZURE_OPENAI_DEPLOYMENT", model)
	if endpoint != "" && key != "" && deployment != "" {
		return GatewayConfig{
			Provider:   ProviderAzure,
			Endpoint:   strings.TrimRight(endpoint, "/"),
			APIKey:     key,
			Model:      deployment,
			APIVersion: orDefault(get(ProviderAzure, "AZURE_OPENAI_API_VERSION", version), DefaultAzureAPIVersion),
		}
	}

	if token := get(ProviderHuggingFace, "HF_TOKEN", apiKey); token != "" {
		return GatewayConfig{
			Provider: ProviderHuggingFace,
			Endpoint: orDefault(get(ProviderHuggingFace, "HF_BASE_URL", baseURL), DefaultHFBaseURL),
			APIKey:   token,
			Model:    orDefault(get(ProviderHuggingFace, "HF_MODEL", model), DefaultHFModel),
		}
	}

	if token := get(ProviderGroq, "GROQ_API_KEY", apiKey); token != "" {
		return GatewayConfig{
			Provider: ProviderGroq,
			Endpoint: orDefault(get(ProviderGroq, "GROQ_BASE_URL", baseURL), DefaultGroqBaseURL),
			APIKey:   token,
			Model:    orDefault(get(ProviderGroq, "GROQ_MODEL", model), DefaultGroqModel),
		}
	}

	if token := get(ProviderAnthropic, "ANTHROPIC_API_KEY", apiKey); token != "" {
		return GatewayConfig{
			Provider: ProviderAnthropic,
			Endpoint: get(ProviderAnthropic, "ANTHROPIC_BASE_URL", baseURL),
			APIKey:   token,
			Model:    orDefault(get(ProviderAnthropic, "ANTHROPIC_MODEL", model), DefaultAnthropicModel),
		}
	}

	if token := get(ProviderGemini, "GEMINI_API_KEY", apiKey); token != "" {
		return GatewayConfig{
			Provider: ProviderGemini,
			APIKey:   token,
			Model:    orDefault(get(ProviderGemini, "GEMINI_MODEL", model), DefaultGeminiModel),
		}
	}

	return GatewayConfig{Provider: ProviderNone}
}

// Gateway resolves the provider from lookup and the file's provider section
// and applies the configured request timeout.
func (c *Config) Gateway(lookup func(string) string) GatewayConfig {
	g := ResolveGateway(lookup, c.Providers)
	g.Timeout = c.BasicConfig.RequestTimeoutDuration()
	return g
}
