// Package llm implements the model gateway: a registry of named LLM
// providers, a wire client for the provider API formats and a Query entry
// point with single-step provider fallback.
package llm

// Known provider names. The registry is open; these are the defaults the
// gateway knows how to configure out of the box.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// API wire formats. OpenRouter and most gateways speak the OpenAI format.
const (
	APIFormatOpenAI    = "openai"
	APIFormatAnthropic = "anthropic"
	APIFormatOllama    = "ollama"
)

// Authentication styles for provider requests.
const (
	AuthTypeBearer = "bearer"
	AuthTypeAPIKey = "api_key"
	AuthTypeNone   = "none"
)

// ProviderConfig holds everything needed to call one provider. Configs are
// swapped whole through the gateway; a config read is never a partial mix
// of old and new values.
type ProviderConfig struct {
	Name         string            `json:"name"`
	BaseURL      string            `json:"baseUrl"`
	ChatEndpoint string            `json:"chatEndpoint"`
	APIFormat    string            `json:"apiFormat"`
	AuthType     string            `json:"authType"`
	AuthHeader   string            `json:"authHeader,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
	APIKey       string            `json:"-"`
	Model        string            `json:"model"`
}

// ChatURL returns the full chat completion endpoint for the provider.
func (c ProviderConfig) ChatURL() string {
	return c.BaseURL + c.ChatEndpoint
}

// DefaultProviderConfig returns the stock configuration for a known
// provider name, with no API key or model set. Unknown names get an
// OpenAI-format config with an empty base URL that the caller must fill in.
func DefaultProviderConfig(name string) ProviderConfig {
	switch name {
	case ProviderOpenAI:
		return ProviderConfig{
			Name:         ProviderOpenAI,
			BaseURL:      "https://api.openai.com",
			ChatEndpoint: "/v1/chat/completions",
			APIFormat:    APIFormatOpenAI,
			AuthType:     AuthTypeBearer,
		}
	case ProviderAnthropic:
		return ProviderConfig{
			Name:         ProviderAnthropic,
			BaseURL:      "https://api.anthropic.com",
			ChatEndpoint: "/v1/messages",
			APIFormat:    APIFormatAnthropic,
			AuthType:     AuthTypeAPIKey,
			AuthHeader:   "x-api-key",
			ExtraHeaders: map[string]string{"anthropic-version": "2023-06-01"},
		}
	case ProviderOpenRouter:
		return ProviderConfig{
			Name:         ProviderOpenRouter,
			BaseURL:      "https://openrouter.ai/api",
			ChatEndpoint: "/v1/chat/completions",
			APIFormat:    APIFormatOpenAI,
			AuthType:     AuthTypeBearer,
		}
	case ProviderOllama:
		return ProviderConfig{
			Name:         ProviderOllama,
			BaseURL:      "http://localhost:11434",
			ChatEndpoint: "/api/chat",
			APIFormat:    APIFormatOllama,
			AuthType:     AuthTypeNone,
		}
	default:
		return ProviderConfig{
			Name:         name,
			ChatEndpoint: "/v1/chat/completions",
			APIFormat:    APIFormatOpenAI,
			AuthType:     AuthTypeBearer,
		}
	}
}
