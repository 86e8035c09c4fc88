package llm

import (
	"context"
	"strings"

	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/domain"
)

// ChatClient is one provider adapter bound to one model id.
type ChatClient interface {
	Complete(ctx context.Context, messages []domain.Message, temperature float64) (string, error)
}

// ClientFactory builds the adapter for a classified model. The gateway calls
// it at most once per model id.
type ClientFactory func(kind ProviderKind, model string) (ChatClient, error)

// NewClientFactory returns the factory backed by the real provider SDKs.
func NewClientFactory(providers config.ProvidersConfig, maxTokens int) ClientFactory {
	return func(kind ProviderKind, model string) (ChatClient, error) {
		switch kind {
		case ProviderOpenAI:
			return newChatCompletionClient(kind, model, providers.OpenAI)
		case ProviderDeepSeek:
			return newChatCompletionClient(kind, model, providers.DeepSeek)
		case ProviderQwen:
			return newChatCompletionClient(kind, model, providers.Qwen)
		case ProviderGoogle:
			return newChatCompletionClient(kind, model, providers.Google)
		case ProviderAnthropic:
			return newAnthropicClient(model, providers.Anthropic, maxTokens)
		case ProviderOllama:
			return newOllamaClient(strings.TrimPrefix(model, OllamaPrefix), providers.Ollama)
		}
		return nil, &domain.UnknownProviderError{Model: model}
	}
}

// providerSettings returns the per-provider block used for rate limits.
func providerSettings(providers config.ProvidersConfig, kind ProviderKind) config.ProviderConfig {
	switch kind {
	case ProviderOpenAI:
		return providers.OpenAI
	case ProviderDeepSeek:
		return providers.DeepSeek
	case ProviderQwen:
		return providers.Qwen
	case ProviderGoogle:
		return providers.Google
	case ProviderAnthropic:
		return providers.Anthropic
	case ProviderOllama:
		return providers.Ollama
	}
	return config.ProviderConfig{}
}
