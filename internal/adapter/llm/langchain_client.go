package llm

import (
	"context"
	"errors"
	"fmt"

	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var errNoChoices = errors.New("provider returned no choices")

// langchainClient adapts any langchaingo model. Every OpenAI-compatible
// vendor goes through llms/openai with its own base URL.
type langchainClient struct {
	model llms.Model
}

func newChatCompletionClient(kind ProviderKind, model string, pc config.ProviderConfig) (*langchainClient, error) {
	if pc.APIKey == "" {
		return nil, &domain.MissingConfigError{Provider: string(kind), Setting: "api_key"}
	}
	opts := []openai.Option{
		openai.WithToken(pc.APIKey),
		openai.WithModel(model),
	}
	if pc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(pc.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client for %s: %w", kind, model, err)
	}
	return &langchainClient{model: llm}, nil
}

func newOllamaClient(model string, pc config.ProviderConfig) (*langchainClient, error) {
	if pc.BaseURL == "" {
		return nil, &domain.MissingConfigError{Provider: string(ProviderOllama), Setting: "base_url"}
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(pc.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client for %s: %w", model, err)
	}
	return &langchainClient{model: llm}, nil
}

func (c *langchainClient) Complete(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(temperature))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(role domain.Role) llms.ChatMessageType {
	switch role {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
