package llm

import (
	"context"
	"errors"
	"strings"

	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/domain"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var errEmptyContent = errors.New("provider returned no content blocks")

// anthropicClient moves a leading system message into the request's system
// field; the remaining turns are sent as-is.
type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func newAnthropicClient(model string, pc config.ProviderConfig, maxTokens int) (*anthropicClient, error) {
	if pc.APIKey == "" {
		return nil, &domain.MissingConfigError{Provider: string(ProviderAnthropic), Setting: "api_key"}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(pc.APIKey),
		// the gateway owns retries
		option.WithMaxRetries(0),
	}
	if pc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(pc.BaseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    make([]anthropic.MessageParam, 0, len(turns)),
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(msg.Content) == 0 {
		return "", errEmptyContent
	}
	return msg.Content[0].Text, nil
}

// splitSystem returns the content of a leading system message and the
// messages after it. Later system messages are sent as user turns.
func splitSystem(messages []domain.Message) (string, []domain.Message) {
	if len(messages) == 0 || messages[0].Role != domain.RoleSystem {
		return "", messages
	}
	return strings.TrimSpace(messages[0].Content), messages[1:]
}
