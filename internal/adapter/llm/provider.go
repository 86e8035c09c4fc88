package llm

import (
	"strings"

	"mathquiz-forge/internal/domain"
)

// ProviderKind is the closed set of backends the gateway can talk to.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderDeepSeek  ProviderKind = "deepseek"
	ProviderQwen      ProviderKind = "qwen"
	ProviderGoogle    ProviderKind = "google"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOllama    ProviderKind = "ollama"
)

// OllamaPrefix marks a model id served by a local ollama daemon, e.g.
// "ollama:qwen2.5:7b".
const OllamaPrefix = "ollama:"

type providerRule struct {
	kind  ProviderKind
	match func(model string) bool
}

func containsAny(subs ...string) func(string) bool {
	return func(model string) bool {
		for _, s := range subs {
			if strings.Contains(model, s) {
				return true
			}
		}
		return false
	}
}

// Rules are evaluated top to bottom and the first match wins, so a model id
// such as "gpt-deepseek-distill" resolves to openai.
var providerRules = []providerRule{
	{ProviderOllama, func(model string) bool { return strings.HasPrefix(model, OllamaPrefix) }},
	{ProviderOpenAI, containsAny("gpt", "o3", "o4")},
	{ProviderDeepSeek, containsAny("deepseek")},
	{ProviderQwen, containsAny("qwen")},
	{ProviderGoogle, containsAny("gemini")},
	{ProviderAnthropic, containsAny("claude")},
}

// ClassifyModel maps a model id to its provider.
func ClassifyModel(model string) (ProviderKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	for _, rule := range providerRules {
		if rule.match(normalized) {
			return rule.kind, nil
		}
	}
	return "", &domain.UnknownProviderError{Model: model}
}
