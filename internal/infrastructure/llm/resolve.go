package llm

import "strings"

// ResolveType infers the adapter type from a model identifier. An
// explicit "provider/model" prefix wins; otherwise well-known model
// family prefixes decide.
func ResolveType(model string) (providerType, modelID string) {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx], model[idx+1:]
	}

	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic", model
	case strings.HasPrefix(model, "gemini"):
		return "gemini", model
	case strings.HasPrefix(model, "grok"):
		return "xai", model
	case strings.HasPrefix(model, "codex"):
		return "openai_responses", model
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return "openai", model
	default:
		return "anthropic", model
	}
}
