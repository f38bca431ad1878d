package valueobject

// CallOptions selects request parameters for a single completion call.
// Nil fields mean "use the provider default".
type CallOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// ThinkingEnabled asks the adapter to turn on the provider's
	// reasoning control when the model supports it. ThinkingBudget is
	// the token budget granted to reasoning; adapters that enable
	// thinking also raise MaxTokens so visible output is not starved.
	ThinkingEnabled bool
	ThinkingBudget  int
}

// EffectiveMaxTokens returns MaxTokens or the given default.
func (o *CallOptions) EffectiveMaxTokens(def int) int {
	if o != nil && o.MaxTokens != nil && *o.MaxTokens > 0 {
		return *o.MaxTokens
	}
	return def
}
