// Package llm wraps the generative model used for document field extraction.
package llm

// ModelTier selects a model by capability.
type ModelTier string

const (
	// TierLite is used for extraction from a single document.
	TierLite ModelTier = "lite"
	// TierStandard is the fallback for unconfigured tiers.
	TierStandard ModelTier = "standard"
)

// Provider names a model vendor.
type Provider string

// ProviderGemini is the only supported provider.
const ProviderGemini Provider = "gemini"

// Config maps tiers to model names.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the Gemini defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
	}
}

// GetModel returns the model for tier, falling back to standard and then lite.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a copy of c using model for tier. An empty model leaves c's choice in place.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := &Config{Provider: c.Provider, Models: make(map[ModelTier]string, len(c.Models)+1)}
	for k, v := range c.Models {
		next.Models[k] = v
	}
	if model != "" {
		next.Models[tier] = model
	}
	return next
}
