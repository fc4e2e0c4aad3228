package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{TierLite: "fallback-model"},
	}

	// Unknown tier falls back to standard, then lite.
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Provider: ProviderGemini, Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierLite))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	custom := config.WithModel(TierLite, "custom-model")

	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "custom-model", custom.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", custom.GetModel(TierStandard))

	unchanged := config.WithModel(TierLite, "")
	assert.Equal(t, "gemini-2.5-flash-lite", unchanged.GetModel(TierLite))
}
