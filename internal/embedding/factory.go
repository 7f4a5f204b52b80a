package embedding

import (
	"fmt"

	"github.com/kiranshivaraju/fixsight/internal/config"
)

// NewProvider constructs the appropriate embedding provider based on
// config. Called once at startup.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of gemini, mock", cfg.Provider)
	}
}
