package vision

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/internal/vision/gemini"
	"github.com/kiranshivaraju/fixsight/internal/vision/mock"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// NewProvider constructs the appropriate vision provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.VisionConfig) (models.VisionProvider, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini)
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q: must be one of gemini, mock", cfg.Provider)
	}
}
