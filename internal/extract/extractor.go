// Package extract turns a camera frame into a validated Observation via
// one vision-model call.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/fixsight/internal/vision"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// rawExcerptLimit bounds how much raw model output is kept for diagnosis
// when validation fails.
const rawExcerptLimit = 1000

// SchemaValidationError reports model output that did not match the
// Observation schema. Not retryable; the excerpt goes into session
// history so bad frames can be diagnosed after the fact.
type SchemaValidationError struct {
	RawExcerpt string
	Err        error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("observation validation failed: %v", e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// Extractor issues vision calls and validates the results.
type Extractor struct {
	provider models.VisionProvider
	validate *validator.Validate
	timeout  time.Duration
}

func New(provider models.VisionProvider, timeout time.Duration) *Extractor {
	return &Extractor{
		provider: provider,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  timeout,
	}
}

// Extract runs one bounded vision call and returns the validated
// Observation. Returns *SchemaValidationError when the model text does
// not parse or validate, vision.ErrExtractionTimeout when the call runs
// past the per-call budget.
func (e *Extractor) Extract(ctx context.Context, image []byte, mime string) (*models.Observation, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.provider.Extract(callCtx, models.VisionRequest{
		Instruction: extractionInstruction,
		ImageData:   image,
		ImageMIME:   mime,
		FinalPrompt: finalNudge,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, vision.ErrExtractionTimeout
		}
		return nil, fmt.Errorf("vision call: %w", err)
	}

	obs, err := e.parse(resp.Text)
	if err != nil {
		return nil, err
	}

	applyOverrides(obs)

	slog.Debug("frame extracted",
		"provider", e.provider.Name(),
		"model", resp.Model,
		"tokens", resp.TokensUsed,
		"category", obs.Category,
		"danger", obs.OverallDangerLevel)

	return obs, nil
}

// parse strips fences, pulls the outermost JSON object, unmarshals, and
// validates the struct tags.
func (e *Extractor) parse(text string) (*models.Observation, error) {
	raw := vision.ExtractJSON(text)
	if raw == "" {
		return nil, &SchemaValidationError{
			RawExcerpt: truncate(text, rawExcerptLimit),
			Err:        errors.New("no JSON object in response"),
		}
	}

	var obs models.Observation
	if err := json.Unmarshal([]byte(raw), &obs); err != nil {
		return nil, &SchemaValidationError{RawExcerpt: truncate(raw, rawExcerptLimit), Err: err}
	}
	if err := e.validate.Struct(&obs); err != nil {
		return nil, &SchemaValidationError{RawExcerpt: truncate(raw, rawExcerptLimit), Err: err}
	}
	return &obs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
