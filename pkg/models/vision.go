package models

import "context"

// VisionProvider is the contract for the image-analysis model call.
// Callers inject this interface rather than a concrete backend.
type VisionProvider interface {
	// Extract runs one vision call and returns the raw model text, which
	// is expected to contain a single JSON object (possibly fenced).
	Extract(ctx context.Context, req VisionRequest) (*VisionResponse, error)
	// Name returns the provider identifier (e.g., "gemini", "mock").
	Name() string
}

// VisionRequest is the input to one vision-model call.
type VisionRequest struct {
	Instruction string // fixed extraction instruction template
	ImageData   []byte
	ImageMIME   string
	FinalPrompt string // short trailing nudge, e.g. "Extract the JSON now."
}

// VisionResponse is the raw outcome of a vision-model call before any
// parsing or validation.
type VisionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}
