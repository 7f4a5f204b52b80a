package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// Provider implements models.VisionProvider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Extract sends the instruction, the frame, and the closing nudge as one
// multimodal request. The response text is returned raw; callers strip
// fences and validate.
func (p *Provider) Extract(ctx context.Context, req models.VisionRequest) (*models.VisionResponse, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{
		{Text: req.Instruction},
		{InlineData: &genai.Blob{MIMEType: req.ImageMIME, Data: req.ImageData}},
		{Text: req.FinalPrompt},
	}}}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	out := &models.VisionResponse{
		Text:  resp.Candidates[0].Content.Parts[0].Text,
		Model: p.model,
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

var _ models.VisionProvider = (*Provider)(nil)
