package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const geminiEmbedDimensions = 768

// GeminiProvider calls the Gemini embedContent REST endpoint.
type GeminiProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGeminiProvider(apiKey, model string, timeout time.Duration) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Dimensions() int { return geminiEmbedDimensions }

func (p *GeminiProvider) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	payload := embedContentRequest{
		Model:    "models/" + p.model,
		Content:  embedContent{Parts: []embedContentPart{{Text: text}}},
		TaskType: taskType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent", p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, detail)
	}

	var embedResp embedContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(embedResp.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return normalizeVector(embedResp.Embedding.Values), nil
}

// --- Gemini embedContent wire types ---

type embedContentPart struct {
	Text string `json:"text"`
}

type embedContent struct {
	Parts []embedContentPart `json:"parts"`
}

type embedContentRequest struct {
	Model    string       `json:"model"`
	Content  embedContent `json:"content"`
	TaskType string       `json:"taskType,omitempty"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Compile-time check that GeminiProvider implements Provider.
var _ Provider = (*GeminiProvider)(nil)
