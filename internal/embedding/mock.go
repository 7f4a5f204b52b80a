package embedding

import (
	"context"
	"hash/fnv"
)

// MockProvider is a deterministic in-memory Provider for tests and
// offline development. Identical text always embeds to the identical
// vector.
type MockProvider struct {
	// EmbedFunc overrides the default behavior when set.
	EmbedFunc func(ctx context.Context, text, taskType string) ([]float32, error)

	dims int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{dims: geminiEmbedDimensions}
}

// NewFailingMockProvider returns a mock whose Embed always fails with err.
func NewFailingMockProvider(err error) *MockProvider {
	return &MockProvider{
		dims: geminiEmbedDimensions,
		EmbedFunc: func(context.Context, string, string) ([]float32, error) {
			return nil, err
		},
	}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Dimensions() int { return p.dims }

func (p *MockProvider) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, text, taskType)
	}

	// Stable pseudo-random values seeded from the text hash.
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000)/999.0 - 0.5
	}
	return normalizeVector(vec), nil
}

// Compile-time check that MockProvider implements Provider.
var _ Provider = (*MockProvider)(nil)
