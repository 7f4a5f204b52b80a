// Package groq calls an OpenAI-compatible chat completions API for the
// reasoning stages of the solution pipeline.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sentinel errors for reasoning client failures.
var (
	ErrGroqUnreachable = errors.New("groq unreachable")
	ErrGroqTimeout     = errors.New("groq request timeout")
	ErrGroqAPIError    = errors.New("groq api error")
	ErrEmptyCompletion = errors.New("empty completion")
	ErrInvalidJSON     = errors.New("completion is not valid json")
)

// Completion defaults. Temperature stays just above zero; exact zero
// makes the model prone to repetition loops.
const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 4096

	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
)

// System prompts used when the caller does not supply one.
const (
	jsonSystemPrompt = "You are a precise reasoning assistant. " +
		"Always output valid JSON. " +
		"Be logical, step-by-step, and grounded in facts. " +
		"If uncertain, acknowledge limitations. " +
		"Never hallucinate or invent information."
	textSystemPrompt = "You are a careful reasoning assistant. " +
		"Think step-by-step. Be logical and grounded. " +
		"Acknowledge uncertainty when appropriate."
)

// Client is the interface for calling the reasoning model.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest defines one chat completion call. Zero values fall
// back to the package defaults; JSONMode forces structured output and
// rejects completions that do not parse.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	JSONMode     bool
	Temperature  float64
	MaxTokens    int
}

// Completion is the model's reply plus usage accounting.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMS  float64
}

// HTTPClient implements Client against the Groq OpenAI-compatible API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
}

// NewHTTPClient creates a reasoning client. maxRetries bounds the
// retries after the initial attempt; only rate limits and transient
// server errors are retried.
func NewHTTPClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		if req.JSONMode {
			systemPrompt = jsonSystemPrompt
		} else {
			systemPrompt = textSystemPrompt
		}
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	var completion *Completion

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		start := time.Now()
		resp, err := c.client.Do(httpReq)
		if err != nil {
			return classifyError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}

		var chatResp chatCompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding completion response: %w", err))
		}
		if len(chatResp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyCompletion)
		}

		content := chatResp.Choices[0].Message.Content
		if req.JSONMode && !json.Valid([]byte(content)) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrInvalidJSON, truncate(content, 200)))
		}

		tokens := 0
		if chatResp.Usage != nil {
			tokens = chatResp.Usage.TotalTokens
		}
		completion = &Completion{
			Content:    content,
			Model:      chatResp.Model,
			TokensUsed: tokens,
			LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return completion, nil
}

// statusError maps an HTTP error status to a retryable or permanent
// error. Rate limits and transient server errors retry; everything
// else fails immediately.
func statusError(resp *http.Response) error {
	var errBody struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
		detail = errBody.Error.Message
	}

	err := fmt.Errorf("%w: status %d: %s", ErrGroqAPIError, resp.StatusCode, truncate(detail, 200))
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return err
	default:
		return backoff.Permanent(err)
	}
}

// classifyError maps transport-level errors to sentinel errors.
// Timeouts and cancellations are permanent; other network errors are
// retried.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrGroqTimeout, err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrGroqTimeout, err))
	}

	return fmt.Errorf("%w: %v", ErrGroqUnreachable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- Chat completion wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
