package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/coursegen/internal/apperr"

	openai "github.com/sashabaranov/go-openai"
)

// Format is the response-format hint passed to the generation service.
type Format string

const (
	// FormatJSON asks for a JSON object response.
	FormatJSON Format = "json"
	// FormatText leaves the response format unconstrained.
	FormatText Format = "text"
)

// Request is one structured-generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	Format      Format
	MaxTokens   int
}

// Client wraps an OpenAI-compatible API client. It is safe for concurrent use.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// WithModel returns a client sharing the same connection settings but using another model.
// An empty name returns c itself.
func (c *Client) WithModel(modelName string) *Client {
	if modelName == "" || modelName == c.model {
		return c
	}
	return &Client{api: c.api, model: modelName}
}

// Model returns the model name used for requests.
func (c *Client) Model() string {
	return c.model
}

// Ping checks that the endpoint answers by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// GenerateStructured sends one chat completion and returns the raw response text.
// A 429 answer is reported as apperr.ErrRateLimited, an empty answer as
// apperr.ErrMalformedOutput.
func (c *Client) GenerateStructured(ctx context.Context, req Request) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Format == FormatJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices: %w", apperr.ErrMalformedOutput)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)

	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("LLM returned empty content: %w", apperr.ErrMalformedOutput)
	}
	return raw, nil
}

func classify(err error) error {
	if isRateLimit(err) {
		return fmt.Errorf("LLM API call: %w: %w", apperr.ErrRateLimited, err)
	}
	return fmt.Errorf("LLM API call: %w", err)
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}
