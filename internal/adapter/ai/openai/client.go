// Package openai calls OpenAI-compatible chat completion APIs (OpenAI,
// OpenRouter, Groq) through go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

const providerName = "openai"

// Provider implements ai.Provider for chat completions.
type Provider struct {
	client *goopenai.Client
}

var _ ai.Provider = (*Provider)(nil)

// New builds a provider for baseURL. The HTTP transport is traced with otelhttp.
func New(apiKey, baseURL string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("OpenAI %s %s", r.Method, r.URL.Path)
			}),
		),
		// The caller's context carries the real deadline.
		Timeout: 5 * time.Minute,
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg)}
}

func (p *Provider) Name() string { return providerName }

// Call sends one chat completion request.
func (p *Provider) Call(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	creq := goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	// Reasoning models take MaxCompletionTokens and reject a custom temperature.
	if isReasoningModel(req.Model) {
		creq.MaxCompletionTokens = req.MaxTokens
	} else {
		creq.MaxTokens = req.MaxTokens
		creq.Temperature = req.Temperature
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return domain.ModelResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return domain.ModelResponse{}, fmt.Errorf("%w: %s returned no choices", domain.ErrUpstream, providerName)
	}
	return domain.ModelResponse{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

func isReasoningModel(model string) bool {
	m := model
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &domain.UpstreamError{Provider: providerName, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		body := reqErr.HTTPStatus
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &domain.UpstreamError{Provider: providerName, Status: reqErr.HTTPStatusCode, Body: body}
	}
	return ai.ClassifyTransport(providerName, err)
}
