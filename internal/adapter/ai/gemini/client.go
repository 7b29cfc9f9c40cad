// Package gemini calls the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

const providerName = "gemini"

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float32 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Provider implements ai.Provider for Gemini.
type Provider struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

var _ ai.Provider = (*Provider)(nil)

// New builds a provider for baseURL (e.g. https://generativelanguage.googleapis.com/v1beta).
func New(apiKey, baseURL string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return fmt.Sprintf("Gemini %s %s", r.Method, r.URL.Host)
				}),
			),
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *Provider) Name() string { return providerName }

// Call sends one generateContent request.
func (p *Provider) Call(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return domain.ModelResponse{}, fmt.Errorf("op=gemini.marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return domain.ModelResponse{}, fmt.Errorf("op=gemini.request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.hc.Do(r)
	if err != nil {
		return domain.ModelResponse{}, ai.ClassifyTransport(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.ModelResponse{}, ai.ClassifyTransport(providerName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ModelResponse{}, &domain.UpstreamError{Provider: providerName, Status: resp.StatusCode, Body: ai.Snippet(raw)}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.ModelResponse{}, fmt.Errorf("%w: %s: decode response: %v", domain.ErrUpstream, providerName, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return domain.ModelResponse{}, fmt.Errorf("%w: %s returned no candidates", domain.ErrUpstream, providerName)
	}
	var text strings.Builder
	for _, pt := range out.Candidates[0].Content.Parts {
		text.WriteString(pt.Text)
	}
	model := out.ModelVersion
	if model == "" {
		model = req.Model
	}
	return domain.ModelResponse{Text: text.String(), Model: model}, nil
}
