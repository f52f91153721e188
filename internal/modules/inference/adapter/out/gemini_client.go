package out

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"pathwise/internal/modules/inference/domain"
	apperrors "pathwise/internal/platform/errors"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient completes prompts with the hosted Gemini API and asks for a
// JSON-only answer.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", apperrors.ErrInferenceUnavailable)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, temperature: 0.2}, nil
}

func (g *GeminiClient) Model() string {
	return g.model
}

func (g *GeminiClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return domain.Completion{}, classifyGeminiError(ctx, err)
	}
	text := responseText(resp)
	if text == "" {
		return domain.Completion{}, fmt.Errorf("%w: gemini returned no text", apperrors.ErrMalformedResponse)
	}
	completion := domain.Completion{Text: text, Model: model}
	if resp.UsageMetadata != nil {
		completion.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return completion, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyGeminiError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperrors.ErrInferenceTimeout, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("gemini generate: %w: %w", apperrors.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini generate: %w: %w", apperrors.ErrInferenceUnavailable, err)
}
