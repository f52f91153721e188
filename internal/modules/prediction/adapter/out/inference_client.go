package out

import (
	"context"

	inferencedto "pathwise/internal/modules/inference/dto"
	inferencein "pathwise/internal/modules/inference/port/in"
	"pathwise/internal/modules/prediction/domain"
)

// InferenceClient sends prediction prompts through the inference module.
type InferenceClient struct {
	inference inferencein.Usecase
	maxTokens int
}

func NewInferenceClient(inference inferencein.Usecase, maxTokens int) *InferenceClient {
	return &InferenceClient{inference: inference, maxTokens: maxTokens}
}

func (c *InferenceClient) Infer(ctx context.Context, prompt string) (domain.Completion, error) {
	out, err := c.inference.Complete(ctx, inferencedto.CompleteInput{Prompt: prompt, MaxTokens: c.maxTokens})
	if err != nil {
		return domain.Completion{}, err
	}
	return domain.Completion{Text: out.Text, Model: out.Model, TokensUsed: out.TokensUsed}, nil
}
