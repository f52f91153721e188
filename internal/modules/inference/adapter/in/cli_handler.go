package in

import (
	"context"

	"pathwise/internal/modules/inference/dto"
	inferencein "pathwise/internal/modules/inference/port/in"
)

type CLIHandler struct {
	usecase inferencein.Usecase
}

func NewCLIHandler(usecase inferencein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Backend() string {
	return h.usecase.Backend()
}

func (h CLIHandler) List(ctx context.Context) ([]dto.ProviderInfo, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	return h.usecase.Doctor(ctx)
}

func (h CLIHandler) Complete(ctx context.Context, prompt, model string) (dto.CompleteOutput, error) {
	return h.usecase.Complete(ctx, dto.CompleteInput{Prompt: prompt, Model: model})
}
