package in

import (
	"context"

	"pathwise/internal/modules/inference/dto"
)

type Usecase interface {
	Backend() string
	List(ctx context.Context) ([]dto.ProviderInfo, error)
	Doctor(ctx context.Context) ([]dto.DoctorResult, error)
	Complete(ctx context.Context, input dto.CompleteInput) (dto.CompleteOutput, error)
}
