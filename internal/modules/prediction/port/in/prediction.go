package in

import (
	"context"

	"pathwise/internal/modules/prediction/dto"
)

type Usecase interface {
	// Schedule restarts the session's debounce window.
	Schedule(ctx context.Context, sessionID string) error
	PredictNow(ctx context.Context, input dto.PredictInput) (dto.PredictionOutput, error)
	Latest(ctx context.Context, sessionID string) (dto.PredictionOutput, bool, error)
	Status(ctx context.Context, sessionID string) (dto.StatusOutput, error)
	Cancel(ctx context.Context, sessionID string) error
	Close() error
}
