package in

import (
	"context"

	"pathwise/internal/modules/prediction/dto"
	predictionin "pathwise/internal/modules/prediction/port/in"
)

type CLIHandler struct {
	usecase predictionin.Usecase
}

func NewCLIHandler(usecase predictionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Predict(ctx context.Context, sessionID string) (dto.PredictionOutput, error) {
	return h.usecase.PredictNow(ctx, dto.PredictInput{SessionID: sessionID})
}

func (h CLIHandler) Latest(ctx context.Context, sessionID string) (dto.PredictionOutput, bool, error) {
	return h.usecase.Latest(ctx, sessionID)
}

func (h CLIHandler) Status(ctx context.Context, sessionID string) (dto.StatusOutput, error) {
	return h.usecase.Status(ctx, sessionID)
}

func (h CLIHandler) Cancel(ctx context.Context, sessionID string) error {
	return h.usecase.Cancel(ctx, sessionID)
}
