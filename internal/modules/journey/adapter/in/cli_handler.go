package in

import (
	"context"

	"pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
)

type CLIHandler struct {
	usecase journeyin.Usecase
}

func NewCLIHandler(usecase journeyin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Track(ctx context.Context, sessionID, area, actionType string, payload dto.Payload) (dto.TrackOutput, error) {
	return h.usecase.Track(ctx, dto.TrackInput{
		SessionID:       sessionID,
		FeatureArea:     area,
		ActionType:      actionType,
		SourceComponent: "cli",
		Payload:         payload,
	})
}

func (h CLIHandler) History(ctx context.Context, sessionID string, limit int) ([]dto.ActionOutput, error) {
	return h.usecase.History(ctx, dto.HistoryInput{SessionID: sessionID, Limit: limit})
}

func (h CLIHandler) OpenJourney(ctx context.Context, sessionID string) (dto.JourneyOutput, bool, error) {
	return h.usecase.OpenJourney(ctx, sessionID)
}

func (h CLIHandler) CloseJourney(ctx context.Context, sessionID, journeyID, outcome string) (dto.JourneyOutput, error) {
	return h.usecase.CloseJourney(ctx, dto.CloseJourneyInput{SessionID: sessionID, JourneyID: journeyID, Outcome: outcome})
}

func (h CLIHandler) Stats(ctx context.Context, sessionID string) (dto.StatsOutput, error) {
	return h.usecase.Stats(ctx, sessionID)
}

func (h CLIHandler) Trim(ctx context.Context) (dto.TrimOutput, error) {
	return h.usecase.Trim(ctx)
}

func (h CLIHandler) ChatContext(ctx context.Context, sessionID string, maxActions, maxAgeMinutes int) (dto.ChatContextOutput, error) {
	return h.usecase.ChatContext(ctx, dto.ChatContextInput{SessionID: sessionID, MaxActions: maxActions, MaxAgeMinutes: maxAgeMinutes})
}
