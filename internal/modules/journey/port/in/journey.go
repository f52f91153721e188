package in

import (
	"context"

	"pathwise/internal/modules/journey/dto"
)

type Usecase interface {
	Track(ctx context.Context, input dto.TrackInput) (dto.TrackOutput, error)
	History(ctx context.Context, input dto.HistoryInput) ([]dto.ActionOutput, error)
	OpenJourney(ctx context.Context, sessionID string) (dto.JourneyOutput, bool, error)
	CloseJourney(ctx context.Context, input dto.CloseJourneyInput) (dto.JourneyOutput, error)
	Trim(ctx context.Context) (dto.TrimOutput, error)
	Stats(ctx context.Context, sessionID string) (dto.StatsOutput, error)
	ChatContext(ctx context.Context, input dto.ChatContextInput) (dto.ChatContextOutput, error)
}
