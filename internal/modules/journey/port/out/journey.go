package out

import (
	"context"
	"time"

	"pathwise/internal/modules/journey/domain"
)

// LogStore persists actions in arrival order and journeys with their ordered members.
// An empty sessionID in a query spans every session.
type LogStore interface {
	InsertAction(ctx context.Context, action domain.ActionEvent) error
	ListActions(ctx context.Context, sessionID string, limit int) ([]domain.ActionEvent, error)
	ListActionsSince(ctx context.Context, sessionID string, since time.Time) ([]domain.ActionEvent, error)
	LastAction(ctx context.Context, sessionID string) (domain.ActionEvent, bool, error)

	SaveJourney(ctx context.Context, journey domain.Journey) error
	AppendJourneyAction(ctx context.Context, journeyID, actionID string, position int) error
	OpenJourney(ctx context.Context, sessionID string) (domain.Journey, bool, error)
	GetJourney(ctx context.Context, id string) (domain.Journey, error)

	// TrimActions drops the oldest actions beyond limit, sparing members of open journeys.
	TrimActions(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context, sessionID string) (domain.Stats, error)
}
