package in

import (
	"context"
	"time"

	"pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
)

// Tracker is what UI surfaces hold to report actions. It is bound to one
// session, feature area and component so callers never touch the log.
type Tracker struct {
	usecase   journeyin.Usecase
	sessionID string
	area      string
	component string
}

func NewTracker(usecase journeyin.Usecase, sessionID, area, component string) Tracker {
	return Tracker{usecase: usecase, sessionID: sessionID, area: area, component: component}
}

func (t Tracker) Track(ctx context.Context, actionType string, payload dto.Payload) (dto.ActionOutput, error) {
	out, err := t.usecase.Track(ctx, dto.TrackInput{
		SessionID:       t.sessionID,
		FeatureArea:     t.area,
		ActionType:      actionType,
		SourceComponent: t.component,
		Payload:         payload,
	})
	if err != nil {
		return dto.ActionOutput{}, err
	}
	return out.Action, nil
}

// TrackTimed records an action that took d to complete, e.g. time spent on a panel.
func (t Tracker) TrackTimed(ctx context.Context, actionType string, payload dto.Payload, d time.Duration) (dto.ActionOutput, error) {
	out, err := t.usecase.Track(ctx, dto.TrackInput{
		SessionID:       t.sessionID,
		FeatureArea:     t.area,
		ActionType:      actionType,
		SourceComponent: t.component,
		Payload:         payload,
		DurationMS:      d.Milliseconds(),
	})
	if err != nil {
		return dto.ActionOutput{}, err
	}
	return out.Action, nil
}
