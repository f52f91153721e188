package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
	"pathwise/internal/modules/journey/service"
	"pathwise/internal/platform/clock"
	"pathwise/internal/platform/eventbus"
)

const (
	EventSource = "journey"

	DefaultChatMaxActions    = 25
	DefaultChatMaxAgeMinutes = 30
)

type Interactor struct {
	svc         *service.JourneyService
	bus         *eventbus.Bus
	clock       clock.Clock
	logger      *zap.Logger
	maxEntities int
}

func NewInteractor(svc *service.JourneyService, bus *eventbus.Bus, clock clock.Clock, logger *zap.Logger, maxEntities int) journeyin.Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{svc: svc, bus: bus, clock: clock, logger: logger, maxEntities: maxEntities}
}

func (i *Interactor) Track(ctx context.Context, input dto.TrackInput) (dto.TrackOutput, error) {
	area, err := domain.ParseFeatureArea(input.FeatureArea)
	if err != nil {
		return dto.TrackOutput{}, err
	}
	result, err := i.svc.Track(ctx, domain.ActionEvent{
		SessionID:       strings.TrimSpace(input.SessionID),
		FeatureArea:     area,
		ActionType:      domain.ActionType(strings.ToLower(strings.TrimSpace(input.ActionType))),
		Payload:         toDomainPayload(input.Payload),
		SourceComponent: input.SourceComponent,
		Timestamp:       input.Timestamp,
		DurationMS:      input.DurationMS,
	})
	if err != nil {
		return dto.TrackOutput{}, err
	}

	out := dto.TrackOutput{
		Action:     toActionOutput(result.Action),
		Journey:    toJourneyOutput(result.Journey),
		NewJourney: result.Created,
	}
	if result.Closed != nil {
		closed := toJourneyOutput(*result.Closed)
		out.Closed = &closed
	}

	if i.bus != nil {
		i.bus.Emit(eventbus.ActionTracked, out.Action, EventSource)
		if out.Closed != nil {
			i.bus.Emit(eventbus.JourneyUpdated, *out.Closed, EventSource)
		}
		i.bus.Emit(eventbus.JourneyUpdated, out.Journey, EventSource)
	}

	if removed, err := i.svc.Trim(ctx); err != nil {
		i.logger.Warn("retention trim failed", zap.Error(err))
	} else if removed > 0 {
		i.logger.Debug("retention trim", zap.Int("removed", removed))
	}
	return out, nil
}

func (i *Interactor) History(ctx context.Context, input dto.HistoryInput) ([]dto.ActionOutput, error) {
	actions, err := i.svc.GetActionHistory(ctx, input.SessionID, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ActionOutput, 0, len(actions))
	for _, action := range actions {
		out = append(out, toActionOutput(action))
	}
	return out, nil
}

func (i *Interactor) OpenJourney(ctx context.Context, sessionID string) (dto.JourneyOutput, bool, error) {
	journey, ok, err := i.svc.GetOpenJourney(ctx, sessionID)
	if err != nil || !ok {
		return dto.JourneyOutput{}, false, err
	}
	return toJourneyOutput(journey), true, nil
}

// CloseJourney closes the named journey, or the session's open one when no id is given.
func (i *Interactor) CloseJourney(ctx context.Context, input dto.CloseJourneyInput) (dto.JourneyOutput, error) {
	outcome := domain.Outcome(strings.ToLower(strings.TrimSpace(input.Outcome)))
	if outcome == "" {
		outcome = domain.OutcomeResolved
	}
	if err := outcome.ValidateClosing(); err != nil {
		return dto.JourneyOutput{}, err
	}

	var (
		journey domain.Journey
		err     error
	)
	if input.JourneyID != "" {
		journey, err = i.svc.CloseJourney(ctx, input.JourneyID, outcome)
	} else {
		var ok bool
		journey, ok, err = i.svc.CloseOpen(ctx, input.SessionID, outcome)
		if err == nil && !ok {
			return dto.JourneyOutput{}, errNoOpenJourney
		}
	}
	if err != nil {
		return dto.JourneyOutput{}, err
	}

	out := toJourneyOutput(journey)
	if i.bus != nil {
		i.bus.Emit(eventbus.JourneyUpdated, out, EventSource)
	}
	return out, nil
}

func (i *Interactor) Trim(ctx context.Context) (dto.TrimOutput, error) {
	removed, err := i.svc.Trim(ctx)
	if err != nil {
		return dto.TrimOutput{}, err
	}
	return dto.TrimOutput{Removed: removed}, nil
}

func (i *Interactor) Stats(ctx context.Context, sessionID string) (dto.StatsOutput, error) {
	stats, err := i.svc.Stats(ctx, sessionID)
	if err != nil {
		return dto.StatsOutput{}, err
	}
	return dto.StatsOutput{
		TotalActions:   stats.TotalActions,
		TotalJourneys:  stats.TotalJourneys,
		OpenJourneys:   stats.OpenJourneys,
		OldestActionAt: stats.OldestActionAt,
		NewestActionAt: stats.NewestActionAt,
	}, nil
}

func (i *Interactor) ChatContext(ctx context.Context, input dto.ChatContextInput) (dto.ChatContextOutput, error) {
	maxActions := input.MaxActions
	if maxActions <= 0 {
		maxActions = DefaultChatMaxActions
	}
	maxAge := input.MaxAgeMinutes
	if maxAge <= 0 {
		maxAge = DefaultChatMaxAgeMinutes
	}
	maxEntities := input.MaxEntities
	if maxEntities <= 0 {
		maxEntities = i.maxEntities
	}

	now := i.clock.Now()
	actions, err := i.svc.ActionsSince(ctx, input.SessionID, now.Add(-time.Duration(maxAge)*time.Minute))
	if err != nil {
		return dto.ChatContextOutput{}, err
	}
	recent := service.GetRecentActionsForSummary(actions, maxActions, maxAge, now)
	summary := service.SummarizeJourney(recent, maxEntities)

	out := dto.ChatContextOutput{
		Entities:     make([]dto.EntityOutput, 0, len(summary.Entities)),
		FeatureAreas: make([]string, 0, len(summary.FeatureAreas)),
		ActionCount:  summary.ActionCount,
		Prompt:       service.FormatJourneyForChatPrompt(summary),
	}
	for _, ref := range summary.Entities {
		out.Entities = append(out.Entities, dto.EntityOutput{Type: ref.Type, ID: ref.ID, Name: ref.Name})
	}
	for _, area := range summary.FeatureAreas {
		out.FeatureAreas = append(out.FeatureAreas, string(area))
	}
	return out, nil
}
