package usecase

import (
	"context"
	"errors"
	"fmt"

	journeydto "pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
	"pathwise/internal/modules/session/domain"
	sessiondto "pathwise/internal/modules/session/dto"
	sessionin "pathwise/internal/modules/session/port/in"
	sessionout "pathwise/internal/modules/session/port/out"
	"pathwise/internal/modules/session/service"
	apperrors "pathwise/internal/platform/errors"
)

type Interactor struct {
	svc         *service.SessionService
	journeys    journeyin.Usecase
	activeStore sessionout.ActiveSessionStore
}

func NewInteractor(svc *service.SessionService, journeys journeyin.Usecase, activeStore sessionout.ActiveSessionStore) sessionin.Usecase {
	return &Interactor{svc: svc, journeys: journeys, activeStore: activeStore}
}

func (i *Interactor) Start(ctx context.Context, input sessiondto.StartInput) (sessiondto.StartOutput, error) {
	if i.activeStore != nil {
		_, err := i.activeStore.LoadActive(ctx)
		if err == nil {
			return sessiondto.StartOutput{}, apperrors.ErrActiveSessionExists
		}
		if !errors.Is(err, apperrors.ErrNoActiveSession) {
			return sessiondto.StartOutput{}, err
		}
	}

	active := i.svc.Start(ctx, input.Label, input.Goal)
	if i.activeStore != nil {
		if err := i.activeStore.SaveActive(ctx, active); err != nil {
			return sessiondto.StartOutput{}, err
		}
	}
	return sessiondto.StartOutput{SessionID: active.SessionID, StartedAt: active.StartedAt}, nil
}

// End closes the session's open journey, writes the session record and
// clears the active session.
func (i *Interactor) End(ctx context.Context, input sessiondto.EndInput) (sessiondto.EndOutput, error) {
	if i.activeStore == nil {
		return sessiondto.EndOutput{}, apperrors.ErrNoActiveSession
	}
	active, err := i.activeStore.LoadActive(ctx)
	if err != nil {
		return sessiondto.EndOutput{}, err
	}
	if input.SessionID != "" && input.SessionID != active.SessionID {
		return sessiondto.EndOutput{}, fmt.Errorf("%w: session id mismatch", apperrors.ErrInvalidInput)
	}
	if i.journeys == nil {
		return sessiondto.EndOutput{}, fmt.Errorf("journey usecase is not configured")
	}

	summary := domain.Session{Outcome: input.Outcome}
	closed, err := i.journeys.CloseJourney(ctx, journeydto.CloseJourneyInput{SessionID: active.SessionID, Outcome: input.Outcome})
	switch {
	case err == nil:
		summary.JourneyID = closed.ID
		summary.Outcome = closed.Outcome
		summary.ClosedAtEnding = true
		summary.DominantArea = closed.DominantArea
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return sessiondto.EndOutput{}, fmt.Errorf("close open journey: %w", err)
	}
	if summary.Outcome == "" {
		summary.Outcome = "resolved"
	}

	stats, err := i.journeys.Stats(ctx, active.SessionID)
	if err != nil {
		return sessiondto.EndOutput{}, fmt.Errorf("session stats: %w", err)
	}
	summary.ActionCount = stats.TotalActions
	summary.JourneyCount = stats.TotalJourneys

	session, path, err := i.svc.End(ctx, active, summary)
	if err != nil {
		return sessiondto.EndOutput{}, err
	}
	if err := i.activeStore.ClearActive(ctx); err != nil {
		return sessiondto.EndOutput{}, err
	}
	return sessiondto.EndOutput{
		SessionID:     session.ID,
		Path:          path,
		DurationMin:   session.DurationMin,
		ActionCount:   session.ActionCount,
		JourneyCount:  session.JourneyCount,
		ClosedJourney: session.JourneyID,
		Outcome:       session.Outcome,
	}, nil
}

func (i *Interactor) GetActive(ctx context.Context) (sessiondto.ActiveSessionOutput, error) {
	if i.activeStore == nil {
		return sessiondto.ActiveSessionOutput{}, apperrors.ErrNoActiveSession
	}
	active, err := i.activeStore.LoadActive(ctx)
	if err != nil {
		return sessiondto.ActiveSessionOutput{}, err
	}
	return sessiondto.ActiveSessionOutput{
		SessionID: active.SessionID,
		Label:     active.Label,
		Goal:      active.Goal,
		StartedAt: active.StartedAt,
	}, nil
}
