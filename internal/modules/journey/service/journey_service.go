package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pathwise/internal/modules/journey/domain"
	journeyout "pathwise/internal/modules/journey/port/out"
	"pathwise/internal/platform/clock"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/id"
	"pathwise/internal/platform/tx"
)

const (
	DefaultInactivityThreshold = 10 * time.Minute
	DefaultRetentionCap        = 5000
)

// JourneyChange describes what AppendToJourney did. Closed is set when the
// previously open journey was abandoned to make room for a new one.
type JourneyChange struct {
	Journey domain.Journey
	Closed  *domain.Journey
	Created bool
}

type TrackResult struct {
	Action domain.ActionEvent
	JourneyChange
}

// JourneyService is the single writer of the action log. Every mutating
// call is serialized by mu, so callers need no locking of their own.
type JourneyService struct {
	clock        clock.Clock
	idGen        id.Generator
	store        journeyout.LogStore
	tx           tx.Manager
	inactivity   time.Duration
	retentionCap int

	mu sync.Mutex
}

func NewJourneyService(clock clock.Clock, idGen id.Generator, store journeyout.LogStore, txm tx.Manager, inactivity time.Duration, retentionCap int) *JourneyService {
	if txm == nil {
		txm = tx.NoopManager{}
	}
	if inactivity <= 0 {
		inactivity = DefaultInactivityThreshold
	}
	if retentionCap <= 0 {
		retentionCap = DefaultRetentionCap
	}
	return &JourneyService{
		clock:        clock,
		idGen:        idGen,
		store:        store,
		tx:           txm,
		inactivity:   inactivity,
		retentionCap: retentionCap,
	}
}

// Track records the action and files it into a journey in one transaction.
func (s *JourneyService) Track(ctx context.Context, action domain.ActionEvent) (TrackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result TrackResult
	err := s.tx.Within(ctx, func(ctx context.Context) error {
		recorded, err := s.recordLocked(ctx, action)
		if err != nil {
			return err
		}
		change, err := s.appendLocked(ctx, recorded)
		if err != nil {
			return err
		}
		result = TrackResult{Action: recorded, JourneyChange: change}
		return nil
	})
	if err != nil {
		return TrackResult{}, err
	}
	return result, nil
}

func (s *JourneyService) RecordAction(ctx context.Context, action domain.ActionEvent) (domain.ActionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(ctx, action)
}

func (s *JourneyService) AppendToJourney(ctx context.Context, action domain.ActionEvent) (JourneyChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var change JourneyChange
	err := s.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		change, err = s.appendLocked(ctx, action)
		return err
	})
	return change, err
}

func (s *JourneyService) recordLocked(ctx context.Context, action domain.ActionEvent) (domain.ActionEvent, error) {
	if err := action.Validate(); err != nil {
		return domain.ActionEvent{}, err
	}
	action.Payload = action.Payload.Clone()
	action.SourceComponent = strings.TrimSpace(action.SourceComponent)
	if action.ID == "" {
		action.ID = s.idGen.New()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = s.clock.Now()
	}

	last, ok, err := s.store.LastAction(ctx, action.SessionID)
	if err != nil {
		return domain.ActionEvent{}, persistence("load last action", err)
	}
	if ok {
		// Timestamps never go backwards within a session.
		if action.Timestamp.Before(last.Timestamp) {
			action.Timestamp = last.Timestamp
		}
		if action.PreviousActionID == "" {
			action.PreviousActionID = last.ID
		}
	}

	if err := s.store.InsertAction(ctx, action); err != nil {
		return domain.ActionEvent{}, persistence("record action", err)
	}
	return action, nil
}

func (s *JourneyService) appendLocked(ctx context.Context, action domain.ActionEvent) (JourneyChange, error) {
	open, ok, err := s.store.OpenJourney(ctx, action.SessionID)
	if err != nil {
		return JourneyChange{}, persistence("load open journey", err)
	}
	if ok && open.Matches(action, s.inactivity) {
		open.Append(action)
		if err := s.store.AppendJourneyAction(ctx, open.ID, action.ID, len(open.ActionIDs)-1); err != nil {
			return JourneyChange{}, persistence("append journey action", err)
		}
		if err := s.store.SaveJourney(ctx, open); err != nil {
			return JourneyChange{}, persistence("save journey", err)
		}
		return JourneyChange{Journey: open}, nil
	}

	change := JourneyChange{Created: true}
	if ok {
		if err := open.Close(domain.OutcomeAbandoned, open.LastActionAt); err != nil {
			return JourneyChange{}, err
		}
		if err := s.store.SaveJourney(ctx, open); err != nil {
			return JourneyChange{}, persistence("close journey", err)
		}
		change.Closed = &open
	}

	journey := domain.NewJourney(s.idGen.New(), action)
	if err := s.store.SaveJourney(ctx, journey); err != nil {
		return JourneyChange{}, persistence("create journey", err)
	}
	if err := s.store.AppendJourneyAction(ctx, journey.ID, action.ID, 0); err != nil {
		return JourneyChange{}, persistence("append journey action", err)
	}
	change.Journey = journey
	return change, nil
}

func (s *JourneyService) CloseJourney(ctx context.Context, journeyID string, outcome domain.Outcome) (domain.Journey, error) {
	if err := outcome.ValidateClosing(); err != nil {
		return domain.Journey{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	journey, err := s.store.GetJourney(ctx, journeyID)
	if err != nil {
		return domain.Journey{}, err
	}
	if err := journey.Close(outcome, s.clock.Now()); err != nil {
		return domain.Journey{}, err
	}
	if err := s.store.SaveJourney(ctx, journey); err != nil {
		return domain.Journey{}, persistence("close journey", err)
	}
	return journey, nil
}

// CloseOpen closes the session's open journey, if there is one.
func (s *JourneyService) CloseOpen(ctx context.Context, sessionID string, outcome domain.Outcome) (domain.Journey, bool, error) {
	open, ok, err := s.GetOpenJourney(ctx, sessionID)
	if err != nil || !ok {
		return domain.Journey{}, false, err
	}
	closed, err := s.CloseJourney(ctx, open.ID, outcome)
	if err != nil {
		return domain.Journey{}, false, err
	}
	return closed, true, nil
}

// GetActionHistory returns up to limit of the newest actions, oldest first.
// A limit of zero returns every retained action.
func (s *JourneyService) GetActionHistory(ctx context.Context, sessionID string, limit int) ([]domain.ActionEvent, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative", apperrors.ErrInvalidInput)
	}
	actions, err := s.store.ListActions(ctx, sessionID, limit)
	if err != nil {
		return nil, persistence("list actions", err)
	}
	return actions, nil
}

func (s *JourneyService) ActionsSince(ctx context.Context, sessionID string, since time.Time) ([]domain.ActionEvent, error) {
	actions, err := s.store.ListActionsSince(ctx, sessionID, since)
	if err != nil {
		return nil, persistence("list recent actions", err)
	}
	return actions, nil
}

func (s *JourneyService) GetOpenJourney(ctx context.Context, sessionID string) (domain.Journey, bool, error) {
	journey, ok, err := s.store.OpenJourney(ctx, sessionID)
	if err != nil {
		return domain.Journey{}, false, persistence("load open journey", err)
	}
	return journey, ok, nil
}

// Trim enforces the retention cap. It is a no-op while the log is within the cap.
func (s *JourneyService) Trim(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		removed, err = s.store.TrimActions(ctx, s.retentionCap)
		return err
	})
	if err != nil {
		return 0, persistence("trim actions", err)
	}
	return removed, nil
}

func (s *JourneyService) Stats(ctx context.Context, sessionID string) (domain.Stats, error) {
	stats, err := s.store.Stats(ctx, sessionID)
	if err != nil {
		return domain.Stats{}, persistence("load stats", err)
	}
	return stats, nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrPersistence, err)
}
