package service

import (
	"context"
	"strings"

	"pathwise/internal/modules/session/domain"
	sessionout "pathwise/internal/modules/session/port/out"
	"pathwise/internal/platform/clock"
	"pathwise/internal/platform/id"
)

type SessionService struct {
	clock clock.Clock
	idGen id.Generator
	store sessionout.SessionStore
}

func NewSessionService(clock clock.Clock, idGen id.Generator, store sessionout.SessionStore) *SessionService {
	return &SessionService{clock: clock, idGen: idGen, store: store}
}

func (s *SessionService) Start(_ context.Context, label, goal string) domain.ActiveSession {
	return domain.ActiveSession{
		SessionID: s.idGen.New(),
		Label:     strings.TrimSpace(label),
		Goal:      strings.TrimSpace(goal),
		StartedAt: s.clock.Now(),
	}
}

// End stamps the closing time and writes the record. summary carries the
// journey figures gathered by the caller.
func (s *SessionService) End(ctx context.Context, active domain.ActiveSession, summary domain.Session) (domain.Session, string, error) {
	endedAt := s.clock.Now()
	duration := int(endedAt.Sub(active.StartedAt).Minutes())
	if duration < 0 {
		duration = 0
	}
	session := summary
	session.ID = active.SessionID
	session.Label = active.Label
	session.Goal = active.Goal
	session.StartedAt = active.StartedAt
	session.EndedAt = endedAt
	session.DurationMin = duration
	if s.store == nil {
		return session, "", nil
	}
	path, err := s.store.Save(ctx, session)
	if err != nil {
		return domain.Session{}, "", err
	}
	return session, path, nil
}
