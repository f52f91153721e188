package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pathwise/internal/modules/journey/domain"
	"pathwise/internal/platform/clock"
	apperrors "pathwise/internal/platform/errors"
)

type seqIDs struct{ n int }

func (s *seqIDs) New() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type memStore struct {
	actions  []domain.ActionEvent
	journeys map[string]domain.Journey
	order    []string
	failNext error
}

func newMemStore() *memStore {
	return &memStore{journeys: map[string]domain.Journey{}}
}

func (m *memStore) fail() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) InsertAction(_ context.Context, action domain.ActionEvent) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.actions = append(m.actions, action)
	return nil
}

func (m *memStore) ListActions(_ context.Context, sessionID string, limit int) ([]domain.ActionEvent, error) {
	var out []domain.ActionEvent
	for _, a := range m.actions {
		if sessionID == "" || a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) ListActionsSince(_ context.Context, sessionID string, since time.Time) ([]domain.ActionEvent, error) {
	var out []domain.ActionEvent
	for _, a := range m.actions {
		if (sessionID == "" || a.SessionID == sessionID) && !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) LastAction(_ context.Context, sessionID string) (domain.ActionEvent, bool, error) {
	for i := len(m.actions) - 1; i >= 0; i-- {
		if m.actions[i].SessionID == sessionID {
			return m.actions[i], true, nil
		}
	}
	return domain.ActionEvent{}, false, nil
}

func (m *memStore) SaveJourney(_ context.Context, journey domain.Journey) error {
	if _, ok := m.journeys[journey.ID]; !ok {
		m.order = append(m.order, journey.ID)
	}
	journey.ActionIDs = append([]string(nil), journey.ActionIDs...)
	m.journeys[journey.ID] = journey
	return nil
}

func (m *memStore) AppendJourneyAction(context.Context, string, string, int) error {
	return nil
}

func (m *memStore) OpenJourney(_ context.Context, sessionID string) (domain.Journey, bool, error) {
	for _, id := range m.order {
		if j := m.journeys[id]; j.SessionID == sessionID && j.IsOpen() {
			return j, true, nil
		}
	}
	return domain.Journey{}, false, nil
}

func (m *memStore) GetJourney(_ context.Context, id string) (domain.Journey, error) {
	j, ok := m.journeys[id]
	if !ok {
		return domain.Journey{}, apperrors.ErrNotFound
	}
	return j, nil
}

func (m *memStore) TrimActions(context.Context, int) (int, error) {
	return 0, nil
}

func (m *memStore) Stats(context.Context, string) (domain.Stats, error) {
	return domain.Stats{TotalActions: len(m.actions), TotalJourneys: len(m.journeys)}, nil
}

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(store *memStore) (*JourneyService, *clock.Manual) {
	clk := clock.NewManual(start)
	return NewJourneyService(clk, &seqIDs{}, store, nil, 10*time.Minute, 100), clk
}

func ev(area domain.FeatureArea, kind domain.ActionType) domain.ActionEvent {
	return domain.ActionEvent{SessionID: "s1", FeatureArea: area, ActionType: kind}
}

func TestTrackAssignsIdentityAndChainsActions(t *testing.T) {
	t.Parallel()
	svc, clk := newService(newMemStore())
	first, err := svc.Track(context.Background(), ev(domain.AreaSymptom, domain.ActionViewSymptom))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	clk.Advance(time.Second)
	second, err := svc.Track(context.Background(), ev(domain.AreaSymptom, domain.ActionSearch))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if first.Action.ID == "" || !first.Action.Timestamp.Equal(start) {
		t.Fatalf("unexpected first action %+v", first.Action)
	}
	if second.Action.PreviousActionID != first.Action.ID {
		t.Fatalf("expected previous action id %s, got %s", first.Action.ID, second.Action.PreviousActionID)
	}
	if !first.Created || second.Created || second.Journey.ID != first.Journey.ID {
		t.Fatalf("second action should extend the first journey")
	}
	if len(second.Journey.ActionIDs) != 2 {
		t.Fatalf("unexpected journey members %v", second.Journey.ActionIDs)
	}
}

func TestTrackClampsBackdatedTimestamps(t *testing.T) {
	t.Parallel()
	svc, _ := newService(newMemStore())
	if _, err := svc.Track(context.Background(), ev(domain.AreaLab, domain.ActionViewLab)); err != nil {
		t.Fatalf("track: %v", err)
	}
	late := ev(domain.AreaLab, domain.ActionViewTrend)
	late.Timestamp = start.Add(-time.Hour)
	res, err := svc.Track(context.Background(), late)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !res.Action.Timestamp.Equal(start) {
		t.Fatalf("expected timestamp clamped to %s, got %s", start, res.Action.Timestamp)
	}
}

func TestJourneyBoundaryAfterInactivity(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc, clk := newService(store)
	ctx := context.Background()
	var firstJourney string
	for i := 0; i < 3; i++ {
		res, err := svc.Track(ctx, ev(domain.AreaMedication, domain.ActionSelectMedication))
		if err != nil {
			t.Fatalf("track: %v", err)
		}
		firstJourney = res.Journey.ID
		clk.Advance(time.Minute)
	}
	clk.Advance(15 * time.Minute)

	res, err := svc.Track(ctx, ev(domain.AreaLab, domain.ActionViewLab))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Closed == nil || res.Closed.ID != firstJourney || res.Closed.Outcome != domain.OutcomeAbandoned {
		t.Fatalf("expected medication journey abandoned, got %+v", res.Closed)
	}
	if len(res.Closed.ActionIDs) != 3 {
		t.Fatalf("closed journey should keep its 3 members, got %v", res.Closed.ActionIDs)
	}
	if !res.Created || res.Journey.Type != domain.JourneyLabReview {
		t.Fatalf("expected new lab journey, got %+v", res.Journey)
	}
	if len(res.Journey.ActionIDs) != 1 || res.Journey.ActionIDs[0] != res.Action.ID {
		t.Fatalf("new journey should contain only the new action, got %v", res.Journey.ActionIDs)
	}
	if stored := store.journeys[firstJourney]; stored.Outcome != domain.OutcomeAbandoned {
		t.Fatalf("abandoned outcome not persisted: %s", stored.Outcome)
	}
}

func TestContinuationActionCrossesAreas(t *testing.T) {
	t.Parallel()
	svc, _ := newService(newMemStore())
	ctx := context.Background()
	first, err := svc.Track(ctx, ev(domain.AreaSymptom, domain.ActionViewSymptom))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	res, err := svc.Track(ctx, ev(domain.AreaChat, domain.ActionAskFollowUp))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Created || res.Journey.ID != first.Journey.ID {
		t.Fatalf("chat follow-up should continue the symptom journey")
	}
}

func TestRecordActionSurfacesPersistenceAndRecovers(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc, _ := newService(store)
	ctx := context.Background()
	store.failNext = errors.New("disk full")

	_, err := svc.RecordAction(ctx, ev(domain.AreaSearch, domain.ActionQuery))
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if _, err := svc.RecordAction(ctx, ev(domain.AreaSearch, domain.ActionQuery)); err != nil {
		t.Fatalf("log should stay usable: %v", err)
	}
	history, err := svc.GetActionHistory(ctx, "s1", 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one recorded action, got %d (%v)", len(history), err)
	}
}

func TestRecordActionRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	svc, _ := newService(newMemStore())
	_, err := svc.RecordAction(context.Background(), ev(domain.AreaChat, domain.ActionViewLab))
	if !errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected invalid input only, got %v", err)
	}
}

func TestCloseJourney(t *testing.T) {
	t.Parallel()
	svc, _ := newService(newMemStore())
	ctx := context.Background()
	res, err := svc.Track(ctx, ev(domain.AreaCondition, domain.ActionViewCondition))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	closed, ok, err := svc.CloseOpen(ctx, "s1", domain.OutcomeResolved)
	if err != nil || !ok {
		t.Fatalf("close open: ok=%v err=%v", ok, err)
	}
	if closed.ID != res.Journey.ID || closed.Outcome != domain.OutcomeResolved {
		t.Fatalf("unexpected closed journey %+v", closed)
	}
	if _, ok, _ := svc.GetOpenJourney(ctx, "s1"); ok {
		t.Fatalf("no journey should remain open")
	}
	if _, err := svc.CloseJourney(ctx, "missing", domain.OutcomeResolved); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
