// Package adaptive keeps the UI-facing view of a session: the latest
// inferred intent, the recent actions and the open journey, fed by bus events.
package adaptive

import (
	"sync"
	"time"

	journeydto "pathwise/internal/modules/journey/dto"
	predictiondomain "pathwise/internal/modules/prediction/domain"
	"pathwise/internal/platform/eventbus"
)

const DefaultRecentActions = 20

// Snapshot is a copy of the state at one instant.
type Snapshot struct {
	SessionID     string
	Prediction    predictiondomain.Prediction
	HasPrediction bool
	Failure       predictiondomain.Failure
	HasFailure    bool
	// Pending is set by a tracked action and cleared by the next prediction or failure.
	Pending bool
	Recent  []journeydto.ActionOutput
	Journey journeydto.JourneyOutput
	Updated time.Time
}

type State struct {
	mu        sync.Mutex
	snap      Snapshot
	recentCap int
	follow    bool
	changes   chan struct{}
	unsub     []eventbus.Unsubscribe
}

// New subscribes to bus for sessionID. An empty sessionID follows whichever
// session reports first and switches on later actions from another session.
func New(bus *eventbus.Bus, sessionID string, recentCap int) *State {
	if recentCap <= 0 {
		recentCap = DefaultRecentActions
	}
	s := &State{
		snap:      Snapshot{SessionID: sessionID},
		recentCap: recentCap,
		follow:    sessionID == "",
		changes:   make(chan struct{}, 1),
	}
	if bus != nil {
		s.unsub = append(s.unsub,
			bus.On(eventbus.ActionTracked, s.onAction),
			bus.On(eventbus.PredictionReady, s.onPrediction),
			bus.On(eventbus.PredictionFailed, s.onFailure),
			bus.On(eventbus.JourneyUpdated, s.onJourney),
		)
	}
	return s
}

// Changes delivers a signal after any update. Signals coalesce.
func (s *State) Changes() <-chan struct{} {
	return s.changes
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Recent = append([]journeydto.ActionOutput(nil), s.snap.Recent...)
	return out
}

func (s *State) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	for _, off := range unsub {
		off()
	}
}

func (s *State) onAction(ev eventbus.Event) {
	action, ok := ev.Payload.(journeydto.ActionOutput)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.snap.SessionID != action.SessionID {
		if !s.follow && s.snap.SessionID != "" {
			s.mu.Unlock()
			return
		}
		s.snap = Snapshot{SessionID: action.SessionID}
	}
	s.snap.Recent = append(s.snap.Recent, action)
	if over := len(s.snap.Recent) - s.recentCap; over > 0 {
		s.snap.Recent = append([]journeydto.ActionOutput(nil), s.snap.Recent[over:]...)
	}
	s.snap.Pending = true
	s.snap.Updated = ev.Timestamp
	s.mu.Unlock()
	s.notify()
}

func (s *State) onPrediction(ev eventbus.Event) {
	prediction, ok := ev.Payload.(predictiondomain.Prediction)
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.acceptsLocked(prediction.SessionID) || (s.snap.HasPrediction && prediction.Round < s.snap.Prediction.Round) {
		s.mu.Unlock()
		return
	}
	s.snap.Prediction = prediction
	s.snap.HasPrediction = true
	s.snap.Pending = false
	s.snap.Updated = ev.Timestamp
	s.mu.Unlock()
	s.notify()
}

func (s *State) onFailure(ev eventbus.Event) {
	failure, ok := ev.Payload.(predictiondomain.Failure)
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.acceptsLocked(failure.SessionID) {
		s.mu.Unlock()
		return
	}
	s.snap.Failure = failure
	s.snap.HasFailure = true
	s.snap.Pending = false
	s.snap.Updated = ev.Timestamp
	s.mu.Unlock()
	s.notify()
}

func (s *State) onJourney(ev eventbus.Event) {
	journey, ok := ev.Payload.(journeydto.JourneyOutput)
	if !ok {
		return
	}
	s.mu.Lock()
	// A closed journey only replaces the one it closes.
	if !s.acceptsLocked(journey.SessionID) || (journey.Outcome != "open" && s.snap.Journey.ID != "" && s.snap.Journey.ID != journey.ID) {
		s.mu.Unlock()
		return
	}
	s.snap.Journey = journey
	s.snap.Updated = ev.Timestamp
	s.mu.Unlock()
	s.notify()
}

func (s *State) acceptsLocked(sessionID string) bool {
	if s.snap.SessionID == "" {
		s.snap.SessionID = sessionID
		return true
	}
	return s.snap.SessionID == sessionID
}

func (s *State) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
