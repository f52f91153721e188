package dto

import "time"

type StartInput struct {
	Label string
	Goal  string
}

type StartOutput struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

type EndInput struct {
	SessionID string
	// Outcome closes the open journey: resolved (default) or abandoned.
	Outcome string
}

type EndOutput struct {
	SessionID     string `json:"sessionId"`
	Path          string `json:"path"`
	DurationMin   int    `json:"durationMin"`
	ActionCount   int    `json:"actionCount"`
	JourneyCount  int    `json:"journeyCount"`
	ClosedJourney string `json:"closedJourney,omitempty"`
	Outcome       string `json:"outcome"`
}

type ActiveSessionOutput struct {
	SessionID string    `json:"sessionId"`
	Label     string    `json:"label,omitempty"`
	Goal      string    `json:"goal,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}
