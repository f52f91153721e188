package domain

import "time"

const SchemaVersion = 1

// ActiveSession is the session new actions are attributed to when the caller
// names none.
type ActiveSession struct {
	SessionID string    `json:"session_id"`
	Label     string    `json:"label,omitempty"`
	Goal      string    `json:"goal,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Session is the record written when a session ends.
type Session struct {
	ID             string
	Label          string
	Goal           string
	StartedAt      time.Time
	EndedAt        time.Time
	DurationMin    int
	Outcome        string
	JourneyID      string
	ActionCount    int
	JourneyCount   int
	DominantArea   string
	ClosedAtEnding bool
}
