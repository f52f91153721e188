package dto

import "time"

type PredictedAction struct {
	ActionType  string  `json:"actionType"`
	Target      string  `json:"target,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	Probability float64 `json:"probability"`
}

type Shortcut struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Icon   string `json:"icon"`
	Target string `json:"target,omitempty"`
}

type QuickAction struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
}

type Preload struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Priority   string `json:"priority"`
}

type Intent struct {
	Confidence         float64           `json:"confidence"`
	PredictedActions   []PredictedAction `json:"predictedActions"`
	SuggestedShortcuts []Shortcut        `json:"suggestedShortcuts"`
	QuickActions       []QuickAction     `json:"quickActions"`
	PreloadContent     []Preload         `json:"preloadContent"`
}

type PredictInput struct {
	SessionID string
}

type PredictionOutput struct {
	SessionID      string    `json:"sessionId"`
	Round          uint64    `json:"round"`
	Immediate      bool      `json:"immediate"`
	Source         string    `json:"source"`
	Model          string    `json:"model,omitempty"`
	TokensUsed     int       `json:"tokensUsed,omitempty"`
	ProcessingMS   int64     `json:"processingMs"`
	UsedFallback   bool      `json:"usedFallback"`
	FallbackReason string    `json:"fallbackReason,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt"`
	Intent         Intent    `json:"intent"`
}

type FailureOutput struct {
	SessionID string    `json:"sessionId"`
	Round     uint64    `json:"round"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

type StatusOutput struct {
	SessionID   string            `json:"sessionId"`
	State       string            `json:"state"`
	Round       uint64            `json:"round"`
	Latest      *PredictionOutput `json:"latest,omitempty"`
	LastFailure *FailureOutput    `json:"lastFailure,omitempty"`
}
