package dto

import "time"

type Payload struct {
	StructureIDs []string          `json:"structureIds,omitempty"`
	EntityID     string            `json:"entityId,omitempty"`
	EntityName   string            `json:"entityName,omitempty"`
	EntityType   string            `json:"entityType,omitempty"`
	SearchQuery  string            `json:"searchQuery,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type TrackInput struct {
	SessionID       string    `json:"sessionId"`
	FeatureArea     string    `json:"featureArea"`
	ActionType      string    `json:"actionType"`
	SourceComponent string    `json:"sourceComponent"`
	Payload         Payload   `json:"payload"`
	DurationMS      int64     `json:"durationMs,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

type ActionOutput struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	FeatureArea      string    `json:"featureArea"`
	ActionType       string    `json:"actionType"`
	SourceComponent  string    `json:"sourceComponent"`
	Payload          Payload   `json:"payload"`
	Timestamp        time.Time `json:"timestamp"`
	DurationMS       int64     `json:"durationMs,omitempty"`
	PreviousActionID string    `json:"previousActionId,omitempty"`
}

type JourneyOutput struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"sessionId"`
	Type          string              `json:"type"`
	DominantArea  string              `json:"dominantArea"`
	Outcome       string              `json:"outcome"`
	ActionIDs     []string            `json:"actionIds"`
	HealthContext map[string][]string `json:"healthContext,omitempty"`
	StartedAt     time.Time           `json:"startedAt"`
	LastActionAt  time.Time           `json:"lastActionAt"`
	EndedAt       time.Time           `json:"endedAt,omitempty"`
}

type TrackOutput struct {
	Action     ActionOutput   `json:"action"`
	Journey    JourneyOutput  `json:"journey"`
	Closed     *JourneyOutput `json:"closed,omitempty"`
	NewJourney bool           `json:"newJourney"`
}

type HistoryInput struct {
	SessionID string
	Limit     int
}

type CloseJourneyInput struct {
	JourneyID string
	SessionID string
	Outcome   string
}

type TrimOutput struct {
	Removed int `json:"removed"`
}

type StatsOutput struct {
	TotalActions   int       `json:"totalActions"`
	TotalJourneys  int       `json:"totalJourneys"`
	OpenJourneys   int       `json:"openJourneys"`
	OldestActionAt time.Time `json:"oldestActionAt,omitempty"`
	NewestActionAt time.Time `json:"newestActionAt,omitempty"`
}

type ChatContextInput struct {
	SessionID     string
	MaxActions    int
	MaxAgeMinutes int
	MaxEntities   int
}

type EntityOutput struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type ChatContextOutput struct {
	Entities     []EntityOutput `json:"entities"`
	FeatureAreas []string       `json:"featureAreas"`
	ActionCount  int            `json:"actionCount"`
	Prompt       string         `json:"prompt"`
}
