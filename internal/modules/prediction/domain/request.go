package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	journeydomain "pathwise/internal/modules/journey/domain"
	apperrors "pathwise/internal/platform/errors"
)

type CurrentContext struct {
	FeatureArea     journeydomain.FeatureArea `json:"featureArea"`
	VisibleEntityID string                    `json:"visibleEntityId,omitempty"`
	ElapsedMS       int64                     `json:"elapsedMs"`
}

// HealthProfile is opaque JSON held in canonical (RFC 8785) form so identical
// profiles always render identically in prompts.
type HealthProfile struct {
	canonical string
}

func NewHealthProfile(raw []byte) (HealthProfile, error) {
	if len(raw) == 0 {
		return HealthProfile{}, nil
	}
	if !json.Valid(raw) {
		return HealthProfile{}, fmt.Errorf("%w: health profile is not valid JSON", apperrors.ErrInvalidInput)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return HealthProfile{}, fmt.Errorf("%w: canonicalize health profile: %v", apperrors.ErrInvalidInput, err)
	}
	return HealthProfile{canonical: string(canonical)}, nil
}

func (p HealthProfile) Canonical() string {
	return p.canonical
}

func (p HealthProfile) IsEmpty() bool {
	return p.canonical == "" || p.canonical == "{}" || p.canonical == "null"
}

type PredictionRequest struct {
	SessionID      string
	ActionWindow   []journeydomain.ActionEvent
	HealthProfile  HealthProfile
	CurrentContext CurrentContext
	// BestEffort asks for a non-empty answer: an empty model intent falls back to the rules.
	BestEffort     bool
	WindowSize     int
	MaxPredictions int
	MaxShortcuts   int
}

// Completion is the raw answer of an inference backend.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

type FailureReason string

const (
	ReasonUnavailable FailureReason = "unavailable"
	ReasonTimeout     FailureReason = "timeout"
	ReasonMalformed   FailureReason = "malformed"
	ReasonRateLimited FailureReason = "rate_limited"
	// ReasonEmpty marks a best-effort round whose model answer carried nothing.
	ReasonEmpty FailureReason = "empty"
	// ReasonNoContext marks a round whose action history could not be loaded.
	ReasonNoContext FailureReason = "no_context"
)

type PredictionResponse struct {
	Intent         InferredIntent
	Model          string
	TokensUsed     int
	ProcessingTime time.Duration
	Failure        FailureReason
}

func (r PredictionResponse) Failed() bool {
	return r.Failure != ""
}

type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Prediction is the payload of PREDICTION_READY.
type Prediction struct {
	SessionID      string
	Round          uint64
	Immediate      bool
	Intent         InferredIntent
	Source         Source
	Model          string
	TokensUsed     int
	ProcessingTime time.Duration
	UsedFallback   bool
	FallbackReason FailureReason
	GeneratedAt    time.Time
}

// Failure is the payload of PREDICTION_FAILED.
type Failure struct {
	SessionID string
	Round     uint64
	Reason    string
	At        time.Time
}

type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateRequesting State = "requesting"
	StateFallback   State = "fallback"
	StateCompleted  State = "completed"
)
