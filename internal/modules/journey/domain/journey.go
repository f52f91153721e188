package domain

import (
	"fmt"
	"sort"
	"time"

	apperrors "pathwise/internal/platform/errors"
)

type JourneyType string

const (
	JourneySymptomInvestigation JourneyType = "symptom-investigation"
	JourneyMedicationReview     JourneyType = "medication-review"
	JourneyAnatomyExploration   JourneyType = "anatomy-exploration"
	JourneyConditionLearning    JourneyType = "condition-learning"
	JourneyLabReview            JourneyType = "lab-review"
	JourneyConversational       JourneyType = "conversational-inquiry"
	JourneyGeneralBrowsing      JourneyType = "general-browsing"
)

type Outcome string

const (
	OutcomeOpen      Outcome = "open"
	OutcomeResolved  Outcome = "resolved"
	OutcomeAbandoned Outcome = "abandoned"
)

// ValidateClosing accepts only the outcomes a journey can be closed with.
func (o Outcome) ValidateClosing() error {
	switch o {
	case OutcomeResolved, OutcomeAbandoned:
		return nil
	default:
		return fmt.Errorf("%w: unsupported journey outcome %q", apperrors.ErrInvalidInput, string(o))
	}
}

// continuationActions extend the open journey regardless of feature area.
var continuationActions = map[ActionType]struct{}{
	ActionAskFollowUp:     {},
	ActionSendMessage:     {},
	ActionOpenSuggestion:  {},
	ActionNavigate:        {},
	ActionFocusRegion:     {},
	ActionSelectStructure: {},
}

func IsContinuation(t ActionType) bool {
	_, ok := continuationActions[t]
	return ok
}

func TypeForArea(area FeatureArea) JourneyType {
	switch area {
	case AreaSymptom:
		return JourneySymptomInvestigation
	case AreaMedication:
		return JourneyMedicationReview
	case AreaAnatomy:
		return JourneyAnatomyExploration
	case AreaCondition:
		return JourneyConditionLearning
	case AreaLab:
		return JourneyLabReview
	case AreaChat:
		return JourneyConversational
	default:
		return JourneyGeneralBrowsing
	}
}

type AreaCount struct {
	Area  FeatureArea `json:"area"`
	Count int         `json:"count"`
}

type Journey struct {
	ID           string
	SessionID    string
	Type         JourneyType
	ActionIDs    []string
	DominantArea FeatureArea
	// Areas holds per-area member counts in first-seen order.
	Areas []AreaCount
	// HealthContext groups referenced entity names by entity type.
	HealthContext map[string][]string
	Outcome       Outcome
	StartedAt     time.Time
	LastActionAt  time.Time
	EndedAt       time.Time
}

func NewJourney(id string, first ActionEvent) Journey {
	j := Journey{
		ID:            id,
		SessionID:     first.SessionID,
		Outcome:       OutcomeOpen,
		StartedAt:     first.Timestamp,
		HealthContext: map[string][]string{},
	}
	j.Append(first)
	return j
}

func (j Journey) IsOpen() bool {
	return j.Outcome == OutcomeOpen
}

// Matches reports whether ev extends the journey: same dominant area or a
// continuation action, and a gap below threshold.
func (j Journey) Matches(ev ActionEvent, threshold time.Duration) bool {
	if !j.IsOpen() {
		return false
	}
	if ev.Timestamp.Sub(j.LastActionAt) >= threshold {
		return false
	}
	return ev.FeatureArea == j.DominantArea || IsContinuation(ev.ActionType)
}

func (j *Journey) Append(ev ActionEvent) {
	j.ActionIDs = append(j.ActionIDs, ev.ID)
	j.LastActionAt = ev.Timestamp

	found := false
	for i := range j.Areas {
		if j.Areas[i].Area == ev.FeatureArea {
			j.Areas[i].Count++
			found = true
			break
		}
	}
	if !found {
		j.Areas = append(j.Areas, AreaCount{Area: ev.FeatureArea, Count: 1})
	}
	j.DominantArea = dominant(j.Areas)
	j.Type = TypeForArea(j.DominantArea)

	if ref, ok := ev.Entity(); ok {
		if j.HealthContext == nil {
			j.HealthContext = map[string][]string{}
		}
		names := j.HealthContext[ref.Type]
		for _, existing := range names {
			if existing == ref.Name {
				return
			}
		}
		j.HealthContext[ref.Type] = append(names, ref.Name)
	}
}

func (j *Journey) Close(outcome Outcome, at time.Time) error {
	if err := outcome.ValidateClosing(); err != nil {
		return err
	}
	if !j.IsOpen() {
		return fmt.Errorf("%w: journey %s is already %s", apperrors.ErrInvalidInput, j.ID, j.Outcome)
	}
	if at.Before(j.LastActionAt) {
		at = j.LastActionAt
	}
	j.Outcome = outcome
	j.EndedAt = at
	return nil
}

// EntityTypes returns the health context keys in sorted order.
func (j Journey) EntityTypes() []string {
	keys := make([]string, 0, len(j.HealthContext))
	for k := range j.HealthContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dominant picks the most frequent area; ties go to the area seen first.
func dominant(areas []AreaCount) FeatureArea {
	var best AreaCount
	for _, ac := range areas {
		if ac.Count > best.Count {
			best = ac
		}
	}
	return best.Area
}

type Stats struct {
	TotalActions   int
	TotalJourneys  int
	OpenJourneys   int
	OldestActionAt time.Time
	NewestActionAt time.Time
}
