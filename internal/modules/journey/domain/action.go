package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "pathwise/internal/platform/errors"
)

type FeatureArea string

const (
	AreaNavigation FeatureArea = "navigation"
	AreaAnatomy    FeatureArea = "anatomy-3d"
	AreaSymptom    FeatureArea = "symptom-explorer"
	AreaMedication FeatureArea = "medication-explorer"
	AreaCondition  FeatureArea = "condition-explorer"
	AreaLab        FeatureArea = "lab-explorer"
	AreaChat       FeatureArea = "chat"
	AreaSearch     FeatureArea = "search"
	AreaSettings   FeatureArea = "settings"
)

type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionOpenPanel  ActionType = "open-panel"
	ActionClosePanel ActionType = "close-panel"
	ActionSwitchTab  ActionType = "switch-tab"

	ActionSelectStructure ActionType = "select-structure"
	ActionFocusRegion     ActionType = "focus-region"
	ActionRotate          ActionType = "rotate"
	ActionZoom            ActionType = "zoom"
	ActionToggleLayer     ActionType = "toggle-layer"

	ActionViewSymptom       ActionType = "view-symptom"
	ActionSearch            ActionType = "search"
	ActionFilterBodyRegion  ActionType = "filter-body-region"
	ActionLogSymptom        ActionType = "log-symptom"
	ActionSelectMedication  ActionType = "select-medication"
	ActionViewSystemEffects ActionType = "view-system-effects"
	ActionViewAdverse       ActionType = "view-adverse-effects"
	ActionViewMechanism     ActionType = "view-mechanism"
	ActionCheckInteractions ActionType = "check-interactions"

	ActionViewCondition       ActionType = "view-condition"
	ActionViewTreatment       ActionType = "view-treatment"
	ActionViewRelatedSymptoms ActionType = "view-related-symptoms"

	ActionViewLab     ActionType = "view-lab"
	ActionViewTrend   ActionType = "view-trend"
	ActionCompareLabs ActionType = "compare-labs"

	ActionSendMessage    ActionType = "send-message"
	ActionAskFollowUp    ActionType = "ask-follow-up"
	ActionOpenSuggestion ActionType = "open-suggestion"

	ActionQuery      ActionType = "query"
	ActionOpenResult ActionType = "open-result"

	ActionChangeComplexity ActionType = "change-complexity"
	ActionUpdateProfile    ActionType = "update-profile"
)

var areaActions = map[FeatureArea][]ActionType{
	AreaNavigation: {ActionNavigate, ActionOpenPanel, ActionClosePanel, ActionSwitchTab},
	AreaAnatomy:    {ActionSelectStructure, ActionFocusRegion, ActionRotate, ActionZoom, ActionToggleLayer},
	AreaSymptom:    {ActionViewSymptom, ActionSearch, ActionFilterBodyRegion, ActionLogSymptom},
	AreaMedication: {ActionSearch, ActionSelectMedication, ActionViewSystemEffects, ActionViewAdverse, ActionViewMechanism, ActionCheckInteractions},
	AreaCondition:  {ActionViewCondition, ActionViewTreatment, ActionViewRelatedSymptoms},
	AreaLab:        {ActionViewLab, ActionViewTrend, ActionCompareLabs},
	AreaChat:       {ActionSendMessage, ActionAskFollowUp, ActionOpenSuggestion},
	AreaSearch:     {ActionQuery, ActionOpenResult},
	AreaSettings:   {ActionChangeComplexity, ActionUpdateProfile},
}

// FeatureAreas lists every area in declaration order.
func FeatureAreas() []FeatureArea {
	return []FeatureArea{AreaNavigation, AreaAnatomy, AreaSymptom, AreaMedication, AreaCondition, AreaLab, AreaChat, AreaSearch, AreaSettings}
}

func (a FeatureArea) Validate() error {
	if _, ok := areaActions[a]; !ok {
		return fmt.Errorf("%w: unsupported feature area %q", apperrors.ErrInvalidInput, string(a))
	}
	return nil
}

// Actions returns the closed action set of the area.
func (a FeatureArea) Actions() []ActionType {
	return append([]ActionType(nil), areaActions[a]...)
}

func (a FeatureArea) Allows(t ActionType) bool {
	for _, candidate := range areaActions[a] {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseFeatureArea(raw string) (FeatureArea, error) {
	area := FeatureArea(strings.ToLower(strings.TrimSpace(raw)))
	if err := area.Validate(); err != nil {
		return "", err
	}
	return area, nil
}

type Payload struct {
	StructureIDs []string          `json:"structureIds,omitempty"`
	EntityID     string            `json:"entityId,omitempty"`
	EntityName   string            `json:"entityName,omitempty"`
	EntityType   string            `json:"entityType,omitempty"`
	SearchQuery  string            `json:"searchQuery,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (p Payload) Clone() Payload {
	out := p
	if p.StructureIDs != nil {
		out.StructureIDs = append([]string(nil), p.StructureIDs...)
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ActionEvent is one reported interaction. It is never mutated after it is recorded.
type ActionEvent struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"sessionId"`
	FeatureArea      FeatureArea `json:"featureArea"`
	ActionType       ActionType  `json:"actionType"`
	Payload          Payload     `json:"payload"`
	SourceComponent  string      `json:"sourceComponent"`
	Timestamp        time.Time   `json:"timestamp"`
	DurationMS       int64       `json:"durationMs,omitempty"`
	PreviousActionID string      `json:"previousActionId,omitempty"`
}

func (e ActionEvent) Validate() error {
	if err := e.FeatureArea.Validate(); err != nil {
		return err
	}
	if !e.FeatureArea.Allows(e.ActionType) {
		return fmt.Errorf("%w: action %q is not valid in %s", apperrors.ErrInvalidInput, string(e.ActionType), string(e.FeatureArea))
	}
	if e.DurationMS < 0 {
		return fmt.Errorf("%w: duration must be non-negative", apperrors.ErrInvalidInput)
	}
	return nil
}

// Entity reports the concrete entity the action resolved to, if any.
// Structure selections without an explicit entity resolve to their first structure.
func (e ActionEvent) Entity() (EntityRef, bool) {
	p := e.Payload
	name := strings.TrimSpace(p.EntityName)
	id := strings.TrimSpace(p.EntityID)
	if name == "" {
		name = id
	}
	if name != "" && strings.TrimSpace(p.EntityType) != "" {
		return EntityRef{Type: strings.TrimSpace(p.EntityType), ID: id, Name: name}, true
	}
	if e.ActionType == ActionSelectStructure && len(p.StructureIDs) > 0 && strings.TrimSpace(p.StructureIDs[0]) != "" {
		sid := strings.TrimSpace(p.StructureIDs[0])
		return EntityRef{Type: "structure", ID: sid, Name: sid}, true
	}
	return EntityRef{}, false
}

type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}
