package adaptive

import (
	journeydomain "pathwise/internal/modules/journey/domain"
	journeydto "pathwise/internal/modules/journey/dto"
	predictiondomain "pathwise/internal/modules/prediction/domain"
)

type AffordanceKind string

const (
	KindShortcut    AffordanceKind = "shortcut"
	KindQuickAction AffordanceKind = "quick-action"
)

// Affordance is one clickable suggestion rendered from an intent.
type Affordance struct {
	Kind   AffordanceKind
	ID     string
	Label  string
	Target string
	// Hint is the icon of a shortcut or the operation of a quick action.
	Hint string
}

// Affordances lists shortcuts first, then quick actions, in intent order.
func Affordances(intent predictiondomain.InferredIntent) []Affordance {
	out := make([]Affordance, 0, len(intent.SuggestedShortcuts)+len(intent.QuickActions))
	for _, s := range intent.SuggestedShortcuts {
		out = append(out, Affordance{Kind: KindShortcut, ID: s.ID, Label: s.Label, Target: s.Target, Hint: string(s.Icon)})
	}
	for _, q := range intent.QuickActions {
		out = append(out, Affordance{Kind: KindQuickAction, ID: q.ID, Label: q.Label, Target: q.Target, Hint: string(q.Operation)})
	}
	return out
}

var iconAreas = map[predictiondomain.IconType]journeydomain.FeatureArea{
	predictiondomain.IconAnatomy:    journeydomain.AreaAnatomy,
	predictiondomain.IconSymptom:    journeydomain.AreaSymptom,
	predictiondomain.IconMedication: journeydomain.AreaMedication,
	predictiondomain.IconCondition:  journeydomain.AreaCondition,
	predictiondomain.IconLab:        journeydomain.AreaLab,
	predictiondomain.IconChat:       journeydomain.AreaChat,
	predictiondomain.IconSearch:     journeydomain.AreaSearch,
}

type areaAction struct {
	area   journeydomain.FeatureArea
	action journeydomain.ActionType
}

var operationActions = map[predictiondomain.QuickOperation]areaAction{
	predictiondomain.OpOpenEntity:        {journeydomain.AreaNavigation, journeydomain.ActionOpenPanel},
	predictiondomain.OpFocusRegion:       {journeydomain.AreaAnatomy, journeydomain.ActionFocusRegion},
	predictiondomain.OpCheckInteractions: {journeydomain.AreaMedication, journeydomain.ActionCheckInteractions},
	predictiondomain.OpAskChat:           {journeydomain.AreaChat, journeydomain.ActionOpenSuggestion},
	predictiondomain.OpCompareLabs:       {journeydomain.AreaLab, journeydomain.ActionCompareLabs},
	predictiondomain.OpStartSearch:       {journeydomain.AreaSearch, journeydomain.ActionQuery},
}

// TrackInput turns an accepted affordance into the action it stands for.
// Shortcuts open the panel of their area; quick actions perform their
// operation. Unknown hints fall back to a navigation panel.
func (a Affordance) TrackInput(sessionID string) journeydto.TrackInput {
	input := journeydto.TrackInput{
		SessionID:       sessionID,
		FeatureArea:     string(journeydomain.AreaNavigation),
		ActionType:      string(journeydomain.ActionOpenPanel),
		SourceComponent: "adaptive-" + string(a.Kind),
		Payload: journeydto.Payload{
			EntityID: a.Target,
			Metadata: map[string]string{"affordance": a.ID},
		},
	}
	switch a.Kind {
	case KindShortcut:
		if area, ok := iconAreas[predictiondomain.IconType(a.Hint)]; ok {
			input.Payload.Metadata["area"] = string(area)
		}
	case KindQuickAction:
		if target, ok := operationActions[predictiondomain.QuickOperation(a.Hint)]; ok {
			input.FeatureArea = string(target.area)
			input.ActionType = string(target.action)
		}
		if a.Hint == string(predictiondomain.OpStartSearch) {
			input.Payload.SearchQuery = a.Target
		}
	}
	return input
}
