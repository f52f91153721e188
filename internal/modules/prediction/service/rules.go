package service

import (
	journeydomain "pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/prediction/domain"
	"pathwise/internal/platform/slug"
)

// FallbackConfidence is stamped on every non-empty rule-engine answer so
// consumers can tell a fallback from a model prediction only by confidence.
const FallbackConfidence = 0.35

const (
	symptomLookback  = 6
	sequenceLookback = 3
)

var symptomAliases = map[string]string{
	"shortness-of-breath": "dyspnea",
	"breathlessness":      "dyspnea",
	"chest-discomfort":    "chest-pain",
}

type rule struct {
	name  string
	apply func(window []journeydomain.ActionEvent, area journeydomain.FeatureArea) (domain.InferredIntent, bool)
}

// Evaluated in order; the first match wins.
var domainRules = []rule{
	{name: "cardiopulmonary-co-occurrence", apply: cardiopulmonaryRule},
	{name: "medication-then-interactions", apply: interactionsRule},
	{name: "symptoms-share-region", apply: sharedRegionRule},
	{name: "medication-explored", apply: medicationRule},
	{name: "structure-selected", apply: structureRule},
	{name: "lab-viewed", apply: labRule},
	{name: "chat-follow-up", apply: chatRule},
}

// ApplyDomainRules is pure: the answer depends on the action window and the
// current feature area. Sequence rules read the recent window. Rules keyed on
// the latest action fire only while the user is still in that action's area.
func ApplyDomainRules(req domain.PredictionRequest) domain.InferredIntent {
	_, intent := matchRule(req)
	return intent
}

// GetDomainFallbackPrediction is ApplyDomainRules with FallbackConfidence
// stamped and the request caps applied.
func GetDomainFallbackPrediction(req domain.PredictionRequest) domain.InferredIntent {
	intent := ApplyDomainRules(req)
	if intent.HasSuggestions() {
		intent.Confidence = FallbackConfidence
	}
	return intent.Cap(req.MaxPredictions, req.MaxShortcuts)
}

// MatchedRule names the rule ApplyDomainRules would use, or "" when none matches.
func MatchedRule(req domain.PredictionRequest) string {
	name, _ := matchRule(req)
	return name
}

func matchRule(req domain.PredictionRequest) (string, domain.InferredIntent) {
	window := req.ActionWindow
	if len(window) == 0 {
		return "", domain.EmptyIntent()
	}
	area := currentArea(req)
	for _, r := range domainRules {
		if intent, ok := r.apply(window, area); ok {
			return r.name, intent.Normalize()
		}
	}
	return "", domain.EmptyIntent()
}

// currentArea falls back to the latest action's area when the request
// carries no current context.
func currentArea(req domain.PredictionRequest) journeydomain.FeatureArea {
	if req.CurrentContext.FeatureArea != "" {
		return req.CurrentContext.FeatureArea
	}
	return latest(req.ActionWindow).FeatureArea
}

func tail(window []journeydomain.ActionEvent, n int) []journeydomain.ActionEvent {
	if len(window) > n {
		return window[len(window)-n:]
	}
	return window
}

func entityKey(a journeydomain.ActionEvent) string {
	if key := slug.Make(a.Payload.EntityID); key != "" {
		return key
	}
	return slug.Make(a.Payload.EntityName)
}

func entityLabel(a journeydomain.ActionEvent) string {
	if a.Payload.EntityName != "" {
		return a.Payload.EntityName
	}
	return a.Payload.EntityID
}

func symptomID(a journeydomain.ActionEvent) (string, bool) {
	if a.FeatureArea != journeydomain.AreaSymptom {
		return "", false
	}
	if a.ActionType != journeydomain.ActionViewSymptom && a.ActionType != journeydomain.ActionLogSymptom {
		return "", false
	}
	id := entityKey(a)
	if alias, ok := symptomAliases[id]; ok {
		id = alias
	}
	return id, id != ""
}

func regionShortcut(region string) domain.SuggestedShortcut {
	return domain.SuggestedShortcut{
		ID:     slug.Key("shortcut", "focus-region", region),
		Label:  "Focus " + regionLabels[region] + " region",
		Icon:   domain.IconAnatomy,
		Target: region,
	}
}

func cardiopulmonaryRule(window []journeydomain.ActionEvent, _ journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	seen := map[string]bool{}
	for _, a := range tail(window, symptomLookback) {
		if id, ok := symptomID(a); ok {
			seen[id] = true
		}
	}
	if !seen["chest-pain"] || !seen["dyspnea"] {
		return domain.InferredIntent{}, false
	}
	return domain.InferredIntent{
		Confidence: 0.7,
		PredictedActions: []domain.PredictedAction{
			{ActionType: string(journeydomain.ActionFocusRegion), Target: "cardiovascular", Rationale: "chest pain together with shortness of breath", Probability: 0.7},
			{ActionType: string(journeydomain.ActionViewCondition), Target: "cardiovascular", Rationale: "conditions that cause both symptoms", Probability: 0.4},
		},
		SuggestedShortcuts: []domain.SuggestedShortcut{regionShortcut("cardiovascular")},
		QuickActions: []domain.QuickAction{{
			ID:        slug.Key("quick", string(domain.OpAskChat), "chest-pain-dyspnea"),
			Label:     "Ask about chest pain with shortness of breath",
			Operation: domain.OpAskChat,
			Target:    "chest-pain,dyspnea",
		}},
		PreloadContent: []domain.PreloadContent{{EntityType: "region", EntityID: "cardiovascular", Priority: domain.PriorityHigh}},
	}, true
}

func interactionsRule(window []journeydomain.ActionEvent, _ journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	recent := tail(window, sequenceLookback)
	medication := ""
	matched := false
	for _, a := range recent {
		if a.FeatureArea != journeydomain.AreaMedication {
			continue
		}
		switch a.ActionType {
		case journeydomain.ActionSelectMedication:
			medication = entityKey(a)
			matched = false
		case journeydomain.ActionViewAdverse, journeydomain.ActionCheckInteractions:
			if medication != "" {
				matched = true
			}
		}
	}
	if !matched {
		return domain.InferredIntent{}, false
	}
	return domain.InferredIntent{
		Confidence: 0.6,
		PredictedActions: []domain.PredictedAction{
			{ActionType: string(journeydomain.ActionCheckInteractions), Target: medication, Rationale: "side effects were reviewed after choosing a medication", Probability: 0.6},
		},
		QuickActions: []domain.QuickAction{{
			ID:        slug.Key("quick", string(domain.OpCheckInteractions), medication),
			Label:     "Check interactions",
			Operation: domain.OpCheckInteractions,
			Target:    medication,
		}},
	}, true
}

func sharedRegionRule(window []journeydomain.ActionEvent, _ journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	perRegion := map[string]map[string]bool{}
	for _, a := range tail(window, symptomLookback) {
		id, ok := symptomID(a)
		if !ok {
			continue
		}
		region, ok := regionOf(id)
		if !ok {
			continue
		}
		if perRegion[region] == nil {
			perRegion[region] = map[string]bool{}
		}
		perRegion[region][id] = true
		if len(perRegion[region]) >= 3 {
			return domain.InferredIntent{
				Confidence: 0.6,
				PredictedActions: []domain.PredictedAction{
					{ActionType: string(journeydomain.ActionFocusRegion), Target: region, Rationale: "three symptoms share this body region", Probability: 0.6},
				},
				SuggestedShortcuts: []domain.SuggestedShortcut{regionShortcut(region)},
				PreloadContent:     []domain.PreloadContent{{EntityType: "region", EntityID: region, Priority: domain.PriorityNormal}},
			}, true
		}
	}
	return domain.InferredIntent{}, false
}

func latest(window []journeydomain.ActionEvent) journeydomain.ActionEvent {
	return window[len(window)-1]
}

func medicationRule(window []journeydomain.ActionEvent, area journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	a := latest(window)
	medication := entityKey(a)
	if area != journeydomain.AreaMedication || a.FeatureArea != area || medication == "" {
		return domain.InferredIntent{}, false
	}
	intent := domain.InferredIntent{Confidence: 0.5}
	if a.ActionType != journeydomain.ActionViewMechanism {
		intent.PredictedActions = append(intent.PredictedActions, domain.PredictedAction{
			ActionType: string(journeydomain.ActionViewMechanism), Target: medication, Rationale: "how the medication works", Probability: 0.5,
		})
	}
	if a.ActionType != journeydomain.ActionViewSystemEffects {
		intent.PredictedActions = append(intent.PredictedActions, domain.PredictedAction{
			ActionType: string(journeydomain.ActionViewSystemEffects), Target: medication, Rationale: "which body systems it affects", Probability: 0.4,
		})
	}
	intent.SuggestedShortcuts = []domain.SuggestedShortcut{{
		ID:     slug.Key("shortcut", "medication", medication),
		Label:  "Back to " + entityLabel(a),
		Icon:   domain.IconMedication,
		Target: medication,
	}}
	intent.PreloadContent = []domain.PreloadContent{{EntityType: "medication", EntityID: medication, Priority: domain.PriorityHigh}}
	return intent, true
}

func structureRule(window []journeydomain.ActionEvent, area journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	a := latest(window)
	if a.ActionType != journeydomain.ActionSelectStructure || a.FeatureArea != area {
		return domain.InferredIntent{}, false
	}
	structure := ""
	if len(a.Payload.StructureIDs) > 0 {
		structure = slug.Make(a.Payload.StructureIDs[0])
	}
	if structure == "" {
		structure = entityKey(a)
	}
	if structure == "" {
		return domain.InferredIntent{}, false
	}
	return domain.InferredIntent{
		Confidence: 0.45,
		PredictedActions: []domain.PredictedAction{
			{ActionType: string(journeydomain.ActionViewCondition), Target: structure, Rationale: "conditions affecting the selected structure", Probability: 0.45},
		},
		SuggestedShortcuts: []domain.SuggestedShortcut{{
			ID:     slug.Key("shortcut", "related-conditions", structure),
			Label:  "Related conditions",
			Icon:   domain.IconCondition,
			Target: structure,
		}},
		PreloadContent: []domain.PreloadContent{{EntityType: "structure-conditions", EntityID: structure, Priority: domain.PriorityNormal}},
	}, true
}

func labRule(window []journeydomain.ActionEvent, area journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	a := latest(window)
	lab := entityKey(a)
	if area != journeydomain.AreaLab || a.FeatureArea != area || lab == "" {
		return domain.InferredIntent{}, false
	}
	next := journeydomain.ActionViewTrend
	if a.ActionType == journeydomain.ActionViewTrend {
		next = journeydomain.ActionCompareLabs
	}
	return domain.InferredIntent{
		Confidence: 0.5,
		PredictedActions: []domain.PredictedAction{
			{ActionType: string(next), Target: lab, Rationale: "lab values are easier to read over time", Probability: 0.5},
		},
		QuickActions: []domain.QuickAction{{
			ID:        slug.Key("quick", string(domain.OpCompareLabs), lab),
			Label:     "Compare with previous results",
			Operation: domain.OpCompareLabs,
			Target:    lab,
		}},
		PreloadContent: []domain.PreloadContent{{EntityType: "lab-history", EntityID: lab, Priority: domain.PriorityNormal}},
	}, true
}

func chatRule(window []journeydomain.ActionEvent, area journeydomain.FeatureArea) (domain.InferredIntent, bool) {
	a := latest(window)
	if area != journeydomain.AreaChat || a.FeatureArea != area {
		return domain.InferredIntent{}, false
	}
	return domain.InferredIntent{
		Confidence: 0.4,
		PredictedActions: []domain.PredictedAction{
			{ActionType: string(journeydomain.ActionAskFollowUp), Target: "chat", Rationale: "the conversation is still active", Probability: 0.4},
		},
		SuggestedShortcuts: []domain.SuggestedShortcut{{
			ID:     slug.Key("shortcut", "chat", "continue"),
			Label:  "Continue the conversation",
			Icon:   domain.IconChat,
			Target: "chat",
		}},
	}, true
}
