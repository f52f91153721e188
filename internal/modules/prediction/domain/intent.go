package domain

type IconType string

const (
	IconAnatomy    IconType = "anatomy"
	IconSymptom    IconType = "symptom"
	IconMedication IconType = "medication"
	IconCondition  IconType = "condition"
	IconLab        IconType = "lab"
	IconChat       IconType = "chat"
	IconSearch     IconType = "search"
)

func (i IconType) Valid() bool {
	switch i {
	case IconAnatomy, IconSymptom, IconMedication, IconCondition, IconLab, IconChat, IconSearch:
		return true
	}
	return false
}

type QuickOperation string

const (
	OpOpenEntity        QuickOperation = "open-entity"
	OpFocusRegion       QuickOperation = "focus-region"
	OpCheckInteractions QuickOperation = "check-interactions"
	OpAskChat           QuickOperation = "ask-chat"
	OpCompareLabs       QuickOperation = "compare-labs"
	OpStartSearch       QuickOperation = "start-search"
)

func (o QuickOperation) Valid() bool {
	switch o {
	case OpOpenEntity, OpFocusRegion, OpCheckInteractions, OpAskChat, OpCompareLabs, OpStartSearch:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type PredictedAction struct {
	ActionType  string  `json:"actionType"`
	Target      string  `json:"target,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	Probability float64 `json:"probability"`
}

type SuggestedShortcut struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Icon   IconType `json:"icon"`
	Target string   `json:"target,omitempty"`
}

type QuickAction struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Operation QuickOperation `json:"operation"`
	Target    string         `json:"target,omitempty"`
}

type PreloadContent struct {
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Priority   Priority `json:"priority"`
}

// InferredIntent is a prediction result. Lists are never nil; use EmptyIntent
// rather than the zero value when building one by hand.
type InferredIntent struct {
	Confidence         float64             `json:"confidence"`
	PredictedActions   []PredictedAction   `json:"predictedActions"`
	SuggestedShortcuts []SuggestedShortcut `json:"suggestedShortcuts"`
	QuickActions       []QuickAction       `json:"quickActions"`
	PreloadContent     []PreloadContent    `json:"preloadContent"`
}

func EmptyIntent() InferredIntent {
	return InferredIntent{
		PredictedActions:   []PredictedAction{},
		SuggestedShortcuts: []SuggestedShortcut{},
		QuickActions:       []QuickAction{},
		PreloadContent:     []PreloadContent{},
	}
}

// HasSuggestions reports whether any list carries an item.
func (i InferredIntent) HasSuggestions() bool {
	return len(i.PredictedActions) > 0 || len(i.SuggestedShortcuts) > 0 || len(i.QuickActions) > 0 || len(i.PreloadContent) > 0
}

// IsEmpty matches the empty intent: zero confidence and no suggestions.
func (i InferredIntent) IsEmpty() bool {
	return i.Confidence == 0 && !i.HasSuggestions()
}

// Normalize replaces nil lists with empty ones.
func (i InferredIntent) Normalize() InferredIntent {
	if i.PredictedActions == nil {
		i.PredictedActions = []PredictedAction{}
	}
	if i.SuggestedShortcuts == nil {
		i.SuggestedShortcuts = []SuggestedShortcut{}
	}
	if i.QuickActions == nil {
		i.QuickActions = []QuickAction{}
	}
	if i.PreloadContent == nil {
		i.PreloadContent = []PreloadContent{}
	}
	return i
}

// Cap truncates ranked predictions and shortcuts. Non-positive limits are ignored.
func (i InferredIntent) Cap(maxPredictions, maxShortcuts int) InferredIntent {
	i = i.Normalize()
	if maxPredictions > 0 && len(i.PredictedActions) > maxPredictions {
		i.PredictedActions = append([]PredictedAction(nil), i.PredictedActions[:maxPredictions]...)
	}
	if maxShortcuts > 0 && len(i.SuggestedShortcuts) > maxShortcuts {
		i.SuggestedShortcuts = append([]SuggestedShortcut(nil), i.SuggestedShortcuts[:maxShortcuts]...)
	}
	return i
}
