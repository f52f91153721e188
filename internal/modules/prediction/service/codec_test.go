package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	journeydomain "pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/prediction/domain"
	apperrors "pathwise/internal/platform/errors"
)

func TestDecodeIntentExtractsFromProse(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"bare":   `{"confidence":0.6,"predictedActions":[{"actionType":"view-lab","target":"a1c","probability":0.6}]}`,
		"prose":  `Sure! Here is my guess: {"confidence":0.6,"predictedActions":[{"actionType":"view-lab","target":"a1c","probability":0.6}]} Hope it helps {`,
		"fenced": "Prediction:\n```json\n{\"confidence\":0.6,\"predictedActions\":[{\"actionType\":\"view-lab\",\"target\":\"a1c\",\"probability\":0.6}]}\n```\nThe {brace} is extra.",
		"braces in strings": `{"confidence":0.6,"predictedActions":[{"actionType":"view-lab","target":"a1c","rationale":"looks like } or {","probability":0.6}]}`,
	}
	for name, raw := range cases {
		name, raw := name, raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			intent, err := DecodeIntent(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if intent.Confidence != 0.6 || len(intent.PredictedActions) != 1 || intent.PredictedActions[0].Target != "a1c" {
				t.Fatalf("unexpected intent %+v", intent)
			}
		})
	}
}

func TestDecodeIntentRejectsTextWithoutObject(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "no json here", "{not json}", "[1,2,3]"} {
		intent, err := DecodeIntent(raw)
		if !errors.Is(err, apperrors.ErrMalformedResponse) {
			t.Fatalf("%q: expected malformed error, got %v", raw, err)
		}
		if !intent.IsEmpty() {
			t.Fatalf("%q: expected empty intent, got %+v", raw, intent)
		}
		if got := ParseIntentResponse(raw); !got.IsEmpty() {
			t.Fatalf("%q: ParseIntentResponse must return the empty intent", raw)
		}
	}
}

func TestDecodeIntentDegradesPerField(t *testing.T) {
	t.Parallel()
	raw := `{
		"confidence": 1.7,
		"predictedActions": [
			{"actionType": "teleport", "probability": 0.9},
			{"actionType": "view-trend", "probability": 1.2},
			{"actionType": "view-trend", "target": "ldl", "probability": 0.3},
			{"actionType": "compare-labs", "target": "ldl", "probability": 0.8},
			"garbage"
		],
		"suggestedShortcuts": [
			{"label": "", "icon": "lab"},
			{"label": "Open labs", "icon": "spaceship"},
			{"label": "LDL trend", "icon": "lab", "target": "ldl"}
		],
		"quickActions": [
			{"label": "Ask", "operation": "ask-chat", "target": "ldl"},
			{"label": "Dance", "operation": "dance"}
		],
		"preloadContent": [
			{"entityType": "lab", "entityId": "ldl"},
			{"entityType": "lab", "entityId": "hdl", "priority": "urgent"},
			{"entityType": "", "entityId": "x", "priority": "low"}
		]
	}`
	intent, err := DecodeIntent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := domain.InferredIntent{
		Confidence: 0,
		PredictedActions: []domain.PredictedAction{
			{ActionType: "compare-labs", Target: "ldl", Probability: 0.8},
			{ActionType: "view-trend", Target: "ldl", Probability: 0.3},
		},
		SuggestedShortcuts: []domain.SuggestedShortcut{
			{ID: "shortcut:ldl-trend:ldl", Label: "LDL trend", Icon: domain.IconLab, Target: "ldl"},
		},
		QuickActions: []domain.QuickAction{
			{ID: "quick:ask-chat:ldl", Label: "Ask", Operation: domain.OpAskChat, Target: "ldl"},
		},
		PreloadContent: []domain.PreloadContent{
			{EntityType: "lab", EntityID: "ldl", Priority: domain.PriorityNormal},
		},
	}
	if diff := cmp.Diff(want, intent); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIntentNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fragments := gen.OneConstOf(`{`, `}`, `[`, `]`, `"`, `\`, `:`, `,`, "```", "```json\n",
		`"confidence"`, `"predictedActions"`, `"suggestedShortcuts"`, `0.5`, `-3`, `null`, `true`, `"view-lab"`, ` `)

	properties.Property("decoding arbitrary text yields a valid intent", prop.ForAll(
		func(parts []string) bool {
			intent := ParseIntentResponse(strings.Join(parts, ""))
			return validIntent(intent)
		},
		gen.SliceOf(fragments.Map(func(r *gopter.GenResult) string { v, _ := r.Retrieve(); return v.(string) })),
	))
	properties.Property("decoding arbitrary unicode yields a valid intent", prop.ForAll(
		func(raw string) bool {
			return validIntent(ParseIntentResponse(raw))
		},
		gen.AnyString(),
	))
	properties.TestingRun(t)
}

func validIntent(intent domain.InferredIntent) bool {
	if intent.Confidence < 0 || intent.Confidence > 1 {
		return false
	}
	for i, a := range intent.PredictedActions {
		if a.Probability < 0 || a.Probability > 1 {
			return false
		}
		if i > 0 && intent.PredictedActions[i-1].Probability < a.Probability {
			return false
		}
	}
	for _, s := range intent.SuggestedShortcuts {
		if s.ID == "" || s.Label == "" || !s.Icon.Valid() {
			return false
		}
	}
	for _, q := range intent.QuickActions {
		if q.ID == "" || !q.Operation.Valid() {
			return false
		}
	}
	for _, p := range intent.PreloadContent {
		if !p.Priority.Valid() {
			return false
		}
	}
	return true
}

func promptAction(id string, area journeydomain.FeatureArea, action journeydomain.ActionType, offset time.Duration) journeydomain.ActionEvent {
	return journeydomain.ActionEvent{
		ID:          id,
		SessionID:   "s1",
		FeatureArea: area,
		ActionType:  action,
		Payload: journeydomain.Payload{
			EntityID:   id,
			EntityType: "thing",
			Metadata:   map[string]string{"z": "last", "a": "first"},
		},
		Timestamp: engineStart.Add(offset),
	}
}

func TestBuildPredictionPromptIsDeterministic(t *testing.T) {
	t.Parallel()
	profile, err := domain.NewHealthProfile([]byte(`{"conditions":["asthma"],"age":41}`))
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	req := domain.PredictionRequest{
		SessionID: "s1",
		ActionWindow: []journeydomain.ActionEvent{
			promptAction("chest-pain", journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, 0),
			promptAction("heart", journeydomain.AreaAnatomy, journeydomain.ActionSelectStructure, 1500*time.Millisecond),
		},
		HealthProfile:  profile,
		CurrentContext: domain.CurrentContext{FeatureArea: journeydomain.AreaAnatomy, VisibleEntityID: "heart", ElapsedMS: 2000},
	}
	first := BuildPredictionPrompt(req)
	for i := 0; i < 10; i++ {
		if got := BuildPredictionPrompt(req); got != first {
			t.Fatalf("prompt changed between calls")
		}
	}
	for _, want := range []string{
		`Health profile: {"age":41,"conditions":["asthma"]}`,
		"- feature area: anatomy-3d",
		"1. +0ms [symptom-explorer] view-symptom entity=thing:chest-pain a=\"first\" z=\"last\"",
		"2. +1500ms [anatomy-3d] select-structure",
	} {
		if !strings.Contains(first, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, first)
		}
	}
}

func TestBuildPredictionPromptSummarizesOlderActions(t *testing.T) {
	t.Parallel()
	var actions []journeydomain.ActionEvent
	actions = append(actions, promptAction("metformin", journeydomain.AreaMedication, journeydomain.ActionSelectMedication, 0))
	for i := 0; i < 5; i++ {
		actions = append(actions, promptAction("ldl", journeydomain.AreaLab, journeydomain.ActionViewLab, time.Duration(i+1)*time.Second))
	}
	req := domain.PredictionRequest{
		ActionWindow:   actions,
		WindowSize:     3,
		CurrentContext: domain.CurrentContext{FeatureArea: journeydomain.AreaMedication},
	}
	prompt := BuildPredictionPrompt(req)
	if !strings.Contains(prompt, "- lab-explorer: 2") {
		t.Fatalf("expected older lab actions to be counted:\n%s", prompt)
	}
	if strings.Contains(prompt, "- medication-explorer: 1") {
		t.Fatalf("pinned action must not be counted as older:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Last action in the current feature area:\n* +0ms [medication-explorer] select-medication") {
		t.Fatalf("expected current-area action to stay in the prompt:\n%s", prompt)
	}
	if strings.Count(prompt, "view-lab") != 3 {
		t.Fatalf("expected exactly the newest three actions verbatim:\n%s", prompt)
	}
	if health := "Health profile: none"; !strings.Contains(prompt, health) {
		t.Fatalf("expected %q:\n%s", health, prompt)
	}
}
