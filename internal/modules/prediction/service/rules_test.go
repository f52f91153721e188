package service

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	journeydomain "pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/prediction/domain"
)

func act(area journeydomain.FeatureArea, action journeydomain.ActionType, entity string) journeydomain.ActionEvent {
	return journeydomain.ActionEvent{
		SessionID:   "s1",
		FeatureArea: area,
		ActionType:  action,
		Payload:     journeydomain.Payload{EntityID: entity},
		Timestamp:   engineStart,
	}
}

func window(actions ...journeydomain.ActionEvent) domain.PredictionRequest {
	return domain.PredictionRequest{SessionID: "s1", ActionWindow: actions}
}

func TestDomainRulesMatchInPriorityOrder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		req  domain.PredictionRequest
		rule string
	}{
		{
			name: "chest pain with dyspnea alias",
			req: window(
				act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "chest-pain"),
				act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "Shortness of breath"),
			),
			rule: "cardiopulmonary-co-occurrence",
		},
		{
			name: "adverse effects after selecting a medication",
			req: window(
				act(journeydomain.AreaMedication, journeydomain.ActionSelectMedication, "warfarin"),
				act(journeydomain.AreaMedication, journeydomain.ActionViewAdverse, "warfarin"),
			),
			rule: "medication-then-interactions",
		},
		{
			name: "three abdominal symptoms",
			req: window(
				act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "nausea"),
				act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "bloating"),
				act(journeydomain.AreaSymptom, journeydomain.ActionLogSymptom, "abdominal-pain"),
			),
			rule: "symptoms-share-region",
		},
		{
			name: "medication explored",
			req:  window(act(journeydomain.AreaMedication, journeydomain.ActionViewMechanism, "metformin")),
			rule: "medication-explored",
		},
		{
			name: "structure selected",
			req: window(journeydomain.ActionEvent{
				FeatureArea: journeydomain.AreaAnatomy,
				ActionType:  journeydomain.ActionSelectStructure,
				Payload:     journeydomain.Payload{StructureIDs: []string{"Left Ventricle"}},
			}),
			rule: "structure-selected",
		},
		{
			name: "lab viewed",
			req:  window(act(journeydomain.AreaLab, journeydomain.ActionViewLab, "hba1c")),
			rule: "lab-viewed",
		},
		{
			name: "chat",
			req:  window(act(journeydomain.AreaChat, journeydomain.ActionSendMessage, "")),
			rule: "chat-follow-up",
		},
		{
			name: "nothing recognizable",
			req:  window(act(journeydomain.AreaSettings, journeydomain.ActionChangeComplexity, "")),
			rule: "",
		},
		{
			name: "empty window",
			req:  window(),
			rule: "",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := MatchedRule(tc.req); got != tc.rule {
				t.Fatalf("expected rule %q, got %q", tc.rule, got)
			}
			intent := ApplyDomainRules(tc.req)
			if (tc.rule != "") != intent.HasSuggestions() {
				t.Fatalf("rule %q produced %+v", tc.rule, intent)
			}
		})
	}
}

func TestCardiopulmonaryShortcut(t *testing.T) {
	t.Parallel()
	req := window(
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "chest-pain"),
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "dyspnea"),
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "chest-pain"),
	)
	intent := GetDomainFallbackPrediction(req)
	if intent.Confidence != FallbackConfidence {
		t.Fatalf("expected confidence %v, got %v", FallbackConfidence, intent.Confidence)
	}
	want := []domain.SuggestedShortcut{{
		ID:     "shortcut:focus-region:cardiovascular",
		Label:  "Focus cardiovascular region",
		Icon:   domain.IconAnatomy,
		Target: "cardiovascular",
	}}
	if diff := cmp.Diff(want, intent.SuggestedShortcuts); diff != "" {
		t.Fatalf("shortcuts mismatch (-want +got):\n%s", diff)
	}
}

func TestRulesLookOnlyAtRecentActions(t *testing.T) {
	t.Parallel()
	actions := []journeydomain.ActionEvent{
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "chest-pain"),
	}
	for i := 0; i < 6; i++ {
		actions = append(actions, act(journeydomain.AreaNavigation, journeydomain.ActionNavigate, ""))
	}
	actions = append(actions, act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "dyspnea"))
	if got := MatchedRule(window(actions...)); got == "cardiopulmonary-co-occurrence" {
		t.Fatalf("symptoms outside the lookback must not co-occur")
	}

	interactions := window(
		act(journeydomain.AreaMedication, journeydomain.ActionSelectMedication, "warfarin"),
		act(journeydomain.AreaNavigation, journeydomain.ActionNavigate, ""),
		act(journeydomain.AreaNavigation, journeydomain.ActionNavigate, ""),
		act(journeydomain.AreaMedication, journeydomain.ActionViewAdverse, "warfarin"),
	)
	if got := MatchedRule(interactions); got == "medication-then-interactions" {
		t.Fatalf("selection outside the sequence lookback must not match")
	}
}

func TestLatestActionRulesFollowCurrentArea(t *testing.T) {
	t.Parallel()
	lab := act(journeydomain.AreaLab, journeydomain.ActionViewLab, "hba1c")
	cases := []struct {
		name string
		area journeydomain.FeatureArea
		rule string
	}{
		{name: "still on the lab", area: journeydomain.AreaLab, rule: "lab-viewed"},
		{name: "no current area uses the action", area: "", rule: "lab-viewed"},
		{name: "moved on to chat", area: journeydomain.AreaChat, rule: ""},
		{name: "moved on to settings", area: journeydomain.AreaSettings, rule: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := window(lab)
			req.CurrentContext = domain.CurrentContext{FeatureArea: tc.area}
			if got := MatchedRule(req); got != tc.rule {
				t.Fatalf("expected rule %q, got %q", tc.rule, got)
			}
		})
	}

	symptoms := window(
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "chest-pain"),
		act(journeydomain.AreaSymptom, journeydomain.ActionViewSymptom, "dyspnea"),
	)
	symptoms.CurrentContext = domain.CurrentContext{FeatureArea: journeydomain.AreaChat}
	if got := MatchedRule(symptoms); got != "cardiopulmonary-co-occurrence" {
		t.Fatalf("sequence rules read the window regardless of area, got %q", got)
	}
}

func TestFallbackAppliesCaps(t *testing.T) {
	t.Parallel()
	req := window(act(journeydomain.AreaMedication, journeydomain.ActionSelectMedication, "metformin"))
	req.MaxPredictions = 1
	intent := GetDomainFallbackPrediction(req)
	if len(intent.PredictedActions) != 1 {
		t.Fatalf("expected one predicted action, got %d", len(intent.PredictedActions))
	}
}

func TestNoMatchLeavesConfidenceZero(t *testing.T) {
	t.Parallel()
	intent := GetDomainFallbackPrediction(window(act(journeydomain.AreaSettings, journeydomain.ActionUpdateProfile, "")))
	if !intent.IsEmpty() {
		t.Fatalf("expected empty intent, got %+v", intent)
	}
}

func TestDomainRulesArePure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	type step struct {
		area   journeydomain.FeatureArea
		action journeydomain.ActionType
	}
	var steps []interface{}
	for _, area := range journeydomain.FeatureAreas() {
		for _, action := range area.Actions() {
			steps = append(steps, step{area: area, action: action})
		}
	}
	entities := []string{"chest-pain", "dyspnea", "nausea", "bloating", "abdominal-pain", "warfarin", "hba1c", "heart", ""}

	properties.Property("same window gives the same answer", prop.ForAll(
		func(picks []int, names []int) bool {
			actions := make([]journeydomain.ActionEvent, 0, len(picks))
			for i, p := range picks {
				s := steps[p%len(steps)].(step)
				name := ""
				if i < len(names) {
					name = entities[names[i]%len(entities)]
				}
				a := act(s.area, s.action, name)
				a.Timestamp = engineStart.Add(time.Duration(i) * time.Second)
				actions = append(actions, a)
			}
			req := window(actions...)
			first := GetDomainFallbackPrediction(req)
			second := GetDomainFallbackPrediction(req)
			if !cmp.Equal(first, second) {
				return false
			}
			if first.HasSuggestions() {
				return first.Confidence == FallbackConfidence
			}
			return first.Confidence == 0
		},
		gen.SliceOfN(10, gen.IntRange(0, 1000)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))
	properties.TestingRun(t)
}
