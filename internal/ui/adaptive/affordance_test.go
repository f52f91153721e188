package adaptive_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	journeydomain "pathwise/internal/modules/journey/domain"
	journeydto "pathwise/internal/modules/journey/dto"
	predictiondomain "pathwise/internal/modules/prediction/domain"
	"pathwise/internal/ui/adaptive"
)

func TestAffordancesOrderShortcutsFirst(t *testing.T) {
	t.Parallel()
	intent := predictiondomain.EmptyIntent()
	intent.QuickActions = append(intent.QuickActions, predictiondomain.QuickAction{ID: "q1", Label: "Compare", Operation: predictiondomain.OpCompareLabs, Target: "ldl"})
	intent.SuggestedShortcuts = append(intent.SuggestedShortcuts, predictiondomain.SuggestedShortcut{ID: "s1", Label: "Focus heart", Icon: predictiondomain.IconAnatomy, Target: "heart"})

	want := []adaptive.Affordance{
		{Kind: adaptive.KindShortcut, ID: "s1", Label: "Focus heart", Target: "heart", Hint: "anatomy"},
		{Kind: adaptive.KindQuickAction, ID: "q1", Label: "Compare", Target: "ldl", Hint: "compare-labs"},
	}
	if diff := cmp.Diff(want, adaptive.Affordances(intent)); diff != "" {
		t.Fatalf("affordances mismatch (-want +got):\n%s", diff)
	}
	if got := adaptive.Affordances(predictiondomain.EmptyIntent()); len(got) != 0 {
		t.Fatalf("empty intent must have no affordances, got %v", got)
	}
}

func TestAcceptedAffordanceBecomesValidAction(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		affordance adaptive.Affordance
		area       journeydomain.FeatureArea
		action     journeydomain.ActionType
	}{
		{"interactions", adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "check-interactions", Target: "warfarin"}, journeydomain.AreaMedication, journeydomain.ActionCheckInteractions},
		{"compare", adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "compare-labs", Target: "ldl"}, journeydomain.AreaLab, journeydomain.ActionCompareLabs},
		{"chat", adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "ask-chat"}, journeydomain.AreaChat, journeydomain.ActionOpenSuggestion},
		{"focus", adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "focus-region", Target: "thorax"}, journeydomain.AreaAnatomy, journeydomain.ActionFocusRegion},
		{"unknown", adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "teleport"}, journeydomain.AreaNavigation, journeydomain.ActionOpenPanel},
		{"shortcut", adaptive.Affordance{Kind: adaptive.KindShortcut, ID: "s", Hint: "lab", Target: "ldl"}, journeydomain.AreaNavigation, journeydomain.ActionOpenPanel},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			input := tc.affordance.TrackInput("s1")
			if input.FeatureArea != string(tc.area) || input.ActionType != string(tc.action) || input.SessionID != "s1" {
				t.Fatalf("unexpected input %+v", input)
			}
			if !tc.area.Allows(tc.action) {
				t.Fatalf("%s does not allow %s", tc.area, tc.action)
			}
			if input.Payload.Metadata["affordance"] != tc.affordance.ID || input.Payload.EntityID != tc.affordance.Target {
				t.Fatalf("payload lost the affordance: %+v", input.Payload)
			}
		})
	}
}

func TestSearchQuickActionCarriesQuery(t *testing.T) {
	t.Parallel()
	input := adaptive.Affordance{Kind: adaptive.KindQuickAction, ID: "q", Hint: "start-search", Target: "statin side effects"}.TrackInput("s1")
	want := journeydto.Payload{EntityID: "statin side effects", SearchQuery: "statin side effects", Metadata: map[string]string{"affordance": "q"}}
	if diff := cmp.Diff(want, input.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	shortcut := adaptive.Affordance{Kind: adaptive.KindShortcut, ID: "s", Hint: "lab"}.TrackInput("s1")
	if shortcut.Payload.Metadata["area"] != "lab-explorer" || shortcut.SourceComponent != "adaptive-shortcut" {
		t.Fatalf("unexpected shortcut input %+v", shortcut)
	}
}
