package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pathwise/internal/modules/journey/domain"
)

func entityAction(area domain.FeatureArea, kind domain.ActionType, entityType, name string, at time.Time) domain.ActionEvent {
	return domain.ActionEvent{
		FeatureArea: area,
		ActionType:  kind,
		Payload:     domain.Payload{EntityType: entityType, EntityName: name, EntityID: strings.ToLower(name)},
		Timestamp:   at,
	}
}

func TestSummarizeJourneyDedupesNewestFirst(t *testing.T) {
	t.Parallel()
	actions := []domain.ActionEvent{
		entityAction(domain.AreaSymptom, domain.ActionViewSymptom, "symptom", "Chest pain", start),
		{FeatureArea: domain.AreaNavigation, ActionType: domain.ActionNavigate, Timestamp: start},
		entityAction(domain.AreaMedication, domain.ActionSelectMedication, "medication", "Aspirin", start),
		entityAction(domain.AreaSymptom, domain.ActionViewSymptom, "symptom", "chest pain", start),
	}
	summary := SummarizeJourney(actions, 8)

	wantEntities := []domain.EntityRef{
		{Type: "symptom", ID: "chest pain", Name: "chest pain"},
		{Type: "medication", ID: "aspirin", Name: "Aspirin"},
	}
	if diff := cmp.Diff(wantEntities, summary.Entities); diff != "" {
		t.Fatalf("entities mismatch (-want +got):\n%s", diff)
	}
	wantAreas := []domain.FeatureArea{domain.AreaMedication, domain.AreaNavigation, domain.AreaSymptom}
	if diff := cmp.Diff(wantAreas, summary.FeatureAreas); diff != "" {
		t.Fatalf("areas mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeJourneyCapsEntities(t *testing.T) {
	t.Parallel()
	var actions []domain.ActionEvent
	for _, name := range []string{"a", "b", "c", "d"} {
		actions = append(actions, entityAction(domain.AreaLab, domain.ActionViewLab, "lab", name, start))
	}
	summary := SummarizeJourney(actions, 2)
	if len(summary.Entities) != 2 || summary.Entities[0].Name != "d" || summary.Entities[1].Name != "c" {
		t.Fatalf("unexpected capped entities %+v", summary.Entities)
	}
}

func TestFormatJourneyForChatPrompt(t *testing.T) {
	t.Parallel()
	if got := FormatJourneyForChatPrompt(domain.JourneySummary{}); got != "" {
		t.Fatalf("empty summary must render empty, got %q", got)
	}
	summary := SummarizeJourney([]domain.ActionEvent{
		entityAction(domain.AreaMedication, domain.ActionSelectMedication, "medication", "Metformin", start),
	}, 8)
	got := FormatJourneyForChatPrompt(summary)
	want := "Recent exploration context:\n- Recently viewed: Metformin (medication)\n- Sections visited: medication-explorer"
	if got != want {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
}

func TestGetRecentActionsForSummary(t *testing.T) {
	t.Parallel()
	now := start.Add(time.Hour)
	all := []domain.ActionEvent{
		{ID: "old", Timestamp: start},
		{ID: "a", Timestamp: now.Add(-20 * time.Minute)},
		{ID: "b", Timestamp: now.Add(-10 * time.Minute)},
		{ID: "c", Timestamp: now.Add(-time.Minute)},
	}
	got := GetRecentActionsForSummary(all, 2, 30, now)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("unexpected recent actions %+v", got)
	}
	if got := GetRecentActionsForSummary(all, 0, 0, now); len(got) != 4 {
		t.Fatalf("disabled bounds should keep everything, got %d", len(got))
	}
}
