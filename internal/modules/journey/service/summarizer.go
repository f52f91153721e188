package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pathwise/internal/modules/journey/domain"
)

const DefaultMaxSummaryEntities = 8

// SummarizeJourney reduces actions to the distinct entities viewed, newest
// first, and the sorted set of feature areas touched.
func SummarizeJourney(actions []domain.ActionEvent, maxEntities int) domain.JourneySummary {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxSummaryEntities
	}
	summary := domain.JourneySummary{ActionCount: len(actions)}

	seen := map[string]struct{}{}
	for i := len(actions) - 1; i >= 0 && len(summary.Entities) < maxEntities; i-- {
		ref, ok := actions[i].Entity()
		if !ok {
			continue
		}
		key := strings.ToLower(ref.Type) + "\x00" + strings.ToLower(ref.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.Entities = append(summary.Entities, ref)
	}

	areas := map[domain.FeatureArea]struct{}{}
	for _, action := range actions {
		areas[action.FeatureArea] = struct{}{}
	}
	for area := range areas {
		summary.FeatureAreas = append(summary.FeatureAreas, area)
	}
	sort.Slice(summary.FeatureAreas, func(i, j int) bool { return summary.FeatureAreas[i] < summary.FeatureAreas[j] })
	return summary
}

// FormatJourneyForChatPrompt renders a short context block for a chat model.
// An empty summary renders as "".
func FormatJourneyForChatPrompt(summary domain.JourneySummary) string {
	if summary.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent exploration context:\n")
	if len(summary.Entities) > 0 {
		parts := make([]string, 0, len(summary.Entities))
		for _, ref := range summary.Entities {
			parts = append(parts, fmt.Sprintf("%s (%s)", ref.Name, ref.Type))
		}
		b.WriteString("- Recently viewed: ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	if len(summary.FeatureAreas) > 0 {
		parts := make([]string, 0, len(summary.FeatureAreas))
		for _, area := range summary.FeatureAreas {
			parts = append(parts, string(area))
		}
		b.WriteString("- Sections visited: ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// GetRecentActionsForSummary keeps actions no older than maxAgeMinutes
// relative to now, then the newest maxActions of those, in input order.
// Non-positive bounds disable the respective filter.
func GetRecentActionsForSummary(all []domain.ActionEvent, maxActions, maxAgeMinutes int, now time.Time) []domain.ActionEvent {
	out := make([]domain.ActionEvent, 0, len(all))
	for _, action := range all {
		if maxAgeMinutes > 0 && now.Sub(action.Timestamp) > time.Duration(maxAgeMinutes)*time.Minute {
			continue
		}
		out = append(out, action)
	}
	if maxActions > 0 && len(out) > maxActions {
		out = out[len(out)-maxActions:]
	}
	return out
}
