package usecase

import (
	"fmt"

	"pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/journey/dto"
	apperrors "pathwise/internal/platform/errors"
)

var errNoOpenJourney = fmt.Errorf("open journey: %w", apperrors.ErrNotFound)

func toDomainPayload(p dto.Payload) domain.Payload {
	return domain.Payload{
		StructureIDs: p.StructureIDs,
		EntityID:     p.EntityID,
		EntityName:   p.EntityName,
		EntityType:   p.EntityType,
		SearchQuery:  p.SearchQuery,
		Metadata:     p.Metadata,
	}.Clone()
}

func toDTOPayload(p domain.Payload) dto.Payload {
	c := p.Clone()
	return dto.Payload{
		StructureIDs: c.StructureIDs,
		EntityID:     c.EntityID,
		EntityName:   c.EntityName,
		EntityType:   c.EntityType,
		SearchQuery:  c.SearchQuery,
		Metadata:     c.Metadata,
	}
}

func toActionOutput(a domain.ActionEvent) dto.ActionOutput {
	return dto.ActionOutput{
		ID:               a.ID,
		SessionID:        a.SessionID,
		FeatureArea:      string(a.FeatureArea),
		ActionType:       string(a.ActionType),
		SourceComponent:  a.SourceComponent,
		Payload:          toDTOPayload(a.Payload),
		Timestamp:        a.Timestamp,
		DurationMS:       a.DurationMS,
		PreviousActionID: a.PreviousActionID,
	}
}

func toJourneyOutput(j domain.Journey) dto.JourneyOutput {
	healthContext := make(map[string][]string, len(j.HealthContext))
	for k, v := range j.HealthContext {
		healthContext[k] = append([]string(nil), v...)
	}
	return dto.JourneyOutput{
		ID:            j.ID,
		SessionID:     j.SessionID,
		Type:          string(j.Type),
		DominantArea:  string(j.DominantArea),
		Outcome:       string(j.Outcome),
		ActionIDs:     append([]string(nil), j.ActionIDs...),
		HealthContext: healthContext,
		StartedAt:     j.StartedAt,
		LastActionAt:  j.LastActionAt,
		EndedAt:       j.EndedAt,
	}
}
