package usecase

import (
	"pathwise/internal/modules/prediction/domain"
	"pathwise/internal/modules/prediction/dto"
)

func toIntent(in domain.InferredIntent) dto.Intent {
	out := dto.Intent{
		Confidence:         in.Confidence,
		PredictedActions:   make([]dto.PredictedAction, 0, len(in.PredictedActions)),
		SuggestedShortcuts: make([]dto.Shortcut, 0, len(in.SuggestedShortcuts)),
		QuickActions:       make([]dto.QuickAction, 0, len(in.QuickActions)),
		PreloadContent:     make([]dto.Preload, 0, len(in.PreloadContent)),
	}
	for _, a := range in.PredictedActions {
		out.PredictedActions = append(out.PredictedActions, dto.PredictedAction{ActionType: a.ActionType, Target: a.Target, Rationale: a.Rationale, Probability: a.Probability})
	}
	for _, s := range in.SuggestedShortcuts {
		out.SuggestedShortcuts = append(out.SuggestedShortcuts, dto.Shortcut{ID: s.ID, Label: s.Label, Icon: string(s.Icon), Target: s.Target})
	}
	for _, q := range in.QuickActions {
		out.QuickActions = append(out.QuickActions, dto.QuickAction{ID: q.ID, Label: q.Label, Operation: string(q.Operation), Target: q.Target})
	}
	for _, p := range in.PreloadContent {
		out.PreloadContent = append(out.PreloadContent, dto.Preload{EntityType: p.EntityType, EntityID: p.EntityID, Priority: string(p.Priority)})
	}
	return out
}

func toPredictionOutput(p domain.Prediction) dto.PredictionOutput {
	return dto.PredictionOutput{
		SessionID:      p.SessionID,
		Round:          p.Round,
		Immediate:      p.Immediate,
		Source:         string(p.Source),
		Model:          p.Model,
		TokensUsed:     p.TokensUsed,
		ProcessingMS:   p.ProcessingTime.Milliseconds(),
		UsedFallback:   p.UsedFallback,
		FallbackReason: string(p.FallbackReason),
		GeneratedAt:    p.GeneratedAt,
		Intent:         toIntent(p.Intent),
	}
}

func toFailureOutput(f domain.Failure) dto.FailureOutput {
	return dto.FailureOutput{SessionID: f.SessionID, Round: f.Round, Reason: f.Reason, At: f.At}
}
