package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	journeydomain "pathwise/internal/modules/journey/domain"
	journeydto "pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
	"pathwise/internal/modules/prediction/domain"
	"pathwise/internal/platform/clock"
)

type RequestSourceConfig struct {
	HistoryCap     int
	WindowSize     int
	BestEffort     bool
	MaxPredictions int
	MaxShortcuts   int
	// ProfilePath points at the health profile JSON. A missing or unreadable
	// file means no profile.
	ProfilePath string
}

// JourneyRequestSource builds prediction requests from the action log.
type JourneyRequestSource struct {
	journeys journeyin.Usecase
	clock    clock.Clock
	cfg      RequestSourceConfig
	logger   *zap.Logger
}

func NewJourneyRequestSource(journeys journeyin.Usecase, clk clock.Clock, cfg RequestSourceConfig, logger *zap.Logger) *JourneyRequestSource {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JourneyRequestSource{journeys: journeys, clock: clk, cfg: cfg, logger: logger}
}

// BuildRequest fails only when the action history cannot be read.
// Profile and open journey errors are logged and skipped.
func (s *JourneyRequestSource) BuildRequest(ctx context.Context, sessionID string) (domain.PredictionRequest, error) {
	history, err := s.journeys.History(ctx, journeydto.HistoryInput{SessionID: sessionID, Limit: s.cfg.HistoryCap})
	if err != nil {
		return domain.PredictionRequest{}, fmt.Errorf("load action history: %w", err)
	}
	profile, err := s.loadProfile()
	if err != nil {
		s.logger.Warn("health profile ignored", zap.String("path", s.cfg.ProfilePath), zap.Error(err))
		profile = domain.HealthProfile{}
	}

	window := make([]journeydomain.ActionEvent, 0, len(history))
	for _, action := range history {
		window = append(window, toActionEvent(action))
	}

	current := domain.CurrentContext{}
	if n := len(window); n > 0 {
		last := window[n-1]
		current.FeatureArea = last.FeatureArea
		if entity, ok := last.Entity(); ok {
			current.VisibleEntityID = entity.ID
			if current.VisibleEntityID == "" {
				current.VisibleEntityID = entity.Name
			}
		}
		started := last.Timestamp
		journey, open, err := s.journeys.OpenJourney(ctx, sessionID)
		if err != nil {
			s.logger.Warn("open journey unavailable", zap.String("session", sessionID), zap.Error(err))
		}
		if err == nil && open && !journey.StartedAt.IsZero() {
			started = journey.StartedAt
		}
		if elapsed := s.clock.Now().Sub(started); elapsed > 0 {
			current.ElapsedMS = elapsed.Milliseconds()
		}
	}

	return domain.PredictionRequest{
		SessionID:      sessionID,
		ActionWindow:   window,
		HealthProfile:  profile,
		CurrentContext: current,
		BestEffort:     s.cfg.BestEffort,
		WindowSize:     s.cfg.WindowSize,
		MaxPredictions: s.cfg.MaxPredictions,
		MaxShortcuts:   s.cfg.MaxShortcuts,
	}, nil
}

func (s *JourneyRequestSource) loadProfile() (domain.HealthProfile, error) {
	if strings.TrimSpace(s.cfg.ProfilePath) == "" {
		return domain.HealthProfile{}, nil
	}
	raw, err := os.ReadFile(s.cfg.ProfilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.HealthProfile{}, nil
		}
		return domain.HealthProfile{}, fmt.Errorf("read health profile: %w", err)
	}
	profile, err := domain.NewHealthProfile(raw)
	if err != nil {
		return domain.HealthProfile{}, fmt.Errorf("load health profile %s: %w", s.cfg.ProfilePath, err)
	}
	return profile, nil
}

func toActionEvent(a journeydto.ActionOutput) journeydomain.ActionEvent {
	return journeydomain.ActionEvent{
		ID:              a.ID,
		SessionID:       a.SessionID,
		FeatureArea:     journeydomain.FeatureArea(a.FeatureArea),
		ActionType:      journeydomain.ActionType(a.ActionType),
		SourceComponent: a.SourceComponent,
		Payload: journeydomain.Payload{
			StructureIDs: a.Payload.StructureIDs,
			EntityID:     a.Payload.EntityID,
			EntityName:   a.Payload.EntityName,
			EntityType:   a.Payload.EntityType,
			SearchQuery:  a.Payload.SearchQuery,
			Metadata:     a.Payload.Metadata,
		}.Clone(),
		Timestamp:        a.Timestamp,
		DurationMS:       a.DurationMS,
		PreviousActionID: a.PreviousActionID,
	}
}
