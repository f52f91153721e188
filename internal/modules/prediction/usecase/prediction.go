package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	journeydto "pathwise/internal/modules/journey/dto"
	"pathwise/internal/modules/prediction/domain"
	"pathwise/internal/modules/prediction/dto"
	predictionin "pathwise/internal/modules/prediction/port/in"
	predictionout "pathwise/internal/modules/prediction/port/out"
	"pathwise/internal/modules/prediction/service"
	"pathwise/internal/platform/clock"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/eventbus"
	"pathwise/internal/platform/telemetry"
)

type Config struct {
	Debounce time.Duration
	Deadline time.Duration
	// Fallback overrides the rule engine. Nil keeps the domain rules.
	Fallback func(domain.PredictionRequest) domain.InferredIntent
}

// Interactor keeps one engine per session. Engines are created on the first
// tracked action or explicit request for that session.
type Interactor struct {
	cfg     Config
	clock   clock.Clock
	bus     *eventbus.Bus
	source  predictionout.RequestSource
	client  predictionout.InferenceClient
	logger  *zap.Logger
	metrics *telemetry.PredictionMetrics

	mu       sync.Mutex
	engines  map[string]*service.Engine
	latest   map[string]domain.Prediction
	failures map[string]domain.Failure
	closed   bool
	unsub    []eventbus.Unsubscribe
}

func NewInteractor(cfg Config, clk clock.Clock, bus *eventbus.Bus, source predictionout.RequestSource, client predictionout.InferenceClient, logger *zap.Logger, metrics *telemetry.PredictionMetrics) predictionin.Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Interactor{
		cfg:      cfg,
		clock:    clk,
		bus:      bus,
		source:   source,
		client:   client,
		logger:   logger,
		metrics:  metrics,
		engines:  map[string]*service.Engine{},
		latest:   map[string]domain.Prediction{},
		failures: map[string]domain.Failure{},
	}
	if bus != nil {
		i.unsub = append(i.unsub,
			bus.On(eventbus.ActionTracked, i.onActionTracked),
			bus.On(eventbus.PredictionReady, i.onPredictionReady),
			bus.On(eventbus.PredictionFailed, i.onPredictionFailed),
		)
	}
	return i
}

func (i *Interactor) engineFor(sessionID string) (*service.Engine, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required: %w", apperrors.ErrInvalidInput)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, fmt.Errorf("prediction usecase is closed")
	}
	if engine, ok := i.engines[sessionID]; ok {
		return engine, nil
	}
	engine := service.NewEngine(
		service.EngineConfig{SessionID: sessionID, Debounce: i.cfg.Debounce, Deadline: i.cfg.Deadline},
		i.clock, i.bus, i.source, i.client,
		service.WithLogger(i.logger.With(zap.String("session", sessionID))),
		service.WithMetrics(i.metrics),
		service.WithFallback(i.cfg.Fallback),
	)
	i.engines[sessionID] = engine
	return engine, nil
}

func (i *Interactor) existing(sessionID string) (*service.Engine, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	engine, ok := i.engines[sessionID]
	return engine, ok
}

func (i *Interactor) onActionTracked(ev eventbus.Event) {
	action, ok := ev.Payload.(journeydto.ActionOutput)
	if !ok {
		i.logger.Warn("unexpected ACTION_TRACKED payload", zap.String("event", ev.ID), zap.String("type", fmt.Sprintf("%T", ev.Payload)))
		return
	}
	if err := i.Schedule(context.Background(), action.SessionID); err != nil {
		i.logger.Debug("schedule prediction", zap.String("session", action.SessionID), zap.Error(err))
	}
}

func (i *Interactor) onPredictionReady(ev eventbus.Event) {
	prediction, ok := ev.Payload.(domain.Prediction)
	if !ok {
		return
	}
	i.mu.Lock()
	i.latest[prediction.SessionID] = prediction
	i.mu.Unlock()
}

func (i *Interactor) onPredictionFailed(ev eventbus.Event) {
	failure, ok := ev.Payload.(domain.Failure)
	if !ok {
		return
	}
	i.mu.Lock()
	i.failures[failure.SessionID] = failure
	i.mu.Unlock()
}

func (i *Interactor) Schedule(_ context.Context, sessionID string) error {
	engine, err := i.engineFor(sessionID)
	if err != nil {
		return err
	}
	engine.Schedule()
	return nil
}

func (i *Interactor) PredictNow(ctx context.Context, input dto.PredictInput) (dto.PredictionOutput, error) {
	engine, err := i.engineFor(input.SessionID)
	if err != nil {
		return dto.PredictionOutput{}, err
	}
	prediction, published, err := engine.PredictNow(ctx)
	if err != nil {
		return dto.PredictionOutput{}, err
	}
	if !published {
		return dto.PredictionOutput{}, domain.ErrSuperseded
	}
	// A published round without a prediction ended in PREDICTION_FAILED.
	if prediction.Round == 0 {
		i.mu.Lock()
		failure := i.failures[input.SessionID]
		i.mu.Unlock()
		return dto.PredictionOutput{}, fmt.Errorf("predict session %s: %w: %s", input.SessionID, domain.ErrRoundFailed, failure.Reason)
	}
	return toPredictionOutput(prediction), nil
}

func (i *Interactor) Latest(_ context.Context, sessionID string) (dto.PredictionOutput, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	prediction, ok := i.latest[sessionID]
	if !ok {
		return dto.PredictionOutput{}, false, nil
	}
	return toPredictionOutput(prediction), true, nil
}

func (i *Interactor) Status(_ context.Context, sessionID string) (dto.StatusOutput, error) {
	out := dto.StatusOutput{SessionID: sessionID, State: string(domain.StateIdle)}
	if engine, ok := i.existing(sessionID); ok {
		out.State = string(engine.State())
		out.Round = engine.Round()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if prediction, ok := i.latest[sessionID]; ok {
		latest := toPredictionOutput(prediction)
		out.Latest = &latest
	}
	if failure, ok := i.failures[sessionID]; ok {
		f := toFailureOutput(failure)
		out.LastFailure = &f
	}
	return out, nil
}

func (i *Interactor) Cancel(_ context.Context, sessionID string) error {
	if engine, ok := i.existing(sessionID); ok {
		engine.CancelPendingPrediction()
	}
	return nil
}

func (i *Interactor) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	engines := make([]*service.Engine, 0, len(i.engines))
	for _, engine := range i.engines {
		engines = append(engines, engine)
	}
	unsub := i.unsub
	i.unsub = nil
	i.mu.Unlock()

	for _, off := range unsub {
		off()
	}
	for _, engine := range engines {
		engine.Close()
	}
	return nil
}
