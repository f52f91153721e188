package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pathwise/internal/modules/prediction/domain"
	predictionout "pathwise/internal/modules/prediction/port/out"
	"pathwise/internal/platform/clock"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/eventbus"
	"pathwise/internal/platform/telemetry"
)

const (
	DefaultDebounce = 600 * time.Millisecond
	DefaultDeadline = 4 * time.Second

	EventSource = "prediction"
)

type EngineConfig struct {
	SessionID string
	Debounce  time.Duration
	Deadline  time.Duration
}

// Engine runs prediction rounds for one session. A round is debounced,
// sent to the inference client under a deadline, answered by the rule
// engine when that fails, and published only while it is the newest round.
type Engine struct {
	cfg     EngineConfig
	clock   clock.Clock
	bus     *eventbus.Bus
	source  predictionout.RequestSource
	client  predictionout.InferenceClient
	logger  *zap.Logger
	metrics *telemetry.PredictionMetrics

	fallback func(domain.PredictionRequest) domain.InferredIntent

	mu       sync.Mutex
	state    domain.State
	seq      uint64
	timer    clock.Timer
	timerGen uint64
	cancel   context.CancelFunc
	closed   bool

	// publishMu spans the staleness check and the emit, so an older round
	// can never publish after a newer one.
	publishMu sync.Mutex

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

type EngineOption func(*Engine)

func WithMetrics(m *telemetry.PredictionMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFallback replaces the rule engine used when inference fails.
func WithFallback(fn func(domain.PredictionRequest) domain.InferredIntent) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.fallback = fn
		}
	}
}

func NewEngine(cfg EngineConfig, clk clock.Clock, bus *eventbus.Bus, source predictionout.RequestSource, client predictionout.InferenceClient, opts ...EngineOption) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		clock:      clk,
		bus:        bus,
		source:     source,
		client:     client,
		logger:     zap.NewNop(),
		fallback:   GetDomainFallbackPrediction,
		state:      domain.StateIdle,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Round is the sequence number of the newest round, including cancellations.
func (e *Engine) Round() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Schedule starts or restarts the debounce window.
func (e *Engine) Schedule() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerGen++
	gen := e.timerGen
	// A round in flight keeps its state until it publishes or is superseded.
	if e.state != domain.StateRequesting && e.state != domain.StateFallback {
		e.state = domain.StateDebouncing
	}
	e.timer = e.clock.AfterFunc(e.cfg.Debounce, func() { e.onDebounce(gen) })
}

// CancelPendingPrediction drops the debounce timer and any in-flight round.
// Nothing is published for them.
func (e *Engine) CancelPendingPrediction() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.seq++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = domain.StateIdle
}

// PredictNow runs an immediate round built from the request source.
func (e *Engine) PredictNow(ctx context.Context) (domain.Prediction, bool, error) {
	return e.predictImmediate(ctx, nil)
}

// PredictImmediate skips the debounce window but obeys the same
// supersession rule as debounced rounds. It blocks until the round
// resolves, so it must not be called from a bus handler.
func (e *Engine) PredictImmediate(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, bool, error) {
	return e.predictImmediate(ctx, &req)
}

func (e *Engine) predictImmediate(ctx context.Context, req *domain.PredictionRequest) (domain.Prediction, bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.Prediction{}, false, fmt.Errorf("prediction engine is closed")
	}
	r := e.beginRoundLocked(true, req)
	e.wg.Add(1)
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, r.cancel)
	defer stop()

	prediction, published := e.run(r)
	if err := ctx.Err(); err != nil && !published {
		return domain.Prediction{}, false, err
	}
	return prediction, published, nil
}

// Close stops timers, abandons the in-flight round and waits for round
// goroutines to return.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTimerLocked()
	e.seq++
	e.state = domain.StateIdle
	e.mu.Unlock()

	e.baseCancel()
	e.wg.Wait()
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

type round struct {
	seq       uint64
	immediate bool
	req       *domain.PredictionRequest
	ctx       context.Context
	cancel    context.CancelFunc
	deadline  <-chan struct{}
	timer     clock.Timer
	startedAt time.Time
}

func (e *Engine) onDebounce(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.timerGen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	r := e.beginRoundLocked(false, nil)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(r)
}

// beginRoundLocked supersedes the previous round and arms the new round's
// deadline before any goroutine runs, so the deadline is measured from here.
func (e *Engine) beginRoundLocked(immediate bool, req *domain.PredictionRequest) *round {
	e.seq++
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.cancel = cancel
	e.state = domain.StateRequesting

	deadline := make(chan struct{})
	var once sync.Once
	timer := e.clock.AfterFunc(e.cfg.Deadline, func() { once.Do(func() { close(deadline) }) })
	e.metrics.RoundStarted(ctx, immediate)
	return &round{
		seq:       e.seq,
		immediate: immediate,
		req:       req,
		ctx:       ctx,
		cancel:    cancel,
		deadline:  deadline,
		timer:     timer,
		startedAt: e.clock.Now(),
	}
}

type inferResult struct {
	completion domain.Completion
	err        error
}

func (e *Engine) run(r *round) (domain.Prediction, bool) {
	defer e.wg.Done()
	defer r.timer.Stop()
	defer r.cancel()

	var req domain.PredictionRequest
	if r.req != nil {
		req = *r.req
	} else {
		built, err := e.source.BuildRequest(r.ctx, e.cfg.SessionID)
		if err != nil {
			if r.ctx.Err() != nil {
				e.discard(r)
				return domain.Prediction{}, false
			}
			// Without a window the rules answer with the empty intent.
			e.logger.Warn("build prediction request", zap.Uint64("round", r.seq), zap.Error(err))
			return e.resolveFallback(r, domain.PredictionRequest{SessionID: e.cfg.SessionID}, domain.ReasonNoContext, domain.PredictionResponse{})
		}
		req = built
	}
	if req.SessionID == "" {
		req.SessionID = e.cfg.SessionID
	}

	if e.client == nil {
		return e.resolveFallback(r, req, domain.ReasonUnavailable, domain.PredictionResponse{})
	}

	prompt := BuildPredictionPrompt(req)
	results := make(chan inferResult, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		completion, err := e.client.Infer(r.ctx, prompt)
		results <- inferResult{completion: completion, err: err}
	}()

	select {
	case res := <-results:
		resp := domain.PredictionResponse{
			Model:          res.completion.Model,
			TokensUsed:     res.completion.TokensUsed,
			ProcessingTime: e.clock.Now().Sub(r.startedAt),
		}
		if res.err != nil {
			if r.ctx.Err() != nil && !isDeadline(r) {
				e.discard(r)
				return domain.Prediction{}, false
			}
			return e.resolveFallback(r, req, reasonFor(res.err), resp)
		}
		intent, err := DecodeIntent(res.completion.Text)
		if err != nil {
			return e.resolveFallback(r, req, domain.ReasonMalformed, resp)
		}
		if req.BestEffort && intent.IsEmpty() {
			return e.resolveFallback(r, req, domain.ReasonEmpty, resp)
		}
		resp.Intent = intent.Cap(req.MaxPredictions, req.MaxShortcuts)
		return e.publish(r, domain.Prediction{
			SessionID:      req.SessionID,
			Round:          r.seq,
			Immediate:      r.immediate,
			Intent:         resp.Intent,
			Source:         domain.SourceLLM,
			Model:          resp.Model,
			TokensUsed:     resp.TokensUsed,
			ProcessingTime: resp.ProcessingTime,
			GeneratedAt:    e.clock.Now(),
		})
	case <-r.deadline:
		return e.resolveFallback(r, req, domain.ReasonTimeout, domain.PredictionResponse{ProcessingTime: e.cfg.Deadline})
	case <-r.ctx.Done():
		e.discard(r)
		return domain.Prediction{}, false
	}
}

func isDeadline(r *round) bool {
	select {
	case <-r.deadline:
		return true
	default:
		return false
	}
}

func reasonFor(err error) domain.FailureReason {
	switch {
	case errors.Is(err, apperrors.ErrInferenceTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.Is(err, apperrors.ErrRateLimited):
		return domain.ReasonRateLimited
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return domain.ReasonMalformed
	default:
		return domain.ReasonUnavailable
	}
}

func (e *Engine) resolveFallback(r *round, req domain.PredictionRequest, reason domain.FailureReason, resp domain.PredictionResponse) (domain.Prediction, bool) {
	e.mu.Lock()
	if r.seq != e.seq {
		e.mu.Unlock()
		e.discard(r)
		return domain.Prediction{}, false
	}
	if e.state == domain.StateRequesting {
		e.state = domain.StateFallback
	}
	e.mu.Unlock()

	e.metrics.Fallback(r.ctx, string(reason))
	intent, err := e.safeFallback(req)
	if err != nil {
		e.logger.Error("fallback prediction failed", zap.Uint64("round", r.seq), zap.Error(err))
		return domain.Prediction{}, e.fail(r, err.Error())
	}
	return e.publish(r, domain.Prediction{
		SessionID:      req.SessionID,
		Round:          r.seq,
		Immediate:      r.immediate,
		Intent:         intent,
		Source:         domain.SourceFallback,
		Model:          resp.Model,
		TokensUsed:     resp.TokensUsed,
		ProcessingTime: resp.ProcessingTime,
		UsedFallback:   true,
		FallbackReason: reason,
		GeneratedAt:    e.clock.Now(),
	})
}

func (e *Engine) safeFallback(req domain.PredictionRequest) (intent domain.InferredIntent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fallback panicked: %v", rec)
		}
	}()
	return e.fallback(req).Normalize(), nil
}

// claim marks r completed when it is still the newest round. Callers hold publishMu.
func (e *Engine) claim(r *round) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.seq != e.seq || e.closed {
		return false
	}
	if e.timer != nil {
		e.state = domain.StateDebouncing
	} else {
		e.state = domain.StateCompleted
	}
	return true
}

func (e *Engine) settle(r *round) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.seq != e.seq {
		return
	}
	e.cancel = nil
	if e.state == domain.StateCompleted {
		e.state = domain.StateIdle
	}
}

func (e *Engine) publish(r *round, prediction domain.Prediction) (domain.Prediction, bool) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	if !e.claim(r) {
		e.metrics.Superseded(r.ctx)
		e.logger.Debug("prediction superseded", zap.Uint64("round", r.seq))
		return prediction, false
	}
	if e.bus != nil {
		e.bus.Emit(eventbus.PredictionReady, prediction, EventSource)
	}
	e.settle(r)
	e.metrics.Published(r.ctx, string(prediction.Source))
	e.logger.Debug("prediction published",
		zap.Uint64("round", r.seq),
		zap.String("source", string(prediction.Source)),
		zap.Int("shortcuts", len(prediction.Intent.SuggestedShortcuts)),
	)
	return prediction, true
}

func (e *Engine) fail(r *round, reason string) bool {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	if !e.claim(r) {
		e.metrics.Superseded(r.ctx)
		return false
	}
	if e.bus != nil {
		e.bus.Emit(eventbus.PredictionFailed, domain.Failure{SessionID: e.cfg.SessionID, Round: r.seq, Reason: reason, At: e.clock.Now()}, EventSource)
	}
	e.settle(r)
	e.metrics.Failed(r.ctx)
	return true
}

func (e *Engine) discard(r *round) {
	e.mu.Lock()
	if r.seq == e.seq && !e.closed {
		e.cancel = nil
		if e.timer != nil {
			e.state = domain.StateDebouncing
		} else {
			e.state = domain.StateIdle
		}
	}
	e.mu.Unlock()
	e.metrics.Superseded(r.ctx)
	e.logger.Debug("prediction round abandoned", zap.Uint64("round", r.seq))
}
