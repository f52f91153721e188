package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pathwise/internal/modules/inference/domain"
	inferenceout "pathwise/internal/modules/inference/port/out"
	apperrors "pathwise/internal/platform/errors"
)

// NewLimiter returns a token bucket refilled perMinute times a minute, or
// nil when perMinute is not positive.
func NewLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

// Gateway is the single door to the configured backend. It never waits for
// budget: an empty bucket fails fast with ErrRateLimited, and every backend
// error leaves as one of the inference sentinels.
type Gateway struct {
	backend   string
	completer inferenceout.Completer
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func NewGateway(backend string, completer inferenceout.Completer, limiter *rate.Limiter, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{backend: backend, completer: completer, limiter: limiter, logger: logger}
}

func (g *Gateway) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	if err := req.Validate(); err != nil {
		return domain.Completion{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if g.completer == nil {
		return domain.Completion{}, fmt.Errorf("%w: backend %q", apperrors.ErrInferenceUnavailable, g.backend)
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return domain.Completion{}, apperrors.ErrRateLimited
	}
	completion, err := g.completer.Complete(ctx, req)
	if err != nil {
		err = classify(err)
		g.logger.Debug("inference call failed", zap.String("backend", g.backend), zap.Error(err))
		return domain.Completion{}, err
	}
	g.logger.Debug("inference call completed",
		zap.String("backend", g.backend),
		zap.String("model", completion.Model),
		zap.Int("tokens", completion.TokensUsed),
	)
	return completion, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrInferenceTimeout):
		return fmt.Errorf("%w: %w", apperrors.ErrInferenceTimeout, err)
	case errors.Is(err, apperrors.ErrInferenceUnavailable),
		errors.Is(err, apperrors.ErrInferenceTimeout),
		errors.Is(err, apperrors.ErrMalformedResponse),
		errors.Is(err, apperrors.ErrRateLimited):
		return err
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrInferenceUnavailable, err)
	}
}
