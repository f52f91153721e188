package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pathwise/internal/modules/inference/domain"
	"pathwise/internal/modules/inference/service"
	apperrors "pathwise/internal/platform/errors"
)

type stubCompleter struct {
	err   error
	calls int
}

func (s *stubCompleter) Complete(context.Context, domain.CompletionRequest) (domain.Completion, error) {
	s.calls++
	if s.err != nil {
		return domain.Completion{}, s.err
	}
	return domain.Completion{Text: "{}", Model: "stub"}, nil
}

func TestGatewayWithoutBackendIsUnavailable(t *testing.T) {
	t.Parallel()
	gw := service.NewGateway("none", nil, nil, nil)
	_, err := gw.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, apperrors.ErrInferenceUnavailable) {
		t.Fatalf("expected ErrInferenceUnavailable, got %v", err)
	}
}

func TestGatewayRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()
	stub := &stubCompleter{}
	gw := service.NewGateway("stub", stub, nil, nil)
	if _, err := gw.Complete(context.Background(), domain.CompletionRequest{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("invalid requests must not reach the backend")
	}
}

func TestGatewayRateLimitFailsFast(t *testing.T) {
	t.Parallel()
	stub := &stubCompleter{}
	gw := service.NewGateway("stub", stub, service.NewLimiter(1, 2), nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := gw.Complete(ctx, domain.CompletionRequest{Prompt: "p"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := gw.Complete(ctx, domain.CompletionRequest{Prompt: "p"}); !errors.Is(err, apperrors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 backend calls, got %d", stub.calls)
	}
}

func TestNewLimiterDisabled(t *testing.T) {
	t.Parallel()
	if service.NewLimiter(0, 5) != nil {
		t.Fatalf("expected no limiter for a zero rate")
	}
}

func TestGatewayClassifiesBackendErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "plain", err: errors.New("connection refused"), want: apperrors.ErrInferenceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: apperrors.ErrInferenceTimeout},
		{name: "rate limited", err: fmt.Errorf("quota: %w", apperrors.ErrRateLimited), want: apperrors.ErrRateLimited},
		{name: "malformed", err: apperrors.ErrMalformedResponse, want: apperrors.ErrMalformedResponse},
		{name: "canceled", err: context.Canceled, want: context.Canceled},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gw := service.NewGateway("stub", &stubCompleter{err: tc.err}, nil, nil)
			_, err := gw.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
