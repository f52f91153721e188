package usecase_test

import (
	"context"
	"errors"
	"testing"

	"pathwise/internal/modules/inference/domain"
	"pathwise/internal/modules/inference/dto"
	"pathwise/internal/modules/inference/service"
	"pathwise/internal/modules/inference/usecase"
	apperrors "pathwise/internal/platform/errors"
)

type fakeManifestStore struct {
	manifests []domain.Manifest
}

func (s fakeManifestStore) Load(context.Context) ([]domain.Manifest, error) {
	return s.manifests, nil
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	return domain.Completion{Text: req.Prompt, Model: "echo", TokensUsed: 3}, nil
}

func TestCompleteGoesThroughTheChain(t *testing.T) {
	t.Parallel()
	uc := usecase.NewInteractor(domain.BackendGemini, service.NewGateway(domain.BackendGemini, echoCompleter{}, nil, nil), nil, nil)
	out, err := uc.Complete(context.Background(), dto.CompleteInput{Prompt: "hello"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Text != "hello" || out.Model != "echo" || out.TokensUsed != 3 {
		t.Fatalf("unexpected output %+v", out)
	}
	if uc.Backend() != domain.BackendGemini {
		t.Fatalf("unexpected backend %q", uc.Backend())
	}
}

func TestCompleteWithoutBackend(t *testing.T) {
	t.Parallel()
	uc := usecase.NewInteractor(domain.BackendNone, nil, nil, nil)
	if _, err := uc.Complete(context.Background(), dto.CompleteInput{Prompt: "hello"}); !errors.Is(err, apperrors.ErrInferenceUnavailable) {
		t.Fatalf("expected ErrInferenceUnavailable, got %v", err)
	}
	list, err := uc.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty provider list, got %v %v", list, err)
	}
}

func TestDoctorPerBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gemini := usecase.NewInteractor(domain.BackendGemini, nil, nil, errors.New("GEMINI_API_KEY is not set"))
	results, err := gemini.Doctor(ctx)
	if err != nil || len(results) != 1 || results[0].LifecycleOK || results[0].Error == "" {
		t.Fatalf("expected failing gemini check, got %+v %v", results, err)
	}

	ready := usecase.NewInteractor(domain.BackendGemini, echoCompleter{}, nil, nil)
	results, err = ready.Doctor(ctx)
	if err != nil || !results[0].LifecycleOK {
		t.Fatalf("expected healthy gemini check, got %+v %v", results, err)
	}

	plugin := usecase.NewInteractor(domain.BackendPlugin, nil, service.NewProviderService(fakeManifestStore{}, nil, ""), nil)
	results, err = plugin.Doctor(ctx)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no provider results, got %+v %v", results, err)
	}

	none := usecase.NewInteractor(domain.BackendNone, nil, nil, nil)
	results, err = none.Doctor(ctx)
	if err != nil || len(results) != 1 || results[0].Name != domain.BackendNone {
		t.Fatalf("unexpected none results %+v %v", results, err)
	}
}
