package usecase

import (
	"context"

	"pathwise/internal/modules/inference/domain"
	"pathwise/internal/modules/inference/dto"
	inferencein "pathwise/internal/modules/inference/port/in"
	inferenceout "pathwise/internal/modules/inference/port/out"
	"pathwise/internal/modules/inference/service"
)

type Interactor struct {
	backend   string
	completer inferenceout.Completer
	providers *service.ProviderService
	setupErr  error
}

// NewInteractor wires the completion chain built for backend. setupErr is
// the reason the backend could not be built, reported by Doctor.
func NewInteractor(backend string, completer inferenceout.Completer, providers *service.ProviderService, setupErr error) inferencein.Usecase {
	return &Interactor{backend: backend, completer: completer, providers: providers, setupErr: setupErr}
}

func (i *Interactor) Backend() string {
	return i.backend
}

func (i *Interactor) List(ctx context.Context) ([]dto.ProviderInfo, error) {
	if i.providers == nil {
		return []dto.ProviderInfo{}, nil
	}
	return i.providers.List(ctx)
}

func (i *Interactor) Doctor(ctx context.Context) ([]dto.DoctorResult, error) {
	switch i.backend {
	case domain.BackendPlugin:
		if i.providers == nil {
			return []dto.DoctorResult{{Name: domain.BackendPlugin, Error: "plugin host is not configured"}}, nil
		}
		return i.providers.Doctor(ctx)
	case domain.BackendNone:
		return []dto.DoctorResult{{Name: domain.BackendNone, Error: "inference disabled; predictions come from the rule engine"}}, nil
	default:
		result := dto.DoctorResult{Name: i.backend, BinaryReachable: true, ChecksumValid: true}
		switch {
		case i.setupErr != nil:
			result.Error = i.setupErr.Error()
		case i.completer == nil:
			result.Error = "backend is not configured"
		default:
			result.LifecycleOK = true
		}
		return []dto.DoctorResult{result}, nil
	}
}

func (i *Interactor) Complete(ctx context.Context, input dto.CompleteInput) (dto.CompleteOutput, error) {
	gateway := i.completer
	if gateway == nil {
		gateway = service.NewGateway(i.backend, nil, nil, nil)
	}
	completion, err := gateway.Complete(ctx, domain.CompletionRequest{Prompt: input.Prompt, Model: input.Model, MaxTokens: input.MaxTokens})
	if err != nil {
		return dto.CompleteOutput{}, err
	}
	return dto.CompleteOutput{Text: completion.Text, Model: completion.Model, TokensUsed: completion.TokensUsed, Cached: completion.Cached}, nil
}
