package out

import (
	"context"

	"pathwise/internal/modules/inference/domain"
)

type ManifestStore interface {
	Load(ctx context.Context) ([]domain.Manifest, error)
}

type Host interface {
	CheckLifecycle(ctx context.Context, manifest domain.Manifest) error
	GetMetadata(ctx context.Context, manifest domain.Manifest) (domain.Metadata, error)
	Complete(ctx context.Context, manifest domain.Manifest, req domain.CompletionRequest) (domain.Completion, error)
}

// Completer is any backend that turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
}
