package out

import (
	"context"

	"pathwise/internal/modules/prediction/domain"
)

// InferenceClient sends a rendered prompt to a model. Implementations must
// return once ctx is done.
type InferenceClient interface {
	Infer(ctx context.Context, prompt string) (domain.Completion, error)
}

// RequestSource assembles the prediction request for a session from the
// action log and the stored health profile.
type RequestSource interface {
	BuildRequest(ctx context.Context, sessionID string) (domain.PredictionRequest, error)
}
