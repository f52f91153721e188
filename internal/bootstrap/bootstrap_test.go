package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pathwise/internal/bootstrap"
	journeydto "pathwise/internal/modules/journey/dto"
	"pathwise/internal/platform/config"
)

func newApp(t *testing.T) *bootstrap.App {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Inference.Backend = config.BackendNone
	app, err := bootstrap.NewWithLogger(cfg, nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestTrackThenPredictFallsBackWithoutBackend(t *testing.T) {
	t.Parallel()
	app := newApp(t)
	ctx := context.Background()

	if _, err := app.JourneyCLI.Track(ctx, "s1", "lab-explorer", "view-lab", journeydto.Payload{EntityType: "lab", EntityID: "ldl"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	out, err := app.PredictionCLI.Predict(ctx, "s1")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !out.UsedFallback || out.Source != "fallback" {
		t.Fatalf("expected a rule-engine prediction, got %+v", out)
	}
	latest, ok, err := app.PredictionCLI.Latest(ctx, "s1")
	// A debounced round may land after PredictNow; it can only be newer.
	if err != nil || !ok || latest.Round < out.Round {
		t.Fatalf("latest mismatch: ok=%v err=%v round=%d", ok, err, latest.Round)
	}
}

func TestDoctorReportsDisabledBackend(t *testing.T) {
	t.Parallel()
	app := newApp(t)
	results, err := app.InferenceCLI.Doctor(context.Background())
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if len(results) != 1 || results[0].Name != "none" {
		t.Fatalf("unexpected doctor results %+v", results)
	}
}

func TestRouterServesHealth(t *testing.T) {
	t.Parallel()
	app := newApp(t)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
