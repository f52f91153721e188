package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	journeyout "pathwise/internal/modules/journey/adapter/out"
	journeydto "pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
	journeyservice "pathwise/internal/modules/journey/service"
	journeyusecase "pathwise/internal/modules/journey/usecase"
	predictionout "pathwise/internal/modules/prediction/adapter/out"
	"pathwise/internal/modules/prediction/domain"
	"pathwise/internal/modules/prediction/dto"
	predictionin "pathwise/internal/modules/prediction/port/in"
	"pathwise/internal/modules/prediction/usecase"
	"pathwise/internal/platform/clock"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/eventbus"
	"pathwise/internal/platform/id"
	"pathwise/internal/platform/tx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type promptRecorder struct {
	mu      sync.Mutex
	prompts []string
	text    string
	err     error
}

func (p *promptRecorder) Infer(_ context.Context, prompt string) (domain.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return domain.Completion{}, p.err
	}
	return domain.Completion{Text: p.text, Model: "stub-model", TokensUsed: 7}, nil
}

func (p *promptRecorder) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

type pipeline struct {
	journeys    journeyin.Usecase
	predictions predictionin.Usecase
	bus         *eventbus.Bus
	clock       *clock.Manual
	ready       chan domain.Prediction
}

func newPipeline(t *testing.T, client *promptRecorder) pipeline {
	t.Helper()
	store, err := journeyout.NewSQLiteLogStore(filepath.Join(t.TempDir(), "pathwise.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := eventbus.New(clk, id.UUID{}, nil, 100)
	svc := journeyservice.NewJourneyService(clk, id.UUID{}, store, tx.NewSQLManager(store.DB()), 10*time.Minute, 5000)
	journeys := journeyusecase.NewInteractor(svc, bus, clk, nil, 8)

	source := predictionout.NewJourneyRequestSource(journeys, clk, predictionout.RequestSourceConfig{HistoryCap: 100, WindowSize: 12, BestEffort: true, MaxPredictions: 5, MaxShortcuts: 4}, nil)
	predictions := usecase.NewInteractor(usecase.Config{Debounce: 600 * time.Millisecond, Deadline: 4 * time.Second}, clk, bus, source, client, nil, nil)

	ready := make(chan domain.Prediction, 8)
	bus.On(eventbus.PredictionReady, func(ev eventbus.Event) {
		ready <- ev.Payload.(domain.Prediction)
	})
	t.Cleanup(func() {
		_ = predictions.Close()
		_ = store.Close()
	})
	return pipeline{journeys: journeys, predictions: predictions, bus: bus, clock: clk, ready: ready}
}

func (p pipeline) track(t *testing.T, area, kind string, payload journeydto.Payload) {
	t.Helper()
	if _, err := p.journeys.Track(context.Background(), journeydto.TrackInput{SessionID: "s1", FeatureArea: area, ActionType: kind, SourceComponent: "test", Payload: payload}); err != nil {
		t.Fatalf("track %s/%s: %v", area, kind, err)
	}
}

func (p pipeline) awaitReady(t *testing.T) domain.Prediction {
	t.Helper()
	select {
	case prediction := <-p.ready:
		return prediction
	case <-time.After(3 * time.Second):
		t.Fatalf("no PREDICTION_READY published")
		return domain.Prediction{}
	}
}

const labAnswer = `{"confidence":0.8,"predictedActions":[{"actionType":"view-trend","target":"ldl","probability":0.8}]}`

func TestTrackedActionsProduceOneDebouncedPrediction(t *testing.T) {
	t.Parallel()
	client := &promptRecorder{text: labAnswer}
	p := newPipeline(t, client)

	p.track(t, "symptom-explorer", "view-symptom", journeydto.Payload{EntityType: "symptom", EntityID: "fatigue"})
	p.clock.Advance(200 * time.Millisecond)
	p.track(t, "lab-explorer", "view-lab", journeydto.Payload{EntityType: "lab", EntityID: "ldl"})
	p.clock.Advance(600 * time.Millisecond)

	prediction := p.awaitReady(t)
	if prediction.Source != domain.SourceLLM || prediction.Round != 1 || prediction.Model != "stub-model" {
		t.Fatalf("unexpected prediction %+v", prediction)
	}
	prompt := client.last()
	for _, want := range []string{"[symptom-explorer] view-symptom", "[lab-explorer] view-lab", "- feature area: lab-explorer", "- visible entity: ldl"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, prompt)
		}
	}

	latest, ok, err := p.predictions.Latest(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("expected a stored prediction, ok=%v err=%v", ok, err)
	}
	if latest.Intent.Confidence != 0.8 || len(latest.Intent.PredictedActions) != 1 || latest.Intent.PredictedActions[0].Target != "ldl" {
		t.Fatalf("unexpected latest intent %+v", latest.Intent)
	}

	status, err := p.predictions.Status(context.Background(), "s1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Round != 1 || status.State != string(domain.StateIdle) || status.Latest == nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPredictNowFallsBackOnMalformedAnswer(t *testing.T) {
	t.Parallel()
	client := &promptRecorder{text: "no json here"}
	p := newPipeline(t, client)
	p.track(t, "lab-explorer", "view-lab", journeydto.Payload{EntityType: "lab", EntityID: "ldl"})

	out, err := p.predictions.PredictNow(context.Background(), dto.PredictInput{SessionID: "s1"})
	if err != nil {
		t.Fatalf("predict now: %v", err)
	}
	if !out.UsedFallback || out.FallbackReason != string(domain.ReasonMalformed) || out.Source != string(domain.SourceFallback) || !out.Immediate {
		t.Fatalf("expected an immediate malformed fallback, got %+v", out)
	}
	if len(out.Intent.QuickActions) != 1 || out.Intent.QuickActions[0].Operation != string(domain.OpCompareLabs) {
		t.Fatalf("expected the lab compare quick action, got %+v", out.Intent.QuickActions)
	}
	<-p.ready

	// The debounce armed by the tracked action is still pending and runs a newer round.
	p.clock.Advance(time.Second)
	if later := p.awaitReady(t); later.Round != out.Round+1 {
		t.Fatalf("expected round %d, got %d", out.Round+1, later.Round)
	}
}

func TestCancelDropsPendingPrediction(t *testing.T) {
	t.Parallel()
	client := &promptRecorder{text: labAnswer}
	p := newPipeline(t, client)
	p.track(t, "lab-explorer", "view-lab", journeydto.Payload{EntityType: "lab", EntityID: "ldl"})
	if err := p.predictions.Cancel(context.Background(), "s1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	p.clock.Advance(time.Second)
	if p.clock.Pending() != 0 {
		t.Fatalf("expected no armed timers after cancel")
	}
	if _, ok, _ := p.predictions.Latest(context.Background(), "s1"); ok {
		t.Fatalf("canceled session must not have a prediction")
	}
	if client.last() != "" {
		t.Fatalf("canceled session must not reach inference")
	}
}

func TestPredictNowRequiresSession(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &promptRecorder{text: labAnswer})
	if _, err := p.predictions.PredictNow(context.Background(), dto.PredictInput{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type brokenSource struct{}

func (brokenSource) BuildRequest(context.Context, string) (domain.PredictionRequest, error) {
	return domain.PredictionRequest{}, apperrors.ErrPersistence
}

func TestPredictNowFallsBackWhenHistoryIsUnavailable(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := eventbus.New(clk, id.UUID{}, nil, 100)
	predictions := usecase.NewInteractor(usecase.Config{Debounce: 600 * time.Millisecond, Deadline: 4 * time.Second}, clk, bus, brokenSource{}, &promptRecorder{text: labAnswer}, nil, nil)
	t.Cleanup(func() { _ = predictions.Close() })

	out, err := predictions.PredictNow(context.Background(), dto.PredictInput{SessionID: "s1"})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !out.UsedFallback || out.FallbackReason != string(domain.ReasonNoContext) {
		t.Fatalf("expected a no-context fallback, got %+v", out)
	}
	status, err := predictions.Status(context.Background(), "s1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.LastFailure != nil {
		t.Fatalf("a fallback round must not record a failure, got %+v", status.LastFailure)
	}
}

func TestPredictNowReportsFailedRound(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := eventbus.New(clk, id.UUID{}, nil, 100)
	cfg := usecase.Config{
		Debounce: 600 * time.Millisecond,
		Deadline: 4 * time.Second,
		Fallback: func(domain.PredictionRequest) domain.InferredIntent { panic("rules exploded") },
	}
	predictions := usecase.NewInteractor(cfg, clk, bus, brokenSource{}, &promptRecorder{text: labAnswer}, nil, nil)
	t.Cleanup(func() { _ = predictions.Close() })

	_, err := predictions.PredictNow(context.Background(), dto.PredictInput{SessionID: "s1"})
	if !errors.Is(err, domain.ErrRoundFailed) {
		t.Fatalf("expected ErrRoundFailed, got %v", err)
	}
	status, err := predictions.Status(context.Background(), "s1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.LastFailure == nil || !strings.Contains(status.LastFailure.Reason, "fallback panicked") {
		t.Fatalf("expected the failure to be recorded, got %+v", status)
	}
}
