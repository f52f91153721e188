package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathwise/internal/httpapi"
	inferenceinadapter "pathwise/internal/modules/inference/adapter/in"
	inferenceoutadapter "pathwise/internal/modules/inference/adapter/out"
	inferencein "pathwise/internal/modules/inference/port/in"
	inferenceout "pathwise/internal/modules/inference/port/out"
	inferenceservice "pathwise/internal/modules/inference/service"
	inferenceusecase "pathwise/internal/modules/inference/usecase"
	journeyinadapter "pathwise/internal/modules/journey/adapter/in"
	journeyoutadapter "pathwise/internal/modules/journey/adapter/out"
	journeyin "pathwise/internal/modules/journey/port/in"
	journeyservice "pathwise/internal/modules/journey/service"
	journeyusecase "pathwise/internal/modules/journey/usecase"
	predictioninadapter "pathwise/internal/modules/prediction/adapter/in"
	predictionoutadapter "pathwise/internal/modules/prediction/adapter/out"
	predictionin "pathwise/internal/modules/prediction/port/in"
	predictionusecase "pathwise/internal/modules/prediction/usecase"
	sessioninadapter "pathwise/internal/modules/session/adapter/in"
	sessionoutadapter "pathwise/internal/modules/session/adapter/out"
	sessionin "pathwise/internal/modules/session/port/in"
	sessionservice "pathwise/internal/modules/session/service"
	sessionusecase "pathwise/internal/modules/session/usecase"
	"pathwise/internal/platform/clock"
	"pathwise/internal/platform/config"
	"pathwise/internal/platform/eventbus"
	"pathwise/internal/platform/id"
	"pathwise/internal/platform/logging"
	"pathwise/internal/platform/telemetry"
	"pathwise/internal/platform/tx"
	"pathwise/internal/ui/adaptive"
	uiapp "pathwise/internal/ui/app"
)

const completionMaxTokens = 1024

type App struct {
	Config config.Config
	Logger *zap.Logger
	Bus    *eventbus.Bus

	Journeys    journeyin.Usecase
	Predictions predictionin.Usecase
	Sessions    sessionin.Usecase

	JourneyCLI    journeyinadapter.CLIHandler
	PredictionCLI predictioninadapter.CLIHandler
	SessionCLI    sessioninadapter.CLIHandler
	InferenceCLI  inferenceinadapter.CLIHandler

	closers []func() error
}

func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(cfg, logger)
}

// NewWithLogger wires every module against one SQLite file and one bus.
func NewWithLogger(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := clock.SystemClock{}
	ids := id.UUID{}
	app := &App{Config: cfg, Logger: logger}

	store, err := journeyoutadapter.NewSQLiteLogStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open action log: %w", err)
	}
	app.closers = append(app.closers, store.Close)

	app.Bus = eventbus.New(clk, ids, logger.Named("bus"), eventbus.DefaultHistoryCap)

	journeySvc := journeyservice.NewJourneyService(clk, ids, store, tx.NewSQLManager(store.DB()), cfg.Journey.InactivityThreshold, cfg.Journey.RetentionCap)
	app.Journeys = journeyusecase.NewInteractor(journeySvc, app.Bus, clk, logger.Named("journey"), cfg.Journey.MaxSummaryEntities)

	inferenceUC := app.buildInference(cfg, logger.Named("inference"))

	source := predictionoutadapter.NewJourneyRequestSource(app.Journeys, clk, predictionoutadapter.RequestSourceConfig{
		HistoryCap:     cfg.Prediction.HistoryCap,
		WindowSize:     cfg.Prediction.ActionWindow,
		BestEffort:     cfg.Prediction.BestEffort,
		MaxPredictions: cfg.Prediction.MaxPredictions,
		MaxShortcuts:   cfg.Prediction.MaxShortcuts,
		ProfilePath:    cfg.Journey.ProfilePath,
	}, logger.Named("prediction"))
	app.Predictions = predictionusecase.NewInteractor(
		predictionusecase.Config{Debounce: cfg.Prediction.Debounce, Deadline: cfg.Prediction.Deadline},
		clk,
		app.Bus,
		source,
		predictionoutadapter.NewInferenceClient(inferenceUC, completionMaxTokens),
		logger.Named("prediction"),
		telemetry.NewPredictionMetrics(),
	)
	app.closers = append(app.closers, app.Predictions.Close)

	app.Sessions = sessionusecase.NewInteractor(
		sessionservice.NewSessionService(clk, ids, sessionoutadapter.NewYAMLSessionStore(cfg.DataDir)),
		app.Journeys,
		sessionoutadapter.NewFileActiveSessionStore(cfg.DataDir),
	)

	app.JourneyCLI = journeyinadapter.NewCLIHandler(app.Journeys)
	app.PredictionCLI = predictioninadapter.NewCLIHandler(app.Predictions)
	app.SessionCLI = sessioninadapter.NewCLIHandler(app.Sessions)
	app.InferenceCLI = inferenceinadapter.NewCLIHandler(inferenceUC)
	return app, nil
}

// buildInference assembles backend, gateway and cache. A backend that cannot
// be built leaves predictions to the rule engine and is reported by doctor.
func (a *App) buildInference(cfg config.Config, logger *zap.Logger) inferencein.Usecase {
	var (
		backend   inferenceout.Completer
		providers *inferenceservice.ProviderService
		setupErr  error
	)
	switch cfg.Inference.Backend {
	case config.BackendPlugin:
		host := inferenceoutadapter.NewGRPCHost(logging.PluginLogger("inference-provider", cfg.Log.Level, os.Stderr))
		a.closers = append(a.closers, func() error { host.Close(); return nil })
		providers = inferenceservice.NewProviderService(
			inferenceoutadapter.NewFileManifestStore(cfg.DataDir, cfg.Inference.ManifestPath),
			host,
			cfg.Inference.Provider,
		)
		backend = providers
	case config.BackendGemini:
		gemini, err := inferenceoutadapter.NewGeminiClient(context.Background(), cfg.Inference.GeminiAPIKey, cfg.Inference.GeminiModel)
		if err != nil {
			setupErr = err
			logger.Warn("gemini backend unavailable", zap.Error(err))
		} else {
			backend = gemini
		}
	}

	var completer inferenceout.Completer
	if cfg.Inference.Backend != config.BackendNone {
		completer = inferenceservice.NewGateway(cfg.Inference.Backend, backend, inferenceservice.NewLimiter(cfg.Inference.RatePerMinute, cfg.Inference.Burst), logger)
		if cfg.Inference.CacheSize > 0 {
			cached, err := inferenceoutadapter.NewCachedClient(completer, cfg.Inference.CacheSize)
			if err != nil {
				logger.Warn("completion cache disabled", zap.Error(err))
			} else {
				completer = cached
			}
		}
	}
	return inferenceusecase.NewInteractor(cfg.Inference.Backend, completer, providers, setupErr)
}

// Router serves the tracking and prediction ports over HTTP.
func (a *App) Router() *gin.Engine {
	return httpapi.NewRouter(httpapi.Deps{
		Journeys:       a.Journeys,
		Predictions:    a.Predictions,
		Sessions:       a.Sessions,
		DefaultSession: a.Config.SessionID,
		AllowedOrigins: a.Config.HTTP.AllowedOrigins,
		Logger:         a.Logger.Named("http"),
	})
}

// Close stops pending rounds, then plugin processes, then the database.
func (a *App) Close() error {
	var errs []error
	for i := 0; i < len(a.closers); i++ {
		if err := a.closers[len(a.closers)-1-i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

func RunTUI(app *App, sessionID string) error {
	state := adaptive.New(app.Bus, "", adaptive.DefaultRecentActions)
	defer state.Close()
	model := uiapp.NewModel(sessionID, app.Journeys, app.PredictionCLI, app.SessionCLI, state)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
