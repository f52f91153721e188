package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pathwise/internal/bootstrap"
	"pathwise/internal/httpapi"
	journeydto "pathwise/internal/modules/journey/dto"
	"pathwise/internal/platform/config"
	apperrors "pathwise/internal/platform/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	dataDir    string
	configPath string
	sessionID  string
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "pathwise",
		Short:         "Journey tracking and next-step prediction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data", ".", "data directory")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data>/pathwise.yaml)")
	root.PersistentFlags().StringVar(&flags.sessionID, "session", "", "session id (defaults to the configured or active session)")
	root.PersistentFlags().BoolVar(&flags.asJSON, "json", false, "print JSON")

	root.AddCommand(newTrackCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	root.AddCommand(newJourneyCmd(flags))
	root.AddCommand(newPredictCmd(flags))
	root.AddCommand(newContextCmd(flags))
	root.AddCommand(newSessionCmd(flags))
	root.AddCommand(newInferenceCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newTUICmd(flags))
	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	return config.Load(flags.dataDir, flags.configPath)
}

// withApp builds the app, runs fn and closes the app even when fn fails.
func withApp(flags *rootFlags, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	return runApp(cfg, fn)
}

func runApp(cfg config.Config, fn func(ctx context.Context, app *bootstrap.App) error) (err error) {
	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()
	return fn(context.Background(), app)
}

// resolveSession prefers --session, then the configured id, then the active session.
func resolveSession(ctx context.Context, flags *rootFlags, app *bootstrap.App) (string, error) {
	if id := strings.TrimSpace(flags.sessionID); id != "" {
		return id, nil
	}
	if app.Config.SessionID != "" {
		return app.Config.SessionID, nil
	}
	active, err := app.SessionCLI.GetActive(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoActiveSession) {
			return "", fmt.Errorf("no session: pass --session or run `pathwise session start`")
		}
		return "", err
	}
	return active.SessionID, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTrackCmd(flags *rootFlags) *cobra.Command {
	var payload journeydto.Payload
	var component string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "track <area> <action>",
		Short: "Record a user action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				out, err := app.Journeys.Track(ctx, journeydto.TrackInput{
					SessionID:       sessionID,
					FeatureArea:     args[0],
					ActionType:      args[1],
					SourceComponent: component,
					Payload:         payload,
					DurationMS:      duration.Milliseconds(),
				})
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tracked %s journey=%s (%s)\n", out.Action.ID, out.Journey.ID, out.Journey.Type)
				if out.Closed != nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "closed %s as %s\n", out.Closed.ID, out.Closed.Outcome)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payload.EntityType, "entity-type", "", "entity type")
	cmd.Flags().StringVar(&payload.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&payload.EntityName, "entity-name", "", "entity display name")
	cmd.Flags().StringSliceVar(&payload.StructureIDs, "structure", nil, "anatomy structure ids")
	cmd.Flags().StringVar(&payload.SearchQuery, "query", "", "search query")
	cmd.Flags().StringToStringVar(&payload.Metadata, "meta", nil, "metadata key=value pairs")
	cmd.Flags().StringVar(&component, "component", "cli", "source component")
	cmd.Flags().DurationVar(&duration, "duration", 0, "time spent on the action")
	return cmd
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent actions, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				actions, err := app.JourneyCLI.History(ctx, sessionID, limit)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), actions)
				}
				if len(actions) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no actions")
					return nil
				}
				for _, a := range actions {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", a.Timestamp.Format(time.RFC3339), a.FeatureArea, a.ActionType, entityLabel(a.Payload))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum actions")
	return cmd
}

func newJourneyCmd(flags *rootFlags) *cobra.Command {
	journey := &cobra.Command{Use: "journey", Short: "Journey inspection and maintenance"}

	journey.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "Show the open journey",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				j, ok, err := app.JourneyCLI.OpenJourney(ctx, sessionID)
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no open journey")
					return nil
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), j)
				}
				printJourney(cmd.OutOrStdout(), j)
				return nil
			})
		},
	})

	var journeyID, outcome string
	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close a journey (the open one by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID := ""
				if journeyID == "" {
					var err error
					if sessionID, err = resolveSession(ctx, flags, app); err != nil {
						return err
					}
				}
				j, err := app.JourneyCLI.CloseJourney(ctx, sessionID, journeyID, outcome)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), j)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "closed %s as %s\n", j.ID, j.Outcome)
				return nil
			})
		},
	}
	closeCmd.Flags().StringVar(&journeyID, "id", "", "journey id")
	closeCmd.Flags().StringVar(&outcome, "outcome", "resolved", "resolved|abandoned")

	journey.AddCommand(closeCmd)

	journey.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show log totals for the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				stats, err := app.JourneyCLI.Stats(ctx, sessionID)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "actions=%d journeys=%d open=%d\n", stats.TotalActions, stats.TotalJourneys, stats.OpenJourneys)
				return nil
			})
		},
	})

	journey.AddCommand(&cobra.Command{
		Use:   "trim",
		Short: "Drop actions beyond the retention cap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.JourneyCLI.Trim(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d actions\n", out.Removed)
				return nil
			})
		},
	})
	return journey
}

func newPredictCmd(flags *rootFlags) *cobra.Command {
	predict := &cobra.Command{
		Use:   "predict",
		Short: "Run a prediction round now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				out, err := app.PredictionCLI.Predict(ctx, sessionID)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "round %d source=%s confidence=%.2f %dms\n", out.Round, out.Source, out.Intent.Confidence, out.ProcessingMS)
				if out.UsedFallback {
					_, _ = fmt.Fprintf(w, "fallback: %s\n", out.FallbackReason)
				}
				for i, a := range out.Intent.PredictedActions {
					_, _ = fmt.Fprintf(w, "%d. %s %s (%.0f%%)\n", i+1, a.ActionType, a.Target, a.Probability*100)
				}
				for _, s := range out.Intent.SuggestedShortcuts {
					_, _ = fmt.Fprintf(w, "shortcut\t%s\t%s\n", s.Label, s.Target)
				}
				for _, q := range out.Intent.QuickActions {
					_, _ = fmt.Fprintf(w, "quick\t%s\t%s\n", q.Label, q.Operation)
				}
				return nil
			})
		},
	}

	predict.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the prediction engine state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				status, err := app.PredictionCLI.Status(ctx, sessionID)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), status)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "state=%s round=%d\n", status.State, status.Round)
				return nil
			})
		},
	})
	return predict
}

func newContextCmd(flags *rootFlags) *cobra.Command {
	var maxActions, maxAge int
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the journey summary handed to the chat assistant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				sessionID, err := resolveSession(ctx, flags, app)
				if err != nil {
					return err
				}
				out, err := app.JourneyCLI.ChatContext(ctx, sessionID, maxActions, maxAge)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Prompt)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxActions, "max-actions", 25, "actions to summarize")
	cmd.Flags().IntVar(&maxAge, "max-age", 30, "ignore actions older than this many minutes")
	return cmd
}

func newSessionCmd(flags *rootFlags) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Session lifecycle"}

	var label, goal string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a session and make it active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.SessionCLI.Start(ctx, label, goal)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session started: %s at=%s\n", out.SessionID, out.StartedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	start.Flags().StringVar(&label, "label", "", "session label")
	start.Flags().StringVar(&goal, "goal", "", "session goal")

	var outcome string
	end := &cobra.Command{
		Use:   "end",
		Short: "End the active session and close its journey",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.SessionCLI.End(ctx, flags.sessionID, outcome)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session ended: %s duration=%dmin actions=%d journeys=%d outcome=%s record=%s\n",
					out.SessionID, out.DurationMin, out.ActionCount, out.JourneyCount, out.Outcome, out.Path)
				return nil
			})
		},
	}
	end.Flags().StringVar(&outcome, "outcome", "resolved", "outcome for the open journey: resolved|abandoned")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				active, err := app.SessionCLI.GetActive(ctx)
				if errors.Is(err, apperrors.ErrNoActiveSession) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no active session")
					return nil
				}
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), active)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tsince %s\n", active.SessionID, active.Label, active.StartedAt.Format(time.RFC3339))
				return nil
			})
		},
	}

	session.AddCommand(start, end, status)
	return session
}

func newInferenceCmd(flags *rootFlags) *cobra.Command {
	inference := &cobra.Command{Use: "inference", Short: "Inference backend diagnostics"}

	inference.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured inference providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				providers, err := app.InferenceCLI.List(ctx)
				if err != nil {
					return err
				}
				if len(providers) == 0 {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no providers (backend=%s)\n", app.InferenceCLI.Backend())
					return nil
				}
				for _, p := range providers {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tenabled=%t\t%s\n", p.Name, p.Version, p.Enabled, strings.Join(p.Models, ","))
				}
				return nil
			})
		},
	})

	inference.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check the inference backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				results, err := app.InferenceCLI.Doctor(ctx)
				if err != nil {
					return err
				}
				for _, r := range results {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tchecksum=%t\tbinary=%t\tlifecycle=%t", r.Name, r.ChecksumValid, r.BinaryReachable, r.LifecycleOK)
					if r.Error != "" {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\terror=%s", r.Error)
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout())
				}
				return nil
			})
		},
	})
	return inference
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tracking and prediction API over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if flags.sessionID != "" {
				cfg.SessionID = flags.sessionID
			}
			return runApp(cfg, func(ctx context.Context, app *bootstrap.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return httpapi.Serve(ctx, cfg.HTTP.Addr, app.Router(), app.Logger)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newTUICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal UI",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// The alt screen owns the terminal; keep stderr quiet below errors.
			if cfg.Log.Level != "debug" {
				cfg.Log.Level = "error"
			}
			sessionID := flags.sessionID
			if sessionID == "" {
				sessionID = cfg.SessionID
			}
			return runApp(cfg, func(_ context.Context, app *bootstrap.App) error {
				return bootstrap.RunTUI(app, sessionID)
			})
		},
	}
}

func printJourney(w io.Writer, j journeydto.JourneyOutput) {
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d actions\tsince %s\n", j.ID, j.Type, j.DominantArea, len(j.ActionIDs), j.StartedAt.Format(time.RFC3339))
	kinds := make([]string, 0, len(j.HealthContext))
	for kind := range j.HealthContext {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", kind, strings.Join(j.HealthContext[kind], ", "))
	}
}

func entityLabel(p journeydto.Payload) string {
	switch {
	case p.EntityName != "":
		return p.EntityName
	case p.EntityID != "":
		return p.EntityID
	case len(p.StructureIDs) > 0:
		return strings.Join(p.StructureIDs, ",")
	}
	return p.SearchQuery
}
