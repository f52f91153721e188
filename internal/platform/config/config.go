package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPlugin = "plugin"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

type Config struct {
	DataDir   string `yaml:"-"`
	DBPath    string `yaml:"db_path"`
	SessionID string `yaml:"session_id"`

	Journey    JourneyConfig    `yaml:"journey"`
	Prediction PredictionConfig `yaml:"prediction"`
	Inference  InferenceConfig  `yaml:"inference"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
}

type JourneyConfig struct {
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	RetentionCap        int           `yaml:"retention_cap"`
	MaxSummaryEntities  int           `yaml:"max_summary_entities"`
	ProfilePath         string        `yaml:"profile_path"`
}

type PredictionConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	Deadline       time.Duration `yaml:"deadline"`
	ActionWindow   int           `yaml:"action_window"`
	HistoryCap     int           `yaml:"history_cap"`
	BestEffort     bool          `yaml:"best_effort"`
	MaxPredictions int           `yaml:"max_predictions"`
	MaxShortcuts   int           `yaml:"max_shortcuts"`
}

type InferenceConfig struct {
	Backend       string  `yaml:"backend"`
	ManifestPath  string  `yaml:"manifest_path"`
	Provider      string  `yaml:"provider"`
	GeminiModel   string  `yaml:"gemini_model"`
	GeminiAPIKey  string  `yaml:"-"`
	RatePerMinute float64 `yaml:"rate_per_minute"`
	Burst         int     `yaml:"burst"`
	CacheSize     int     `yaml:"cache_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// New returns the defaults rooted at dataDir.
func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	return Config{
		DataDir: dataDir,
		DBPath:  filepath.Join(dataDir, ".pathwise", "pathwise.db"),
		Journey: JourneyConfig{
			InactivityThreshold: 10 * time.Minute,
			RetentionCap:        5000,
			MaxSummaryEntities:  8,
			ProfilePath:         filepath.Join(dataDir, ".pathwise", "profile.json"),
		},
		Prediction: PredictionConfig{
			Debounce:       600 * time.Millisecond,
			Deadline:       4 * time.Second,
			ActionWindow:   12,
			HistoryCap:     100,
			BestEffort:     true,
			MaxPredictions: 5,
			MaxShortcuts:   4,
		},
		Inference: InferenceConfig{
			Backend:       BackendPlugin,
			ManifestPath:  filepath.Join(dataDir, "plugins", "providers.json"),
			GeminiModel:   "gemini-2.0-flash",
			RatePerMinute: 30,
			Burst:         3,
			CacheSize:     256,
		},
		Log:  LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8787"},
	}, nil
}

// Load layers defaults, the optional YAML file, dataDir/.env and PATHWISE_*
// environment variables, in that order.
func Load(dataDir, path string) (Config, error) {
	cfg, err := New(dataDir)
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		path = filepath.Join(dataDir, "pathwise.yaml")
	}
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(dataDir, cfg.DBPath)
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("PATHWISE_SESSION_ID", &c.SessionID)
	setString("PATHWISE_INFERENCE_BACKEND", &c.Inference.Backend)
	setString("PATHWISE_INFERENCE_PROVIDER", &c.Inference.Provider)
	setString("PATHWISE_GEMINI_MODEL", &c.Inference.GeminiModel)
	setString("GEMINI_API_KEY", &c.Inference.GeminiAPIKey)
	setString("PATHWISE_LOG_LEVEL", &c.Log.Level)
	setString("PATHWISE_LOG_FORMAT", &c.Log.Format)
	setString("PATHWISE_HTTP_ADDR", &c.HTTP.Addr)
	if err := setDuration("PATHWISE_DEBOUNCE", &c.Prediction.Debounce); err != nil {
		return err
	}
	if err := setDuration("PATHWISE_DEADLINE", &c.Prediction.Deadline); err != nil {
		return err
	}
	if err := setDuration("PATHWISE_INACTIVITY", &c.Journey.InactivityThreshold); err != nil {
		return err
	}
	return setInt("PATHWISE_RETENTION_CAP", &c.Journey.RetentionCap)
}

func (c Config) Validate() error {
	if c.Prediction.Debounce <= 0 {
		return fmt.Errorf("prediction.debounce must be positive")
	}
	if c.Prediction.Deadline <= 0 {
		return fmt.Errorf("prediction.deadline must be positive")
	}
	if c.Journey.InactivityThreshold <= 0 {
		return fmt.Errorf("journey.inactivity_threshold must be positive")
	}
	if c.Journey.RetentionCap < 1 {
		return fmt.Errorf("journey.retention_cap must be at least 1")
	}
	if c.Prediction.ActionWindow < 1 || c.Prediction.HistoryCap < 1 {
		return fmt.Errorf("prediction.action_window and prediction.history_cap must be at least 1")
	}
	switch c.Inference.Backend {
	case BackendPlugin, BackendGemini, BackendNone:
	default:
		return fmt.Errorf("unknown inference backend %q", c.Inference.Backend)
	}
	return nil
}
