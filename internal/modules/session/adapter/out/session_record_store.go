package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pathwise/internal/modules/session/domain"
	sessionout "pathwise/internal/modules/session/port/out"
	"pathwise/internal/platform/slug"
)

// YAMLSessionStore writes one YAML record per ended session under
// dataDir/.pathwise/sessions/YYYY/MM/DD.
type YAMLSessionStore struct {
	dataDir string
}

func NewYAMLSessionStore(dataDir string) sessionout.SessionStore {
	return &YAMLSessionStore{dataDir: dataDir}
}

type sessionRecord struct {
	SchemaVersion int    `yaml:"schema_version"`
	ID            string `yaml:"id"`
	Label         string `yaml:"label,omitempty"`
	Goal          string `yaml:"goal,omitempty"`
	StartedAt     string `yaml:"started_at"`
	EndedAt       string `yaml:"ended_at"`
	DurationMin   int    `yaml:"duration_minutes"`
	Outcome       string `yaml:"outcome"`
	JourneyID     string `yaml:"closed_journey,omitempty"`
	DominantArea  string `yaml:"dominant_area,omitempty"`
	ActionCount   int    `yaml:"action_count"`
	JourneyCount  int    `yaml:"journey_count"`
}

func (s *YAMLSessionStore) Save(_ context.Context, session domain.Session) (string, error) {
	date := session.StartedAt
	dir := filepath.Join(s.dataDir, ".pathwise", "sessions", date.Format("2006"), date.Format("01"), date.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	name := slug.Make(session.Label)
	if name == "" {
		name = "session"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", date.Format("150405"), name))

	payload, err := yaml.Marshal(sessionRecord{
		SchemaVersion: domain.SchemaVersion,
		ID:            session.ID,
		Label:         session.Label,
		Goal:          session.Goal,
		StartedAt:     session.StartedAt.Format(time.RFC3339),
		EndedAt:       session.EndedAt.Format(time.RFC3339),
		DurationMin:   session.DurationMin,
		Outcome:       session.Outcome,
		JourneyID:     session.JourneyID,
		DominantArea:  session.DominantArea,
		ActionCount:   session.ActionCount,
		JourneyCount:  session.JourneyCount,
	})
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write session record: %w", err)
	}
	return path, nil
}
