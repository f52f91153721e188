package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pathwise/internal/modules/journey/domain"
	journeyout "pathwise/internal/modules/journey/port/out"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/tx"

	_ "modernc.org/sqlite"
)

var _ journeyout.LogStore = (*SQLiteLogStore)(nil)

// SQLiteLogStore keeps the action log on a single connection; statements
// issued inside tx.Manager.Within run on the context's transaction.
type SQLiteLogStore struct {
	db *sql.DB
}

func NewSQLiteLogStore(dbPath string) (*SQLiteLogStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteLogStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteLogStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteLogStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteLogStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS actions (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  session_id TEXT NOT NULL,
  feature_area TEXT NOT NULL,
  action_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  source_component TEXT NOT NULL,
  ts INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  previous_action_id TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_session_ts ON actions(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS journeys (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  type TEXT NOT NULL,
  dominant_area TEXT NOT NULL,
  areas TEXT NOT NULL,
  health_context TEXT NOT NULL,
  outcome TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  last_action_at INTEGER NOT NULL,
  ended_at INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_journeys_session_outcome ON journeys(session_id, outcome)`,
		`CREATE TABLE IF NOT EXISTS journey_actions (
  journey_id TEXT NOT NULL,
  action_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  PRIMARY KEY (journey_id, action_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_journey_actions_action ON journey_actions(action_id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create log schema: %w", err)
		}
	}
	return nil
}

const actionColumns = `id, session_id, feature_area, action_type, payload, source_component, ts, duration_ms, previous_action_id`

func (s *SQLiteLogStore) InsertAction(ctx context.Context, action domain.ActionEvent) error {
	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = tx.From(ctx, s.db).ExecContext(ctx,
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID,
		action.SessionID,
		string(action.FeatureArea),
		string(action.ActionType),
		string(payload),
		action.SourceComponent,
		action.Timestamp.UTC().UnixNano(),
		action.DurationMS,
		action.PreviousActionID,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *SQLiteLogStore) ListActions(ctx context.Context, sessionID string, limit int) ([]domain.ActionEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := tx.From(ctx, s.db).QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE (? = '' OR session_id = ?) ORDER BY seq DESC LIMIT ?`,
		sessionID, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	actions, err := scanActions(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	return actions, nil
}

func (s *SQLiteLogStore) ListActionsSince(ctx context.Context, sessionID string, since time.Time) ([]domain.ActionEvent, error) {
	rows, err := tx.From(ctx, s.db).QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE (? = '' OR session_id = ?) AND ts >= ? ORDER BY seq ASC`,
		sessionID, sessionID, since.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent actions: %w", err)
	}
	return scanActions(rows)
}

func (s *SQLiteLogStore) LastAction(ctx context.Context, sessionID string) (domain.ActionEvent, bool, error) {
	rows, err := tx.From(ctx, s.db).QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		sessionID,
	)
	if err != nil {
		return domain.ActionEvent{}, false, fmt.Errorf("query last action: %w", err)
	}
	actions, err := scanActions(rows)
	if err != nil {
		return domain.ActionEvent{}, false, err
	}
	if len(actions) == 0 {
		return domain.ActionEvent{}, false, nil
	}
	return actions[0], true, nil
}

func scanActions(rows *sql.Rows) ([]domain.ActionEvent, error) {
	defer rows.Close()
	actions := []domain.ActionEvent{}
	for rows.Next() {
		var (
			action  domain.ActionEvent
			area    string
			kind    string
			payload string
			ts      int64
		)
		if err := rows.Scan(&action.ID, &action.SessionID, &area, &kind, &payload, &action.SourceComponent, &ts, &action.DurationMS, &action.PreviousActionID); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		action.FeatureArea = domain.FeatureArea(area)
		action.ActionType = domain.ActionType(kind)
		action.Timestamp = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(payload), &action.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", action.ID, err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *SQLiteLogStore) SaveJourney(ctx context.Context, journey domain.Journey) error {
	areas, err := json.Marshal(journey.Areas)
	if err != nil {
		return fmt.Errorf("marshal journey areas: %w", err)
	}
	healthContext, err := json.Marshal(journey.HealthContext)
	if err != nil {
		return fmt.Errorf("marshal health context: %w", err)
	}
	const stmt = `
INSERT INTO journeys (id, session_id, type, dominant_area, areas, health_context, outcome, started_at, last_action_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  type=excluded.type,
  dominant_area=excluded.dominant_area,
  areas=excluded.areas,
  health_context=excluded.health_context,
  outcome=excluded.outcome,
  last_action_at=excluded.last_action_at,
  ended_at=excluded.ended_at;
`
	_, err = tx.From(ctx, s.db).ExecContext(ctx, stmt,
		journey.ID,
		journey.SessionID,
		string(journey.Type),
		string(journey.DominantArea),
		string(areas),
		string(healthContext),
		string(journey.Outcome),
		unixNano(journey.StartedAt),
		unixNano(journey.LastActionAt),
		unixNano(journey.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert journey: %w", err)
	}
	return nil
}

func (s *SQLiteLogStore) AppendJourneyAction(ctx context.Context, journeyID, actionID string, position int) error {
	_, err := tx.From(ctx, s.db).ExecContext(ctx,
		`INSERT INTO journey_actions (journey_id, action_id, position) VALUES (?, ?, ?)`,
		journeyID, actionID, position,
	)
	if err != nil {
		return fmt.Errorf("insert journey action: %w", err)
	}
	return nil
}

const journeyColumns = `id, session_id, type, dominant_area, areas, health_context, outcome, started_at, last_action_at, ended_at`

func (s *SQLiteLogStore) OpenJourney(ctx context.Context, sessionID string) (domain.Journey, bool, error) {
	row := tx.From(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE session_id = ? AND outcome = ? ORDER BY started_at DESC LIMIT 1`,
		sessionID, string(domain.OutcomeOpen),
	)
	journey, err := s.loadJourney(ctx, row)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Journey{}, false, nil
	}
	if err != nil {
		return domain.Journey{}, false, err
	}
	return journey, true, nil
}

func (s *SQLiteLogStore) GetJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	row := tx.From(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE id = ?`,
		journeyID,
	)
	journey, err := s.loadJourney(ctx, row)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Journey{}, fmt.Errorf("journey %s: %w", journeyID, apperrors.ErrNotFound)
	}
	return journey, err
}

func (s *SQLiteLogStore) loadJourney(ctx context.Context, row *sql.Row) (domain.Journey, error) {
	var (
		journey                      domain.Journey
		kind, area, outcome          string
		areas, healthContext         string
		startedAt, lastAt, endedAtNs int64
	)
	err := row.Scan(&journey.ID, &journey.SessionID, &kind, &area, &areas, &healthContext, &outcome, &startedAt, &lastAt, &endedAtNs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Journey{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Journey{}, fmt.Errorf("scan journey: %w", err)
	}
	journey.Type = domain.JourneyType(kind)
	journey.DominantArea = domain.FeatureArea(area)
	journey.Outcome = domain.Outcome(outcome)
	journey.StartedAt = fromUnixNano(startedAt)
	journey.LastActionAt = fromUnixNano(lastAt)
	journey.EndedAt = fromUnixNano(endedAtNs)
	if err := json.Unmarshal([]byte(areas), &journey.Areas); err != nil {
		return domain.Journey{}, fmt.Errorf("decode journey areas: %w", err)
	}
	if err := json.Unmarshal([]byte(healthContext), &journey.HealthContext); err != nil {
		return domain.Journey{}, fmt.Errorf("decode health context: %w", err)
	}
	if journey.HealthContext == nil {
		journey.HealthContext = map[string][]string{}
	}

	rows, err := tx.From(ctx, s.db).QueryContext(ctx,
		`SELECT action_id FROM journey_actions WHERE journey_id = ? ORDER BY position ASC`,
		journey.ID,
	)
	if err != nil {
		return domain.Journey{}, fmt.Errorf("query journey actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var actionID string
		if err := rows.Scan(&actionID); err != nil {
			return domain.Journey{}, fmt.Errorf("scan journey action: %w", err)
		}
		journey.ActionIDs = append(journey.ActionIDs, actionID)
	}
	if err := rows.Err(); err != nil {
		return domain.Journey{}, fmt.Errorf("iterate journey actions: %w", err)
	}
	return journey, nil
}

func (s *SQLiteLogStore) TrimActions(ctx context.Context, limit int) (int, error) {
	q := tx.From(ctx, s.db)
	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	if total <= limit {
		return 0, nil
	}

	const trim = `
DELETE FROM actions WHERE seq IN (
  SELECT a.seq FROM actions a
  WHERE a.id NOT IN (
    SELECT ja.action_id FROM journey_actions ja
    JOIN journeys j ON j.id = ja.journey_id
    WHERE j.outcome = ?
  )
  ORDER BY a.seq ASC
  LIMIT ?
)`
	res, err := q.ExecContext(ctx, trim, string(domain.OutcomeOpen), total-limit)
	if err != nil {
		return 0, fmt.Errorf("trim actions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim actions: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM journey_actions WHERE action_id NOT IN (SELECT id FROM actions)`); err != nil {
		return 0, fmt.Errorf("trim journey members: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM journeys WHERE outcome != ? AND id NOT IN (SELECT DISTINCT journey_id FROM journey_actions)`,
		string(domain.OutcomeOpen),
	); err != nil {
		return 0, fmt.Errorf("trim journeys: %w", err)
	}
	return int(removed), nil
}

func (s *SQLiteLogStore) Stats(ctx context.Context, sessionID string) (domain.Stats, error) {
	q := tx.From(ctx, s.db)
	var (
		stats          domain.Stats
		oldest, newest sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(ts), MAX(ts) FROM actions WHERE (? = '' OR session_id = ?)`,
		sessionID, sessionID,
	).Scan(&stats.TotalActions, &oldest, &newest)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("query action stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestActionAt = fromUnixNano(oldest.Int64)
	}
	if newest.Valid {
		stats.NewestActionAt = fromUnixNano(newest.Int64)
	}
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) FROM journeys WHERE (? = '' OR session_id = ?)`,
		string(domain.OutcomeOpen), sessionID, sessionID,
	).Scan(&stats.TotalJourneys, &stats.OpenJourneys)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("query journey stats: %w", err)
	}
	return stats, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}
