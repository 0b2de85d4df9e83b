package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-keywords/internal/config"
	_ "modernc.org/sqlite"
)

// Kind names a session timeline entry.
type Kind string

const (
	KindSessionStarted   Kind = "session.started"
	KindTranscriptFrozen Kind = "transcript.frozen"
	KindSummaryProduced  Kind = "summary.produced"
)

// Event is one recorded timeline entry of a recording cycle.
type Event struct {
	ID        int64
	SessionID string
	CycleID   string
	TraceID   string
	Kind      Kind
	Payload   []byte
	CreatedAt time.Time
}

// Store keeps recording-cycle timelines in SQLite. In ephemeral mode every
// method is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    trace_id TEXT,
    kind TEXT NOT NULL,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(cycle_id) REFERENCES cycles(cycle_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_cycle_created ON events(cycle_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cycles_session ON cycles(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginCycle registers a recording cycle of a session.
func (s *Store) BeginCycle(ctx context.Context, sessionID, cycleID string) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles(cycle_id, session_id, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(cycle_id) DO NOTHING`,
		cycleID, sessionID, s.clock().UTC())
	return err
}

// Append writes evt, filling CreatedAt when unset.
func (s *Store) Append(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(cycle_id, session_id, trace_id, kind, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.CycleID, evt.SessionID, evt.TraceID, string(evt.Kind), evt.Payload, evt.CreatedAt)
	return err
}

// AppendJSON records v as the JSON payload of a new event.
func (s *Store) AppendJSON(ctx context.Context, sessionID, cycleID, traceID string, kind Kind, v any) error {
	if s.disabled() {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return s.Append(ctx, Event{
		SessionID: sessionID,
		CycleID:   cycleID,
		TraceID:   traceID,
		Kind:      kind,
		Payload:   payload,
	})
}

// ListCycleEvents returns up to limit events of a cycle in time order.
func (s *Store) ListCycleEvents(ctx context.Context, cycleID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, session_id, trace_id, kind, payload, created_at
		 FROM events WHERE cycle_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, cycleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		var traceID sql.NullString
		var created any
		if err := rows.Scan(&e.ID, &e.CycleID, &e.SessionID, &traceID, &kind, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.TraceID = traceID.String
		e.CreatedAt = parseTimestamp(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes cycles older than the retention window and trims to the
// newest MaxSessions cycles.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE cycle_id IN (
			SELECT cycle_id FROM cycles ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	case []byte:
		return parseTimestamp(string(t))
	}
	return time.Time{}
}
