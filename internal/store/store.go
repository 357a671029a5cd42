// Package store persists completed runs and their derived events in sqlite.
// The schema is managed by golang-migrate from the embedded migrations
// directory; opening a store always migrates to the latest version.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/portwatch-data/portwatch/internal/monitoring"
	"github.com/portwatch-data/portwatch/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord is one stored analysis run.
type RunRecord struct {
	ID          string    `json:"run_id"`
	Source      string    `json:"source"`
	AppVersion  string    `json:"app_version"`
	GeneratedAt time.Time `json:"generated_at"`
	FrameCount  int       `json:"frame_count"`
	OverallPass bool      `json:"overall_pass"`
}

// ErrRunNotFound is returned when a run id has no stored record.
var ErrRunNotFound = errors.New("store: run not found")

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	// Closing m would close the shared DB handle; it is left to the GC.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration up failed: %w", err)
	}
	return nil
}

// SaveRun stores the run header and every derived event in one transaction.
// Saving an already-stored run id fails.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, res session.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, app_version, generated_at, frame_count, overall_pass)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.AppVersion, run.GeneratedAt.UTC(), run.FrameCount, boolToInt(run.OverallPass))
	if err != nil {
		return fmt.Errorf("store: insert run %s: %w", run.ID, err)
	}

	for _, sess := range res.Sessions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (run_id, session_id, session_type, start_ts_s, end_ts_s, duration_s, start_frame_idx, end_frame_idx)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, sess.ID, string(sess.Type), sess.StartTs, sess.EndTs, sess.Duration, sess.StartFrame, sess.EndFrame)
		if err != nil {
			return fmt.Errorf("store: insert session %d: %w", sess.ID, err)
		}
	}

	for _, iv := range res.CrewIntervals {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO crew_intervals (run_id, session_id, interval_id, deviation_type, start_ts_s, end_ts_s, duration_s)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, iv.SessionID, iv.ID, string(iv.Type), iv.StartTs, iv.EndTs, iv.Duration)
		if err != nil {
			return fmt.Errorf("store: insert crew interval %d/%d: %w", iv.SessionID, iv.ID, err)
		}
	}

	for _, alarm := range res.Alarms {
		var trigger any
		if alarm.TriggerTs != nil {
			trigger = *alarm.TriggerTs
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO alarms (run_id, alarm_id, alarm_type, start_ts_s, end_ts_s, trigger_ts_s, session_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, alarm.ID, string(alarm.Type), alarm.StartTs, alarm.EndTs, trigger, alarm.SessionID)
		if err != nil {
			return fmt.Errorf("store: insert alarm %d: %w", alarm.ID, err)
		}
	}

	for _, ev := range res.PeopleCountChanges {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO people_count_changes (run_id, from_count, to_count, change_ts_s, confirmed_ts_s, in_session)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, ev.FromCount, ev.ToCount, ev.ChangeTs, ev.ConfirmedTs, boolToInt(ev.InSession))
		if err != nil {
			return fmt.Errorf("store: insert people change at %f: %w", ev.ChangeTs, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run %s: %w", run.ID, err)
	}
	monitoring.Logf("store: saved run %s: %d sessions, %d alarms", run.ID, len(res.Sessions), len(res.Alarms))
	return nil
}

// GetRun fetches one run header.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, source, app_version, generated_at, frame_count, overall_pass
		 FROM runs WHERE run_id = ?`, id)
	var run RunRecord
	var pass int
	err := row.Scan(&run.ID, &run.Source, &run.AppVersion, &run.GeneratedAt, &run.FrameCount, &pass)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("store: get run %s: %w", id, err)
	}
	run.OverallPass = pass != 0
	return run, nil
}

// ListRuns returns all run headers, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, app_version, generated_at, frame_count, overall_pass
		 FROM runs ORDER BY generated_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var pass int
		if err := rows.Scan(&run.ID, &run.Source, &run.AppVersion, &run.GeneratedAt, &run.FrameCount, &pass); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		run.OverallPass = pass != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Sessions returns a run's sessions in id order.
func (s *Store) Sessions(ctx context.Context, runID string) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, session_type, start_ts_s, end_ts_s, duration_s, start_frame_idx, end_frame_idx
		 FROM sessions WHERE run_id = ? ORDER BY session_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: sessions for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var sess session.Session
		var typ string
		if err := rows.Scan(&sess.ID, &typ, &sess.StartTs, &sess.EndTs, &sess.Duration, &sess.StartFrame, &sess.EndFrame); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sess.Type = session.SessionType(typ)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CrewIntervals returns a run's crew deviations in session, interval order.
func (s *Store) CrewIntervals(ctx context.Context, runID string) ([]session.CrewInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, interval_id, deviation_type, start_ts_s, end_ts_s, duration_s
		 FROM crew_intervals WHERE run_id = ? ORDER BY session_id, interval_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: crew intervals for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []session.CrewInterval
	for rows.Next() {
		var iv session.CrewInterval
		var typ string
		if err := rows.Scan(&iv.SessionID, &iv.ID, &typ, &iv.StartTs, &iv.EndTs, &iv.Duration); err != nil {
			return nil, fmt.Errorf("store: scan crew interval: %w", err)
		}
		iv.Type = session.DeviationType(typ)
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Alarms returns a run's alarms in id order.
func (s *Store) Alarms(ctx context.Context, runID string) ([]session.Alarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alarm_id, alarm_type, start_ts_s, end_ts_s, trigger_ts_s, session_id
		 FROM alarms WHERE run_id = ? ORDER BY alarm_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: alarms for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []session.Alarm
	for rows.Next() {
		var alarm session.Alarm
		var typ string
		var trigger sql.NullFloat64
		if err := rows.Scan(&alarm.ID, &typ, &alarm.StartTs, &alarm.EndTs, &trigger, &alarm.SessionID); err != nil {
			return nil, fmt.Errorf("store: scan alarm: %w", err)
		}
		alarm.Type = session.AlarmType(typ)
		if trigger.Valid {
			v := trigger.Float64
			alarm.TriggerTs = &v
		}
		out = append(out, alarm)
	}
	return out, rows.Err()
}

// PeopleCountChanges returns a run's confirmed count transitions in time
// order.
func (s *Store) PeopleCountChanges(ctx context.Context, runID string) ([]session.PeopleCountChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_count, to_count, change_ts_s, confirmed_ts_s, in_session
		 FROM people_count_changes WHERE run_id = ? ORDER BY change_ts_s`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: people changes for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []session.PeopleCountChangeEvent
	for rows.Next() {
		var ev session.PeopleCountChangeEvent
		var inSession int
		if err := rows.Scan(&ev.FromCount, &ev.ToCount, &ev.ChangeTs, &ev.ConfirmedTs, &inSession); err != nil {
			return nil, fmt.Errorf("store: scan people change: %w", err)
		}
		ev.InSession = inSession != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
