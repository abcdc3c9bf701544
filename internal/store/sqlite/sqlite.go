package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

const schema = `
CREATE TABLE IF NOT EXISTS journey_records (
	user_id              TEXT PRIMARY KEY,
	stage                INTEGER NOT NULL DEFAULT 0,
	stage_entered_at     TEXT NOT NULL,
	stability_start      TEXT,
	stability_days       INTEGER NOT NULL DEFAULT 0,
	stability_counted_on TEXT NOT NULL DEFAULT '',
	interruption_count   INTEGER NOT NULL DEFAULT 0,
	transition_count     INTEGER NOT NULL DEFAULT 0,
	agency_mode          TEXT NOT NULL DEFAULT 'passive',
	agency_score         REAL NOT NULL DEFAULT 0,
	agency_signals       TEXT,
	coach_override       TEXT,
	trust_score          REAL NOT NULL DEFAULT 0,
	trust_signals        TEXT,
	graduated_at         TEXT,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transition_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	from_stage INTEGER NOT NULL,
	to_stage   INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL DEFAULT '',
	evidence   TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transition_user ON transition_log(user_id, created_at);

CREATE TABLE IF NOT EXISTS signal_log (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	scorer       TEXT NOT NULL,
	name         TEXT NOT NULL,
	raw          REAL NOT NULL,
	weight       REAL NOT NULL,
	contribution REAL NOT NULL,
	aggregate    REAL NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signal_user ON signal_log(user_id, created_at);

CREATE TABLE IF NOT EXISTS cache_snapshots (
	user_id      TEXT PRIMARY KEY,
	stage        INTEGER NOT NULL,
	agency_mode  TEXT NOT NULL,
	agency_score REAL NOT NULL,
	trust_score  REAL NOT NULL,
	synced_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_runs (
	job    TEXT NOT NULL,
	window TEXT NOT NULL,
	ran_at TEXT NOT NULL,
	PRIMARY KEY (job, window)
);
`

// Store is the SQLite-backed journey.Store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ journey.Store = (*Store)(nil)

// New opens (or creates) the database at path and applies the schema.
// logger may be nil.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and the Mutate
	// contract needs transactions to serialize rather than contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetOrCreate returns the user's record, inserting the default on first
// access.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*journey.Record, error) {
	rec, err := s.getRecord(ctx, s.db, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, journey.ErrNotTracked) {
		return nil, err
	}

	rec = journey.NewRecord(userID, time.Now())
	if err := s.insertRecord(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the user's record or journey.ErrNotTracked.
func (s *Store) Get(ctx context.Context, userID string) (*journey.Record, error) {
	return s.getRecord(ctx, s.db, userID)
}

// sqliteUOW binds the audit writes to the mutation's transaction.
type sqliteUOW struct {
	ctx context.Context
	tx  *sql.Tx
}

func (u *sqliteUOW) AppendTransition(t *journey.Transition) error {
	evidence, err := marshalMap(t.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = u.tx.ExecContext(u.ctx, `
		INSERT INTO transition_log (id, user_id, from_stage, to_stage, kind, reason, actor, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, int(t.From), int(t.To), string(t.Kind), t.Reason, t.Actor, evidence, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

func (u *sqliteUOW) AppendSignals(entries []*journey.SignalEntry) error {
	for _, e := range entries {
		_, err := u.tx.ExecContext(u.ctx, `
			INSERT INTO signal_log (id, user_id, scorer, name, raw, weight, contribution, aggregate, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.UserID, string(e.Scorer), e.Name, e.Raw, e.Weight, e.Contribution, e.Aggregate, e.Source, formatTime(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append signal %s: %w", e.Name, err)
		}
	}
	return nil
}

func (u *sqliteUOW) UpsertSnapshot(snap *journey.Snapshot) error {
	_, err := u.tx.ExecContext(u.ctx, `
		INSERT INTO cache_snapshots (user_id, stage, agency_mode, agency_score, trust_score, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stage = excluded.stage,
			agency_mode = excluded.agency_mode,
			agency_score = excluded.agency_score,
			trust_score = excluded.trust_score,
			synced_at = excluded.synced_at`,
		snap.UserID, int(snap.Stage), string(snap.AgencyMode), snap.AgencyScore, snap.TrustScore, formatTime(snap.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Mutate runs the read-modify-write cycle and any staged audit writes in
// a single transaction.
func (s *Store) Mutate(ctx context.Context, userID string, fn journey.MutateFunc) (*journey.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutation: %w", err)
	}
	defer tx.Rollback()

	rec, err := s.getRecord(ctx, tx, userID)
	if errors.Is(err, journey.ErrNotTracked) {
		rec = journey.NewRecord(userID, time.Now())
		if err := s.insertRecord(ctx, tx, rec); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := fn(rec, &sqliteUOW{ctx: ctx, tx: tx}); err != nil {
		return nil, err
	}

	rec.UpdatedAt = time.Now()
	if err := s.updateRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutation: %w", err)
	}
	return rec, nil
}

// Snapshot returns the user's cache snapshot or journey.ErrNotTracked.
func (s *Store) Snapshot(ctx context.Context, userID string) (*journey.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, stage, agency_mode, agency_score, trust_score, synced_at
		FROM cache_snapshots WHERE user_id = ?`, userID)

	var snap journey.Snapshot
	var stage int
	var mode, syncedAt string
	err := row.Scan(&snap.UserID, &stage, &mode, &snap.AgencyScore, &snap.TrustScore, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, journey.ErrNotTracked
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap.Stage = journey.Stage(stage)
	snap.AgencyMode = journey.AgencyMode(mode)
	if snap.SyncedAt, err = parseTime(syncedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Transitions returns the user's transition log, newest first.
func (s *Store) Transitions(ctx context.Context, userID string, limit int) ([]*journey.Transition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, from_stage, to_stage, kind, reason, actor, evidence, created_at
		FROM transition_log WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []*journey.Transition
	for rows.Next() {
		var t journey.Transition
		var from, to int
		var kind, createdAt string
		var evidence sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &from, &to, &kind, &t.Reason, &t.Actor, &evidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = journey.Stage(from)
		t.To = journey.Stage(to)
		t.Kind = journey.TransitionKind(kind)
		if t.Evidence, err = unmarshalMap(evidence); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SignalEntries returns the user's signal log, newest first.
func (s *Store) SignalEntries(ctx context.Context, userID string, limit int) ([]*journey.SignalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, scorer, name, raw, weight, contribution, aggregate, source, created_at
		FROM signal_log WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*journey.SignalEntry
	for rows.Next() {
		var e journey.SignalEntry
		var scorer, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &scorer, &e.Name, &e.Raw, &e.Weight, &e.Contribution, &e.Aggregate, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		e.Scorer = journey.ScorerName(scorer)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Users pages through tracked user IDs in stable order.
func (s *Store) Users(ctx context.Context, offset, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM journey_records ORDER BY user_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClaimJobWindow claims a (job, window) pair; false means already claimed.
func (s *Store) ClaimJobWindow(ctx context.Context, job, window string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO job_runs (job, window, ran_at) VALUES (?, ?, ?)`,
		job, window, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("claim job window: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job window: %w", err)
	}
	return n == 1, nil
}

func (s *Store) getRecord(ctx context.Context, q querier, userID string) (*journey.Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, stage, stage_entered_at, stability_start, stability_days,
			stability_counted_on, interruption_count, transition_count,
			agency_mode, agency_score, agency_signals, coach_override,
			trust_score, trust_signals, graduated_at, created_at, updated_at
		FROM journey_records WHERE user_id = ?`, userID)

	var rec journey.Record
	var stage int
	var mode, enteredAt, createdAt, updatedAt string
	var stabilityStart, agencySignals, coachOverride, trustSignals, graduatedAt sql.NullString

	err := row.Scan(
		&rec.UserID, &stage, &enteredAt, &stabilityStart, &rec.StabilityDays,
		&rec.StabilityCountedOn, &rec.InterruptionCount, &rec.TransitionCount,
		&mode, &rec.AgencyScore, &agencySignals, &coachOverride,
		&rec.TrustScore, &trustSignals, &graduatedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, journey.ErrNotTracked
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	rec.Stage = journey.Stage(stage)
	rec.AgencyMode = journey.AgencyMode(mode)
	if rec.StageEnteredAt, err = parseTime(enteredAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if rec.StabilityStart, err = parseNullTime(stabilityStart); err != nil {
		return nil, err
	}
	if rec.GraduatedAt, err = parseNullTime(graduatedAt); err != nil {
		return nil, err
	}
	if rec.AgencySignals, err = unmarshalSignals(agencySignals); err != nil {
		return nil, err
	}
	if rec.TrustSignals, err = unmarshalSignals(trustSignals); err != nil {
		return nil, err
	}
	if coachOverride.Valid {
		o := journey.AgencyMode(coachOverride.String)
		rec.CoachOverride = &o
	}
	return &rec, nil
}

func (s *Store) insertRecord(ctx context.Context, q querier, rec *journey.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO journey_records (user_id, stage, stage_entered_at, stability_start,
			stability_days, stability_counted_on, interruption_count, transition_count,
			agency_mode, agency_score, agency_signals, coach_override,
			trust_score, trust_signals, graduated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) updateRecord(ctx context.Context, q querier, rec *journey.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	// Shift user_id from first positional arg to the WHERE clause.
	args = append(args[1:], rec.UserID)
	_, err = q.ExecContext(ctx, `
		UPDATE journey_records SET stage = ?, stage_entered_at = ?, stability_start = ?,
			stability_days = ?, stability_counted_on = ?, interruption_count = ?,
			transition_count = ?, agency_mode = ?, agency_score = ?, agency_signals = ?,
			coach_override = ?, trust_score = ?, trust_signals = ?, graduated_at = ?,
			created_at = ?, updated_at = ?
		WHERE user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func recordArgs(rec *journey.Record) ([]any, error) {
	agencySignals, err := marshalSignals(rec.AgencySignals)
	if err != nil {
		return nil, fmt.Errorf("marshal agency signals: %w", err)
	}
	trustSignals, err := marshalSignals(rec.TrustSignals)
	if err != nil {
		return nil, fmt.Errorf("marshal trust signals: %w", err)
	}

	var coachOverride any
	if rec.CoachOverride != nil {
		coachOverride = string(*rec.CoachOverride)
	}

	return []any{
		rec.UserID, int(rec.Stage), formatTime(rec.StageEnteredAt), formatNullTime(rec.StabilityStart),
		rec.StabilityDays, rec.StabilityCountedOn, rec.InterruptionCount, rec.TransitionCount,
		string(rec.AgencyMode), rec.AgencyScore, agencySignals, coachOverride,
		rec.TrustScore, trustSignals, formatNullTime(rec.GraduatedAt),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalSignals(m map[string]float64) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalSignals(s sql.NullString) (map[string]float64, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return m, nil
}

func marshalMap(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalMap(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return m, nil
}
