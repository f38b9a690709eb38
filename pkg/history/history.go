// Package history keeps a SQLite log of served classifications.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch is returned when the database was written by a
// different version of this package.
var ErrSchemaMismatch = errors.New("history: database schema version mismatch")

const (
	sqliteBusyCode     = 5
	busyRetryAttempts  = 5
	busyRetryBackoff   = 10 * time.Millisecond
	busyRetryMaxDelay  = 200 * time.Millisecond
	defaultRecentLimit = 20

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Entry is one served classification.
type Entry struct {
	ID            int64                    `json:"id" yaml:"id"`
	RequestID     string                   `json:"request_id" yaml:"request_id"`
	ModelID       string                   `json:"model_id" yaml:"model_id"`
	Label         condition.Class          `json:"label" yaml:"label"`
	Signal        condition.Signal         `json:"signal" yaml:"signal"`
	Confidence    float64                  `json:"confidence" yaml:"confidence"`
	Probabilities []model.ClassProbability `json:"probabilities" yaml:"probabilities"`
	// Source is the uploaded file name or path that was classified.
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewEntry builds an entry for res produced by modelID.
func NewEntry(res *model.Result, modelID, source string) Entry {
	return Entry{
		ModelID:       modelID,
		Label:         res.Label,
		Signal:        res.Signal,
		Confidence:    res.Confidence(),
		Probabilities: res.Probabilities,
		Source:        source,
	}
}

// Store is a classification log. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite db: %w", err)
	}
	// One connection keeps the pragmas below in force for every statement.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: apply pragma %q: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("history: check schema: %w", err)
	}
	if exists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("history: begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("history: create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("history: record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func isBusy(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryBackoff
	var err error
	for attempt := range busyRetryAttempts {
		if err = op(); err == nil {
			return nil
		}
		if !isBusy(err) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxDelay)
	}
	return err
}

// Record appends e to the log. A missing request id or timestamp is filled
// in. The stored entry is returned.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	probs, err := json.Marshal(e.Probabilities)
	if err != nil {
		return e, fmt.Errorf("history: encode probabilities: %w", err)
	}
	err = retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO classifications
			 (request_id, model_id, label, signal, confidence, probabilities, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RequestID, e.ModelID, e.Label.String(), string(e.Signal), e.Confidence,
			string(probs), e.Source, e.CreatedAt.Format(timeLayout))
		if err != nil {
			return err
		}
		e.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return e, fmt.Errorf("history: record: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, model_id, label, signal, confidence, probabilities, source, created_at
		 FROM classifications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                       Entry
			label, signal, probs, t string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ModelID, &label, &signal, &e.Confidence, &probs, &e.Source, &t); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if e.Label, err = condition.Parse(label); err != nil {
			return nil, fmt.Errorf("history: entry %d: %w", e.ID, err)
		}
		e.Signal = condition.Signal(signal)
		if err := json.Unmarshal([]byte(probs), &e.Probabilities); err != nil {
			return nil, fmt.Errorf("history: entry %d probabilities: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, t); err != nil {
			return nil, fmt.Errorf("history: entry %d time: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// CountByLabel returns how many classifications each label received.
func (s *Store) CountByLabel(ctx context.Context) (map[condition.Class]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, COUNT(1) FROM classifications GROUP BY label")
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	out := make(map[condition.Class]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		c, err := condition.Parse(label)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		out[c] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}
