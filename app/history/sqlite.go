package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/backups/app/backup"
)

// SQLite keeps outcomes in a sqlite database, in addition to the text log
type SQLite struct {
	db *sqlx.DB
}

// record is a row of outcomes table
type record struct {
	ID          int64  `db:"id"`
	Job         string `db:"job"`
	Timestamp   string `db:"ts"`
	Success     bool   `db:"success"`
	Source      string `db:"source"`
	Destination string `db:"destination"`
	Detail      string `db:"detail"`
	CreatedAt   int64  `db:"created_at"`
}

// NewSQLite opens (or creates) the database and makes the schema
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode, the history can be read while immediate mode writes to it
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	res := &SQLite{db: db}
	if err := res.initialize(); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return res, nil
}

func (s *SQLite) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job TEXT NOT NULL,
			ts TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			source TEXT,
			destination TEXT,
			detail TEXT,
			created_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_job ON outcomes(job)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Append inserts outcome record
func (s *SQLite) Append(o backup.Outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := record{Job: o.Job, Timestamp: o.Timestamp, Success: o.Success, Source: o.Source,
		Destination: o.Destination, Detail: o.Detail, CreatedAt: time.Now().Unix()}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outcomes (job, ts, success, source, destination, detail, created_at)
		VALUES (:job, :ts, :success, :source, :destination, :detail, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit latest outcomes of the job, newest first
func (s *SQLite) Recent(job string, limit int) ([]backup.Outcome, error) {
	recs := []record{}
	err := s.db.Select(&recs, `SELECT id, job, ts, success, source, destination, detail, created_at
		FROM outcomes WHERE job = ? ORDER BY id DESC LIMIT ?`, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes for %s: %w", job, err)
	}

	res := make([]backup.Outcome, 0, len(recs))
	for _, r := range recs {
		o := backup.Outcome{Job: r.Job, Timestamp: r.Timestamp, Success: r.Success, Source: r.Source,
			Destination: r.Destination, Detail: r.Detail}
		if !r.Success {
			o.Err = errors.New(r.Detail)
		}
		res = append(res, o)
	}
	log.Printf("[DEBUG] loaded %d history records for %s", len(res), job)
	return res, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}
