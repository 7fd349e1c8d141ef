package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/taskmill/taskmill/pkg/job"
)

const sqliteSchemaVersion = 1

// SQLiteStore keeps every job record in a single SQLite database.
//
// The record body is stored as the same versioned JSON envelope the
// FileStore writes; status is duplicated into its own column so bucket
// queries and crash recovery stay plain SQL.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (and creates if needed) a SQLite-backed job store.
// Parent directories are created for local paths. WAL and busy_timeout
// are applied for predictable single-host behavior.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			priority   INTEGER NOT NULL DEFAULT 0,
			seq        INTEGER NOT NULL DEFAULT 0,
			envelope   BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate job store: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Persist upserts the record; the single-row primary key makes the
// one-bucket invariant structural.
func (s *SQLiteStore) Persist(j *job.Job) error {
	if j == nil || strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("unknown job status %q", j.Status)
	}
	b, err := json.Marshal(envelope{SchemaVersion: envelopeVersion, Job: j})
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO jobs (id, status, priority, seq, envelope, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			seq = excluded.seq,
			envelope = excluded.envelope,
			updated_at = excluded.updated_at`,
		j.ID, string(j.Status), j.Priority, int64(j.Seq), b, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	return nil
}

// Remove deletes the record if it is currently in the named bucket.
func (s *SQLiteStore) Remove(id string, status job.Status) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("job id is required")
	}
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ? AND status = ?`, id, string(status)); err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

// LoadAll reconstructs every record, demoting running jobs to pending
// first (crash recovery).
func (s *SQLiteStore) LoadAll() ([]*job.Job, error) {
	rows, err := s.db.Query(`SELECT envelope FROM jobs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*job.Job
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(b, &env); err != nil || env.Job == nil {
			s.logger.Error("skipping unreadable job row", zap.Error(err))
			continue
		}
		if env.SchemaVersion != envelopeVersion {
			s.logger.Error("skipping job row with unsupported schema version",
				zap.Int("schema_version", env.SchemaVersion))
			continue
		}
		j := env.Job
		if j.Status == job.StatusRunning {
			j.Requeue(j.EligibleAt)
			if err := s.Persist(j); err != nil {
				s.logger.Error("failed to demote orphaned running job",
					zap.String("job_id", j.ID),
					zap.Error(err))
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
