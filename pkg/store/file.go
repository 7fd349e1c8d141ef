package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// envelopeVersion is the schema version written into every job file.
// Bump only for incompatible layout changes; additive fields do not
// require a bump.
const envelopeVersion = 1

// envelope is the on-disk form of a job record.
//
// The explicit version field keeps recovery and process-isolated
// execution independent of any runtime's object-graph format.
type envelope struct {
	SchemaVersion int      `json:"schema_version"`
	Job           *job.Job `json:"job"`
}

// FileStore keeps one JSON envelope per job under a directory per
// status bucket:
//
//	<root>/pending/<id>.json
//	<root>/running/<id>.json
//	<root>/completed/<id>.json
//	<root>/failed/<id>.json
//	<root>/cancelled/<id>.json
//
// Writes go through a temp file and rename, so a bucket never holds a
// partially written record.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates the bucket directories under root.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("queue root dir is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range job.Statuses() {
		if err := os.MkdirAll(filepath.Join(root, string(s)), 0755); err != nil {
			return nil, fmt.Errorf("create bucket dir %s: %w", s, err)
		}
	}
	return &FileStore{root: root, logger: logger}, nil
}

// RootDir returns the store's root directory.
func (s *FileStore) RootDir() string {
	return s.root
}

func (s *FileStore) bucketDir(status job.Status) string {
	return filepath.Join(s.root, string(status))
}

func (s *FileStore) jobPath(id string, status job.Status) string {
	return filepath.Join(s.bucketDir(status), id+".json")
}

// Persist writes the record into the bucket matching its current status
// and removes any stale copy from the other buckets.
func (s *FileStore) Persist(j *job.Job) error {
	if j == nil || strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("unknown job status %q", j.Status)
	}

	b, err := json.MarshalIndent(envelope{SchemaVersion: envelopeVersion, Job: j}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	dir := s.bucketDir(j.Status)
	tmp, err := os.CreateTemp(dir, j.ID+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}
	if err := os.Rename(tmpName, s.jobPath(j.ID, j.Status)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}

	// Clear stale copies so the record is observable in one bucket only.
	for _, st := range job.Statuses() {
		if st == j.Status {
			continue
		}
		if err := os.Remove(s.jobPath(j.ID, st)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove stale job file",
				zap.String("job_id", j.ID),
				zap.String("bucket", string(st)),
				zap.Error(err))
		}
	}
	return nil
}

// Remove deletes the record from the named bucket. Absent files are a
// no-op.
func (s *FileStore) Remove(id string, status job.Status) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("job id is required")
	}
	if err := os.Remove(s.jobPath(id, status)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove job file: %w", err)
	}
	return nil
}

// LoadAll scans every bucket and reconstructs records. Records found in
// the running bucket are demoted to pending (worker cleared, file moved)
// before being returned. Unreadable files are logged and skipped.
func (s *FileStore) LoadAll() ([]*job.Job, error) {
	var out []*job.Job
	for _, st := range job.Statuses() {
		entries, err := os.ReadDir(s.bucketDir(st))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read bucket %s: %w", st, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			j, err := s.readEnvelope(filepath.Join(s.bucketDir(st), entry.Name()))
			if err != nil {
				s.logger.Error("skipping unreadable job file",
					zap.String("bucket", string(st)),
					zap.String("file", entry.Name()),
					zap.Error(err))
				continue
			}
			if st == job.StatusRunning {
				// Orphaned by a prior crash: restart from pending.
				j.Requeue(j.EligibleAt)
				if err := s.Persist(j); err != nil {
					s.logger.Error("failed to demote orphaned running job",
						zap.String("job_id", j.ID),
						zap.Error(err))
				}
			}
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *FileStore) readEnvelope(path string) (*job.Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	if env.Job == nil {
		return nil, fmt.Errorf("job file has no record")
	}
	if env.SchemaVersion != envelopeVersion {
		return nil, fmt.Errorf("unsupported schema version %d", env.SchemaVersion)
	}
	return env.Job, nil
}

func (s *FileStore) Close() error { return nil }
