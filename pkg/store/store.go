// Package store persists job records across process restarts.
//
// Two backends implement the same contract: a bucket-per-status
// directory tree of JSON envelopes, and a single SQLite database.
// Durability is best-effort: the in-memory queue stays authoritative
// for the life of the process even when a write fails.
package store

import "github.com/taskmill/taskmill/pkg/job"

// Store is the durable encoding of job records.
//
// Persist writes (or overwrites) the record under its current status
// bucket and clears any stale copy left in a different bucket, so a
// reader never observes a record in two buckets at once.
//
// LoadAll is called once at startup. Records found in the running
// bucket are orphans from a prior crash: implementations demote them to
// pending (worker assignment cleared) before returning them. This is
// the system's only guarantee against process death mid-execution and
// implies at-least-once execution.
type Store interface {
	Persist(j *job.Job) error
	Remove(id string, status job.Status) error
	LoadAll() ([]*job.Job, error)
	Close() error
}

// Nop discards everything. Used when persistence is disabled.
type Nop struct{}

func (Nop) Persist(*job.Job) error          { return nil }
func (Nop) Remove(string, job.Status) error { return nil }
func (Nop) LoadAll() ([]*job.Job, error)    { return nil, nil }
func (Nop) Close() error                    { return nil }
