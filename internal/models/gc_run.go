package models

import "time"

// GCRun is one recorded garbage collection pass.
type GCRun struct {
	ID              int64     `json:"id" yaml:"id"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
	DryRun          bool      `json:"dry_run" yaml:"dry_run"`
	ReferencedCount int       `json:"referenced_count" yaml:"referenced_count"`
	StoredCount     int       `json:"stored_count" yaml:"stored_count"`
	OrphanedCount   int       `json:"orphaned_count" yaml:"orphaned_count"`
	DeletedFiles    []string  `json:"deleted_files" yaml:"deleted_files"`
	FailedFiles     []string  `json:"failed_files" yaml:"failed_files"`
}

// DeletedCount returns the number of blobs the run removed.
func (r GCRun) DeletedCount() int {
	return len(r.DeletedFiles)
}

// Duration returns how long the run took.
func (r GCRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
