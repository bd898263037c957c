package api

import (
	"cosensync/internal/gc"
	"cosensync/internal/models"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Success  bool   `json:"success" yaml:"success"`
	URL      string `json:"url" yaml:"url"`
	Filename string `json:"filename" yaml:"filename"`
	Size     int64  `json:"size" yaml:"size"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	// MediaType is the sniffed content type.
	MediaType string `json:"mediaType,omitempty" yaml:"media_type,omitempty"`
}

// GCResponse is returned by POST /api/gc.
type GCResponse struct {
	Success         bool     `json:"success" yaml:"success"`
	DeletedFiles    []string `json:"deletedFiles" yaml:"deleted_files"`
	DeletedCount    int      `json:"deletedCount" yaml:"deleted_count"`
	FailedFiles     []string `json:"failedFiles" yaml:"failed_files"`
	OrphanedFiles   []string `json:"orphanedFiles,omitempty" yaml:"orphaned_files,omitempty"`
	ReferencedCount int      `json:"referencedCount" yaml:"referenced_count"`
	StoredCount     int      `json:"storedCount" yaml:"stored_count"`
	DryRun          bool     `json:"dryRun" yaml:"dry_run"`
}

// NewGCResponse converts a collector result into its wire form. Deleted and
// failed lists are never null.
func NewGCResponse(result gc.Result) GCResponse {
	failed := make([]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, f.ID)
	}
	deleted := result.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	return GCResponse{
		Success:         true,
		DeletedFiles:    deleted,
		DeletedCount:    len(deleted),
		FailedFiles:     failed,
		OrphanedFiles:   result.Orphans,
		ReferencedCount: result.ReferencedCount,
		StoredCount:     result.StoredCount,
		DryRun:          result.DryRun,
	}
}

// GCRunsResponse is returned by GET /api/gc/runs.
type GCRunsResponse struct {
	Runs []models.GCRun `json:"runs" yaml:"runs"`
}

// InfoResponse is returned by GET /api/info.
type InfoResponse struct {
	Version        string `json:"version" yaml:"version"`
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`
	Mount          string `json:"mount" yaml:"mount"`
	StoredCount    int    `json:"stored_count" yaml:"stored_count"`
	JournalEnabled bool   `json:"journal_enabled" yaml:"journal_enabled"`
}
