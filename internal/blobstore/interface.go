package blobstore

import (
	"context"
	"io"
	"time"
)

// PutResult describes one persisted blob payload.
type PutResult struct {
	ID        string
	SizeBytes int64
	Checksum  string
}

// Object is an open blob. Reader also implements io.ReadSeeker when the
// backend supports random access.
type Object struct {
	Reader    io.ReadCloser
	SizeBytes int64
	ModTime   time.Time
}

// BlobStore maps identifiers to opaque bytes.
type BlobStore interface {
	// Put writes r under id once. It returns ErrExists when id is taken.
	Put(ctx context.Context, id string, r io.Reader) (PutResult, error)
	Open(ctx context.Context, id string) (*Object, error)
	Exists(ctx context.Context, id string) (bool, error)
	// List returns a snapshot of stored identifiers in no particular order.
	List(ctx context.Context) ([]string, error)
	// Delete returns ErrNotFound when id is absent.
	Delete(ctx context.Context, id string) error
	// URLFor returns the retrieval path for id. It does no I/O.
	URLFor(id string) string
}
