package blobstore

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("blob not found")
	ErrExists    = errors.New("blob already exists")
	ErrInvalidID = errors.New("invalid blob id")
)

// WriteError reports that the storage medium rejected a write.
type WriteError struct {
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write blob %s: %v", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DeleteError reports an I/O failure while removing a blob.
type DeleteError struct {
	ID  string
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete blob %s: %v", e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
