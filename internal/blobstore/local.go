package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const stagingDirName = ".staging"

var _ BlobStore = (*LocalDir)(nil)

// LocalDir stores blobs as files in one flat directory. The directory listing
// is the inventory; there is no index or metadata sidecar.
type LocalDir struct {
	root  string
	mount string
}

// NewLocalDir creates a store rooted at root whose blobs are served under mount.
func NewLocalDir(root, mount string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, stagingDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalDir{root: abs, mount: mount}, nil
}

// Root returns the absolute blob directory.
func (d *LocalDir) Root() string {
	return d.root
}

// Put streams r into a staging file and links it into place. An existing
// blob is never replaced.
func (d *LocalDir) Put(ctx context.Context, id string, r io.Reader) (PutResult, error) {
	var zero PutResult
	if d == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ValidateID(id); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	dst := filepath.Join(d.root, id)
	if _, err := os.Lstat(dst); err == nil {
		return zero, fmt.Errorf("%w: %s", ErrExists, id)
	} else if !errors.Is(err, os.ErrNotExist) {
		return zero, &WriteError{ID: id, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Join(d.root, stagingDirName), "put-*")
	if err != nil {
		return zero, &WriteError{ID: id, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	sum := newChecksum()
	src := &trackingReader{r: r}
	n, err := io.Copy(io.MultiWriter(tmp, sum), src)
	if err != nil {
		cleanup()
		if src.err != nil {
			return zero, src.err
		}
		return zero, &WriteError{ID: id, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, &WriteError{ID: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return zero, err
	}

	// Link fails if dst appeared since the Lstat above; rename would replace it.
	if err := os.Link(tmpPath, dst); err != nil {
		cleanup()
		if errors.Is(err, os.ErrExist) {
			return zero, fmt.Errorf("%w: %s", ErrExists, id)
		}
		return zero, &WriteError{ID: id, Err: err}
	}
	_ = os.Remove(tmpPath)

	return PutResult{ID: id, SizeBytes: n, Checksum: sum.Hex()}, nil
}

// Open returns the blob file for reading. The reader is an *os.File.
func (d *LocalDir) Open(ctx context.Context, id string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFor(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, notFound(id)
	}
	return &Object{Reader: f, SizeBytes: info.Size(), ModTime: info.ModTime()}, nil
}

// Exists reports whether id is stored.
func (d *LocalDir) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := d.pathFor(id)
	if err != nil {
		return false, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// List returns the names of regular files in the directory. Hidden entries
// and sub-directories (including staging) are skipped.
func (d *LocalDir) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ValidateID(entry.Name()) != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}

// Delete removes one blob.
func (d *LocalDir) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(id)
		}
		return &DeleteError{ID: id, Err: err}
	}
	return nil
}

// URLFor returns the mount-relative retrieval path for id.
func (d *LocalDir) URLFor(id string) string {
	return MountPath(d.mount, id)
}

func (d *LocalDir) pathFor(id string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(d.root, id), nil
}
