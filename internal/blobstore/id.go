package blobstore

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const maxIDLength = 255

// ValidateID rejects identifiers that cannot name a single file in a flat
// directory: empty, too long, hidden, or containing separators.
func ValidateID(id string) error {
	switch {
	case id == "", len(id) > maxIDLength:
		return ErrInvalidID
	case strings.HasPrefix(id, "."):
		return ErrInvalidID
	case strings.ContainsAny(id, "/\\\x00"):
		return ErrInvalidID
	}
	return nil
}

// MountPath joins a URL mount point and an identifier into an absolute path.
func MountPath(mount, id string) string {
	mount = strings.Trim(strings.TrimSpace(mount), "/")
	if mount == "" {
		return "/" + url.PathEscape(id)
	}
	return "/" + mount + "/" + url.PathEscape(id)
}

type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func newChecksum() checksum {
	h, _ := blake2b.New256(nil)
	return checksum{Hash: h}
}
