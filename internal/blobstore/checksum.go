package blobstore

import (
	"encoding/hex"
	"hash"
)

// checksum is a BLAKE2b-256 digest accumulated while a blob streams to disk.
type checksum struct {
	hash.Hash
}

func (c checksum) Hex() string {
	return hex.EncodeToString(c.Sum(nil))
}
