// Package verifier checks piece data against the hashes in torrent metadata.
package verifier

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"crypto/sha256"
	"hash"
)

// PieceVerifier compares digests of piece data with expected hashes.
// It holds no mutable state and is safe for concurrent use.
type PieceVerifier struct {
	hashes [][]byte
}

// New returns a PieceVerifier for the piece hashes of a torrent.
// The digest is SHA-1 for 20 byte hashes and SHA-256 for 32 byte hashes.
func New(hashes [][]byte) *PieceVerifier {
	return &PieceVerifier{hashes: hashes}
}

// Verify returns true if the digest of data equals the hash of piece index.
func (v *PieceVerifier) Verify(index uint32, data []byte) bool {
	if index >= uint32(len(v.hashes)) {
		return false
	}
	expected := v.hashes[index]
	h := newHash(len(expected))
	if h == nil {
		return false
	}
	_, _ = h.Write(data)
	return bytes.Equal(h.Sum(nil), expected)
}

func newHash(size int) hash.Hash {
	switch size {
	case sha1.Size:
		return sha1.New() // nolint: gosec
	case sha256.Size:
		return sha256.New()
	}
	return nil
}
