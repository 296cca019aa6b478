// Package metainfo holds the immutable description of a torrent and reads it from .torrent files.
package metainfo

import (
	"crypto/sha1" // nolint: gosec
	"crypto/sha256"
	"errors"
	"fmt"
)

// Hash sizes supported for info hashes and piece hashes.
const (
	SHA1Size   = sha1.Size
	SHA256Size = sha256.Size
)

var (
	errNoFiles         = errors.New("torrent has no files")
	errZeroPieceLength = errors.New("piece length is zero")
)

// File is a single file in a torrent. Offset is the position of its first byte in the torrent data.
type File struct {
	Path   string `json:"path"`
	Length int64  `json:"length"`
	Offset int64  `json:"offset"`
}

// Metadata describes a torrent. It is not modified after creation.
type Metadata struct {
	Name        string   `json:"name"`
	InfoHash    []byte   `json:"info_hash"`
	PieceLength uint32   `json:"piece_length"`
	PieceHashes [][]byte `json:"piece_hashes"`
	TotalSize   int64    `json:"total_size"`
	Files       []File   `json:"files"`
	Private     bool     `json:"private,omitempty"`
	Trackers    []string `json:"trackers,omitempty"`

	// Info is the bencoded info dictionary when the metadata came from a torrent file
	// or from the metadata exchange. Empty for metadata built with New.
	Info []byte `json:"info,omitempty"`
}

// New returns validated Metadata. File offsets are computed from the order of files.
// The size of every piece hash must equal the size of infoHash.
// Errors are of type *MetadataError.
func New(name string, infoHash []byte, pieceLength uint32, pieceHashes [][]byte, files []File) (*Metadata, error) {
	m, err := newMetadata(name, infoHash, pieceLength, pieceHashes, files)
	return m, newMetadataError(err)
}

func newMetadata(name string, infoHash []byte, pieceLength uint32, pieceHashes [][]byte, files []File) (*Metadata, error) {
	if len(infoHash) != SHA1Size && len(infoHash) != SHA256Size {
		return nil, fmt.Errorf("invalid info hash length: %d", len(infoHash))
	}
	if pieceLength == 0 {
		return nil, errZeroPieceLength
	}
	if len(files) == 0 {
		return nil, errNoFiles
	}
	m := &Metadata{
		Name:        name,
		InfoHash:    append([]byte(nil), infoHash...),
		PieceLength: pieceLength,
		PieceHashes: make([][]byte, len(pieceHashes)),
		Files:       make([]File, len(files)),
	}
	for i, h := range pieceHashes {
		if len(h) != len(infoHash) {
			return nil, fmt.Errorf("piece hash #%d has length %d, expected %d", i, len(h), len(infoHash))
		}
		m.PieceHashes[i] = append([]byte(nil), h...)
	}
	for i, f := range files {
		if f.Length < 0 {
			return nil, fmt.Errorf("file %q has negative length", f.Path)
		}
		f.Offset = m.TotalSize
		m.Files[i] = f
		m.TotalSize += f.Length
	}
	if m.TotalSize == 0 {
		return nil, errors.New("torrent is empty")
	}
	numPieces := (m.TotalSize + int64(pieceLength) - 1) / int64(pieceLength)
	if numPieces != int64(len(pieceHashes)) {
		return nil, fmt.Errorf("torrent of %d bytes needs %d pieces of %d bytes but has %d hashes",
			m.TotalSize, numPieces, pieceLength, len(pieceHashes))
	}
	return m, nil
}

// NumPieces returns the number of pieces in the torrent.
func (m *Metadata) NumPieces() uint32 { return uint32(len(m.PieceHashes)) }

// PieceHash returns the expected digest of piece i.
func (m *Metadata) PieceHash(i uint32) []byte { return m.PieceHashes[i] }

// HashSize returns the digest size used by this torrent: SHA1Size or SHA256Size.
func (m *Metadata) HashSize() int { return len(m.InfoHash) }

// PieceSize returns the length of piece i. Only the last piece may be shorter than PieceLength.
func (m *Metadata) PieceSize(i uint32) uint32 {
	if i == m.NumPieces()-1 {
		if mod := uint32(m.TotalSize % int64(m.PieceLength)); mod != 0 {
			return mod
		}
	}
	return m.PieceLength
}
