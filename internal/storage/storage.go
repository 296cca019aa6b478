// Package storage defines the PieceStore the torrents write downloaded data to.
package storage

import (
	"errors"

	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

var (
	// ErrNotOpen is returned for operations on a torrent that is not opened in the store.
	ErrNotOpen = errors.New("storage: torrent is not open")
	// ErrNoData is returned by Read when the requested range has never been written.
	// Callers checking existing data treat it as a missing piece rather than a failure.
	ErrNoData = errors.New("storage: no data")
	// ErrOutOfRange is returned when the range exceeds the piece or the torrent.
	ErrOutOfRange = errors.New("storage: out of range")
)

// PieceStore stores piece data of many torrents. Torrents are addressed by an opaque id.
// Implementations must be safe for concurrent use.
type PieceStore interface {
	// Open prepares the store for the torrent. Data is placed under savePath.
	Open(id string, m *metainfo.Metadata, savePath string) error
	// Read returns length bytes at offset in the piece.
	Read(id string, index, offset, length uint32) ([]byte, error)
	// Write stores data at offset in the piece.
	Write(id string, index, offset uint32, data []byte) error
	// Flush commits pending writes of the torrent.
	Flush(id string) error
	// Close releases the resources of the torrent without deleting data.
	Close(id string) error
	// DeleteAll closes the torrent and removes its data.
	DeleteAll(id string) error
}

// Span is a contiguous part of a file that a piece range maps to.
type Span struct {
	File   int   // index in metainfo.Metadata.Files
	Offset int64 // offset in file
	Length int64
}

// Locate maps length bytes at offset in piece index to file spans.
func Locate(m *metainfo.Metadata, index, offset, length uint32) ([]Span, error) {
	if index >= m.NumPieces() || uint64(offset)+uint64(length) > uint64(m.PieceSize(index)) {
		return nil, ErrOutOfRange
	}
	begin := int64(index)*int64(m.PieceLength) + int64(offset)
	end := begin + int64(length)
	var spans []Span
	for i, f := range m.Files {
		fileEnd := f.Offset + f.Length
		if fileEnd <= begin || f.Length == 0 {
			continue
		}
		if f.Offset >= end {
			break
		}
		s := begin
		if f.Offset > s {
			s = f.Offset
		}
		e := end
		if fileEnd < e {
			e = fileEnd
		}
		spans = append(spans, Span{File: i, Offset: s - f.Offset, Length: e - s})
	}
	return spans, nil
}
