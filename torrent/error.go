package torrent

import (
	"errors"
	"fmt"

	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

var (
	// ErrMetadataPending is returned by Session.Info while the torrent is downloading metadata from peers.
	ErrMetadataPending = errors.New("metadata is not downloaded yet")
	// ErrDuplicateTorrent is returned when a torrent with the same info hash is already in the session.
	ErrDuplicateTorrent = errors.New("torrent is already added")
	// ErrSessionClosed is returned from methods of a closed Session.
	ErrSessionClosed = errors.New("session is closed")
)

// MetadataError is returned when a torrent file, magnet link or metadata is malformed.
type MetadataError = metainfo.MetadataError

func newMetadataError(err error) *MetadataError {
	var me *MetadataError
	if errors.As(err, &me) {
		return me
	}
	return &MetadataError{Err: err}
}

// ConnectionError is a failure of a single peer connection. It never stops the torrent.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %s", e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// VerificationError is reported when a downloaded piece does not match its hash.
// The piece is downloaded again.
type VerificationError struct {
	Piece uint32
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("hash check failed for piece #%d", e.Piece)
}

// StorageError is returned from the PieceStore. The torrent is paused when it happens.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "storage error: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }

// InvalidHandleError is returned for operations on torrents that are removed or never existed.
type InvalidHandleError struct {
	ID ID
}

func (e *InvalidHandleError) Error() string {
	return "invalid torrent handle: " + e.ID.String()
}
