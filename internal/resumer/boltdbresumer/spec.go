package boltdbresumer

import (
	"time"

	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// Spec is everything needed to add a torrent back to a session after restart.
type Spec struct {
	InfoHash []byte
	Name     string
	SavePath string
	// Peers from the magnet link.
	Peers []string
	// Nil until the metadata of a magnet is downloaded.
	Metadata        *metainfo.Metadata
	Bitfield        []byte
	Paused          bool
	AddedAt         time.Time
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
}
