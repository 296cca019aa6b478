// Package resumer contains the interface the torrent package uses to persist its progress.
package resumer

import "github.com/drip-torrent/LibTorrent-swift/metainfo"

// Resumer provides operations to save resume info for a Torrent.
type Resumer interface {
	WriteMetadata(*metainfo.Metadata) error
	WriteBitfield([]byte) error
	WritePaused(bool) error
	WriteStats(Stats) error
}

// Stats are the byte counters that survive restarts.
type Stats struct {
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
}
