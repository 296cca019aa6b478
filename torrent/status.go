package torrent

import "time"

// State of a Torrent
type State int

const (
	// CheckingFiles indicates that existing data in the PieceStore is being verified by comparing hashes.
	CheckingFiles State = iota
	// DownloadingMetadata indicates that the torrent is in the process of downloading metadata.
	// When torrent is added via magnet link, torrent has no metadata and it needs to be downloaded from peers before starting to download files.
	DownloadingMetadata
	// Downloading the torrent's files from peers.
	Downloading
	// Finished indicates that all pieces are downloaded and verified.
	Finished
	// Seeding the torrent. All pieces are downloaded and at least one block is uploaded since.
	Seeding
	// CheckingResumeData indicates that the saved progress is being loaded.
	CheckingResumeData
)

func (s State) String() string {
	m := map[State]string{
		CheckingFiles:       "Checking Files",
		DownloadingMetadata: "Downloading Metadata",
		Downloading:         "Downloading",
		Finished:            "Finished",
		Seeding:             "Seeding",
		CheckingResumeData:  "Checking Resume Data",
	}
	return m[s]
}

// Status contains information about a torrent. It is computed when requested.
type Status struct {
	Name     string
	InfoHash string
	State    State
	// Fraction of verified bytes in [0, 1]. Zero while downloading metadata.
	Progress float64
	// Bytes per second, averaged over the last minute.
	DownloadRate int64
	UploadRate   int64
	// Counters include the values loaded from resume data.
	TotalDownloaded int64
	TotalUploaded   int64
	TotalWasted     int64
	// Bytes of verified pieces.
	TotalDone int64
	// Size of the torrent. Zero while downloading metadata.
	TotalWanted int64
	NumPeers    int
	NumSeeds    int
	Paused      bool
	IsFinished  bool
	// Remaining time at the current download rate. Nil if the rate is zero.
	ETA *time.Duration
	// Set when the torrent is stopped by a storage error.
	Err error
}

// Info is the static description of a torrent.
type Info struct {
	Name        string
	TotalSize   int64
	PieceLength uint32
	InfoHash    string
	NumFiles    int
	NumPieces   uint32
}

// SessionStats are the totals of all torrents in a Session.
type SessionStats struct {
	Torrents        int
	ActiveTorrents  int
	PausedTorrents  int
	Peers           int
	Seeds           int
	TotalDownloaded int64
	TotalUploaded   int64
	DownloadRate    int64
	UploadRate      int64
}
