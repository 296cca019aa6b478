package torrent

import (
	"encoding/hex"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
)

func (t *torrent) state() State {
	switch {
	case t.meta == nil:
		return DownloadingMetadata
	case t.checkingResume:
		return CheckingResumeData
	case t.checker != nil || t.sched == nil:
		return CheckingFiles
	case t.completed && t.seeding:
		return Seeding
	case t.completed:
		return Finished
	default:
		return Downloading
	}
}

func (t *torrent) status() Status {
	s := Status{
		Name:            t.name(),
		InfoHash:        hex.EncodeToString(t.infoHash),
		State:           t.state(),
		DownloadRate:    int64(t.downloadSpeed.Rate1()),
		UploadRate:      int64(t.uploadSpeed.Rate1()),
		TotalDownloaded: t.bytesDownloaded,
		TotalUploaded:   t.bytesUploaded,
		TotalWasted:     t.bytesWasted,
		NumPeers:        t.peers.Len(),
		Paused:          t.isPaused(),
		IsFinished:      t.completed,
		Err:             t.err,
	}
	if t.meta != nil {
		s.TotalWanted = t.meta.TotalSize
	}
	if t.bitfield != nil {
		t.bitfield.ForEach(func(i uint32) {
			s.TotalDone += int64(t.meta.PieceSize(i))
		})
	}
	if s.TotalWanted > 0 {
		s.Progress = float64(s.TotalDone) / float64(s.TotalWanted)
	}
	if t.tracker != nil {
		n := t.meta.NumPieces()
		t.peers.Each(func(_ arena.Handle, pe *peer) {
			if t.tracker.Count(pe.id) == n {
				s.NumSeeds++
			}
		})
	}
	if !t.completed && s.TotalWanted > 0 {
		s.ETA = eta(s.TotalWanted-s.TotalDone, s.DownloadRate)
	}
	return s
}

// eta returns the time needed to download remaining bytes at rate bytes per second.
func eta(remaining, rate int64) *time.Duration {
	if rate <= 0 || remaining < 0 {
		return nil
	}
	d := time.Duration(remaining/rate) * time.Second
	return &d
}
