package torrent

import (
	"sort"
)

// Stats returns the totals of all torrents.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		Torrents:     int(s.metrics.torrents.Value()),
		Peers:        int(s.metrics.peers.Count()),
		DownloadRate: int64(s.metrics.downloadSpeed.Rate1()),
		UploadRate:   int64(s.metrics.uploadSpeed.Rate1()),
	}
	for _, id := range s.ListTorrents() {
		ts, err := s.Status(id)
		if err != nil {
			// Removed meanwhile.
			continue
		}
		if ts.Paused {
			st.PausedTorrents++
		} else {
			st.ActiveTorrents++
		}
		st.Seeds += ts.NumSeeds
		st.TotalDownloaded += ts.TotalDownloaded
		st.TotalUploaded += ts.TotalUploaded
	}
	return st
}

func sortByAddedAt(ts []*torrent) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].addedAt.Equal(ts[j].addedAt) {
			return ts[i].id.h.Index() < ts[j].id.h.Index()
		}
		return ts[i].addedAt.Before(ts[j].addedAt)
	})
}
