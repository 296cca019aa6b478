package torrent

import (
	"encoding/hex"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

func (s *Session) get(id ID) (*torrent, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	t, ok := s.torrents.Get(id.h)
	if !ok {
		return nil, &InvalidHandleError{ID: id}
	}
	return t, nil
}

// RemoveTorrent stops the torrent and removes it from the session and the resume database.
// Downloaded files are deleted if deleteFiles is true.
func (s *Session) RemoveTorrent(id ID, deleteFiles bool) error {
	s.m.Lock()
	if s.closed {
		s.m.Unlock()
		return ErrSessionClosed
	}
	t, ok := s.torrents.Remove(id.h)
	if !ok {
		s.m.Unlock()
		return &InvalidHandleError{ID: id}
	}
	delete(s.byInfoHash, t.wireHash)
	s.m.Unlock()

	err := t.close(deleteFiles)
	if s.resumer != nil {
		if derr := s.resumer.Delete(t.storeID); derr != nil {
			s.log.Errorln("cannot delete torrent from resume db:", derr)
		}
	}
	t.log.Infoln("removed torrent:", t.name())
	t.event(TorrentRemoved, "torrent removed", nil)
	return err
}

// ListTorrents returns the IDs of all torrents in the order they were added.
func (s *Session) ListTorrents() []ID {
	s.m.RLock()
	defer s.m.RUnlock()
	var ts []*torrent
	s.torrents.Each(func(_ arena.Handle, t *torrent) {
		ts = append(ts, t)
	})
	sortByAddedAt(ts)
	ids := make([]ID, len(ts))
	for i, t := range ts {
		ids[i] = t.id
	}
	return ids
}

// IsValid returns true if id refers to a torrent in the session.
func (s *Session) IsValid(id ID) bool {
	_, err := s.get(id)
	return err == nil
}

// PauseTorrent stops downloading and uploading of a single torrent. Connected peers are kept.
func (s *Session) PauseTorrent(id ID) error {
	return s.setPaused(id, true)
}

// ResumeTorrent reverts PauseTorrent. It also clears the error of a torrent stopped by a storage error.
func (s *Session) ResumeTorrent(id ID) error {
	return s.setPaused(id, false)
}

func (s *Session) setPaused(id ID, pause bool) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	req := pauseRequest{pause: pause, Response: make(chan struct{})}
	select {
	case t.pauseCommandC <- req:
	case <-t.doneC:
		return &InvalidHandleError{ID: id}
	}
	<-req.Response
	return nil
}

// IsTorrentPaused returns true if the torrent is paused by PauseTorrent, Session.Pause or a storage error.
func (s *Session) IsTorrentPaused(id ID) (bool, error) {
	st, err := s.Status(id)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// SetTorrentDownloadLimit changes the download speed limit of a torrent. Zero means unlimited.
func (s *Session) SetTorrentDownloadLimit(id ID, bps int64) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.downloadLimiter.SetRate(bps)
	return nil
}

// SetTorrentUploadLimit changes the upload speed limit of a torrent. Zero means unlimited.
func (s *Session) SetTorrentUploadLimit(id ID, bps int64) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.uploadLimiter.SetRate(bps)
	return nil
}

// Status returns the current status of the torrent.
func (s *Session) Status(id ID) (Status, error) {
	t, err := s.get(id)
	if err != nil {
		return Status{}, err
	}
	req := statusRequest{Response: make(chan Status, 1)}
	select {
	case t.statusCommandC <- req:
	case <-t.doneC:
		return Status{}, &InvalidHandleError{ID: id}
	}
	return <-req.Response, nil
}

// Metadata returns the metadata of the torrent. It returns ErrMetadataPending while it is downloaded from peers.
func (s *Session) Metadata(id ID) (*metainfo.Metadata, error) {
	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	req := metadataRequest{Response: make(chan *metainfo.Metadata, 1)}
	select {
	case t.metadataCommandC <- req:
	case <-t.doneC:
		return nil, &InvalidHandleError{ID: id}
	}
	m := <-req.Response
	if m == nil {
		return nil, ErrMetadataPending
	}
	return m, nil
}

// Info returns the static description of the torrent.
func (s *Session) Info(id ID) (Info, error) {
	m, err := s.Metadata(id)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:        m.Name,
		TotalSize:   m.TotalSize,
		PieceLength: m.PieceLength,
		InfoHash:    hex.EncodeToString(m.InfoHash),
		NumFiles:    len(m.Files),
		NumPieces:   m.NumPieces(),
	}, nil
}

// Torrent returns a handle for calling the per torrent methods of the Session.
func (s *Session) Torrent(id ID) (*Torrent, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	return &Torrent{session: s, id: id}, nil
}

// Torrent is a handle of a torrent in a Session. Methods return *InvalidHandleError after the torrent is removed.
type Torrent struct {
	session *Session
	id      ID
}

// ID of the torrent in the Session.
func (t *Torrent) ID() ID { return t.id }

// Status of the torrent.
func (t *Torrent) Status() (Status, error) { return t.session.Status(t.id) }

// Info of the torrent.
func (t *Torrent) Info() (Info, error) { return t.session.Info(t.id) }

// Pause the torrent.
func (t *Torrent) Pause() error { return t.session.PauseTorrent(t.id) }

// Resume the torrent.
func (t *Torrent) Resume() error { return t.session.ResumeTorrent(t.id) }

// SetDownloadLimit of the torrent in bytes per second.
func (t *Torrent) SetDownloadLimit(bps int64) error {
	return t.session.SetTorrentDownloadLimit(t.id, bps)
}

// SetUploadLimit of the torrent in bytes per second.
func (t *Torrent) SetUploadLimit(bps int64) error {
	return t.session.SetTorrentUploadLimit(t.id, bps)
}

// Remove the torrent from the Session.
func (t *Torrent) Remove(deleteFiles bool) error { return t.session.RemoveTorrent(t.id, deleteFiles) }
