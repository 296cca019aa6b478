package torrent

import (
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/drip-torrent/LibTorrent-swift/internal/magnet"
	"github.com/drip-torrent/LibTorrent-swift/internal/resumer"
	"github.com/drip-torrent/LibTorrent-swift/internal/resumer/boltdbresumer"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// AddMetadata adds a torrent from parsed metadata. Files are saved under savePath,
// or Config.DataDir if savePath is empty.
func (s *Session) AddMetadata(m *metainfo.Metadata, savePath string) (ID, error) {
	if m == nil {
		return ID{}, newMetadataError(errors.New("metadata is nil"))
	}
	return s.add(torrentOptions{meta: m, savePath: savePath}, true)
}

// AddTorrent adds a torrent from the contents of a .torrent file.
func (s *Session) AddTorrent(r io.Reader, savePath string) (ID, error) {
	m, err := metainfo.Parse(r)
	if err != nil {
		return ID{}, err
	}
	return s.AddMetadata(m, savePath)
}

// AddTorrentFile adds a torrent from a .torrent file on disk.
func (s *Session) AddTorrentFile(path, savePath string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return ID{}, err
	}
	defer f.Close()
	return s.AddTorrent(f, savePath)
}

// AddMagnet adds a torrent from a magnet link. The torrent downloads metadata from peers before the files.
func (s *Session) AddMagnet(link, savePath string) (ID, error) {
	ma, err := magnet.New(link)
	if err != nil {
		return ID{}, newMetadataError(err)
	}
	return s.add(torrentOptions{
		infoHash: ma.InfoHash,
		name:     ma.Name,
		peers:    ma.Peers,
		savePath: savePath,
	}, true)
}

// AddURI adds a magnet link, a hex encoded info hash or a path to a .torrent file.
func (s *Session) AddURI(uri, savePath string) (ID, error) {
	switch {
	case strings.HasPrefix(uri, "magnet:"):
		return s.AddMagnet(uri, savePath)
	case IsValidInfoHash(uri):
		return s.AddMagnet(MagnetURI(uri, ""), savePath)
	default:
		return s.AddTorrentFile(uri, savePath)
	}
}

// add inserts a new torrent and starts it. The torrent is saved to the resume database if persist is true.
func (s *Session) add(opts torrentOptions, persist bool) (ID, error) {
	if opts.savePath == "" {
		opts.savePath = s.config.DataDir
	}
	t := newTorrent(s, opts)

	s.m.Lock()
	if s.closed {
		s.m.Unlock()
		return ID{}, ErrSessionClosed
	}
	if _, ok := s.byInfoHash[t.wireHash]; ok {
		s.m.Unlock()
		return ID{}, ErrDuplicateTorrent
	}
	id := ID{h: s.torrents.Insert(t)}
	t.setID(id)
	s.byInfoHash[t.wireHash] = t
	s.m.Unlock()

	if s.resumer != nil {
		t.resumer = s.resumer.For(t.storeID)
		if persist {
			spec := &boltdbresumer.Spec{
				InfoHash: t.infoHash,
				Name:     opts.name,
				SavePath: opts.savePath,
				Peers:    opts.peers,
				Metadata: opts.meta,
				Paused:   opts.paused,
				AddedAt:  t.addedAt,
			}
			if err := s.resumer.Write(t.storeID, spec); err != nil {
				s.log.Errorln("cannot write torrent to resume db:", err)
			}
		}
	}
	t.log.Infoln("added torrent:", t.name(), hex.EncodeToString(t.infoHash))
	t.event(TorrentAdded, "torrent added", nil)
	go t.run()
	return id, nil
}

// loadExistingTorrents adds the torrents saved in the resume database.
// Torrents that cannot be loaded are logged and skipped.
func (s *Session) loadExistingTorrents() error {
	ids, err := s.resumer.List()
	if err != nil {
		return err
	}
	var loaded int
	for _, id := range ids {
		spec, err := s.resumer.Read(id)
		if err != nil {
			s.log.Errorln("cannot load torrent", id, err)
			continue
		}
		_, err = s.add(torrentOptions{
			infoHash:       spec.InfoHash,
			meta:           spec.Metadata,
			name:           spec.Name,
			peers:          spec.Peers,
			savePath:       spec.SavePath,
			addedAt:        spec.AddedAt,
			paused:         spec.Paused,
			resumeBitfield: spec.Bitfield,
			stats: resumer.Stats{
				BytesDownloaded: spec.BytesDownloaded,
				BytesUploaded:   spec.BytesUploaded,
				BytesWasted:     spec.BytesWasted,
			},
		}, false)
		if err != nil {
			s.log.Errorln("cannot add torrent", id, err)
			continue
		}
		loaded++
	}
	s.log.Infof("loaded %d existing torrents", loaded)
	return nil
}
