// Package filestorage implements storage.PieceStore with regular files under each torrent's save path.
package filestorage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/drip-torrent/LibTorrent-swift/internal/storage"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

const (
	fileMode = 0640
	dirMode  = os.ModeDir | 0750
)

// FileStorage keeps the files of open torrents.
type FileStorage struct {
	m        sync.Mutex
	torrents map[string]*torrentFiles
}

var _ storage.PieceStore = (*FileStorage)(nil)

type torrentFiles struct {
	m     sync.Mutex
	meta  *metainfo.Metadata
	dest  string
	files []*os.File
}

// New returns an empty FileStorage.
func New() *FileStorage {
	return &FileStorage{torrents: make(map[string]*torrentFiles)}
}

// Open the torrent with id. Files are created lazily on first write.
func (s *FileStorage) Open(id string, m *metainfo.Metadata, savePath string) error {
	dest, err := filepath.Abs(savePath)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dest, dirMode); err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.torrents[id]; ok {
		return nil
	}
	s.torrents[id] = &torrentFiles{
		meta:  m,
		dest:  dest,
		files: make([]*os.File, len(m.Files)),
	}
	return nil
}

func (s *FileStorage) get(id string) (*torrentFiles, error) {
	s.m.Lock()
	defer s.m.Unlock()
	t, ok := s.torrents[id]
	if !ok {
		return nil, storage.ErrNotOpen
	}
	return t, nil
}

// Read bytes of a piece. Missing or short files result in storage.ErrNoData.
func (s *FileStorage) Read(id string, index, offset, length uint32) ([]byte, error) {
	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	spans, err := storage.Locate(t.meta, index, offset, length)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	var pos int64
	t.m.Lock()
	defer t.m.Unlock()
	for _, sp := range spans {
		f, err := t.file(sp.File, false)
		if err != nil {
			return nil, err
		}
		_, err = f.ReadAt(buf[pos:pos+sp.Length], sp.Offset)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, storage.ErrNoData
		}
		if err != nil {
			return nil, err
		}
		pos += sp.Length
	}
	return buf, nil
}

// Write bytes of a piece, creating files and directories as needed.
func (s *FileStorage) Write(id string, index, offset uint32, data []byte) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	spans, err := storage.Locate(t.meta, index, offset, uint32(len(data)))
	if err != nil {
		return err
	}
	var pos int64
	t.m.Lock()
	defer t.m.Unlock()
	for _, sp := range spans {
		f, err := t.file(sp.File, true)
		if err != nil {
			return err
		}
		if _, err = f.WriteAt(data[pos:pos+sp.Length], sp.Offset); err != nil {
			return err
		}
		pos += sp.Length
	}
	return nil
}

// Flush syncs the open files of the torrent.
func (s *FileStorage) Flush(id string) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.m.Lock()
	defer t.m.Unlock()
	for _, f := range t.files {
		if f == nil {
			continue
		}
		if err = f.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close the files of the torrent.
func (s *FileStorage) Close(id string) error {
	s.m.Lock()
	t, ok := s.torrents[id]
	delete(s.torrents, id)
	s.m.Unlock()
	if !ok {
		return nil
	}
	return t.close()
}

// DeleteAll closes the torrent and removes its files.
func (s *FileStorage) DeleteAll(id string) error {
	s.m.Lock()
	t, ok := s.torrents[id]
	delete(s.torrents, id)
	s.m.Unlock()
	if !ok {
		return storage.ErrNotOpen
	}
	_ = t.close()
	if len(t.meta.Files) == 1 && t.meta.Files[0].Path == t.meta.Name {
		err := os.Remove(filepath.Join(t.dest, t.meta.Name))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(filepath.Join(t.dest, t.meta.Name))
}

func (t *torrentFiles) close() error {
	t.m.Lock()
	defer t.m.Unlock()
	var result error
	for i, f := range t.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && result == nil {
			result = err
		}
		t.files[i] = nil
	}
	return result
}

// file returns the open file at index i. Must be called with t.m held.
func (t *torrentFiles) file(i int, create bool) (*os.File, error) {
	if f := t.files[i]; f != nil {
		return f, nil
	}
	name := filepath.Join(t.dest, filepath.Clean(t.meta.Files[i].Path))
	flag := os.O_RDWR
	if create {
		if err := os.MkdirAll(filepath.Dir(name), dirMode); err != nil {
			return nil, err
		}
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(name, flag, fileMode) // nolint: gosec
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNoData
	}
	if err != nil {
		return nil, err
	}
	if err = disableReadAhead(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	t.files[i] = f
	return f, nil
}
