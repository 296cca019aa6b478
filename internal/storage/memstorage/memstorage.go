// Package memstorage implements storage.PieceStore in memory.
package memstorage

import (
	"errors"
	"sync"

	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/storage"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// ErrInjected is returned by operations after Fail or FailNextFlush has been called.
var ErrInjected = errors.New("memstorage: injected failure")

// MemStorage keeps torrent data in byte slices.
type MemStorage struct {
	m         sync.Mutex
	torrents  map[string]*torrentData
	fail      bool
	failFlush bool
	flushes   int
}

type torrentData struct {
	meta    *metainfo.Metadata
	data    []byte
	written *bitfield.Bitfield
}

var _ storage.PieceStore = (*MemStorage)(nil)

// New returns an empty MemStorage.
func New() *MemStorage {
	return &MemStorage{torrents: make(map[string]*torrentData)}
}

// Fail makes subsequent reads and writes return ErrInjected.
func (s *MemStorage) Fail() {
	s.m.Lock()
	s.fail = true
	s.m.Unlock()
}

// FailNextFlush makes the next Flush return ErrInjected.
func (s *MemStorage) FailNextFlush() {
	s.m.Lock()
	s.failFlush = true
	s.m.Unlock()
}

// Preload stores data as if it had been downloaded. The torrent must be open.
func (s *MemStorage) Preload(id string, data []byte) error {
	s.m.Lock()
	defer s.m.Unlock()
	t, ok := s.torrents[id]
	if !ok {
		return storage.ErrNotOpen
	}
	copy(t.data, data)
	t.written.SetAll()
	return nil
}

// Data returns a copy of the stored bytes of the torrent.
func (s *MemStorage) Data(id string) []byte {
	s.m.Lock()
	defer s.m.Unlock()
	if t, ok := s.torrents[id]; ok {
		return append([]byte(nil), t.data...)
	}
	return nil
}

// Flushes returns the number of Flush calls.
func (s *MemStorage) Flushes() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.flushes
}

func (s *MemStorage) Open(id string, m *metainfo.Metadata, savePath string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.torrents[id]; !ok {
		s.torrents[id] = &torrentData{
			meta:    m,
			data:    make([]byte, m.TotalSize),
			written: bitfield.New(m.NumPieces()),
		}
	}
	return nil
}

func (s *MemStorage) Read(id string, index, offset, length uint32) ([]byte, error) {
	s.m.Lock()
	defer s.m.Unlock()
	t, begin, err := s.locate(id, index, offset, length)
	if err != nil {
		return nil, err
	}
	if !t.written.Test(index) {
		return nil, storage.ErrNoData
	}
	return append([]byte(nil), t.data[begin:begin+int64(length)]...), nil
}

func (s *MemStorage) Write(id string, index, offset uint32, data []byte) error {
	s.m.Lock()
	defer s.m.Unlock()
	t, begin, err := s.locate(id, index, offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(t.data[begin:], data)
	t.written.Set(index)
	return nil
}

func (s *MemStorage) Flush(id string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.torrents[id]; !ok {
		return storage.ErrNotOpen
	}
	if s.failFlush {
		s.failFlush = false
		return ErrInjected
	}
	s.flushes++
	return nil
}

// Close keeps the data so that a torrent can be reopened.
func (s *MemStorage) Close(id string) error { return nil }

func (s *MemStorage) DeleteAll(id string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.torrents[id]; !ok {
		return storage.ErrNotOpen
	}
	delete(s.torrents, id)
	return nil
}

func (s *MemStorage) locate(id string, index, offset, length uint32) (*torrentData, int64, error) {
	if s.fail {
		return nil, 0, ErrInjected
	}
	t, ok := s.torrents[id]
	if !ok {
		return nil, 0, storage.ErrNotOpen
	}
	if index >= t.meta.NumPieces() || uint64(offset)+uint64(length) > uint64(t.meta.PieceSize(index)) {
		return nil, 0, storage.ErrOutOfRange
	}
	return t, int64(index)*int64(t.meta.PieceLength) + int64(offset), nil
}
