package verifier

import (
	"errors"

	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/storage"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// Checker verifies the pieces already present in a PieceStore.
type Checker struct {
	Bitfield *bitfield.Bitfield
	Error    error

	closeC chan struct{}
	doneC  chan struct{}
}

// Progress information about the check.
type Progress struct {
	Checked uint32
}

// NewChecker returns a new Checker.
func NewChecker() *Checker {
	return &Checker{
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close stops the checker and waits for Run to return.
func (c *Checker) Close() {
	close(c.closeC)
	<-c.doneC
}

// Run reads every piece of the torrent from the store and sets the bits of pieces with a correct hash.
// Pieces that were never written count as missing. Other read errors stop the check.
// The Checker is sent to resultC when done.
func (c *Checker) Run(store storage.PieceStore, id string, m *metainfo.Metadata, progressC chan<- Progress, resultC chan<- *Checker) {
	defer close(c.doneC)
	defer func() {
		select {
		case resultC <- c:
		case <-c.closeC:
		}
	}()

	v := New(m.PieceHashes)
	c.Bitfield = bitfield.New(m.NumPieces())
	for i := uint32(0); i < m.NumPieces(); i++ {
		buf, err := store.Read(id, i, 0, m.PieceSize(i))
		switch {
		case errors.Is(err, storage.ErrNoData):
		case err != nil:
			c.Error = err
			return
		case v.Verify(i, buf):
			c.Bitfield.Set(i)
		}
		if progressC == nil {
			continue
		}
		select {
		case progressC <- Progress{Checked: i + 1}:
		case <-c.closeC:
			return
		}
	}
}
