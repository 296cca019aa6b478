// Package infodownloader fetches the info dictionary of a torrent from a peer
// with the metadata extension, one 16 KiB piece at a time.
package infodownloader

import (
	"errors"
	"fmt"

	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
)

// MaxMetadataSize is the largest info dictionary we accept from a peer.
const MaxMetadataSize = 16 << 20

var (
	// ErrInvalidSize is returned by New if the size announced by the peer is zero or too large.
	ErrInvalidSize = errors.New("invalid metadata size")
	// ErrRejected is returned by Rejected. The peer does not have the metadata.
	ErrRejected = errors.New("peer rejected metadata request")
)

const blockSize = peerprotocol.MetadataPieceSize

// Peer is the remote side of a metadata download.
type Peer interface {
	MetadataSize() uint32
	RequestMetadataPiece(index uint32)
}

// InfoDownloader downloads all pieces of the info dictionary from a peer.
type InfoDownloader struct {
	Peer  Peer
	Bytes []byte

	blocks         []block
	pending        int // in-flight requests
	nextBlockIndex uint32
}

type block struct {
	size      uint32
	requested bool
	received  bool
}

// New returns a downloader for the metadata size announced by pe.
func New(pe Peer) (*InfoDownloader, error) {
	size := pe.MetadataSize()
	if size == 0 || size > MaxMetadataSize {
		return nil, ErrInvalidSize
	}
	d := &InfoDownloader{
		Peer:  pe,
		Bytes: make([]byte, size),
	}
	d.blocks = d.createBlocks()
	return d, nil
}

// GotBlock copies the data of a metadata piece.
func (d *InfoDownloader) GotBlock(index uint32, data []byte) error {
	if index >= uint32(len(d.blocks)) {
		return fmt.Errorf("peer sent invalid metadata piece index: %d", index)
	}
	b := &d.blocks[index]
	if !b.requested || b.received {
		return fmt.Errorf("peer sent unrequested index for metadata message: %d", index)
	}
	if uint32(len(data)) != b.size {
		return fmt.Errorf("peer sent invalid size for metadata message: %d", len(data))
	}
	b.received = true
	d.pending--
	begin := index * blockSize
	copy(d.Bytes[begin:begin+b.size], data)
	return nil
}

// Rejected is called when the peer rejects a metadata request.
func (d *InfoDownloader) Rejected(index uint32) error {
	return fmt.Errorf("%w: piece %d", ErrRejected, index)
}

func (d *InfoDownloader) createBlocks() []block {
	size := d.Peer.MetadataSize()
	numBlocks := size / blockSize
	mod := size % blockSize
	if mod != 0 {
		numBlocks++
	}
	blocks := make([]block, numBlocks)
	for i := range blocks {
		blocks[i] = block{size: blockSize}
	}
	if mod != 0 {
		blocks[len(blocks)-1].size = mod
	}
	return blocks
}

// RequestBlocks requests pieces until queueLength requests are in flight.
func (d *InfoDownloader) RequestBlocks(queueLength int) {
	for ; d.nextBlockIndex < uint32(len(d.blocks)) && d.pending < queueLength; d.nextBlockIndex++ {
		d.Peer.RequestMetadataPiece(d.nextBlockIndex)
		d.blocks[d.nextBlockIndex].requested = true
		d.pending++
	}
}

// Done returns true when all pieces are received.
func (d *InfoDownloader) Done() bool {
	return d.nextBlockIndex == uint32(len(d.blocks)) && d.pending == 0
}
