package torrent

import (
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
)

// peer is the torrent's view of a connected peer. Only the run loop touches it.
type peer struct {
	*peerconn.Conn
	id       arena.Handle
	addr     string
	incoming bool
	connTime time.Time

	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool

	// Peer's id for ut_metadata messages. Zero if not supported.
	metadataID   uint8
	metadataSize uint32
	// Peer has rejected our metadata requests.
	metadataRejected bool

	// Received before we have metadata. Applied when it arrives.
	rawBitfield  []byte
	haveAll      bool
	pendingHaves []uint32

	// Blocks being read from storage for this peer.
	pendingReads int

	downloaded int64
	uploaded   int64
}

func newPeer(conn *peerconn.Conn, addr string, incoming bool) *peer {
	return &peer{
		Conn:        conn,
		addr:        addr,
		incoming:    incoming,
		connTime:    time.Now(),
		amChoking:   true,
		peerChoking: true,
	}
}

// MetadataSize implements infodownloader.Peer.
func (p *peer) MetadataSize() uint32 { return p.metadataSize }

// RequestMetadataPiece implements infodownloader.Peer.
func (p *peer) RequestMetadataPiece(index uint32) {
	p.SendMessage(peerprotocol.ExtensionMessage{
		ExtendedMessageID: p.metadataID,
		Payload: peerprotocol.ExtensionMetadataMessage{
			Type:  peerprotocol.ExtensionMetadataMessageTypeRequest,
			Piece: index,
		},
	})
}

func (p *peer) String() string { return p.addr }
