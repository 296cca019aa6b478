package torrent

import (
	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/infodownloader"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// startInfoDownload picks a peer that announced the metadata extension and starts fetching the info dict.
func (t *torrent) startInfoDownload() {
	if t.meta != nil || t.infoDownloader != nil || t.isPaused() {
		return
	}
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		if t.infoDownloader != nil || pe.metadataID == 0 || pe.metadataRejected {
			return
		}
		d, err := infodownloader.New(pe)
		if err != nil {
			pe.Logger().Debugln("cannot download metadata from peer:", err)
			pe.metadataRejected = true
			return
		}
		pe.Logger().Debugln("downloading metadata,", pe.metadataSize, "bytes")
		t.infoDownloader = d
		d.RequestBlocks(t.session.config.RequestQueueLength)
	})
}

func (t *torrent) handleMetadataMessage(pe *peer, msg peerprotocol.ExtensionMetadataMessage) {
	switch msg.Type {
	case peerprotocol.ExtensionMetadataMessageTypeRequest:
		t.serveMetadata(pe, msg.Piece)
	case peerprotocol.ExtensionMetadataMessageTypeData:
		d := t.infoDownloader
		if d == nil || d.Peer != pe {
			pe.Logger().Debugln("unexpected metadata piece:", msg.Piece)
			return
		}
		if err := d.GotBlock(msg.Piece, msg.Data); err != nil {
			t.closePeerWithError(pe, "%s", err)
			return
		}
		if !d.Done() {
			d.RequestBlocks(t.session.config.RequestQueueLength)
			return
		}
		t.infoDownloader = nil
		m, err := metainfo.ParseInfo(d.Bytes, t.infoHash)
		if err != nil {
			pe.metadataRejected = true
			t.log.Debugln("invalid metadata from", pe, err)
			t.event(PeerError, "invalid metadata from "+pe.addr, &ConnectionError{Addr: pe.addr, Err: err})
			t.closePeer(pe, err)
			return
		}
		t.gotMetadata(m)
	case peerprotocol.ExtensionMetadataMessageTypeReject:
		d := t.infoDownloader
		if d == nil || d.Peer != pe {
			return
		}
		pe.Logger().Debugln(d.Rejected(msg.Piece))
		pe.metadataRejected = true
		t.infoDownloader = nil
		t.startInfoDownload()
	}
}

// serveMetadata answers a ut_metadata request with a piece of our info dict.
func (t *torrent) serveMetadata(pe *peer, index uint32) {
	if pe.metadataID == 0 {
		return
	}
	reply := peerprotocol.ExtensionMetadataMessage{
		Type:  peerprotocol.ExtensionMetadataMessageTypeReject,
		Piece: index,
	}
	if t.meta != nil && !t.meta.Private {
		size := uint64(len(t.meta.Info))
		begin := uint64(index) * peerprotocol.MetadataPieceSize
		if begin < size {
			end := begin + peerprotocol.MetadataPieceSize
			if end > size {
				end = size
			}
			reply.Type = peerprotocol.ExtensionMetadataMessageTypeData
			reply.TotalSize = int(size)
			reply.Data = t.meta.Info[begin:end]
		}
	}
	pe.SendMessage(peerprotocol.ExtensionMessage{ExtendedMessageID: pe.metadataID, Payload: reply})
}

func (t *torrent) gotMetadata(m *metainfo.Metadata) {
	t.meta = m
	t.log.Infoln("metadata received:", m.Name)
	if t.resumer != nil {
		if err := t.resumer.WriteMetadata(m); err != nil {
			t.log.Errorln("cannot write metadata to resume db:", err)
		}
	}
	t.event(MetadataReceived, "metadata received", nil)
	t.setupPieces()
}
