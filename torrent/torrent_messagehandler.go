package torrent

import (
	"errors"

	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn/peerwriter"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/piece"
	"github.com/drip-torrent/LibTorrent-swift/internal/scheduler"
)

// maxPendingHaves limits Have messages buffered before metadata is known.
const maxPendingHaves = 1 << 16

func (t *torrent) handlePeerMessage(pm peerMessage) {
	pe := pm.peer
	if cur, ok := t.peers.Get(pe.id); !ok || cur != pe {
		// Message of a closed peer.
		return
	}
	switch msg := pm.Message.(type) {
	case peerprotocol.ChokeMessage:
		pe.peerChoking = true
		if t.sched != nil {
			// The peer discards our requests. Their blocks are free for others now.
			t.sched.Choked(pe.id, true)
			t.requestAll()
		}
	case peerprotocol.UnchokeMessage:
		pe.peerChoking = false
		if t.sched != nil {
			t.sched.Choked(pe.id, false)
			t.requestBlocks(pe)
		}
	case peerprotocol.InterestedMessage:
		pe.peerInterested = true
		t.unchokePeers()
	case peerprotocol.NotInterestedMessage:
		pe.peerInterested = false
		t.unchokePeers()
	case peerprotocol.HaveMessage:
		t.handleHave(pe, msg.Index)
	case peerprotocol.BitfieldMessage:
		t.handleBitfield(pe, msg.Data)
	case peerprotocol.HaveAllMessage:
		t.handleHaveAll(pe)
	case peerprotocol.HaveNoneMessage:
	case peerprotocol.RequestMessage:
		t.handleRequest(pe, msg)
	case peerprotocol.RejectMessage:
		if t.sched != nil && t.sched.Rejected(pe.id, msg.Index, msg.Begin, msg.Length) {
			t.requestBlocks(pe)
		}
	case peerprotocol.CancelMessage:
		pe.CancelRequest(msg)
	case peerprotocol.PieceMessage:
		t.handlePiece(pe, msg)
	case peerprotocol.PortMessage:
		pe.Logger().Debugln("peer sent dht port:", msg.Port)
	case peerprotocol.ExtensionHandshakeMessage:
		t.handleExtensionHandshake(pe, msg)
	case peerprotocol.ExtensionMetadataMessage:
		t.handleMetadataMessage(pe, msg)
	case peerwriter.BlockUploaded:
		n := int64(msg.Length)
		pe.uploaded += n
		t.bytesUploaded += n
		t.uploadSpeed.Mark(n)
		t.session.metrics.uploadSpeed.Mark(n)
		if t.completed {
			t.seeding = true
		}
	default:
		pe.Logger().Debugf("unhandled message type: %T", msg)
	}
}

func (t *torrent) handleHave(pe *peer, index uint32) {
	if t.tracker == nil {
		if len(pe.pendingHaves) < maxPendingHaves {
			pe.pendingHaves = append(pe.pendingHaves, index)
		}
		return
	}
	if index >= t.meta.NumPieces() {
		t.closePeerWithError(pe, "have index out of range: %d", index)
		return
	}
	t.tracker.MarkAvailable(pe.id, index)
	t.updateInterest(pe)
	t.requestBlocks(pe)
}

func (t *torrent) handleBitfield(pe *peer, data []byte) {
	if t.tracker == nil {
		pe.rawBitfield = append([]byte(nil), data...)
		return
	}
	bf, err := bitfield.FromBytes(data, t.meta.NumPieces())
	if err != nil {
		t.closePeerWithError(pe, "%s", err)
		return
	}
	t.tracker.MarkBitfield(pe.id, bf)
	t.updateInterest(pe)
	t.requestBlocks(pe)
}

func (t *torrent) handleHaveAll(pe *peer) {
	if t.tracker == nil {
		pe.haveAll = true
		return
	}
	t.tracker.MarkAll(pe.id)
	t.updateInterest(pe)
	t.requestBlocks(pe)
}

// applyPeerClaims moves the pieces a peer announced before the tracker existed into it.
func (t *torrent) applyPeerClaims(pe *peer) {
	raw, all, haves := pe.rawBitfield, pe.haveAll, pe.pendingHaves
	pe.rawBitfield, pe.haveAll, pe.pendingHaves = nil, false, nil
	switch {
	case all:
		t.tracker.MarkAll(pe.id)
	case raw != nil:
		bf, err := bitfield.FromBytes(raw, t.meta.NumPieces())
		if err != nil {
			t.closePeerWithError(pe, "%s", err)
			return
		}
		t.tracker.MarkBitfield(pe.id, bf)
	}
	for _, i := range haves {
		if i >= t.meta.NumPieces() {
			t.closePeerWithError(pe, "have index out of range: %d", i)
			return
		}
		t.tracker.MarkAvailable(pe.id, i)
	}
	t.updateInterest(pe)
}

func (t *torrent) handleRequest(pe *peer, msg peerprotocol.RequestMessage) {
	if pe.amChoking || t.isPaused() || t.err != nil {
		// Requests sent before our choke reached the peer. A paused torrent only finishes reads in flight.
		return
	}
	if t.bitfield == nil {
		t.closePeerWithError(pe, "request before metadata")
		return
	}
	if msg.Index >= t.meta.NumPieces() || msg.Length == 0 || msg.Length > piece.BlockSize ||
		uint64(msg.Begin)+uint64(msg.Length) > uint64(t.meta.PieceSize(msg.Index)) {
		t.closePeerWithError(pe, "invalid request: %d %d %d", msg.Index, msg.Begin, msg.Length)
		return
	}
	if !t.bitfield.Test(msg.Index) {
		t.closePeerWithError(pe, "request for piece we do not have: %d", msg.Index)
		return
	}
	pe.pendingReads++
	t.storeOps.Add(1)
	go func() {
		defer t.storeOps.Done()
		data, err := t.session.storage.Read(t.storeID, msg.Index, msg.Begin, msg.Length)
		select {
		case t.readResultC <- readResult{peer: pe, req: msg, data: data, err: err}:
		case <-t.closeC:
		}
	}()
}

func (t *torrent) handleReadResult(res readResult) {
	pe := res.peer
	pe.pendingReads--
	if res.err != nil {
		t.storageFailed(res.err)
		return
	}
	if cur, ok := t.peers.Get(pe.id); !ok || cur != pe || pe.amChoking {
		return
	}
	pe.SendPiece(res.req.Index, res.req.Begin, res.data)
	if t.isPaused() && pe.pendingReads == 0 {
		t.choke(pe)
	}
}

func (t *torrent) handlePiece(pe *peer, msg peerprotocol.PieceMessage) {
	if t.sched == nil {
		t.closePeerWithError(pe, "piece before metadata")
		return
	}
	n := int64(len(msg.Data))
	cancels, done, err := t.sched.BlockReceived(pe.id, msg.Index, msg.Begin, uint32(len(msg.Data)))
	switch {
	case errors.Is(err, scheduler.ErrBlockInvalid):
		t.closePeerWithError(pe, "invalid piece message: %d %d %d", msg.Index, msg.Begin, len(msg.Data))
		return
	case err != nil:
		// Late or duplicate block. Endgame makes this normal.
		pe.Logger().Debugln(err, msg.Index, msg.Begin)
		t.bytesWasted += n
		return
	}
	pe.downloaded += n
	t.bytesDownloaded += n
	t.downloadSpeed.Mark(n)
	t.session.metrics.downloadSpeed.Mark(n)

	buf, ok := t.buffers[msg.Index]
	if !ok {
		buf = make([]byte, t.meta.PieceSize(msg.Index))
		t.buffers[msg.Index] = buf
	}
	copy(buf[msg.Begin:], msg.Data)

	for _, r := range cancels {
		if other, ok := t.peers.Get(r.Peer); ok {
			other.SendMessage(cancelMessage(r))
		}
	}
	if done {
		delete(t.buffers, msg.Index)
		t.verify(msg.Index, buf)
	}
	t.requestBlocks(pe)
}

func (t *torrent) handleExtensionHandshake(pe *peer, msg peerprotocol.ExtensionHandshakeMessage) {
	pe.metadataID = msg.M[peerprotocol.ExtensionKeyMetadata]
	if msg.MetadataSize > 0 {
		pe.metadataSize = uint32(msg.MetadataSize)
	}
	pe.Logger().Debugln("extension handshake, client:", msg.V, "metadata size:", msg.MetadataSize)
	if t.meta == nil {
		t.startInfoDownload()
	}
}

func cancelMessage(r scheduler.Request) peerprotocol.CancelMessage {
	return peerprotocol.CancelMessage{RequestMessage: peerprotocol.RequestMessage{
		Index:  r.Piece,
		Begin:  r.Begin,
		Length: r.Length,
	}}
}
