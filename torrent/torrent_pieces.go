package torrent

import (
	"strconv"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/availability"
	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/piece"
	"github.com/drip-torrent/LibTorrent-swift/internal/resumer"
	"github.com/drip-torrent/LibTorrent-swift/internal/scheduler"
	"github.com/drip-torrent/LibTorrent-swift/internal/verifier"
)

// setupPieces builds the piece state once metadata is known and starts checking existing data.
func (t *torrent) setupPieces() {
	cfg := t.session.config
	if err := t.session.storage.Open(t.storeID, t.meta, t.savePath); err != nil {
		t.storageFailed(err)
		return
	}
	t.storeOpen = true
	n := t.meta.NumPieces()
	t.pieces = piece.NewPieces(t.meta.TotalSize, t.meta.PieceLength)
	t.bitfield = bitfield.New(n)
	t.tracker = availability.New(n)
	t.sched = scheduler.New(t.pieces, t.tracker, scheduler.Config{
		EndgamePieces:      cfg.EndgamePieces,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestTimeouts: cfg.MaxRequestTimeouts,
	})
	t.verifier = verifier.New(t.meta.PieceHashes)
	t.buffers = make(map[uint32][]byte)
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		t.sched.AddPeer(pe.id)
		t.sched.Choked(pe.id, pe.peerChoking)
	})

	if t.resumeBitfield != nil {
		raw := t.resumeBitfield
		t.resumeBitfield = nil
		t.checkingResume = true
		go func() {
			bf, err := bitfield.FromBytes(raw, n)
			select {
			case t.resumeResultC <- resumeResult{bitfield: bf, err: err}:
			case <-t.closeC:
			}
		}()
	} else {
		t.startChecker()
	}
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		t.applyPeerClaims(pe)
	})
}

func (t *torrent) startChecker() {
	t.checkedPieces = 0
	t.checker = verifier.NewChecker()
	go t.checker.Run(t.session.storage, t.storeID, t.meta, t.checkerProgressC, t.checkerResultC)
}

func (t *torrent) handleResumeChecked(res resumeResult) {
	t.checkingResume = false
	if res.err != nil {
		t.log.Warningln("invalid resume bitfield, checking files:", res.err)
		t.startChecker()
		return
	}
	t.log.Debugln("loaded resume data,", res.bitfield.Count(), "pieces")
	t.applyBitfield(res.bitfield)
}

func (t *torrent) handleCheckDone(c *verifier.Checker) {
	if c != t.checker {
		return
	}
	t.checker = nil
	if c.Error != nil {
		t.needsCheck = true
		t.storageFailed(c.Error)
		return
	}
	t.log.Infoln("check finished,", c.Bitfield.Count(), "of", c.Bitfield.Len(), "pieces present")
	t.applyBitfield(c.Bitfield)
	t.writeBitfield()
}

// applyBitfield marks the pieces found on disk complete and starts downloading the rest.
func (t *torrent) applyBitfield(bf *bitfield.Bitfield) {
	bf.ForEach(func(i uint32) {
		t.bitfield.Set(i)
		t.sched.MarkComplete(i)
	})
	if t.sched.Remaining() == 0 {
		t.completed = true
	}
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		// Peers connected during the check did not get our bitfield.
		if t.bitfield.Count() > 0 {
			pe.SendMessage(peerprotocol.BitfieldMessage{Data: t.bitfield.Copy().Bytes()})
		}
		t.updateInterest(pe)
	})
	t.unchokePeers()
	t.requestAll()
}

// ready returns true when pieces can be requested.
func (t *torrent) ready() bool {
	return t.sched != nil && t.checker == nil && !t.checkingResume
}

func (t *torrent) requestAll() {
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		t.requestBlocks(pe)
	})
}

func (t *torrent) requestBlocks(pe *peer) {
	if !t.ready() || t.completed || t.isPaused() || t.err != nil {
		return
	}
	if pe.peerChoking {
		t.updateInterest(pe)
		return
	}
	for _, r := range t.sched.NextRequestsFor(pe.id, t.session.config.RequestQueueLength) {
		pe.SendMessage(peerprotocol.RequestMessage{Index: r.Piece, Begin: r.Begin, Length: r.Length})
	}
}

func (t *torrent) updateInterest(pe *peer) {
	if t.sched == nil {
		return
	}
	interested := !t.completed && t.sched.Interesting(pe.id)
	if interested == pe.amInterested {
		return
	}
	pe.amInterested = interested
	if interested {
		pe.SendMessage(peerprotocol.InterestedMessage{})
	} else {
		pe.SendMessage(peerprotocol.NotInterestedMessage{})
	}
}

func (t *torrent) verify(index uint32, data []byte) {
	v := t.verifier
	go func() {
		ok := v.Verify(index, data)
		select {
		case t.verifyResultC <- verifyResult{index: index, data: data, ok: ok}:
		case <-t.closeC:
		}
	}()
}

func (t *torrent) handleVerifyResult(res verifyResult) {
	if !res.ok {
		t.sched.PieceVerified(res.index, false)
		t.bytesWasted += int64(len(res.data))
		err := &VerificationError{Piece: res.index}
		t.log.Debugln(err)
		t.event(HashFailed, err.Error(), err)
		t.requestAll()
		return
	}
	t.storeOps.Add(1)
	go func() {
		defer t.storeOps.Done()
		err := t.session.storage.Write(t.storeID, res.index, 0, res.data)
		select {
		case t.writeResultC <- writeResult{index: res.index, err: err}:
		case <-t.closeC:
		}
	}()
}

func (t *torrent) handleWriteResult(res writeResult) {
	if res.err != nil {
		t.sched.PieceVerified(res.index, false)
		t.storageFailed(res.err)
		return
	}
	t.sched.PieceVerified(res.index, true)
	t.bitfield.Set(res.index)
	t.log.Debugln("piece finished:", res.index)
	t.event(PieceFinished, "piece finished: "+strconv.FormatUint(uint64(res.index), 10), nil)
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		pe.SendMessage(peerprotocol.HaveMessage{Index: res.index})
		t.updateInterest(pe)
	})
	t.writeBitfield()
	if t.sched.Remaining() == 0 {
		t.complete()
	}
}

func (t *torrent) complete() {
	if err := t.session.storage.Flush(t.storeID); err != nil {
		t.storageFailed(err)
		return
	}
	t.completed = true
	t.log.Info("download finished")
	t.event(TorrentFinished, "torrent finished downloading", nil)
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		t.updateInterest(pe)
	})
	t.writeStats()
}

// storageFailed stops the torrent after a PieceStore error. Only the first error is reported.
func (t *torrent) storageFailed(err error) {
	if t.err != nil {
		return
	}
	serr := &StorageError{Err: err}
	t.err = serr
	t.paused = true
	t.log.Errorln(serr)
	if t.resumer != nil {
		if werr := t.resumer.WritePaused(true); werr != nil {
			t.log.Errorln("cannot save paused state:", werr)
		}
	}
	t.event(StorageFailed, serr.Error(), serr)
}

func (t *torrent) writeBitfield() {
	if t.resumer == nil || t.bitfield == nil {
		return
	}
	if err := t.resumer.WriteBitfield(t.bitfield.Bytes()); err != nil {
		t.log.Errorln("cannot write bitfield to resume db:", err)
	}
}

func (t *torrent) writeStats() {
	t.statsWrittenAt = time.Now()
	if t.resumer == nil {
		return
	}
	err := t.resumer.WriteStats(resumer.Stats{
		BytesDownloaded: t.bytesDownloaded,
		BytesUploaded:   t.bytesUploaded,
		BytesWasted:     t.bytesWasted,
	})
	if err != nil {
		t.log.Errorln("cannot write stats to resume db:", err)
	}
}
