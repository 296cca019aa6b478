package torrent

import (
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
)

const tickInterval = time.Second

// Torrent event loop
func (t *torrent) run() {
	defer close(t.doneC)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	go t.discover()
	t.start()

	for {
		select {
		case <-t.closeC:
			t.stop()
			return
		case req := <-t.statusCommandC:
			req.Response <- t.status()
		case req := <-t.metadataCommandC:
			req.Response <- t.meta
		case req := <-t.pauseCommandC:
			t.handlePause(req.pause)
			close(req.Response)
		case <-t.wakeC:
			t.startInfoDownload()
			t.dialPeers()
			t.requestAll()
		case res := <-t.resumeResultC:
			t.handleResumeChecked(res)
		case p := <-t.checkerProgressC:
			t.checkedPieces = p.Checked
		case c := <-t.checkerResultC:
			t.handleCheckDone(c)
		case addrs := <-t.addrsC:
			t.handleNewAddrs(addrs)
		case res := <-t.dialResultC:
			t.handleDialResult(res)
		case conn := <-t.incomingConnC:
			t.handleIncomingConn(conn)
		case pe := <-t.peerDisconnectedC:
			t.closePeer(pe, nil)
		case pm := <-t.messages:
			t.handlePeerMessage(pm)
		case res := <-t.verifyResultC:
			t.handleVerifyResult(res)
		case res := <-t.writeResultC:
			t.handleWriteResult(res)
		case res := <-t.readResultC:
			t.handleReadResult(res)
		case now := <-ticker.C:
			t.tick(now)
		}
		t.checkStateChange()
	}
}

// start prepares the torrent depending on what is known about it.
func (t *torrent) start() {
	if t.meta == nil {
		t.lastState = DownloadingMetadata
		t.dialPeers()
		return
	}
	t.setupPieces()
	t.lastState = t.state()
}

func (t *torrent) stop() {
	t.cancel()
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		t.closePeer(pe, nil)
	})
	if t.checker != nil {
		t.checker.Close()
		t.checker = nil
	}
	t.writeStats()
	t.storeOps.Wait()
	if t.storeOpen {
		t.closeStore()
	}
	t.downloadSpeed.Stop()
	t.uploadSpeed.Stop()
}

func (t *torrent) tick(now time.Time) {
	if t.sched != nil {
		expired, unresponsive := t.sched.Expire(now)
		for _, r := range expired {
			if pe, ok := t.peers.Get(r.Peer); ok {
				pe.SendMessage(cancelMessage(r))
			}
		}
		for _, id := range unresponsive {
			if pe, ok := t.peers.Get(id); ok {
				t.closePeer(pe, errUnresponsive)
			}
		}
	}
	t.startInfoDownload()
	t.dialPeers()
	t.requestAll()
	t.unchokePeers()
	if now.Sub(t.statsWrittenAt) >= t.session.config.StatsWriteInterval {
		t.writeStats()
	}
}

func (t *torrent) handlePause(pause bool) {
	if t.paused == pause {
		return
	}
	t.paused = pause
	if t.resumer != nil {
		if err := t.resumer.WritePaused(pause); err != nil {
			t.log.Errorln("cannot save paused state:", err)
		}
	}
	if pause {
		t.log.Info("paused")
		t.event(TorrentPaused, "paused", nil)
		return
	}
	t.log.Info("resumed")
	t.err = nil
	t.event(TorrentResumed, "resumed", nil)
	switch {
	case t.meta != nil && t.sched == nil:
		// Storage could not be opened.
		t.setupPieces()
	case t.needsCheck:
		t.needsCheck = false
		t.startChecker()
	case t.ready() && !t.completed && t.sched.Remaining() == 0:
		// Last flush failed.
		t.complete()
	}
	t.startInfoDownload()
	t.dialPeers()
	t.requestAll()
}

func (t *torrent) checkStateChange() {
	s := t.state()
	if s == t.lastState {
		return
	}
	t.log.Debugf("state changed: %s -> %s", t.lastState, s)
	t.lastState = s
	t.event(StateChanged, "state changed to "+s.String(), nil)
}

func (t *torrent) closeStore() {
	t.storeOpen = false
	if t.deleteFiles {
		if err := t.session.storage.DeleteAll(t.storeID); err != nil {
			t.log.Errorln("cannot delete files:", err)
			t.closeErr = &StorageError{Err: err}
		}
		return
	}
	if err := t.session.storage.Flush(t.storeID); err != nil {
		t.log.Errorln("cannot flush storage:", err)
	}
	if err := t.session.storage.Close(t.storeID); err != nil {
		t.log.Errorln("cannot close storage:", err)
		t.closeErr = &StorageError{Err: err}
	}
}
