package torrent

import (
	"sort"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn/peerwriter"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
)

// unchokePeers hands out upload slots to interested peers.
// Peers that gave us the most data are preferred.
// While paused, peers with blocks still being read keep their slot until the reads finish.
func (t *torrent) unchokePeers() {
	canUpload := t.bitfield != nil && t.bitfield.Count() > 0 && !t.isPaused() && t.err == nil
	draining := t.isPaused() && t.err == nil
	var candidates []*peer
	unchoked := 0
	t.peers.Each(func(_ arena.Handle, pe *peer) {
		switch {
		case draining && !pe.amChoking && pe.pendingReads > 0:
		case !canUpload || !pe.peerInterested:
			t.choke(pe)
		case !pe.amChoking:
			unchoked++
		default:
			candidates = append(candidates, pe)
		}
	})
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].downloaded > candidates[j].downloaded
	})
	max := int(t.session.maxUploads.Load())
	for _, pe := range candidates {
		if max >= 0 && unchoked >= max {
			return
		}
		t.unchoke(pe)
		unchoked++
	}
}

func (t *torrent) choke(pe *peer) {
	if pe.amChoking {
		return
	}
	pe.amChoking = true
	if t.isPaused() && t.err == nil {
		pe.SendMessage(peerwriter.DrainingChoke{})
		return
	}
	pe.SendMessage(peerprotocol.ChokeMessage{})
}

func (t *torrent) unchoke(pe *peer) {
	if !pe.amChoking {
		return
	}
	pe.amChoking = false
	pe.SendMessage(peerprotocol.UnchokeMessage{})
}
