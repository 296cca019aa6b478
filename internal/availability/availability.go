// Package availability counts how many connected peers claim each piece of a torrent.
package availability

import (
	"sync"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/google/btree"
)

// PeerID identifies a peer connection of a torrent.
type PeerID = arena.Handle

type rarity struct {
	count int
	index uint32
}

func lessRarity(a, b rarity) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	return a.index < b.index
}

// Tracker keeps a reference count per piece and a reverse index of the pieces claimed by each peer.
// It never holds peer objects, only their IDs.
type Tracker struct {
	mu        sync.RWMutex
	counts    []int
	claims    map[PeerID]*bitfield.Bitfield
	order     *btree.BTreeG[rarity]
	available uint32
}

// New returns a Tracker for a torrent with numPieces pieces.
func New(numPieces uint32) *Tracker {
	t := &Tracker{
		counts: make([]int, numPieces),
		claims: make(map[PeerID]*bitfield.Bitfield),
		order:  btree.NewG(16, lessRarity),
	}
	for i := uint32(0); i < numPieces; i++ {
		t.order.ReplaceOrInsert(rarity{index: i})
	}
	return t
}

// NumPieces returns the number of pieces tracked.
func (t *Tracker) NumPieces() uint32 { return uint32(len(t.counts)) }

// MarkAvailable records that peer has the piece. Repeated claims are counted once.
func (t *Tracker) MarkAvailable(peer PeerID, index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markAvailable(peer, index)
}

// MarkBitfield records every set bit of bf as claimed by peer.
func (t *Tracker) MarkBitfield(peer PeerID, bf *bitfield.Bitfield) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bf.ForEach(func(i uint32) { t.markAvailable(peer, i) })
}

// MarkAll records that peer has every piece.
func (t *Tracker) MarkAll(peer PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.counts {
		t.markAvailable(peer, uint32(i))
	}
}

// MarkUnavailable retracts a single claim of peer.
func (t *Tracker) MarkUnavailable(peer PeerID, index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bf, ok := t.claims[peer]
	if !ok || index >= uint32(len(t.counts)) || !bf.Test(index) {
		return
	}
	bf.Clear(index)
	t.add(index, -1)
}

// RemovePeer retracts all claims of peer in one step.
// Concurrent queries observe either all of its contributions or none.
func (t *Tracker) RemovePeer(peer PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bf, ok := t.claims[peer]
	if !ok {
		return
	}
	delete(t.claims, peer)
	bf.ForEach(func(i uint32) { t.add(i, -1) })
}

// RarityOf returns the number of peers currently claiming the piece.
// It returns zero for an index out of range.
func (t *Tracker) RarityOf(index uint32) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index >= uint32(len(t.counts)) {
		return 0
	}
	return t.counts[index]
}

// Has returns true if peer claims the piece.
func (t *Tracker) Has(peer PeerID, index uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bf, ok := t.claims[peer]
	return ok && index < bf.Len() && bf.Test(index)
}

// Count returns the number of pieces claimed by peer.
func (t *Tracker) Count(peer PeerID) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bf, ok := t.claims[peer]; ok {
		return bf.Count()
	}
	return 0
}

// CandidatePeersFor returns the peers claiming the piece.
func (t *Tracker) CandidatePeersFor(index uint32) []PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index >= uint32(len(t.counts)) {
		return nil
	}
	var peers []PeerID
	for pe, bf := range t.claims {
		if bf.Test(index) {
			peers = append(peers, pe)
		}
	}
	return peers
}

// Snapshot returns a copy of all counts taken under a single lock.
func (t *Tracker) Snapshot() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]int(nil), t.counts...)
}

// Available returns the number of pieces claimed by at least one peer.
func (t *Tracker) Available() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.available
}

// Ascend calls fn for every piece from the rarest to the most common.
// Pieces with equal rarity are visited in index order. Iteration stops when fn returns false.
// fn must not call methods of the Tracker.
func (t *Tracker) Ascend(fn func(index uint32, count int) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.order.Ascend(func(r rarity) bool { return fn(r.index, r.count) })
}

func (t *Tracker) markAvailable(peer PeerID, index uint32) {
	if index >= uint32(len(t.counts)) {
		return
	}
	bf, ok := t.claims[peer]
	if !ok {
		bf = bitfield.New(uint32(len(t.counts)))
		t.claims[peer] = bf
	}
	if bf.Test(index) {
		return
	}
	bf.Set(index)
	t.add(index, 1)
}

func (t *Tracker) add(index uint32, delta int) {
	old := t.counts[index]
	n := old + delta
	if n < 0 {
		panic("availability: negative count")
	}
	t.order.Delete(rarity{count: old, index: index})
	t.order.ReplaceOrInsert(rarity{count: n, index: index})
	t.counts[index] = n
	switch {
	case old == 0 && n > 0:
		t.available++
	case old > 0 && n == 0:
		t.available--
	}
}
