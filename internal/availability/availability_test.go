package availability

import (
	"sync"
	"testing"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/stretchr/testify/assert"
)

func newPeers(n int) []PeerID {
	var a arena.Arena[struct{}]
	ids := make([]PeerID, n)
	for i := range ids {
		ids[i] = a.Insert(struct{}{})
	}
	return ids
}

func TestMarkRoundTrip(t *testing.T) {
	p := newPeers(2)
	tr := New(4)
	tr.MarkAvailable(p[1], 2)
	before := tr.RarityOf(2)

	tr.MarkAvailable(p[0], 2)
	assert.Equal(t, before+1, tr.RarityOf(2))
	tr.MarkUnavailable(p[0], 2)
	assert.Equal(t, before, tr.RarityOf(2))

	// retracting a claim that was never made changes nothing
	tr.MarkUnavailable(p[0], 2)
	assert.Equal(t, before, tr.RarityOf(2))
}

func TestDuplicateClaimCountedOnce(t *testing.T) {
	p := newPeers(1)
	tr := New(2)
	tr.MarkAvailable(p[0], 1)
	tr.MarkAvailable(p[0], 1)
	assert.Equal(t, 1, tr.RarityOf(1))
	assert.Equal(t, uint32(1), tr.Available())
}

func TestOutOfRangeIndex(t *testing.T) {
	p := newPeers(1)
	tr := New(3)
	tr.MarkAvailable(p[0], 3)
	tr.MarkUnavailable(p[0], 7)
	assert.Equal(t, 0, tr.RarityOf(3))
	assert.Equal(t, 0, tr.RarityOf(100))
	assert.False(t, tr.Has(p[0], 100))
	assert.Empty(t, tr.CandidatePeersFor(100))
	assert.Equal(t, uint32(0), tr.Available())
}

func TestRemovePeerRetractsAll(t *testing.T) {
	p := newPeers(2)
	tr := New(5)
	bf := bitfield.New(5)
	bf.Set(0)
	bf.Set(3)
	bf.Set(4)
	tr.MarkBitfield(p[0], bf)
	tr.MarkAll(p[1])
	before := tr.Snapshot()

	tr.RemovePeer(p[0])
	after := tr.Snapshot()
	for i := range before {
		if bf.Test(uint32(i)) {
			assert.Equal(t, before[i]-1, after[i], "piece %d", i)
		} else {
			assert.Equal(t, before[i], after[i], "piece %d", i)
		}
	}
	assert.False(t, tr.Has(p[0], 0))
	assert.Equal(t, []PeerID{p[1]}, tr.CandidatePeersFor(3))
}

func TestAscendRarestFirst(t *testing.T) {
	p := newPeers(2)
	tr := New(4)
	tr.MarkAll(p[0])
	tr.MarkAvailable(p[1], 0)
	tr.MarkAvailable(p[1], 3)

	var order []uint32
	tr.Ascend(func(i uint32, _ int) bool {
		order = append(order, i)
		return true
	})
	assert.Equal(t, []uint32{1, 2, 0, 3}, order)
}

func TestRetractionIsAtomic(t *testing.T) {
	p := newPeers(1)
	tr := New(64)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			sum := 0
			for _, c := range tr.Snapshot() {
				sum += c
			}
			if sum != 0 && sum != 64 {
				t.Errorf("partial retraction observed: %d", sum)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		tr.MarkAll(p[0])
		tr.RemovePeer(p[0])
	}
	close(stop)
	wg.Wait()
}
