package torrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueDropsOldest(t *testing.T) {
	q := newEventQueue(2)
	q.push(Event{Type: TorrentAdded})
	q.push(Event{Type: PieceFinished})
	q.push(Event{Type: TorrentFinished})

	events := q.drain()
	if assert.Len(t, events, 2) {
		assert.Equal(t, PieceFinished, events[0].Type)
		assert.Equal(t, TorrentFinished, events[1].Type)
		assert.False(t, events[0].Time.IsZero())
	}
	assert.Equal(t, 1, q.dropped)
	assert.Empty(t, q.drain())
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "storage_error", StorageFailed.String())
	assert.Equal(t, "torrent_finished", TorrentFinished.String())
	assert.Equal(t, "event(99)", EventType(99).String())
}
