package torrent

import (
	"fmt"
	"sync"
	"time"
)

// EventType tells what an Event is about.
type EventType int

// Event types
const (
	TorrentAdded EventType = iota
	TorrentRemoved
	MetadataReceived
	StateChanged
	PieceFinished
	HashFailed
	TorrentFinished
	TorrentPaused
	TorrentResumed
	PeerConnected
	PeerDisconnected
	PeerError
	StorageFailed
	SessionPaused
	SessionResumed
	ListenFailed
)

var eventTypeStrings = map[EventType]string{
	TorrentAdded:     "torrent_added",
	TorrentRemoved:   "torrent_removed",
	MetadataReceived: "metadata_received",
	StateChanged:     "state_changed",
	PieceFinished:    "piece_finished",
	HashFailed:       "hash_failed",
	TorrentFinished:  "torrent_finished",
	TorrentPaused:    "torrent_paused",
	TorrentResumed:   "torrent_resumed",
	PeerConnected:    "peer_connected",
	PeerDisconnected: "peer_disconnected",
	PeerError:        "peer_error",
	StorageFailed:    "storage_error",
	SessionPaused:    "session_paused",
	SessionResumed:   "session_resumed",
	ListenFailed:     "listen_failed",
}

func (t EventType) String() string {
	if s, ok := eventTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is an alert about something that happened in the session.
type Event struct {
	Time time.Time
	Type EventType
	// Zero for session events.
	TorrentID ID
	Message   string
	// Set for errors, one of the types in error.go.
	Err error
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s: %s", e.Time.Format("15:04:05"), e.Type, e.Message)
}

// eventQueue has many producers and a single consumer that drains all events at once.
type eventQueue struct {
	m       sync.Mutex
	events  []Event
	max     int
	dropped int
}

func newEventQueue(max int) *eventQueue {
	return &eventQueue{max: max}
}

func (q *eventQueue) push(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	q.m.Lock()
	defer q.m.Unlock()
	if q.max > 0 && len(q.events) >= q.max {
		q.events = q.events[1:]
		q.dropped++
	}
	q.events = append(q.events, e)
}

func (q *eventQueue) drain() []Event {
	q.m.Lock()
	defer q.m.Unlock()
	events := q.events
	q.events = nil
	return events
}
