package torrent

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/availability"
	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/infodownloader"
	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/piece"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
	"github.com/drip-torrent/LibTorrent-swift/internal/resumer"
	"github.com/drip-torrent/LibTorrent-swift/internal/scheduler"
	"github.com/drip-torrent/LibTorrent-swift/internal/verifier"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// torrent owns the state of a single download. All fields below the channels are
// accessed only from the run loop unless noted otherwise.
type torrent struct {
	session *Session
	id      ID
	log     logger.Logger

	// Immutable after creation.
	infoHash    []byte
	wireHash    [20]byte
	storeID     string
	savePath    string
	magnetName  string
	magnetPeers []string
	addedAt     time.Time

	// Shared by the peer connections. Safe for concurrent use.
	downloadLimiter *ratelimiter.Limiter
	uploadLimiter   *ratelimiter.Limiter
	downloadSpeed   metrics.Meter
	uploadSpeed     metrics.Meter

	// Commands from Session.
	statusCommandC   chan statusRequest
	metadataCommandC chan metadataRequest
	pauseCommandC    chan pauseRequest
	wakeC            chan struct{}

	// Results of goroutines started by the run loop.
	messages          chan peerMessage
	peerDisconnectedC chan *peer
	dialResultC       chan dialResult
	incomingConnC     chan *peerconn.Conn
	addrsC            chan []string
	verifyResultC     chan verifyResult
	writeResultC      chan writeResult
	readResultC       chan readResult
	resumeResultC     chan resumeResult
	checkerProgressC  chan verifier.Progress
	checkerResultC    chan *verifier.Checker

	ctx    context.Context
	cancel context.CancelFunc
	closeC chan struct{}
	doneC  chan struct{}

	// Set before closeC is closed. closeErr is read after doneC is closed.
	deleteFiles bool
	closeErr    error

	// Pending PieceStore reads and writes.
	storeOps sync.WaitGroup

	// Nil until metadata is known.
	meta      *metainfo.Metadata
	pieces    []piece.Piece
	bitfield  *bitfield.Bitfield
	tracker   *availability.Tracker
	sched     *scheduler.Scheduler
	verifier  *verifier.PieceVerifier
	buffers   map[uint32][]byte
	storeOpen bool

	// Bitfield from resume data, consumed when the torrent starts.
	resumeBitfield []byte

	checker        *verifier.Checker
	checkedPieces  uint32
	checkingResume bool
	// Check stopped by a storage error. Restarted on resume.
	needsCheck bool

	peers          arena.Arena[*peer]
	peerAddrs      map[string]struct{}
	knownAddrs     []string
	dialing        int
	infoDownloader *infodownloader.InfoDownloader

	paused    bool
	completed bool
	seeding   bool
	err       error
	lastState State

	bytesDownloaded int64
	bytesUploaded   int64
	bytesWasted     int64
	statsWrittenAt  time.Time

	resumer resumer.Resumer
}

type peerMessage struct {
	*peer
	Message interface{}
}

type dialResult struct {
	addr string
	conn *peerconn.Conn
	err  error
}

type verifyResult struct {
	index uint32
	data  []byte
	ok    bool
}

type writeResult struct {
	index uint32
	err   error
}

type readResult struct {
	peer *peer
	req  peerprotocol.RequestMessage
	data []byte
	err  error
}

type resumeResult struct {
	bitfield *bitfield.Bitfield
	err      error
}

type statusRequest struct {
	Response chan Status
}

type metadataRequest struct {
	Response chan *metainfo.Metadata
}

type pauseRequest struct {
	pause    bool
	Response chan struct{}
}

type torrentOptions struct {
	infoHash       []byte
	meta           *metainfo.Metadata
	name           string
	peers          []string
	savePath       string
	addedAt        time.Time
	paused         bool
	resumeBitfield []byte
	stats          resumer.Stats
}

func newTorrent(s *Session, opts torrentOptions) *torrent {
	ctx, cancel := context.WithCancel(context.Background())
	ih := opts.infoHash
	if opts.meta != nil {
		ih = opts.meta.InfoHash
	}
	t := &torrent{
		session:           s,
		infoHash:          ih,
		wireHash:          peerprotocol.WireHash(ih),
		storeID:           hex.EncodeToString(ih),
		savePath:          opts.savePath,
		magnetName:        opts.name,
		magnetPeers:       opts.peers,
		addedAt:           opts.addedAt,
		downloadLimiter:   ratelimiter.New(0),
		uploadLimiter:     ratelimiter.New(0),
		downloadSpeed:     metrics.NewMeter(),
		uploadSpeed:       metrics.NewMeter(),
		statusCommandC:    make(chan statusRequest),
		metadataCommandC:  make(chan metadataRequest),
		pauseCommandC:     make(chan pauseRequest),
		wakeC:             make(chan struct{}, 1),
		messages:          make(chan peerMessage),
		peerDisconnectedC: make(chan *peer),
		dialResultC:       make(chan dialResult),
		incomingConnC:     make(chan *peerconn.Conn),
		addrsC:            make(chan []string),
		verifyResultC:     make(chan verifyResult),
		writeResultC:      make(chan writeResult),
		readResultC:       make(chan readResult),
		resumeResultC:     make(chan resumeResult),
		checkerProgressC:  make(chan verifier.Progress),
		checkerResultC:    make(chan *verifier.Checker),
		ctx:               ctx,
		cancel:            cancel,
		closeC:            make(chan struct{}),
		doneC:             make(chan struct{}),
		meta:              opts.meta,
		resumeBitfield:    opts.resumeBitfield,
		peerAddrs:         make(map[string]struct{}),
		paused:            opts.paused,
		bytesDownloaded:   opts.stats.BytesDownloaded,
		bytesUploaded:     opts.stats.BytesUploaded,
		bytesWasted:       opts.stats.BytesWasted,
	}
	t.knownAddrs = append(t.knownAddrs, opts.peers...)
	if t.addedAt.IsZero() {
		t.addedAt = time.Now()
	}
	return t
}

// setID is called by Session once the torrent has a slot in the arena.
func (t *torrent) setID(id ID) {
	t.id = id
	t.log = logger.New("torrent " + id.String())
}

func (t *torrent) name() string {
	if t.meta != nil {
		return t.meta.Name
	}
	if t.magnetName != "" {
		return t.magnetName
	}
	return t.storeID
}

func (t *torrent) isPaused() bool {
	return t.paused || t.session.paused.Load()
}

func (t *torrent) event(typ EventType, msg string, err error) {
	t.session.events.push(Event{Type: typ, TorrentID: t.id, Message: t.name() + ": " + msg, Err: err})
}

// close stops the run loop and waits for it to finish.
// Downloaded data is removed from the PieceStore if deleteFiles is true.
func (t *torrent) close(deleteFiles bool) error {
	t.deleteFiles = deleteFiles
	close(t.closeC)
	<-t.doneC
	return t.closeErr
}

// wake makes the run loop retry dialing and requesting. Does not block.
func (t *torrent) wake() {
	select {
	case t.wakeC <- struct{}{}:
	default:
	}
}
