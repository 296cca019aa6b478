// Package torrent provides a BitTorrent client implementation.
package torrent

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mitchellh/go-homedir"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/drip-torrent/LibTorrent-swift/internal/arena"
	"github.com/drip-torrent/LibTorrent-swift/internal/discovery"
	"github.com/drip-torrent/LibTorrent-swift/internal/discovery/dhtdiscovery"
	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
	"github.com/drip-torrent/LibTorrent-swift/internal/resumer/boltdbresumer"
	"github.com/drip-torrent/LibTorrent-swift/internal/storage"
	"github.com/drip-torrent/LibTorrent-swift/internal/storage/filestorage"
	"github.com/drip-torrent/LibTorrent-swift/internal/transport"
)

const clientVersion = "ltcore 0.1.0"

var (
	peerIDPrefix   = []byte("-LT0001-")
	torrentsBucket = []byte("torrents")
)

// ID identifies a torrent in a Session. IDs of removed torrents are never reused.
type ID struct {
	h arena.Handle
}

func (id ID) String() string { return id.h.String() }

// ParseID parses the string form of an ID.
func ParseID(s string) (ID, error) {
	h, err := arena.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID{h: h}, nil
}

// Option changes the collaborators of a Session.
type Option func(*Session)

// WithStorage sets the PieceStore. Files on disk are used by default.
func WithStorage(st storage.PieceStore) Option {
	return func(s *Session) { s.storage = st }
}

// WithDiscovery adds a peer source. It is merged with the DHT if enabled.
func WithDiscovery(d discovery.Discovery) Option {
	return func(s *Session) { s.baseDiscovery = d }
}

// WithTransport sets the Transport used for dialing peers. TCP is used by default.
func WithTransport(tr transport.Transport) Option {
	return func(s *Session) { s.transport = tr }
}

// Session contains torrents, DHT node, listeners and the resume database.
type Session struct {
	config    Config
	log       logger.Logger
	peerID    [20]byte
	storage   storage.PieceStore
	transport transport.Transport
	db        *bbolt.DB
	resumer   *boltdbresumer.Resumer
	createdAt time.Time

	// Held while ApplySettings runs.
	mSettings      sync.Mutex
	settings       Settings
	maxConnections atomic.Int32
	maxUploads     atomic.Int32

	mDiscovery sync.RWMutex
	// Set with WithDiscovery. discovery is this merged with dht.
	baseDiscovery discovery.Discovery
	discovery     discovery.Discovery
	dht           *dhtdiscovery.DHT

	// Closed and replaced when discovery changes.
	discoveryChangedC chan struct{}

	downloadLimiter *ratelimiter.Limiter
	uploadLimiter   *ratelimiter.Limiter

	metrics *sessionMetrics
	events  *eventQueue
	paused  atomic.Bool
	// Number of connected and dialing peers of all torrents.
	numPeers atomic.Int32

	listeners []net.Listener
	acceptWG  sync.WaitGroup

	mConns sync.Mutex
	// Incoming connections in handshake.
	conns map[net.Conn]struct{}

	m          sync.RWMutex
	closed     bool
	torrents   arena.Arena[*torrent]
	byInfoHash map[[20]byte]*torrent
}

// NewSession creates a new Session and loads the torrents in the resume database.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	var err error
	cfg.Database, err = homedir.Expand(cfg.Database)
	if err != nil {
		return nil, err
	}
	cfg.DataDir, err = homedir.Expand(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	u, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	s := &Session{
		config:            cfg,
		log:               logger.New("session"),
		createdAt:         time.Now(),
		settings:          settingsFromConfig(cfg),
		discoveryChangedC: make(chan struct{}),
		downloadLimiter:   ratelimiter.New(cfg.DownloadRateLimit),
		uploadLimiter:     ratelimiter.New(cfg.UploadRateLimit),
		events:            newEventQueue(cfg.EventQueueSize),
		conns:             make(map[net.Conn]struct{}),
		byInfoHash:        make(map[[20]byte]*torrent),
	}
	s.maxConnections.Store(int32(cfg.MaxConnections))
	s.maxUploads.Store(int32(cfg.MaxUploads))
	copy(s.peerID[:], peerIDPrefix)
	copy(s.peerID[len(peerIDPrefix):], u[:])
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = filestorage.New()
	}
	if s.transport == nil {
		s.transport = transport.TCP{Timeout: cfg.DialTimeout}
	}
	s.initMetrics()
	defer func() {
		if err != nil {
			s.cleanup()
		}
	}()

	if err = s.setDHT(cfg.EnableDHT); err != nil {
		return nil, err
	}
	s.logUnsupported(Settings{}, s.settings)
	if cfg.Database != "" {
		if err = s.openDatabase(); err != nil {
			return nil, err
		}
	}
	s.startListeners(cfg.ListenInterfaces)
	if s.resumer != nil {
		if err = s.loadExistingTorrents(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) openDatabase() error {
	err := os.MkdirAll(filepath.Dir(s.config.Database), 0750)
	if err != nil {
		return err
	}
	s.db, err = bbolt.Open(s.config.Database, 0640, &bbolt.Options{Timeout: time.Second})
	if errors.Is(err, bbolt.ErrTimeout) {
		return errors.New("resume database is locked by another process")
	} else if err != nil {
		return err
	}
	s.resumer, err = boltdbresumer.New(s.db, torrentsBucket)
	return err
}

// setDHT starts or stops the DHT node and updates the discovery used by torrents.
func (s *Session) setDHT(enabled bool) error {
	s.mDiscovery.Lock()
	defer s.mDiscovery.Unlock()
	switch {
	case enabled && s.dht == nil:
		d, err := dhtdiscovery.New(dhtdiscovery.Config{Address: s.config.DHTAddress, Port: s.config.DHTPort})
		if err != nil {
			return err
		}
		s.dht = d
	case !enabled && s.dht != nil:
		s.dht.Close()
		s.dht = nil
	}
	switch {
	case s.dht == nil:
		s.discovery = s.baseDiscovery
	case s.baseDiscovery == nil:
		s.discovery = s.dht
	default:
		s.discovery = discovery.Merge(s.baseDiscovery, s.dht)
	}
	close(s.discoveryChangedC)
	s.discoveryChangedC = make(chan struct{})
	return nil
}

// currentDiscovery returns the peer source of torrents and a channel that is closed when it changes.
// The returned Discovery is nil when there is no source.
func (s *Session) currentDiscovery() (discovery.Discovery, <-chan struct{}) {
	s.mDiscovery.RLock()
	defer s.mDiscovery.RUnlock()
	return s.discovery, s.discoveryChangedC
}

func (s *Session) startListeners(addrs string) {
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		l, err := transport.Listen(addr)
		if err != nil {
			s.log.Errorln("cannot listen on", addr, err)
			s.events.push(Event{Type: ListenFailed, Message: "cannot listen on " + addr + ": " + err.Error(), Err: err})
			continue
		}
		s.log.Infoln("listening for peer connections on", l.Addr())
		s.listeners = append(s.listeners, l)
		s.acceptWG.Add(1)
		go s.accept(l)
	}
}

// Close stops all torrents and releases the resources of the Session.
func (s *Session) Close() error {
	s.m.Lock()
	if s.closed {
		s.m.Unlock()
		return nil
	}
	s.closed = true
	var torrents []*torrent
	s.torrents.Each(func(_ arena.Handle, t *torrent) {
		torrents = append(torrents, t)
	})
	s.m.Unlock()

	s.mSettings.Lock()
	s.stopListeners()
	s.mSettings.Unlock()

	var g errgroup.Group
	for _, t := range torrents {
		t := t
		g.Go(func() error { return t.close(false) })
	}
	err := g.Wait()
	s.cleanup()
	return err
}

func (s *Session) stopListeners() {
	for _, l := range s.listeners {
		l.Close()
	}
	s.listeners = nil
	s.mConns.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mConns.Unlock()
	s.acceptWG.Wait()
}

func (s *Session) cleanup() {
	s.mDiscovery.Lock()
	if s.dht != nil {
		s.dht.Close()
		s.dht = nil
	}
	s.mDiscovery.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Errorln("cannot close database:", err)
		}
	}
	s.metrics.stop()
}

// reservePeer takes a connection slot. It returns false if MaxConnections is reached.
func (s *Session) reservePeer() bool {
	max := s.maxConnections.Load()
	for {
		n := s.numPeers.Load()
		if max > 0 && n >= max {
			return false
		}
		if s.numPeers.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Session) releasePeer() {
	s.numPeers.Add(-1)
}

// Pause stops downloading and uploading of all torrents. Paused state of individual torrents is kept.
func (s *Session) Pause() {
	if !s.paused.CompareAndSwap(false, true) {
		return
	}
	s.log.Info("session paused")
	s.events.push(Event{Type: SessionPaused, Message: "session paused"})
}

// Resume reverts Pause.
func (s *Session) Resume() {
	if !s.paused.CompareAndSwap(true, false) {
		return
	}
	s.log.Info("session resumed")
	s.events.push(Event{Type: SessionResumed, Message: "session resumed"})
	s.wakeTorrents()
}

func (s *Session) wakeTorrents() {
	s.m.RLock()
	defer s.m.RUnlock()
	s.torrents.Each(func(_ arena.Handle, t *torrent) {
		t.wake()
	})
}

// IsPaused returns true if the session is paused.
func (s *Session) IsPaused() bool {
	return s.paused.Load()
}

// SetDownloadLimit changes the download speed limit of the session. Zero means unlimited.
func (s *Session) SetDownloadLimit(bps int64) {
	s.mSettings.Lock()
	s.settings.DownloadRateLimit = bps
	s.downloadLimiter.SetRate(bps)
	s.mSettings.Unlock()
}

// SetUploadLimit changes the upload speed limit of the session. Zero means unlimited.
func (s *Session) SetUploadLimit(bps int64) {
	s.mSettings.Lock()
	s.settings.UploadRateLimit = bps
	s.uploadLimiter.SetRate(bps)
	s.mSettings.Unlock()
}

// PollEvents returns the events since the last call.
func (s *Session) PollEvents() []Event {
	return s.events.drain()
}
