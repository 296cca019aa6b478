// Package dhtdiscovery finds peers in the mainline DHT with github.com/nictuku/dht.
package dhtdiscovery

import (
	"context"
	"sync"
	"time"

	"github.com/nictuku/dht"

	"github.com/drip-torrent/LibTorrent-swift/internal/discovery"
	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
)

// DefaultRouters are used to bootstrap the routing table.
const DefaultRouters = "router.bittorrent.com:6881,dht.transmissionbt.com:6881,router.utorrent.com:6881,dht.libtorrent.org:25401,dht.aelitis.com:6881"

// RequestInterval is the time between two peer requests sent to the DHT.
var RequestInterval = time.Second

// Config of the DHT node.
type Config struct {
	Address string
	Port    int
	Routers string
}

type node interface {
	PeersRequest(ih string, announce bool)
	Stop()
}

// DHT is a discovery.Discovery backed by a DHT node.
// The node has a single result channel so results are dispatched to sources by info hash.
type DHT struct {
	node     node
	resultsC <-chan map[dht.InfoHash][]string
	log      logger.Logger

	m       sync.Mutex
	sources map[dht.InfoHash]map[*source]struct{}
	pending []dht.InfoHash

	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}
}

var _ discovery.Discovery = (*DHT)(nil)

// New starts a DHT node.
func New(cfg Config) (*DHT, error) {
	c := dht.NewConfig()
	c.Address = cfg.Address
	c.Port = cfg.Port
	c.DHTRouters = cfg.Routers
	if c.DHTRouters == "" {
		c.DHTRouters = DefaultRouters
	}
	c.SaveRoutingTable = false
	n, err := dht.New(c)
	if err != nil {
		return nil, err
	}
	if err = n.Start(); err != nil {
		return nil, err
	}
	return newDHT(n, n.PeersRequestResults), nil
}

func newDHT(n node, resultsC <-chan map[dht.InfoHash][]string) *DHT {
	d := &DHT{
		node:     n,
		resultsC: resultsC,
		log:      logger.New("dht"),
		sources:  make(map[dht.InfoHash]map[*source]struct{}),
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Close stops the node. Sources return discovery.ErrExhausted afterwards.
func (d *DHT) Close() {
	d.closeOnce.Do(func() {
		close(d.closeC)
		<-d.doneC
		d.node.Stop()
	})
}

// Discover returns a Source that periodically asks the DHT for peers of infoHash.
// Info hashes longer than 20 bytes are truncated.
func (d *DHT) Discover(infoHash []byte) discovery.Source {
	ih := infoHash
	if len(ih) > 20 {
		ih = ih[:20]
	}
	s := &source{
		dht:      d,
		infoHash: dht.InfoHash(ih),
		peersC:   make(chan []string, 1),
	}
	d.m.Lock()
	subs, ok := d.sources[s.infoHash]
	if !ok {
		subs = make(map[*source]struct{})
		d.sources[s.infoHash] = subs
	}
	subs[s] = struct{}{}
	d.m.Unlock()
	return s
}

func (d *DHT) request(ih dht.InfoHash) {
	d.m.Lock()
	defer d.m.Unlock()
	for _, p := range d.pending {
		if p == ih {
			return
		}
	}
	d.pending = append(d.pending, ih)
}

func (d *DHT) remove(s *source) {
	d.m.Lock()
	defer d.m.Unlock()
	subs := d.sources[s.infoHash]
	delete(subs, s)
	if len(subs) == 0 {
		delete(d.sources, s.infoHash)
	}
}

func (d *DHT) run() {
	defer close(d.doneC)
	ticker := time.NewTicker(RequestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sendRequest()
		case res := <-d.resultsC:
			for ih, peers := range res {
				d.dispatch(ih, parsePeers(peers))
			}
		case <-d.closeC:
			return
		}
	}
}

// sendRequest sends one pending request per tick.
func (d *DHT) sendRequest() {
	d.m.Lock()
	if len(d.pending) == 0 {
		d.m.Unlock()
		return
	}
	ih := d.pending[0]
	d.pending = d.pending[1:]
	d.m.Unlock()
	d.node.PeersRequest(string(ih), true)
}

func (d *DHT) dispatch(ih dht.InfoHash, addrs []string) {
	if len(addrs) == 0 {
		return
	}
	d.m.Lock()
	defer d.m.Unlock()
	for s := range d.sources[ih] {
		select {
		case s.peersC <- addrs:
		default:
			d.log.Debugln("dropping dht peers, source is busy")
		}
	}
}

func parsePeers(peers []string) []string {
	addrs := make([]string, 0, len(peers))
	for _, peer := range peers {
		if len(peer) != 6 {
			// only IPv4 is supported for now
			continue
		}
		addrs = append(addrs, dht.DecodePeerAddress(peer))
	}
	return addrs
}

type source struct {
	dht       *DHT
	infoHash  dht.InfoHash
	peersC    chan []string
	closeOnce sync.Once
}

func (s *source) Next(ctx context.Context) ([]string, error) {
	s.dht.request(s.infoHash)
	select {
	case addrs := <-s.peersC:
		return addrs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.dht.closeC:
		return nil, discovery.ErrExhausted
	}
}

func (s *source) Close() {
	s.closeOnce.Do(func() { s.dht.remove(s) })
}
