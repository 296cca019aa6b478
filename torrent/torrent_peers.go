package torrent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/drip-torrent/LibTorrent-swift/internal/discovery"
	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn/peerreader"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
)

var (
	errUnresponsive   = errors.New("peer did not respond to requests")
	errInvalidMessage = errors.New("invalid message")
)

// discover feeds the run loop with addresses from the session's Discovery.
// The lookup is restarted with an exponential backoff whenever the source is exhausted
// and immediately when the session's Discovery changes.
func (t *torrent) discover() {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	for {
		d, changedC := t.session.currentDiscovery()
		if d == nil {
			select {
			case <-changedC:
				continue
			case <-t.ctx.Done():
				return
			}
		}
		if !t.lookup(d, changedC, bo) {
			return
		}
	}
}

// lookup reads addresses from one lookup of d and waits before the next one.
// It returns false if the torrent is closed.
func (t *torrent) lookup(d discovery.Discovery, changedC <-chan struct{}, bo backoff.BackOff) bool {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	go func() {
		select {
		case <-changedC:
			cancel()
		case <-ctx.Done():
		}
	}()

	src := d.Discover(t.infoHash)
	for {
		addrs, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, discovery.ErrExhausted) && ctx.Err() == nil {
				t.log.Debugln("discovery error:", err)
			}
			break
		}
		bo.Reset()
		select {
		case t.addrsC <- addrs:
		case <-ctx.Done():
		}
	}
	src.Close()
	if t.ctx.Err() != nil {
		return false
	}
	if ctx.Err() != nil {
		// Discovery has changed.
		return true
	}
	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		return false
	}
	select {
	case <-time.After(wait):
		return true
	case <-changedC:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *torrent) handleNewAddrs(addrs []string) {
	for _, addr := range addrs {
		if _, ok := t.peerAddrs[addr]; ok {
			continue
		}
		t.knownAddrs = append(t.knownAddrs, addr)
	}
	t.dialPeers()
}

// dialPeers connects to known addresses while the torrent is running and limits allow.
func (t *torrent) dialPeers() {
	for len(t.knownAddrs) > 0 && t.dialing < t.session.config.MaxPeerDial {
		if t.isPaused() || t.err != nil {
			return
		}
		if t.meta != nil && t.completed {
			// Seeders wait for incoming connections.
			return
		}
		addr := t.knownAddrs[0]
		t.knownAddrs = t.knownAddrs[1:]
		if _, ok := t.peerAddrs[addr]; ok {
			continue
		}
		if !t.session.reservePeer() {
			// Keep the address for later.
			t.knownAddrs = append(t.knownAddrs, addr)
			return
		}
		t.peerAddrs[addr] = struct{}{}
		t.dialing++
		go t.dial(addr)
	}
}

func (t *torrent) handshake() peerconn.Handshake {
	var ext peerprotocol.ExtensionBits
	ext.SetExtensionProtocol()
	return peerconn.Handshake{
		InfoHash:   t.wireHash,
		PeerID:     t.session.peerID,
		Extensions: ext,
	}
}

func (t *torrent) connConfig() peerconn.Config {
	cfg := t.session.config
	return peerconn.Config{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		KeepAliveInterval: cfg.KeepAliveInterval,
		PieceReadTimeout:  cfg.PieceReadTimeout,
		MaxQueuedPieces:   cfg.RequestQueueLength,
		DownloadLimiters:  []*ratelimiter.Limiter{t.downloadLimiter, t.session.downloadLimiter},
		UploadLimiters:    []*ratelimiter.Limiter{t.uploadLimiter, t.session.uploadLimiter},
	}
}

func (t *torrent) dial(addr string) {
	conn, err := peerconn.Dial(t.ctx, t.session.transport, addr, t.handshake(), t.connConfig(), logger.New("peer "+addr))
	select {
	case t.dialResultC <- dialResult{addr: addr, conn: conn, err: err}:
	case <-t.closeC:
		if conn != nil {
			conn.Close()
		}
	}
}

func (t *torrent) handleDialResult(res dialResult) {
	t.dialing--
	if res.err != nil {
		delete(t.peerAddrs, res.addr)
		t.session.releasePeer()
		err := &ConnectionError{Addr: res.addr, Err: res.err}
		t.log.Debugln(err)
		t.event(PeerError, err.Error(), err)
		t.dialPeers()
		return
	}
	t.startPeer(res.conn, res.addr, false)
	t.dialPeers()
}

// handleIncomingConn takes a connection accepted by the Session. Its handshake is complete.
func (t *torrent) handleIncomingConn(conn *peerconn.Conn) {
	addr := conn.String()
	if t.isPaused() || t.err != nil {
		conn.Close()
		return
	}
	if _, ok := t.peerAddrs[addr]; ok {
		conn.Close()
		return
	}
	if !t.session.reservePeer() {
		t.log.Debugln("connection limit reached, rejecting", addr)
		conn.Close()
		return
	}
	t.peerAddrs[addr] = struct{}{}
	t.startPeer(conn, addr, true)
}

func (t *torrent) startPeer(conn *peerconn.Conn, addr string, incoming bool) {
	pe := newPeer(conn, addr, incoming)
	pe.id = t.peers.Insert(pe)
	t.session.metrics.peers.Inc(1)
	if t.sched != nil {
		t.sched.AddPeer(pe.id)
	}
	go t.runPeer(pe)

	if t.bitfield != nil && t.bitfield.Count() > 0 {
		pe.SendMessage(peerprotocol.BitfieldMessage{Data: t.bitfield.Copy().Bytes()})
	}
	if conn.Extensions().ExtensionProtocol() {
		var size int
		if t.meta != nil {
			size = len(t.meta.Info)
		}
		pe.SendMessage(peerprotocol.ExtensionMessage{
			ExtendedMessageID: peerprotocol.ExtensionIDHandshake,
			Payload:           peerprotocol.NewExtensionHandshake(size, clientVersion, t.session.config.RequestQueueLength),
		})
	}
	t.log.Debugln("peer connected:", addr, "incoming:", incoming)
	t.event(PeerConnected, "peer connected: "+addr, nil)
}

// runPeer forwards the messages of the peer to the run loop until the connection is closed.
func (t *torrent) runPeer(pe *peer) {
	go pe.Run()
	for msg := range pe.Messages() {
		if _, ok := msg.(peerreader.KeepAlive); ok {
			continue
		}
		select {
		case t.messages <- peerMessage{peer: pe, Message: msg}:
		case <-t.closeC:
			return
		}
	}
	select {
	case t.peerDisconnectedC <- pe:
	case <-t.closeC:
	}
}

// closePeer disconnects the peer and retracts everything it contributed.
// err is nil for regular disconnects.
func (t *torrent) closePeer(pe *peer, err error) {
	if _, ok := t.peers.Remove(pe.id); !ok {
		return
	}
	pe.Close()
	if err == nil {
		err = pe.Err()
	}
	delete(t.peerAddrs, pe.addr)
	t.session.releasePeer()
	t.session.metrics.peers.Dec(1)
	if t.tracker != nil {
		t.tracker.RemovePeer(pe.id)
	}
	if t.sched != nil {
		t.sched.RemovePeer(pe.id)
	}
	if t.infoDownloader != nil && t.infoDownloader.Peer == pe {
		t.infoDownloader = nil
	}
	msg := "peer disconnected: " + pe.addr
	if err != nil {
		cerr := &ConnectionError{Addr: pe.addr, Err: err}
		t.log.Debugln(cerr)
		t.event(PeerError, cerr.Error(), cerr)
	} else {
		t.log.Debugln(msg)
	}
	t.event(PeerDisconnected, msg, nil)

	select {
	case <-t.closeC:
		return
	default:
	}
	if t.meta == nil && t.infoDownloader == nil {
		t.startInfoDownload()
	}
	t.unchokePeers()
	t.requestAll()
	t.dialPeers()
}

// closePeerWithError is used when the peer breaks the protocol.
func (t *torrent) closePeerWithError(pe *peer, format string, args ...interface{}) {
	t.closePeer(pe, fmt.Errorf("%w: "+format, append([]interface{}{errInvalidMessage}, args...)...))
}
