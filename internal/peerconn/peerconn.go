// Package peerconn implements the lifecycle of a single peer connection.
//
// A connection moves through Connecting, Handshaking, Exchanging, Closing and
// Closed in that order and never goes back. The underlying net.Conn is closed
// on every exit path of Run.
package peerconn

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn/peerreader"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn/peerwriter"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
	"github.com/drip-torrent/LibTorrent-swift/internal/transport"
)

var (
	// ErrInfoHashMismatch is returned when the peer answers the handshake for another torrent.
	ErrInfoHashMismatch = errors.New("info hash mismatch")
	// ErrOwnConnection is returned when we connected to ourselves.
	ErrOwnConnection = errors.New("dropped own connection")
)

// State of a peer connection.
type State int32

const (
	Connecting State = iota
	Handshaking
	Exchanging
	Closing
	Closed
)

var stateStrings = [...]string{"connecting", "handshaking", "exchanging", "closing", "closed"}

func (s State) String() string {
	if int(s) < len(stateStrings) {
		return stateStrings[s]
	}
	return "unknown"
}

// Config contains the timeouts and limits of a connection.
type Config struct {
	HandshakeTimeout  time.Duration
	KeepAliveInterval time.Duration
	PieceReadTimeout  time.Duration
	// Maximum number of blocks queued for upload.
	MaxQueuedPieces int
	// Tokens for received piece payloads are taken from these, in order.
	DownloadLimiters []*ratelimiter.Limiter
	// Tokens for sent piece payloads are taken from these, in order.
	UploadLimiters []*ratelimiter.Limiter
}

// Handshake holds our side of the handshake.
type Handshake struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Extensions peerprotocol.ExtensionBits
}

// Conn is a peer connection that provides a channel for receiving messages and methods for sending messages.
type Conn struct {
	conn       net.Conn
	id         [20]byte
	extensions peerprotocol.ExtensionBits
	state      atomic.Int32
	reader     *peerreader.PeerReader
	writer     *peerwriter.PeerWriter
	messages   chan interface{}
	log        logger.Logger
	err        error
	closeOnce  sync.Once
	closeC     chan struct{}
	doneC      chan struct{}
}

// Dial connects to addr and does the handshake.
// The connection is in Handshaking state when returned and moves to Exchanging when Run is called.
func Dial(ctx context.Context, tr transport.Transport, addr string, hs Handshake, cfg Config, l logger.Logger) (*Conn, error) {
	l.Debugln("connecting to", addr, "state:", Connecting)
	conn, err := tr.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	l.Debugln("state:", Handshaking)
	if err = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	if err = peerprotocol.WriteHandshake(conn, hs.InfoHash, hs.PeerID, hs.Extensions); err != nil {
		conn.Close()
		return nil, err
	}
	ext, ih, err := peerprotocol.ReadHandshake1(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ih != hs.InfoHash {
		conn.Close()
		return nil, ErrInfoHashMismatch
	}
	id, err := peerprotocol.ReadHandshake2(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if id == hs.PeerID {
		conn.Close()
		return nil, ErrOwnConnection
	}
	return newConn(conn, id, ext, cfg, l), nil
}

// Accept completes the handshake of an incoming connection after its info hash and extension bits are read.
func Accept(conn net.Conn, ext peerprotocol.ExtensionBits, hs Handshake, cfg Config, l logger.Logger) (*Conn, error) {
	if err := conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := peerprotocol.WriteHandshake(conn, hs.InfoHash, hs.PeerID, hs.Extensions); err != nil {
		conn.Close()
		return nil, err
	}
	id, err := peerprotocol.ReadHandshake2(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if id == hs.PeerID {
		conn.Close()
		return nil, ErrOwnConnection
	}
	return newConn(conn, id, ext, cfg, l), nil
}

func newConn(conn net.Conn, id [20]byte, ext peerprotocol.ExtensionBits, cfg Config, l logger.Logger) *Conn {
	c := &Conn{
		conn:       conn,
		id:         id,
		extensions: ext,
		reader:     peerreader.New(conn, l, 2*cfg.KeepAliveInterval, cfg.PieceReadTimeout, cfg.DownloadLimiters...),
		writer:     peerwriter.New(conn, l, cfg.MaxQueuedPieces, cfg.KeepAliveInterval, cfg.UploadLimiters...),
		messages:   make(chan interface{}),
		log:        l,
		closeC:     make(chan struct{}),
		doneC:      make(chan struct{}),
	}
	c.state.Store(int32(Handshaking))
	return c
}

// ID is the peer id sent in the handshake.
func (p *Conn) ID() [20]byte { return p.id }

// Extensions are the reserved bits sent by the peer.
func (p *Conn) Extensions() peerprotocol.ExtensionBits { return p.extensions }

// State returns the current state of the connection.
func (p *Conn) State() State { return State(p.state.Load()) }

func (p *Conn) setState(s State) {
	p.state.Store(int32(s))
	p.log.Debugln("state:", s)
}

// Addr returns the remote address.
func (p *Conn) Addr() net.Addr {
	return p.conn.RemoteAddr()
}

// String returns the remote address as string.
func (p *Conn) String() string {
	return p.conn.RemoteAddr().String()
}

// Logger for the peer that logs messages prefixed with peer address.
func (p *Conn) Logger() logger.Logger {
	return p.log
}

// Close stops receiving and sending messages and closes underlying net.Conn.
// Safe to call more than once and before Run.
func (p *Conn) Close() {
	p.closeOnce.Do(func() { close(p.closeC) })
	if p.state.CompareAndSwap(int32(Handshaking), int32(Closed)) {
		// Run was never called.
		p.conn.Close()
		close(p.messages)
		close(p.doneC)
		return
	}
	<-p.doneC
}

// Done is closed after Run returns.
func (p *Conn) Done() <-chan struct{} {
	return p.doneC
}

// Err returns the reason the connection was closed. Only valid after Done is closed.
func (p *Conn) Err() error {
	return p.err
}

// Messages received from the peer will be sent to the channel returned.
// The channel is closed when the connection is closed.
func (p *Conn) Messages() <-chan interface{} {
	return p.messages
}

// SendMessage queues a message for sending. Does not block.
func (p *Conn) SendMessage(msg peerprotocol.Message) {
	p.writer.SendMessage(msg)
}

// SendPiece queues a block for sending.
func (p *Conn) SendPiece(index, begin uint32, data []byte) {
	p.writer.SendPiece(index, begin, data)
}

// CancelRequest removes previously queued piece message matching msg.
func (p *Conn) CancelRequest(msg peerprotocol.CancelMessage) {
	p.writer.CancelRequest(msg)
}

// Run starts receiving messages from peer and starts sending queued messages.
// If any error happens during receiving or sending messages,
// the connection and the underlying net.Conn will be closed.
func (p *Conn) Run() {
	if !p.state.CompareAndSwap(int32(Handshaking), int32(Exchanging)) {
		// Closed before Run.
		return
	}
	defer close(p.doneC)
	defer p.setState(Closed)
	defer close(p.messages)
	p.log.Debugln("state:", Exchanging)

	if err := p.conn.SetDeadline(time.Time{}); err != nil {
		p.err = err
		p.conn.Close()
		return
	}

	go p.reader.Run()
	go p.writer.Run()

	p.err = p.loop()

	p.setState(Closing)
	p.conn.Close()
	p.reader.Stop()
	p.writer.Stop()
	<-p.reader.Done()
	<-p.writer.Done()
}

func (p *Conn) loop() error {
	for {
		select {
		case msg := <-p.reader.Messages():
			select {
			case p.messages <- msg:
			case <-p.closeC:
				return nil
			}
		case msg := <-p.writer.Messages():
			select {
			case p.messages <- msg:
			case <-p.closeC:
				return nil
			}
		case <-p.closeC:
			return nil
		case <-p.reader.Done():
			return p.reader.Err()
		case <-p.writer.Done():
			return p.writer.Err()
		}
	}
}
