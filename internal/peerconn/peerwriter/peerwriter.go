// Package peerwriter queues and writes messages to a peer connection.
package peerwriter

import (
	"container/list"
	"errors"
	"net"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
)

// BlockUploaded is used to signal the Torrent when a piece block is uploaded to remote peer.
type BlockUploaded struct {
	Index, Begin, Length uint32
}

// Piece is a queued block for the remote peer.
type Piece struct {
	peerprotocol.PieceMessage
}

// DrainingChoke is a choke message that is written after the blocks already queued.
// A plain ChokeMessage drops them.
type DrainingChoke struct {
	peerprotocol.ChokeMessage
}

type PeerWriter struct {
	conn         net.Conn
	queueC       chan peerprotocol.Message
	cancelC      chan peerprotocol.CancelMessage
	writeQueue   *list.List
	queuedPieces int
	maxPieces    int
	writeC       chan peerprotocol.Message
	keepAlive    time.Duration
	limiters     []*ratelimiter.Limiter
	messages     chan interface{}
	log          logger.Logger
	err          error
	stopC        chan struct{}
	doneC        chan struct{}
	writerDoneC  chan struct{}
}

// New returns a writer for conn. At most maxPieces piece messages are queued, others are dropped.
// A keep-alive message is sent whenever nothing was written for keepAlive.
func New(conn net.Conn, l logger.Logger, maxPieces int, keepAlive time.Duration, limiters ...*ratelimiter.Limiter) *PeerWriter {
	return &PeerWriter{
		conn:        conn,
		queueC:      make(chan peerprotocol.Message),
		cancelC:     make(chan peerprotocol.CancelMessage),
		writeQueue:  list.New(),
		maxPieces:   maxPieces,
		writeC:      make(chan peerprotocol.Message),
		keepAlive:   keepAlive,
		limiters:    limiters,
		messages:    make(chan interface{}),
		log:         l,
		stopC:       make(chan struct{}),
		doneC:       make(chan struct{}),
		writerDoneC: make(chan struct{}),
	}
}

func (p *PeerWriter) Messages() <-chan interface{} {
	return p.messages
}

// SendMessage queues msg. Does not wait for the message to be written.
func (p *PeerWriter) SendMessage(msg peerprotocol.Message) {
	select {
	case p.queueC <- msg:
	case <-p.doneC:
	}
}

// SendPiece queues a block for the peer.
func (p *PeerWriter) SendPiece(index, begin uint32, data []byte) {
	p.SendMessage(Piece{peerprotocol.PieceMessage{Index: index, Begin: begin, Data: data}})
}

// CancelRequest removes a queued block that the peer no longer wants.
func (p *PeerWriter) CancelRequest(msg peerprotocol.CancelMessage) {
	select {
	case p.cancelC <- msg:
	case <-p.doneC:
	}
}

func (p *PeerWriter) Stop() {
	close(p.stopC)
}

func (p *PeerWriter) Done() chan struct{} {
	return p.doneC
}

// Err returns the error that stopped the writer. Only valid after Done is closed.
func (p *PeerWriter) Err() error {
	return p.err
}

func (p *PeerWriter) Run() {
	defer close(p.doneC)

	go p.messageWriter()
	defer func() { <-p.writerDoneC }()

	for {
		var (
			e      *list.Element
			msg    peerprotocol.Message
			writeC chan peerprotocol.Message
		)
		if p.writeQueue.Len() > 0 {
			e = p.writeQueue.Front()
			msg = e.Value.(peerprotocol.Message)
			writeC = p.writeC
		}
		select {
		case msg = <-p.queueC:
			p.queueMessage(msg)
		case writeC <- msg:
			p.remove(e)
		case cm := <-p.cancelC:
			p.cancelRequest(cm)
		case <-p.writerDoneC:
			return
		case <-p.stopC:
			return
		}
	}
}

func (p *PeerWriter) queueMessage(msg peerprotocol.Message) {
	switch msg.(type) {
	case peerprotocol.ChokeMessage:
		p.cancelQueuedPieceMessages()
	case Piece:
		if p.maxPieces > 0 && p.queuedPieces >= p.maxPieces {
			p.log.Debugln("piece queue is full, dropping block")
			return
		}
		p.queuedPieces++
	}
	p.writeQueue.PushBack(msg)
}

func (p *PeerWriter) remove(e *list.Element) {
	if _, ok := e.Value.(Piece); ok {
		p.queuedPieces--
	}
	p.writeQueue.Remove(e)
}

func (p *PeerWriter) cancelQueuedPieceMessages() {
	var next *list.Element
	for e := p.writeQueue.Front(); e != nil; e = next {
		next = e.Next()
		if _, ok := e.Value.(Piece); ok {
			p.remove(e)
		}
	}
}

func (p *PeerWriter) cancelRequest(cm peerprotocol.CancelMessage) {
	for e := p.writeQueue.Front(); e != nil; e = e.Next() {
		if pi, ok := e.Value.(Piece); ok && pi.Index == cm.Index && pi.Begin == cm.Begin && uint32(len(pi.Data)) == cm.Length {
			p.remove(e)
			break
		}
	}
}

func (p *PeerWriter) messageWriter() {
	defer close(p.writerDoneC)

	// Disable write deadline that is previously set by handshaker.
	if err := p.conn.SetWriteDeadline(time.Time{}); err != nil {
		p.err = err
		return
	}

	keepAlive := time.NewTimer(p.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case msg := <-p.writeC:
			if pi, ok := msg.(Piece); ok {
				if err := ratelimiter.WaitAll(int64(len(pi.Data)), p.stopC, p.limiters...); err != nil {
					return
				}
			}
			b, err := peerprotocol.Frame(msg)
			if err != nil {
				p.log.Errorf("cannot marshal message [%v]: %s", msg.ID(), err.Error())
				p.err = err
				return
			}
			if _, err = p.conn.Write(b); err != nil {
				p.writeFailed(err)
				return
			}
			if pi, ok := msg.(Piece); ok {
				p.notify(BlockUploaded{Index: pi.Index, Begin: pi.Begin, Length: uint32(len(pi.Data))})
			}
		case <-keepAlive.C:
			if _, err := p.conn.Write([]byte{0, 0, 0, 0}); err != nil {
				p.writeFailed(err)
				return
			}
		case <-p.stopC:
			return
		}
		if !keepAlive.Stop() {
			select {
			case <-keepAlive.C:
			default:
			}
		}
		keepAlive.Reset(p.keepAlive)
	}
}

func (p *PeerWriter) writeFailed(err error) {
	p.err = err
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		p.log.Debugln("cannot write message:", err)
		return
	}
	p.log.Debugln("write error:", err)
}

func (p *PeerWriter) notify(msg interface{}) {
	select {
	case p.messages <- msg:
	case <-p.stopC:
	}
}
