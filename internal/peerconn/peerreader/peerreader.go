// Package peerreader reads and decodes messages from a peer connection.
package peerreader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/internal/piece"
	"github.com/drip-torrent/LibTorrent-swift/internal/ratelimiter"
)

const (
	// length + msgid + requestmsg
	readBufferSize = 4 + 1 + 12
	// Messages other than piece are small. The largest is a bitfield.
	maxMessageLength = 1 << 21
)

var (
	errBitfieldNotFirst = errors.New("bitfield can only be sent after handshake")
	errMessageTooLarge  = errors.New("message too large")
)

// KeepAlive is emitted when the peer sends an empty message.
type KeepAlive struct{}

// PeerReader decodes messages from conn and sends them to the channel returned by Messages.
type PeerReader struct {
	conn         net.Conn
	r            io.Reader
	log          logger.Logger
	readTimeout  time.Duration
	pieceTimeout time.Duration
	limiters     []*ratelimiter.Limiter
	messages     chan interface{}
	err          error
	stopC        chan struct{}
	doneC        chan struct{}
}

// New returns a reader for conn. readTimeout is the longest allowed silence between messages.
// Before the payload of a piece message is read, tokens are taken from each limiter.
func New(conn net.Conn, l logger.Logger, readTimeout, pieceTimeout time.Duration, limiters ...*ratelimiter.Limiter) *PeerReader {
	return &PeerReader{
		conn:         conn,
		r:            bufio.NewReaderSize(conn, readBufferSize),
		log:          l,
		readTimeout:  readTimeout,
		pieceTimeout: pieceTimeout,
		limiters:     limiters,
		messages:     make(chan interface{}),
		stopC:        make(chan struct{}),
		doneC:        make(chan struct{}),
	}
}

func (p *PeerReader) Messages() <-chan interface{} {
	return p.messages
}

func (p *PeerReader) Stop() {
	close(p.stopC)
}

func (p *PeerReader) Done() chan struct{} {
	return p.doneC
}

// Err returns the error that stopped the reader. Only valid after Done is closed.
func (p *PeerReader) Err() error {
	return p.err
}

func (p *PeerReader) Run() {
	defer close(p.doneC)
	p.err = p.run()
	if p.err == nil || isClosed(p.err) {
		return
	}
	select {
	case <-p.stopC:
	default:
		p.log.Debugln("peer reader stopped:", p.err)
	}
}

func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, ratelimiter.ErrStopped) {
		return true
	}
	var oerr *net.OpError
	return errors.As(err, &oerr)
}

func (p *PeerReader) run() error {
	first := true
	for {
		err := p.conn.SetReadDeadline(time.Now().Add(p.readTimeout))
		if err != nil {
			return err
		}

		var length uint32
		err = binary.Read(p.r, binary.BigEndian, &length)
		if err != nil {
			return err
		}
		if length == 0 {
			if err = p.send(KeepAlive{}); err != nil {
				return err
			}
			continue
		}
		if length > maxMessageLength {
			return errMessageTooLarge
		}

		var id peerprotocol.MessageID
		err = binary.Read(p.r, binary.BigEndian, &id)
		if err != nil {
			return err
		}
		length--

		var msg interface{}
		switch id {
		case peerprotocol.Choke:
			msg = peerprotocol.ChokeMessage{}
		case peerprotocol.Unchoke:
			msg = peerprotocol.UnchokeMessage{}
		case peerprotocol.Interested:
			msg = peerprotocol.InterestedMessage{}
		case peerprotocol.NotInterested:
			msg = peerprotocol.NotInterestedMessage{}
		case peerprotocol.Have:
			var hm peerprotocol.HaveMessage
			if err = p.decode(length, &hm); err != nil {
				return err
			}
			msg = hm
		case peerprotocol.Bitfield:
			if !first {
				return errBitfieldNotFirst
			}
			bm := peerprotocol.BitfieldMessage{Data: make([]byte, length)}
			if _, err = io.ReadFull(p.r, bm.Data); err != nil {
				return err
			}
			msg = bm
		case peerprotocol.Request, peerprotocol.Reject, peerprotocol.Cancel:
			var rm peerprotocol.RequestMessage
			if err = p.decode(length, &rm); err != nil {
				return err
			}
			if rm.Length > piece.BlockSize {
				return fmt.Errorf("request with block size larger than allowed (%d > %d)", rm.Length, piece.BlockSize)
			}
			switch id {
			case peerprotocol.Reject:
				msg = peerprotocol.RejectMessage{RequestMessage: rm}
			case peerprotocol.Cancel:
				msg = peerprotocol.CancelMessage{RequestMessage: rm}
			default:
				msg = rm
			}
		case peerprotocol.Piece:
			if length < 8 {
				return io.ErrUnexpectedEOF
			}
			length -= 8
			if length > piece.BlockSize {
				return fmt.Errorf("piece with block size larger than allowed (%d > %d)", length, piece.BlockSize)
			}
			var pm peerprotocol.PieceMessage
			var hdr [8]byte
			if _, err = io.ReadFull(p.r, hdr[:]); err != nil {
				return err
			}
			pm.Index = binary.BigEndian.Uint32(hdr[0:4])
			pm.Begin = binary.BigEndian.Uint32(hdr[4:8])
			if pm.Data, err = p.readPiece(length); err != nil {
				return err
			}
			msg = pm
		case peerprotocol.HaveAll, peerprotocol.HaveNone:
			if !first {
				return errBitfieldNotFirst
			}
			if id == peerprotocol.HaveAll {
				msg = peerprotocol.HaveAllMessage{}
			} else {
				msg = peerprotocol.HaveNoneMessage{}
			}
		case peerprotocol.Port:
			b := make([]byte, length)
			if _, err = io.ReadFull(p.r, b); err != nil {
				return err
			}
			if len(b) != 2 {
				return io.ErrUnexpectedEOF
			}
			msg = peerprotocol.PortMessage{Port: binary.BigEndian.Uint16(b)}
		case peerprotocol.Extension:
			buf := make([]byte, length)
			if _, err = io.ReadFull(p.r, buf); err != nil {
				return err
			}
			var em peerprotocol.ExtensionMessage
			if err = em.UnmarshalBinary(buf); err != nil {
				return err
			}
			msg = em.Payload
		default:
			p.log.Debugf("discarding %d bytes of unhandled message type: %s", length, id)
			if _, err = io.CopyN(io.Discard, p.r, int64(length)); err != nil {
				return err
			}
			continue
		}
		// Only message types defined in BEP 3 are counted.
		if id <= peerprotocol.Port {
			first = false
		}
		if err = p.send(msg); err != nil {
			return err
		}
	}
}

func (p *PeerReader) send(msg interface{}) error {
	select {
	case p.messages <- msg:
		return nil
	case <-p.stopC:
		return ratelimiter.ErrStopped
	}
}

type unmarshaler interface {
	UnmarshalBinary([]byte) error
}

func (p *PeerReader) decode(length uint32, m unmarshaler) error {
	b := make([]byte, length)
	if _, err := io.ReadFull(p.r, b); err != nil {
		return err
	}
	return m.UnmarshalBinary(b)
}

func (p *PeerReader) readPiece(length uint32) ([]byte, error) {
	if err := ratelimiter.WaitAll(int64(length), p.stopC, p.limiters...); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	var m int
	for {
		err := p.conn.SetReadDeadline(time.Now().Add(p.pieceTimeout))
		if err != nil {
			return nil, err
		}
		n, err := io.ReadFull(p.r, buf[m:])
		if err == nil {
			return buf, nil
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() && n > 0 {
			// Slow peer. Keep receiving the rest.
			m += n
			continue
		}
		return nil, err
	}
}
