package torrent

import (
	"errors"
	"net"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerconn"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
)

func (s *Session) accept(l net.Listener) {
	defer s.acceptWG.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			// Closed by Session.Close or by ApplySettings.
			if !errors.Is(err, net.ErrClosed) {
				s.log.Errorln("cannot accept connection:", err)
			}
			return
		}
		s.mConns.Lock()
		s.conns[conn] = struct{}{}
		s.mConns.Unlock()
		s.acceptWG.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads the handshake of an incoming connection and hands it to the torrent with the same info hash.
func (s *Session) handleConn(conn net.Conn) {
	defer s.acceptWG.Done()
	defer func() {
		s.mConns.Lock()
		delete(s.conns, conn)
		s.mConns.Unlock()
	}()
	log := logger.New("peer <- " + conn.RemoteAddr().String())

	if err := conn.SetDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
		log.Debugln(err)
		conn.Close()
		return
	}
	ext, ih, err := peerprotocol.ReadHandshake1(conn)
	if err != nil {
		log.Debugln("cannot read handshake:", err)
		conn.Close()
		return
	}
	s.m.RLock()
	t, ok := s.byInfoHash[ih]
	s.m.RUnlock()
	if !ok {
		log.Debugln("unknown info hash")
		conn.Close()
		return
	}
	pc, err := peerconn.Accept(conn, ext, t.handshake(), t.connConfig(), log)
	if err != nil {
		log.Debugln("handshake error:", err)
		return
	}
	select {
	case t.incomingConnC <- pc:
	case <-t.closeC:
		pc.Close()
	}
}
