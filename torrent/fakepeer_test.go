package torrent

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/zeebo/bencode"

	"github.com/drip-torrent/LibTorrent-swift/internal/bitfield"
	"github.com/drip-torrent/LibTorrent-swift/internal/peerprotocol"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// pipeTransport connects dialed addresses to in-process peers over net.Pipe.
type pipeTransport map[string]*fakePeer

func (tr pipeTransport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	p, ok := tr[addr]
	if !ok {
		return nil, errors.New("connection refused")
	}
	local, remote := net.Pipe()
	go p.serve(remote)
	return local, nil
}

type frame struct {
	id      peerprotocol.MessageID
	payload []byte
}

// fakePeer is a seeder that speaks enough of the wire protocol to upload pieces.
type fakePeer struct {
	meta *metainfo.Metadata
	data []byte
	// Pieces the peer has. Nil means all pieces.
	have []uint32
	// Serve the info dict with ut_metadata.
	metadata bool
	// Requests are answered after hold is closed.
	hold chan struct{}
	// If set, the extension handshake is sent after extHold is closed.
	extHold chan struct{}
	// If set, the peer stays choking until unchoke is closed.
	unchoke chan struct{}
	// The first block served has wrong data.
	corruptFirst bool

	m         sync.Mutex
	requests  []peerprotocol.RequestMessage
	cancels   []peerprotocol.RequestMessage
	corrupted bool
}

func (p *fakePeer) Requests() []peerprotocol.RequestMessage {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]peerprotocol.RequestMessage(nil), p.requests...)
}

func (p *fakePeer) Cancels() []peerprotocol.RequestMessage {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]peerprotocol.RequestMessage(nil), p.cancels...)
}

func (p *fakePeer) corruptNext() bool {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.corruptFirst || p.corrupted {
		return false
	}
	p.corrupted = true
	return true
}

func (p *fakePeer) bitfield() *bitfield.Bitfield {
	bf := bitfield.New(p.meta.NumPieces())
	if p.have == nil {
		bf.SetAll()
	}
	for _, i := range p.have {
		bf.Set(i)
	}
	return bf
}

func (p *fakePeer) serve(conn net.Conn) {
	defer conn.Close()
	ext, ih, err := peerprotocol.ReadHandshake1(conn)
	if err != nil {
		return
	}
	if _, err = peerprotocol.ReadHandshake2(conn); err != nil {
		return
	}
	var myExt peerprotocol.ExtensionBits
	if p.metadata {
		myExt.SetExtensionProtocol()
	}
	if err = peerprotocol.WriteHandshake(conn, ih, [20]byte{'f', 'a', 'k', 'e'}, myExt); err != nil {
		return
	}

	doneC := make(chan struct{})
	defer close(doneC)
	frames := make(chan frame, 100)
	go readFrames(conn, frames, doneC)

	send := func(msg peerprotocol.Message) bool {
		b, err := peerprotocol.Frame(msg)
		if err != nil {
			panic(err)
		}
		_, err = conn.Write(b)
		return err == nil
	}
	sendPiece := func(r peerprotocol.RequestMessage) bool {
		begin := int64(r.Index)*int64(p.meta.PieceLength) + int64(r.Begin)
		data := p.data[begin : begin+int64(r.Length)]
		if p.corruptNext() {
			data = append([]byte(nil), data...)
			data[0] ^= 0xff
		}
		return send(peerprotocol.PieceMessage{Index: r.Index, Begin: r.Begin, Data: data})
	}
	sendExtHandshake := func() bool {
		return send(peerprotocol.ExtensionMessage{
			ExtendedMessageID: peerprotocol.ExtensionIDHandshake,
			Payload:           peerprotocol.NewExtensionHandshake(len(p.meta.Info), "fake", 10),
		})
	}

	var extC chan struct{}
	if p.metadata && ext.ExtensionProtocol() {
		extC = p.extHold
		if extC == nil && !sendExtHandshake() {
			return
		}
	}
	if !send(peerprotocol.BitfieldMessage{Data: p.bitfield().Bytes()}) {
		return
	}
	unchokeC := p.unchoke
	if unchokeC == nil && !send(peerprotocol.UnchokeMessage{}) {
		return
	}

	holdC := p.hold
	var held []peerprotocol.RequestMessage
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			switch f.id {
			case peerprotocol.Request:
				var r peerprotocol.RequestMessage
				if err = r.UnmarshalBinary(f.payload); err != nil {
					return
				}
				p.m.Lock()
				p.requests = append(p.requests, r)
				p.m.Unlock()
				if holdC != nil {
					held = append(held, r)
					continue
				}
				if !sendPiece(r) {
					return
				}
			case peerprotocol.Cancel:
				var r peerprotocol.RequestMessage
				if err = r.UnmarshalBinary(f.payload); err != nil {
					return
				}
				p.m.Lock()
				p.cancels = append(p.cancels, r)
				p.m.Unlock()
			case peerprotocol.Extension:
				if !p.handleExtension(f.payload, send) {
					return
				}
			}
		case <-extC:
			extC = nil
			if !sendExtHandshake() {
				return
			}
		case <-unchokeC:
			unchokeC = nil
			if !send(peerprotocol.UnchokeMessage{}) {
				return
			}
		case <-holdC:
			holdC = nil
			for _, r := range held {
				if !sendPiece(r) {
					return
				}
			}
			held = nil
		}
	}
}

func (p *fakePeer) handleExtension(payload []byte, send func(peerprotocol.Message) bool) bool {
	if len(payload) == 0 || payload[0] != peerprotocol.ExtensionIDMetadata {
		// Extension handshake of the client.
		return true
	}
	var req peerprotocol.ExtensionMetadataMessage
	if err := bencode.NewDecoder(bytes.NewReader(payload[1:])).Decode(&req); err != nil {
		return false
	}
	begin := int(req.Piece) * peerprotocol.MetadataPieceSize
	end := begin + peerprotocol.MetadataPieceSize
	if end > len(p.meta.Info) {
		end = len(p.meta.Info)
	}
	// The client assigns the same id to ut_metadata as we do.
	return send(peerprotocol.ExtensionMessage{
		ExtendedMessageID: peerprotocol.ExtensionIDMetadata,
		Payload: peerprotocol.ExtensionMetadataMessage{
			Type:      peerprotocol.ExtensionMetadataMessageTypeData,
			Piece:     req.Piece,
			TotalSize: len(p.meta.Info),
			Data:      p.meta.Info[begin:end],
		},
	})
}

func readFrames(r io.Reader, c chan<- frame, doneC <-chan struct{}) {
	defer close(c)
	for {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return
		}
		if n == 0 {
			continue
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return
		}
		select {
		case c <- frame{id: peerprotocol.MessageID(b[0]), payload: b[1:]}:
		case <-doneC:
			return
		}
	}
}
