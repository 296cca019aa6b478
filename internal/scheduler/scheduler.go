// Package scheduler decides which blocks to request from which peer.
//
// Pieces are picked rarest first among the pieces a peer has. Once only a few
// pieces are left the scheduler enters endgame mode and hands out blocks that
// are already in flight to other peers. The first copy that arrives wins and
// the other requests are returned for cancellation.
//
// Scheduler is not safe for concurrent use. It is owned by the torrent's event loop.
package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/drip-torrent/LibTorrent-swift/internal/availability"
	"github.com/drip-torrent/LibTorrent-swift/internal/piece"
)

var (
	// ErrBlockInvalid is returned when the block does not exist in the torrent.
	ErrBlockInvalid = errors.New("invalid block")
	// ErrBlockDuplicate is returned when the block has been received before.
	ErrBlockDuplicate = errors.New("received duplicate block")
	// ErrBlockNotRequested is returned when the block was not requested from the peer.
	ErrBlockNotRequested = errors.New("received block is not requested")
)

// PeerID identifies a peer connection.
type PeerID = availability.PeerID

// Request is an outstanding block request.
type Request struct {
	Peer     PeerID
	Piece    uint32
	Begin    uint32
	Length   uint32
	IssuedAt time.Time
}

// Config of a Scheduler.
type Config struct {
	// Endgame starts when the number of incomplete pieces is at most this value.
	// Zero means 5% of the pieces, but at least one.
	EndgamePieces int
	// Requests older than this are dropped and their blocks become assignable again.
	RequestTimeout time.Duration
	// Peers that let this many requests time out are reported as unresponsive.
	MaxRequestTimeouts int
}

type blockKey struct {
	piece, begin uint32
}

type myBlock struct {
	piece.Block
	received  bool
	requested []PeerID
}

func (b *myBlock) requestedBy(pe PeerID) bool {
	for _, p := range b.requested {
		if p == pe {
			return true
		}
	}
	return false
}

func (b *myBlock) removeRequest(pe PeerID) bool {
	for i, p := range b.requested {
		if p == pe {
			b.requested[i] = b.requested[len(b.requested)-1]
			b.requested = b.requested[:len(b.requested)-1]
			return true
		}
	}
	return false
}

type myPiece struct {
	piece.Piece
	state    PieceState
	blocks   []myBlock
	received int
	inFlight int
}

type myPeer struct {
	choked      bool
	outstanding map[blockKey]time.Time
	timeouts    int
	reported    bool
}

// Scheduler assigns block requests to peers.
type Scheduler struct {
	pieces         []myPiece
	peers          map[PeerID]*myPeer
	tracker        *availability.Tracker
	complete       uint32
	endgamePieces  uint32
	requestTimeout time.Duration
	maxTimeouts    int
	now            func() time.Time
}

// New returns a Scheduler for the pieces. Availability of pieces is read from tracker.
func New(pieces []piece.Piece, tracker *availability.Tracker, cfg Config) *Scheduler {
	s := &Scheduler{
		pieces:         make([]myPiece, len(pieces)),
		peers:          make(map[PeerID]*myPeer),
		tracker:        tracker,
		requestTimeout: cfg.RequestTimeout,
		maxTimeouts:    cfg.MaxRequestTimeouts,
		now:            time.Now,
	}
	for i, p := range pieces {
		mp := myPiece{Piece: p, blocks: make([]myBlock, p.NumBlocks())}
		for j, b := range p.Blocks() {
			mp.blocks[j] = myBlock{Block: b}
		}
		s.pieces[i] = mp
	}
	if cfg.EndgamePieces > 0 {
		s.endgamePieces = uint32(cfg.EndgamePieces)
	} else {
		s.endgamePieces = uint32((len(pieces) + 19) / 20)
		if s.endgamePieces == 0 {
			s.endgamePieces = 1
		}
	}
	return s
}

// AddPeer registers a peer. Peers start choked.
func (s *Scheduler) AddPeer(pe PeerID) {
	if _, ok := s.peers[pe]; ok {
		return
	}
	s.peers[pe] = &myPeer{choked: true, outstanding: make(map[blockKey]time.Time)}
}

// RemovePeer forgets the peer and returns its outstanding requests to the pool.
func (s *Scheduler) RemovePeer(pe PeerID) []Request {
	reqs := s.dropAll(pe)
	delete(s.peers, pe)
	return reqs
}

// Choked sets the choke status of the remote peer.
// Requests are discarded by the remote side on choke, so they are dropped here too.
func (s *Scheduler) Choked(pe PeerID, choked bool) []Request {
	p, ok := s.peers[pe]
	if !ok {
		return nil
	}
	p.choked = choked
	if choked {
		return s.dropAll(pe)
	}
	return nil
}

// IsChoked returns the choke status of the remote peer.
func (s *Scheduler) IsChoked(pe PeerID) bool {
	p, ok := s.peers[pe]
	return !ok || p.choked
}

// Outstanding returns the number of requests in flight to the peer.
func (s *Scheduler) Outstanding(pe PeerID) int {
	if p, ok := s.peers[pe]; ok {
		return len(p.outstanding)
	}
	return 0
}

// State returns the state of the piece.
func (s *Scheduler) State(index uint32) PieceState { return s.pieces[index].state }

// NumPieces returns the number of pieces in the torrent.
func (s *Scheduler) NumPieces() uint32 { return uint32(len(s.pieces)) }

// NumComplete returns the number of verified pieces.
func (s *Scheduler) NumComplete() uint32 { return s.complete }

// Remaining returns the number of pieces that are not Complete.
func (s *Scheduler) Remaining() uint32 { return uint32(len(s.pieces)) - s.complete }

// Endgame returns true if duplicate requests are allowed.
func (s *Scheduler) Endgame() bool {
	r := s.Remaining()
	return r > 0 && r <= s.endgamePieces
}

// Interesting returns true if the peer has a piece that is not Complete.
func (s *Scheduler) Interesting(pe PeerID) bool {
	for i := range s.pieces {
		if s.pieces[i].state != Complete && s.tracker.Has(pe, uint32(i)) {
			return true
		}
	}
	return false
}

// MarkComplete sets a piece Complete without downloading, e.g. when existing data is verified.
func (s *Scheduler) MarkComplete(index uint32) {
	p := &s.pieces[index]
	if p.state == Complete {
		return
	}
	s.resetPiece(p)
	p.state = Complete
	s.complete++
}

// NextRequestsFor returns new requests for the peer so that it has at most maxOutstanding requests in flight.
// The returned requests are recorded as outstanding.
func (s *Scheduler) NextRequestsFor(pe PeerID, maxOutstanding int) []Request {
	p, ok := s.peers[pe]
	if !ok || p.choked {
		return nil
	}
	n := maxOutstanding - len(p.outstanding)
	if n <= 0 {
		return nil
	}
	var candidates []uint32
	s.tracker.Ascend(func(i uint32, count int) bool {
		if count > 0 {
			st := s.pieces[i].state
			if st == Missing || st == Requested {
				candidates = append(candidates, i)
			}
		}
		return true
	})
	var reqs []Request
	now := s.now()
	assign := func(mp *myPiece, b *myBlock) {
		if mp.state == Missing {
			mp.state = Requested
		}
		b.requested = append(b.requested, pe)
		mp.inFlight++
		p.outstanding[blockKey{mp.Index, b.Begin}] = now
		reqs = append(reqs, Request{Peer: pe, Piece: mp.Index, Begin: b.Begin, Length: b.Length, IssuedAt: now})
		n--
	}
	var owned []uint32
	for _, i := range candidates {
		if n == 0 {
			break
		}
		if !s.tracker.Has(pe, i) {
			continue
		}
		owned = append(owned, i)
		mp := &s.pieces[i]
		for j := range mp.blocks {
			b := &mp.blocks[j]
			if !b.received && len(b.requested) == 0 {
				assign(mp, b)
				if n == 0 {
					break
				}
			}
		}
	}
	if n == 0 || !s.Endgame() {
		return reqs
	}
	for _, i := range owned {
		mp := &s.pieces[i]
		for j := range mp.blocks {
			b := &mp.blocks[j]
			if !b.received && !b.requestedBy(pe) {
				assign(mp, b)
				if n == 0 {
					return reqs
				}
			}
		}
	}
	return reqs
}

// BlockReceived must be called when a Piece message arrives.
// It returns requests for the same block that are in flight to other peers; those must be cancelled.
// pieceDone is true when this was the last missing block and the piece moved to Verifying.
func (s *Scheduler) BlockReceived(pe PeerID, index, begin, length uint32) (cancels []Request, pieceDone bool, err error) {
	if index >= uint32(len(s.pieces)) {
		return nil, false, ErrBlockInvalid
	}
	mp := &s.pieces[index]
	blk, ok := mp.FindBlock(begin, length)
	if !ok {
		return nil, false, ErrBlockInvalid
	}
	b := &mp.blocks[blk.Index]
	requested := s.removeOutstanding(pe, mp, b)
	if b.received || mp.state == Verifying || mp.state == Complete {
		return nil, false, ErrBlockDuplicate
	}
	if !requested {
		return nil, false, ErrBlockNotRequested
	}
	b.received = true
	mp.received++
	for len(b.requested) > 0 {
		other := b.requested[0]
		t := s.peers[other].outstanding[blockKey{index, begin}]
		s.removeOutstanding(other, mp, b)
		cancels = append(cancels, Request{Peer: other, Piece: index, Begin: begin, Length: length, IssuedAt: t})
	}
	if mp.received == len(mp.blocks) {
		mp.state = Verifying
		pieceDone = true
	}
	return cancels, pieceDone, nil
}

// Rejected returns the block to the pool after the peer refused the request.
func (s *Scheduler) Rejected(pe PeerID, index, begin, length uint32) bool {
	if index >= uint32(len(s.pieces)) {
		return false
	}
	mp := &s.pieces[index]
	blk, ok := mp.FindBlock(begin, length)
	if !ok {
		return false
	}
	ok = s.removeOutstanding(pe, mp, &mp.blocks[blk.Index])
	s.settle(mp)
	return ok
}

// PieceVerified moves a Verifying piece to Complete, or back to Missing when the hash did not match.
func (s *Scheduler) PieceVerified(index uint32, ok bool) {
	mp := &s.pieces[index]
	if mp.state != Verifying {
		return
	}
	if ok {
		mp.state = Complete
		s.complete++
		return
	}
	s.resetPiece(mp)
}

// Expire drops requests older than the request timeout.
// Peers whose timeouts reach the configured maximum are returned once in unresponsive.
func (s *Scheduler) Expire(now time.Time) (expired []Request, unresponsive []PeerID) {
	if s.requestTimeout <= 0 {
		return nil, nil
	}
	for pe, p := range s.peers {
		for k, t := range p.outstanding {
			if now.Sub(t) < s.requestTimeout {
				continue
			}
			mp := &s.pieces[k.piece]
			b := &mp.blocks[k.begin/piece.BlockSize]
			s.removeOutstanding(pe, mp, b)
			s.settle(mp)
			expired = append(expired, Request{Peer: pe, Piece: k.piece, Begin: k.begin, Length: b.Length, IssuedAt: t})
			p.timeouts++
		}
		if s.maxTimeouts > 0 && p.timeouts >= s.maxTimeouts && !p.reported {
			p.reported = true
			unresponsive = append(unresponsive, pe)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].Piece != expired[j].Piece {
			return expired[i].Piece < expired[j].Piece
		}
		return expired[i].Begin < expired[j].Begin
	})
	return expired, unresponsive
}

func (s *Scheduler) dropAll(pe PeerID) []Request {
	p, ok := s.peers[pe]
	if !ok {
		return nil
	}
	reqs := make([]Request, 0, len(p.outstanding))
	for k, t := range p.outstanding {
		mp := &s.pieces[k.piece]
		b := &mp.blocks[k.begin/piece.BlockSize]
		s.removeOutstanding(pe, mp, b)
		s.settle(mp)
		reqs = append(reqs, Request{Peer: pe, Piece: k.piece, Begin: k.begin, Length: b.Length, IssuedAt: t})
	}
	return reqs
}

func (s *Scheduler) removeOutstanding(pe PeerID, mp *myPiece, b *myBlock) bool {
	if !b.removeRequest(pe) {
		return false
	}
	mp.inFlight--
	if p, ok := s.peers[pe]; ok {
		delete(p.outstanding, blockKey{mp.Index, b.Begin})
	}
	return true
}

// settle returns a Requested piece to Missing when nothing is in flight and nothing was received.
func (s *Scheduler) settle(mp *myPiece) {
	if mp.state == Requested && mp.inFlight == 0 && mp.received == 0 {
		mp.state = Missing
	}
}

func (s *Scheduler) resetPiece(mp *myPiece) {
	for j := range mp.blocks {
		b := &mp.blocks[j]
		for len(b.requested) > 0 {
			s.removeOutstanding(b.requested[0], mp, b)
		}
		b.received = false
	}
	mp.received = 0
	mp.state = Missing
}
