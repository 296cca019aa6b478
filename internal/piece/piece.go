// Package piece describes how a torrent is cut into pieces and a piece into blocks.
package piece

// BlockSize is the length of every block except possibly the last block of the last piece.
const BlockSize = 16 * 1024

// Block is part of a Piece. It is the unit of a request on the wire.
type Block struct {
	Index  uint32 // index in piece
	Begin  uint32 // offset in piece
	Length uint32
}

// Piece of a torrent.
type Piece struct {
	Index  uint32 // index in torrent
	Length uint32 // equal to piece length except the last piece
}

// NewPieces splits totalSize bytes into pieces of pieceLength bytes.
func NewPieces(totalSize int64, pieceLength uint32) []Piece {
	if pieceLength == 0 || totalSize <= 0 {
		return nil
	}
	n := (totalSize + int64(pieceLength) - 1) / int64(pieceLength)
	pieces := make([]Piece, n)
	for i := range pieces {
		pieces[i] = Piece{Index: uint32(i), Length: pieceLength}
	}
	if mod := uint32(totalSize % int64(pieceLength)); mod != 0 {
		pieces[n-1].Length = mod
	}
	return pieces
}

// NumBlocks returns the number of blocks in the piece.
func (p Piece) NumBlocks() int {
	return int((p.Length + BlockSize - 1) / BlockSize)
}

// GetBlock returns the i'th block of the piece.
func (p Piece) GetBlock(i int) (Block, bool) {
	if i < 0 || i >= p.NumBlocks() {
		return Block{}, false
	}
	b := Block{Index: uint32(i), Begin: uint32(i) * BlockSize, Length: BlockSize}
	if rest := p.Length - b.Begin; rest < BlockSize {
		b.Length = rest
	}
	return b, true
}

// FindBlock returns the block at offset begin if its length matches.
func (p Piece) FindBlock(begin, length uint32) (Block, bool) {
	if begin%BlockSize != 0 {
		return Block{}, false
	}
	b, ok := p.GetBlock(int(begin / BlockSize))
	if !ok || b.Length != length {
		return Block{}, false
	}
	return b, true
}

// Blocks returns all blocks of the piece in offset order.
func (p Piece) Blocks() []Block {
	blocks := make([]Block, p.NumBlocks())
	for i := range blocks {
		blocks[i], _ = p.GetBlock(i)
	}
	return blocks
}
