package piece

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPieces(t *testing.T) {
	pieces := NewPieces(3*32*1024+100, 32*1024)
	assert.Len(t, pieces, 4)
	assert.Equal(t, uint32(32*1024), pieces[2].Length)
	assert.Equal(t, uint32(100), pieces[3].Length)
	assert.Equal(t, uint32(3), pieces[3].Index)

	assert.Len(t, NewPieces(64*1024, 32*1024), 2)
	assert.Nil(t, NewPieces(0, 32*1024))
}

func TestBlocks(t *testing.T) {
	cases := []struct {
		length    uint32
		numBlocks int
		last      Block
	}{
		{2 * BlockSize, 2, Block{Index: 1, Begin: BlockSize, Length: BlockSize}},
		{2*BlockSize + 42, 3, Block{Index: 2, Begin: 2 * BlockSize, Length: 42}},
		{10, 1, Block{Index: 0, Begin: 0, Length: 10}},
	}
	for _, c := range cases {
		p := Piece{Index: 1, Length: c.length}
		assert.Equal(t, c.numBlocks, p.NumBlocks())
		blocks := p.Blocks()
		assert.Equal(t, c.last, blocks[len(blocks)-1])
		_, ok := p.GetBlock(c.numBlocks)
		assert.False(t, ok)
	}
}

func TestFindBlock(t *testing.T) {
	p := Piece{Index: 1, Length: 2*BlockSize + 42}

	_, ok := p.FindBlock(55, BlockSize)
	assert.False(t, ok)
	_, ok = p.FindBlock(3*BlockSize, BlockSize)
	assert.False(t, ok)
	_, ok = p.FindBlock(0, 1234)
	assert.False(t, ok)

	b, ok := p.FindBlock(2*BlockSize, 42)
	assert.True(t, ok)
	assert.Equal(t, Block{Index: 2, Begin: 2 * BlockSize, Length: 42}, b)
}
