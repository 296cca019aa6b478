package infodownloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPeer struct {
	size      uint32
	requested []uint32
}

func (p *testPeer) MetadataSize() uint32 { return p.size }
func (p *testPeer) RequestMetadataPiece(index uint32) {
	p.requested = append(p.requested, index)
}

func TestInfoDownloader(t *testing.T) {
	p := &testPeer{size: 10*16*1024 + 42}
	d, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, 11, len(d.blocks))
	assert.False(t, d.Done())

	d.RequestBlocks(4)
	assert.Equal(t, 4, d.pending)
	assert.Equal(t, []uint32{0, 1, 2, 3}, p.requested)

	d.RequestBlocks(4)
	assert.Equal(t, []uint32{0, 1, 2, 3}, p.requested)

	assert.NoError(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.Error(t, d.GotBlock(0, make([]byte, blockSize)), "duplicate")
	assert.Equal(t, 3, d.pending)
	d.RequestBlocks(4)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, p.requested)

	for i := uint32(1); i <= 4; i++ {
		assert.NoError(t, d.GotBlock(i, make([]byte, blockSize)))
	}
	d.RequestBlocks(10)
	assert.Equal(t, 6, d.pending)
	assert.Error(t, d.GotBlock(10, make([]byte, blockSize)), "wrong size of last piece")
	for i := uint32(5); i <= 9; i++ {
		assert.NoError(t, d.GotBlock(i, make([]byte, blockSize)))
	}
	assert.False(t, d.Done())
	last := make([]byte, 42)
	last[41] = 'x'
	assert.NoError(t, d.GotBlock(10, last))
	assert.True(t, d.Done())
	assert.Equal(t, byte('x'), d.Bytes[len(d.Bytes)-1])
}

func TestInvalidSize(t *testing.T) {
	_, err := New(&testPeer{size: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(&testPeer{size: MaxMetadataSize + 1})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestOutOfRange(t *testing.T) {
	d, err := New(&testPeer{size: 100})
	require.NoError(t, err)
	assert.Error(t, d.GotBlock(1, nil))
	assert.Error(t, d.GotBlock(0, make([]byte, 100)), "not requested")
}
