package verifier

import (
	"bytes"
	"testing"

	"github.com/drip-torrent/LibTorrent-swift/internal/storage/memstorage"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyBitFlip(t *testing.T) {
	for _, size := range []int{metainfo.SHA1Size, metainfo.SHA256Size} {
		data := bytes.Repeat([]byte("verify me "), 50)
		m, err := metainfo.NewSingleFile("f", 128, data, size)
		require.NoError(t, err)
		v := New(m.PieceHashes)

		for i := uint32(0); i < m.NumPieces(); i++ {
			begin := int(i) * 128
			end := begin + int(m.PieceSize(i))
			piece := append([]byte(nil), data[begin:end]...)
			assert.True(t, v.Verify(i, piece))

			for bit := 0; bit < len(piece)*8; bit += 37 {
				piece[bit/8] ^= 1 << (bit % 8)
				assert.False(t, v.Verify(i, piece), "piece %d bit %d", i, bit)
				piece[bit/8] ^= 1 << (bit % 8)
			}
		}
		assert.False(t, v.Verify(m.NumPieces(), nil))
	}
}

func TestChecker(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 1000)
	m, err := metainfo.NewSingleFile("f", 256, data, metainfo.SHA1Size)
	require.NoError(t, err)
	store := memstorage.New()
	require.NoError(t, store.Open("id", m, ""))
	require.NoError(t, store.Write("id", 1, 0, data[256:512]))
	require.NoError(t, store.Write("id", 3, 0, make([]byte, m.PieceSize(3))))

	resultC := make(chan *Checker, 1)
	c := NewChecker()
	go c.Run(store, "id", m, nil, resultC)
	res := <-resultC
	require.NoError(t, res.Error)
	assert.Equal(t, uint32(1), res.Bitfield.Count())
	assert.True(t, res.Bitfield.Test(1))
}

func TestCheckerStorageError(t *testing.T) {
	m, err := metainfo.NewSingleFile("f", 256, make([]byte, 300), metainfo.SHA1Size)
	require.NoError(t, err)
	store := memstorage.New()
	require.NoError(t, store.Open("id", m, ""))
	store.Fail()

	resultC := make(chan *Checker, 1)
	go NewChecker().Run(store, "id", m, nil, resultC)
	res := <-resultC
	assert.Equal(t, memstorage.ErrInjected, res.Error)
}
