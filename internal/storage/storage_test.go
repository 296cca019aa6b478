package storage

import (
	"testing"

	"github.com/drip-torrent/LibTorrent-swift/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	hashes := make([][]byte, 3)
	for i := range hashes {
		hashes[i] = make([]byte, metainfo.SHA1Size)
	}
	m, err := metainfo.New("t", make([]byte, metainfo.SHA1Size), 10, hashes, []metainfo.File{
		{Path: "a", Length: 7},
		{Path: "empty", Length: 0},
		{Path: "b", Length: 18},
	})
	require.NoError(t, err)

	spans, err := Locate(m, 0, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, []Span{{File: 0, Offset: 5, Length: 2}, {File: 2, Offset: 0, Length: 3}}, spans)

	spans, err = Locate(m, 2, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []Span{{File: 2, Offset: 13, Length: 5}}, spans)

	_, err = Locate(m, 2, 0, 6)
	assert.Equal(t, ErrOutOfRange, err)
	_, err = Locate(m, 3, 0, 1)
	assert.Equal(t, ErrOutOfRange, err)
}
