package filestorage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/drip-torrent/LibTorrent-swift/internal/storage"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multiFile(t *testing.T) *metainfo.Metadata {
	hashes := make([][]byte, 3)
	for i := range hashes {
		hashes[i] = make([]byte, metainfo.SHA1Size)
	}
	m, err := metainfo.New("dir", make([]byte, metainfo.SHA1Size), 10, hashes, []metainfo.File{
		{Path: filepath.Join("dir", "a"), Length: 7},
		{Path: filepath.Join("dir", "sub", "b"), Length: 18},
	})
	require.NoError(t, err)
	return m
}

func TestWriteReadAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	s := New()
	m := multiFile(t)
	require.NoError(t, s.Open("t1", m, dir))

	_, err := s.Read("t1", 0, 0, 10)
	assert.Equal(t, storage.ErrNoData, err)

	require.NoError(t, s.Write("t1", 0, 0, []byte("0123456789")))
	require.NoError(t, s.Flush("t1"))
	b, err := s.Read("t1", 0, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(b))

	a, err := os.ReadFile(filepath.Join(dir, "dir", "a"))
	require.NoError(t, err)
	assert.Equal(t, "0123456", string(a))

	// b exists now but piece 2 is beyond its end
	_, err = s.Read("t1", 2, 0, 5)
	assert.Equal(t, storage.ErrNoData, err)
}

func TestDeleteAll(t *testing.T) {
	dir := t.TempDir()
	s := New()
	m := multiFile(t)
	require.NoError(t, s.Open("t1", m, dir))
	require.NoError(t, s.Write("t1", 2, 0, []byte("abcde")))
	require.NoError(t, s.DeleteAll("t1"))
	_, err := os.Stat(filepath.Join(dir, "dir"))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Read("t1", 0, 0, 1)
	assert.Equal(t, storage.ErrNotOpen, err)
}

func TestCloseKeepsData(t *testing.T) {
	dir := t.TempDir()
	s := New()
	m, err := metainfo.NewSingleFile("single", 4, []byte("abcdefgh"), metainfo.SHA1Size)
	require.NoError(t, err)
	require.NoError(t, s.Open("x", m, dir))
	require.NoError(t, s.Write("x", 1, 0, []byte("efgh")))
	require.NoError(t, s.Close("x"))

	require.NoError(t, s.Open("x", m, dir))
	b, err := s.Read("x", 1, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(b))
}
