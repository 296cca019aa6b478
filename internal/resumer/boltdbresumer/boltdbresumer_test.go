package boltdbresumer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/drip-torrent/LibTorrent-swift/internal/resumer"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

func newResumer(t *testing.T) *Resumer {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0640, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r, err := New(db, []byte("torrents"))
	require.NoError(t, err)
	return r
}

func TestWriteRead(t *testing.T) {
	r := newResumer(t)
	m, err := metainfo.NewSingleFile("file", 16*1024, make([]byte, 40000), metainfo.SHA1Size)
	require.NoError(t, err)
	added := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	spec := &Spec{
		InfoHash:        m.InfoHash,
		Name:            "file",
		SavePath:        "/tmp/x",
		Peers:           []string{"1.2.3.4:5"},
		Metadata:        m,
		Bitfield:        []byte{0xa0},
		AddedAt:         added,
		BytesDownloaded: 10,
	}
	require.NoError(t, r.Write("id1", spec))

	tr := r.For("id1")
	require.NoError(t, tr.WriteBitfield([]byte{0xe0}))
	require.NoError(t, tr.WritePaused(true))
	require.NoError(t, tr.WriteStats(resumer.Stats{BytesDownloaded: 100, BytesUploaded: 50, BytesWasted: 1}))

	got, err := r.Read("id1")
	require.NoError(t, err)
	assert.Equal(t, m.InfoHash, got.InfoHash)
	assert.Equal(t, "/tmp/x", got.SavePath)
	assert.Equal(t, []string{"1.2.3.4:5"}, got.Peers)
	assert.Equal(t, []byte{0xe0}, got.Bitfield)
	assert.True(t, got.Paused)
	assert.True(t, added.Equal(got.AddedAt))
	assert.Equal(t, int64(100), got.BytesDownloaded)
	assert.Equal(t, int64(50), got.BytesUploaded)
	assert.Equal(t, int64(1), got.BytesWasted)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, m.PieceHashes, got.Metadata.PieceHashes)
	assert.Equal(t, m.TotalSize, got.Metadata.TotalSize)

	ids, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"id1"}, ids)

	require.NoError(t, r.Delete("id1"))
	require.NoError(t, r.Delete("id1"))
	_, err = r.Read("id1")
	assert.Error(t, err)
}

func TestWriteToMissingTorrentIsNoop(t *testing.T) {
	r := newResumer(t)
	assert.NoError(t, r.WriteBitfield("missing", []byte{1}))
	ids, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
