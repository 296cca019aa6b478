package metainfo

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func hashes(n, size int) [][]byte {
	h := make([][]byte, n)
	for i := range h {
		h[i] = make([]byte, size)
	}
	return h
}

func TestNewValidatesSizes(t *testing.T) {
	ih := make([]byte, SHA1Size)
	files := []File{{Path: "a", Length: 100}, {Path: "b", Length: 28}}

	m, err := New("x", ih, 32, hashes(4, SHA1Size), files)
	require.NoError(t, err)
	assert.Equal(t, int64(128), m.TotalSize)
	assert.Equal(t, int64(100), m.Files[1].Offset)
	assert.Equal(t, uint32(4), m.NumPieces())
	assert.Equal(t, uint32(32), m.PieceSize(3))

	_, err = New("x", ih, 32, hashes(5, SHA1Size), files)
	var me *MetadataError
	assert.ErrorAs(t, err, &me)
	_, err = New("x", ih, 32, hashes(3, SHA1Size), files)
	assert.Error(t, err)
	_, err = New("x", ih, 0, hashes(4, SHA1Size), files)
	assert.Error(t, err)
	_, err = New("x", ih, 32, hashes(4, SHA256Size), files)
	assert.Error(t, err)
	_, err = New("x", make([]byte, 7), 32, hashes(4, 7), files)
	assert.Error(t, err)
}

func TestLastPieceSize(t *testing.T) {
	m, err := New("x", make([]byte, SHA1Size), 32, hashes(4, SHA1Size), []File{{Path: "a", Length: 100}})
	require.NoError(t, err)
	assert.Equal(t, uint32(32), m.PieceSize(0))
	assert.Equal(t, uint32(4), m.PieceSize(3))
}

func TestNewSingleFileRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("rain"), 1000)
	m, err := NewSingleFile("data.bin", 1024, data, SHA1Size)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), m.NumPieces())
	assert.Equal(t, int64(len(data)), m.TotalSize)
	sum := sha1.Sum(data[:1024]) // nolint: gosec
	assert.Equal(t, sum[:], m.PieceHash(0))

	b, err := m.TorrentFile()
	require.NoError(t, err)
	parsed, err := Parse(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, m.InfoHash, parsed.InfoHash)
	assert.Equal(t, m.PieceHashes, parsed.PieceHashes)
	assert.Equal(t, "data.bin", parsed.Files[0].Path)
}

func TestSHA256Metadata(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 3000)
	m, err := NewSingleFile("v2", 1024, data, SHA256Size)
	require.NoError(t, err)
	assert.Equal(t, SHA256Size, m.HashSize())
	assert.Len(t, m.PieceHash(2), SHA256Size)
}

func TestParseInfoRejectsWrongHash(t *testing.T) {
	m, err := NewSingleFile("a", 16, []byte("0123456789"), SHA1Size)
	require.NoError(t, err)
	_, err = ParseInfo(m.Info, make([]byte, SHA1Size))
	assert.ErrorIs(t, err, errInfoHashMismatch)
}

func TestParseMultiFile(t *testing.T) {
	data := make([]byte, 40)
	sum := sha1.Sum(data) // nolint: gosec
	info, err := bencode.EncodeBytes(map[string]interface{}{
		"name":         "dir",
		"piece length": 64,
		"pieces":       sum[:],
		"files": []map[string]interface{}{
			{"length": 30, "path": []string{"a", "b.txt"}},
			{"length": 10, "path": []string{"c.txt"}},
		},
	})
	require.NoError(t, err)
	torrent, err := bencode.EncodeBytes(map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     bencode.RawMessage(info),
	})
	require.NoError(t, err)

	m, err := Parse(bytes.NewReader(torrent))
	require.NoError(t, err)
	assert.Equal(t, "dir", m.Name)
	assert.Len(t, m.Files, 2)
	assert.Equal(t, int64(30), m.Files[1].Offset)
	assert.Equal(t, []string{"http://tracker.example/announce"}, m.Trackers)
}

func TestParseRejectsDotDot(t *testing.T) {
	data := make([]byte, 10)
	sum := sha1.Sum(data) // nolint: gosec
	info, err := bencode.EncodeBytes(map[string]interface{}{
		"name":         "dir",
		"piece length": 64,
		"pieces":       sum[:],
		"files": []map[string]interface{}{
			{"length": 10, "path": []string{"..", "etc"}},
		},
	})
	require.NoError(t, err)
	ih := sha1.Sum(info) // nolint: gosec
	_, err = ParseInfo(info, ih[:])
	assert.Error(t, err)
}
