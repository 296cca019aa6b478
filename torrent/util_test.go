package torrent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drip-torrent/LibTorrent-swift/internal/magnet"
)

func TestHumanReadableSize(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0.00 B"},
		{-5, "0.00 B"},
		{1023, "1023.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1 << 20, "1.00 MB"},
		{1 << 30, "1.00 GB"},
		{5 << 40, "5.00 TB"},
		{1 << 50, "1.00 PB"},
		{1 << 60, "1024.00 PB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HumanReadableSize(c.n), "size %d", c.n)
	}
}

func TestIsValidInfoHash(t *testing.T) {
	cases := []struct {
		s    string
		want bool
	}{
		{strings.Repeat("a", 40), true},
		{strings.Repeat("F", 40), true},
		{"0123456789abcdefABCDEF0123456789abcdef01", true},
		{strings.Repeat("0", 64), true},
		{"", false},
		{strings.Repeat("a", 39), false},
		{strings.Repeat("a", 41), false},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("g", 40), false},
		{strings.Repeat("a", 39) + " ", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsValidInfoHash(c.s), "%q", c.s)
	}
}

func TestMagnetURI(t *testing.T) {
	ih := "0123456789ABCDEF0123456789abcdef01234567"
	uri := MagnetURI(ih, "my file")
	assert.Equal(t, "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=my+file", uri)

	m, err := magnet.New(uri)
	require.NoError(t, err)
	assert.Equal(t, "my file", m.Name)
	assert.Len(t, m.InfoHash, 20)

	assert.Equal(t, "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567", MagnetURI(ih, ""))
	assert.Empty(t, MagnetURI("xyz", "name"))
}

func TestMagnetURIv2(t *testing.T) {
	ih := strings.Repeat("ab", 32)
	uri := MagnetURI(ih, "")
	assert.True(t, strings.HasPrefix(uri, "magnet:?xt=urn:btmh:1220"), uri)
	m, err := magnet.New(uri)
	require.NoError(t, err)
	assert.Len(t, m.InfoHash, 32)
}

func TestETA(t *testing.T) {
	assert.Nil(t, eta(1000, 0))
	d := eta(1000, 100)
	require.NotNil(t, d)
	assert.Equal(t, 10*time.Second, *d)
	d = eta(0, 100)
	require.NotNil(t, d)
	assert.Zero(t, *d)
}
