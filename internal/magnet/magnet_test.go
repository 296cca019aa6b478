package magnet

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseV1(t *testing.T) {
	u := "magnet:?xt=urn:btih:F60CC95E3566AF84C1AB223FD4CE80FA88E6438A&dn=sample_torrent&tr=udp%3A%2F%2Ftracker.example%3A2710"
	m, err := New(u)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower("F60CC95E3566AF84C1AB223FD4CE80FA88E6438A"), hex.EncodeToString(m.InfoHash))
	assert.Equal(t, "sample_torrent", m.Name)
	assert.Equal(t, []string{"udp://tracker.example:2710"}, m.Trackers)
	assert.True(t, strings.EqualFold(u, m.String()))
}

func TestParseBase32(t *testing.T) {
	m, err := New("magnet:?xt=urn:btih:6YGMSXRVM2XYJQNLEI75JTUA7KEOMQ4K")
	require.NoError(t, err)
	assert.Equal(t, "f60cc95e3566af84c1ab223fd4ce80fa88e6438a", hex.EncodeToString(m.InfoHash))
}

func TestMultihashRoundTrip(t *testing.T) {
	ih := bytes.Repeat([]byte{0xab}, 32)
	s := (&Magnet{InfoHash: ih, Name: "a b"}).String()
	assert.True(t, strings.HasPrefix(s, "magnet:?xt=urn:btmh:1220abab"))
	assert.Contains(t, s, "&dn=a+b")

	m, err := New(s)
	require.NoError(t, err)
	assert.Equal(t, ih, m.InfoHash)
	assert.Equal(t, "a b", m.Name)
}

func TestInvalid(t *testing.T) {
	for _, s := range []string{
		"http://example.com",
		"magnet:?dn=foo",
		"magnet:?xt=urn:btih:1234",
		"magnet:?xt=urn:sha1:F60CC95E3566AF84C1AB223FD4CE80FA88E6438A",
	} {
		_, err := New(s)
		assert.Error(t, err, s)
	}
}
