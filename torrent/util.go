package torrent

import (
	"encoding/hex"
	"fmt"

	"github.com/drip-torrent/LibTorrent-swift/internal/magnet"
)

// MagnetURI builds a magnet link from a hex encoded info hash and an optional display name.
// 40 characters give a urn:btih link, 64 characters a urn:btmh (SHA2-256 multihash) link.
// It returns an empty string if infoHash is not valid.
func MagnetURI(infoHash, name string) string {
	if !IsValidInfoHash(infoHash) {
		return ""
	}
	b, _ := hex.DecodeString(infoHash)
	m := magnet.Magnet{InfoHash: b, Name: name}
	return m.String()
}

// IsValidInfoHash returns true if s is exactly 40 or 64 hexadecimal characters.
func IsValidInfoHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// HumanReadableSize formats n bytes with binary (1024) units and two decimals, like "1.50 KB".
// Negative values are formatted as zero.
func HumanReadableSize(n int64) string {
	if n < 0 {
		n = 0
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[i])
}
