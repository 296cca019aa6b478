// Package magnet parses and formats magnet links.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/multiformats/go-multihash"
)

const (
	prefixV1 = "urn:btih:"
	prefixMH = "urn:btmh:"
)

// Magnet link contains the information to download torrent metadata from network.
type Magnet struct {
	// InfoHash is 20 bytes for urn:btih links and 32 bytes for urn:btmh (SHA2-256) links.
	InfoHash []byte
	Name     string
	Trackers []string
	Peers    []string
}

// New parses the string and returns new Magnet.
func New(s string) (*Magnet, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, errors.New("not a magnet link")
	}
	params := u.Query()
	var m Magnet
	for _, xt := range params["xt"] {
		m.InfoHash, err = parseXT(xt)
		if err == nil {
			break
		}
	}
	if m.InfoHash == nil {
		if err == nil {
			err = errors.New("missing xt param")
		}
		return nil, err
	}
	m.Name = params.Get("dn")
	m.Trackers = params["tr"]
	m.Peers = params["x.pe"]
	return &m, nil
}

// String formats the magnet link. The name and trackers are query escaped.
func (m *Magnet) String() string {
	var b strings.Builder
	b.WriteString("magnet:?xt=")
	b.WriteString(XT(m.InfoHash))
	if m.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(m.Name))
	}
	for _, tr := range m.Trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	for _, p := range m.Peers {
		b.WriteString("&x.pe=")
		b.WriteString(p)
	}
	return b.String()
}

// XT returns the exact topic for the info hash: urn:btih for 20 bytes, urn:btmh for 32 bytes.
func XT(infoHash []byte) string {
	if len(infoHash) == 32 {
		mh, err := multihash.Encode(infoHash, multihash.SHA2_256)
		if err == nil {
			return prefixMH + hex.EncodeToString(mh)
		}
	}
	return prefixV1 + hex.EncodeToString(infoHash)
}

func parseXT(xt string) ([]byte, error) {
	switch {
	case strings.HasPrefix(xt, prefixV1):
		xt = xt[len(prefixV1):]
		switch len(xt) {
		case 40:
			return hex.DecodeString(xt)
		case 32:
			return base32.StdEncoding.DecodeString(strings.ToUpper(xt))
		default:
			return nil, errors.New("info hash must be 32 or 40 characters")
		}
	case strings.HasPrefix(xt, prefixMH):
		mh, err := multihash.FromHexString(xt[len(prefixMH):])
		if err != nil {
			return nil, err
		}
		dec, err := multihash.Decode(mh)
		if err != nil {
			return nil, err
		}
		if dec.Code != multihash.SHA2_256 || len(dec.Digest) != 32 {
			return nil, fmt.Errorf("unsupported multihash: %s", multihash.Codes[dec.Code])
		}
		return dec.Digest, nil
	default:
		return nil, fmt.Errorf("invalid xt param: must start with %q or %q", prefixV1, prefixMH)
	}
}
