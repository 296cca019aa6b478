package peerprotocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var pstr = [19]byte{'B', 'i', 't', 'T', 'o', 'r', 'r', 'e', 'n', 't', ' ', 'p', 'r', 'o', 't', 'o', 'c', 'o', 'l'}

// HandshakeLength is the size of a complete handshake.
const HandshakeLength = 1 + len(pstr) + 8 + 20 + 20

// ErrInvalidProtocol is returned when the remote side does not speak the BitTorrent protocol.
var ErrInvalidProtocol = errors.New("invalid protocol")

// ExtensionBits are the reserved bytes of the handshake.
type ExtensionBits [8]byte

// Reserved bit for the extension protocol (BEP 10).
const (
	extensionProtocolByte = 5
	extensionProtocolMask = 0x10
)

// SetExtensionProtocol sets the bit for extension protocol support.
func (e *ExtensionBits) SetExtensionProtocol() { e[extensionProtocolByte] |= extensionProtocolMask }

// ExtensionProtocol returns true if the extension protocol is supported.
func (e ExtensionBits) ExtensionProtocol() bool {
	return e[extensionProtocolByte]&extensionProtocolMask != 0
}

// WireHash returns the 20 bytes of an info hash that are sent in the handshake.
// 32 byte hashes are truncated.
func WireHash(infoHash []byte) (h [20]byte) {
	copy(h[:], infoHash)
	return
}

// WriteHandshake writes the complete handshake.
func WriteHandshake(w io.Writer, ih [20]byte, id [20]byte, ext ExtensionBits) error {
	var h = struct {
		Pstrlen    byte
		Pstr       [len(pstr)]byte
		Extensions ExtensionBits
		InfoHash   [20]byte
		PeerID     [20]byte
	}{
		Pstrlen:    byte(len(pstr)),
		Pstr:       pstr,
		Extensions: ext,
		InfoHash:   ih,
		PeerID:     id,
	}
	return binary.Write(w, binary.BigEndian, h)
}

// ReadHandshake1 reads the first part of the handshake up to and including the info hash.
// The receiving side of a connection uses the info hash to decide which torrent the peer belongs to.
func ReadHandshake1(r io.Reader) (ext ExtensionBits, ih [20]byte, err error) {
	var b [1 + len(pstr)]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return
	}
	if b[0] != byte(len(pstr)) || !bytes.Equal(b[1:], pstr[:]) {
		err = ErrInvalidProtocol
		return
	}
	if _, err = io.ReadFull(r, ext[:]); err != nil {
		return
	}
	_, err = io.ReadFull(r, ih[:])
	return
}

// ReadHandshake2 reads the peer id.
func ReadHandshake2(r io.Reader) (id [20]byte, err error) {
	_, err = io.ReadFull(r, id[:])
	return
}
