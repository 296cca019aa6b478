package peerprotocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zeebo/bencode"
)

// Extended message ids that we assign in our extension handshake.
const (
	// ExtensionIDHandshake is ID for extension handshake message.
	ExtensionIDHandshake uint8 = iota
	// ExtensionIDMetadata is ID for metadata extension messages.
	ExtensionIDMetadata
)

// ExtensionKeyMetadata is the key for the metadata extension.
const ExtensionKeyMetadata = "ut_metadata"

// Metadata message types (BEP 9).
const (
	ExtensionMetadataMessageTypeRequest = iota
	ExtensionMetadataMessageTypeData
	ExtensionMetadataMessageTypeReject
)

// MetadataPieceSize is the size of metadata pieces except the last one.
const MetadataPieceSize = 16 * 1024

var errEmptyExtension = errors.New("empty extension message")

// ExtensionMessage is extension to BitTorrent protocol.
type ExtensionMessage struct {
	ExtendedMessageID uint8
	Payload           interface{}
}

// ID returns the type of a peer message.
func (m ExtensionMessage) ID() MessageID { return Extension }

// MarshalBinary encodes the extended id, the bencoded payload and the raw metadata if any.
func (m ExtensionMessage) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(m.ExtendedMessageID)
	if err := bencode.NewEncoder(&buf).Encode(m.Payload); err != nil {
		return nil, err
	}
	if mm, ok := m.Payload.(ExtensionMetadataMessage); ok {
		buf.Write(mm.Data)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses extension message. Only ids we assigned are accepted.
func (m *ExtensionMessage) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errEmptyExtension
	}
	m.ExtendedMessageID = data[0]
	payload := data[1:]
	dec := bencode.NewDecoder(bytes.NewReader(payload))
	switch m.ExtendedMessageID {
	case ExtensionIDHandshake:
		var msg ExtensionHandshakeMessage
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		if msg.MetadataSize < 0 {
			msg.MetadataSize = 0
		}
		if msg.RequestQueue < 0 {
			msg.RequestQueue = 0
		}
		m.Payload = msg
	case ExtensionIDMetadata:
		var msg ExtensionMetadataMessage
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		msg.Data = payload[dec.BytesParsed():]
		m.Payload = msg
	default:
		return fmt.Errorf("peer sent invalid extension message id: %d", m.ExtendedMessageID)
	}
	return nil
}

// ExtensionHandshakeMessage contains the information to do the extension handshake.
type ExtensionHandshakeMessage struct {
	M            map[string]uint8 `bencode:"m"`
	V            string           `bencode:"v,omitempty"`
	MetadataSize int              `bencode:"metadata_size,omitempty"`
	RequestQueue int              `bencode:"reqq,omitempty"`
}

// NewExtensionHandshake returns the handshake we send. metadataSize is zero while we do not have the info dict.
func NewExtensionHandshake(metadataSize int, version string, requestQueueLength int) ExtensionHandshakeMessage {
	return ExtensionHandshakeMessage{
		M:            map[string]uint8{ExtensionKeyMetadata: ExtensionIDMetadata},
		V:            version,
		MetadataSize: metadataSize,
		RequestQueue: requestQueueLength,
	}
}

// ExtensionMetadataMessage is the message for the Metadata extension.
type ExtensionMetadataMessage struct {
	Type      int    `bencode:"msg_type"`
	Piece     uint32 `bencode:"piece"`
	TotalSize int    `bencode:"total_size,omitempty"`
	Data      []byte `bencode:"-"`
}
