package peerprotocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	b, err := Frame(RequestMessage{Index: 1, Begin: 0x4000, Length: 0x4000})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 13, 6, 0, 0, 0, 1, 0, 0, 0x40, 0, 0, 0, 0x40, 0}, b)

	b, err = Frame(InterestedMessage{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 2}, b)
}

func TestRequestUnmarshal(t *testing.T) {
	var rm RequestMessage
	require.NoError(t, rm.UnmarshalBinary([]byte{0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4}))
	assert.Equal(t, RequestMessage{Index: 2, Begin: 3, Length: 4}, rm)
	assert.Error(t, rm.UnmarshalBinary([]byte{1, 2}))
}

func TestHandshake(t *testing.T) {
	var ih, id [20]byte
	ih[0], id[0] = 1, 2
	var ext ExtensionBits
	ext.SetExtensionProtocol()

	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, ih, id, ext))
	assert.Equal(t, HandshakeLength, buf.Len())

	gotExt, gotIH, err := ReadHandshake1(&buf)
	require.NoError(t, err)
	assert.True(t, gotExt.ExtensionProtocol())
	assert.Equal(t, ih, gotIH)
	gotID, err := ReadHandshake2(&buf)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	_, _, err = ReadHandshake1(bytes.NewReader(append([]byte{18}, make([]byte, 60)...)))
	assert.Equal(t, ErrInvalidProtocol, err)
}

func TestWireHash(t *testing.T) {
	long := bytes.Repeat([]byte{9}, 32)
	h := WireHash(long)
	assert.Equal(t, long[:20], h[:])
}

func TestExtensionRoundTrip(t *testing.T) {
	msg := ExtensionMessage{
		ExtendedMessageID: ExtensionIDMetadata,
		Payload:           ExtensionMetadataMessage{Type: ExtensionMetadataMessageTypeData, Piece: 1, TotalSize: 20000, Data: []byte("raw")},
	}
	b, err := msg.MarshalBinary()
	require.NoError(t, err)

	var got ExtensionMessage
	require.NoError(t, got.UnmarshalBinary(b))
	mm := got.Payload.(ExtensionMetadataMessage)
	assert.Equal(t, uint32(1), mm.Piece)
	assert.Equal(t, 20000, mm.TotalSize)
	assert.Equal(t, []byte("raw"), mm.Data)

	hs := ExtensionMessage{Payload: NewExtensionHandshake(1234, "test", 50)}
	b, err = hs.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, got.UnmarshalBinary(b))
	h := got.Payload.(ExtensionHandshakeMessage)
	assert.Equal(t, ExtensionIDMetadata, h.M[ExtensionKeyMetadata])
	assert.Equal(t, 1234, h.MetadataSize)

	assert.Error(t, got.UnmarshalBinary([]byte{42}))
}
