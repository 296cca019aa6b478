// Package bitfield implements the piece bit set of the peer wire protocol.
// Bit 0 is the most significant bit of the first byte.
package bitfield

import (
	"encoding/hex"
	"errors"
	"math/bits"
)

// ErrInvalidLength is returned by FromBytes when the byte slice does not match the bit count.
var ErrInvalidLength = errors.New("bitfield: invalid length")

// ErrSpareBits is returned by FromBytes when unused bits of the last byte are set.
var ErrSpareBits = errors.New("bitfield: spare bits are set")

// Bitfield is a fixed size set of bits.
type Bitfield struct {
	b      []byte
	length uint32
}

// New creates a new Bitfield of length bits, all cleared.
func New(length uint32) *Bitfield {
	return &Bitfield{b: make([]byte, (length+7)/8), length: length}
}

// FromBytes returns a copy of b interpreted as a Bitfield of length bits.
// Bitfields received from peers must be validated with this function.
func FromBytes(b []byte, length uint32) (*Bitfield, error) {
	if uint32(len(b)) != (length+7)/8 {
		return nil, ErrInvalidLength
	}
	if mod := length % 8; mod != 0 && b[len(b)-1]&(0xff>>mod) != 0 {
		return nil, ErrSpareBits
	}
	bf := New(length)
	copy(bf.b, b)
	return bf, nil
}

// Bytes returns the underlying bytes. Modifying the slice modifies the Bitfield.
func (b *Bitfield) Bytes() []byte { return b.b }

// Len returns the number of bits as given to New.
func (b *Bitfield) Len() uint32 { return b.length }

// Hex returns bytes as a hex string.
func (b *Bitfield) Hex() string { return hex.EncodeToString(b.b) }

// Copy returns a deep copy of the Bitfield.
func (b *Bitfield) Copy() *Bitfield {
	c := New(b.length)
	copy(c.b, b.b)
	return c
}

// Set bit i. Panics if i >= b.Len().
func (b *Bitfield) Set(i uint32) {
	b.checkIndex(i)
	b.b[i/8] |= 1 << (7 - i%8)
}

// Clear bit i. Panics if i >= b.Len().
func (b *Bitfield) Clear(i uint32) {
	b.checkIndex(i)
	b.b[i/8] &^= 1 << (7 - i%8)
}

// SetAll sets every bit.
func (b *Bitfield) SetAll() {
	for i := uint32(0); i < b.length; i++ {
		b.Set(i)
	}
}

// ClearAll clears every bit.
func (b *Bitfield) ClearAll() {
	for i := range b.b {
		b.b[i] = 0
	}
}

// Test bit i. Panics if i >= b.Len().
func (b *Bitfield) Test(i uint32) bool {
	b.checkIndex(i)
	return b.b[i/8]&(1<<(7-i%8)) != 0
}

// Count returns the number of set bits.
func (b *Bitfield) Count() uint32 {
	var n int
	for _, v := range b.b {
		n += bits.OnesCount8(v)
	}
	return uint32(n)
}

// All returns true if all bits are set.
func (b *Bitfield) All() bool { return b.Count() == b.length }

// ForEach calls fn with the index of every set bit in ascending order.
func (b *Bitfield) ForEach(fn func(i uint32)) {
	for i := uint32(0); i < b.length; i++ {
		if b.b[i/8]&(1<<(7-i%8)) != 0 {
			fn(i)
		}
	}
}

func (b *Bitfield) checkIndex(i uint32) {
	if i >= b.length {
		panic("bitfield: index out of range")
	}
}
