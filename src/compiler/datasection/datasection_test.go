package datasection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Layout_SizesIntEntryFromPayloadNotDeclaredBits(t *testing.T) {
	s := New()
	// IntBits claims 256 bits but IntValue only carries 8 bytes: byteLen
	// must follow the actual payload, or this entry's offset would
	// desynchronize from what encodeEntry actually emits for it.
	id := s.Insert(Entry{Kind: KindInt, IntBits: 256, IntValue: []byte{0, 0, 0, 0, 0, 0, 0, 7}})

	l := s.Layout()
	off, ok := l.OffsetOf(id)
	assert.True(t, ok)
	assert.Equal(t, 0, off)
	assert.Equal(t, 8, l.Size)
}

func Test_Layout_PlacesSecondEntryAfterFirstsActualPayload(t *testing.T) {
	s := New()
	first := s.Insert(Entry{Kind: KindInt, IntBits: 256, IntValue: make([]byte, 32)})
	second := s.Insert(Entry{Kind: KindBytes, Bytes: []byte("abc")})

	l := s.Layout()
	firstOff, _ := l.OffsetOf(first)
	secondOff, _ := l.OffsetOf(second)
	assert.Equal(t, 0, firstOff)
	assert.Equal(t, 32, secondOff)
	assert.Equal(t, 40, l.Size) // 32 + roundUpToWord(3) == 32 + 8
}

func Test_Insert_DeduplicatesStructurallyEqualEntries(t *testing.T) {
	s := New()
	a := s.Insert(Entry{Kind: KindInt, IntBits: 64, IntValue: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	b := s.Insert(Entry{Kind: KindInt, IntBits: 64, IntValue: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	assert.Equal(t, a, b)
	assert.Equal(t, 1, s.Len())
}
