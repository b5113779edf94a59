package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// UTF-16 Encoding Tests
// =============================================================================

func TestEncodeUTF16_EmptyString(t *testing.T) {
	result := EncodeUTF16("")
	assert.Len(t, result, 0)
}

func TestEncodeUTF16_ASCIIString(t *testing.T) {
	result := EncodeUTF16("ABC")
	// UTF-16LE: A=0x41,0x00 B=0x42,0x00 C=0x43,0x00
	expected := []byte{0x41, 0x00, 0x42, 0x00, 0x43, 0x00}
	assert.Equal(t, expected, result)
}

func TestEncodeUTF16_UnicodeString(t *testing.T) {
	result := EncodeUTF16("æ—¥æœ¬")
	// æ—¥ = U+65E5, æœ¬ = U+672C in UTF-16LE
	assert.Len(t, result, 4) // 2 characters * 2 bytes each
}

func TestEncodeUTF16_MixedString(t *testing.T) {
	result := EncodeUTF16("Aæ—¥")
	// A = 0x41,0x00, æ—¥ = 0xE5,0x65 in LE
	assert.Len(t, result, 4)
	assert.Equal(t, byte(0x41), result[0])
	assert.Equal(t, byte(0x00), result[1])
}

func TestEncodeUTF16_SurrogatePairs(t *testing.T) {
	// Emoji requires surrogate pairs in UTF-16
	result := EncodeUTF16("ðŸ˜€")
	assert.Len(t, result, 4) // Surrogate pair = 4 bytes
}
