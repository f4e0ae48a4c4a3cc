package tinyrsa

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	bits, err := Encode("hi", 8)
	require.NoError(t, err)
	assert.Equal(t, "0110100001101001", bits)

	// padding goes after the last character
	bits, err = Encode("h", 12)
	require.NoError(t, err)
	assert.Equal(t, "011010000000", bits)

	bits, err = Encode("", 16)
	require.NoError(t, err)
	assert.Equal(t, "", bits)
}

func TestEncodeNoSpuriousBlock(t *testing.T) {
	bits, err := Encode("abcd", 16)
	require.NoError(t, err)
	assert.Len(t, bits, 32)
	assert.Len(t, slices.Collect(Chunk(bits, 16)), 2)
}

func TestEncodeInvalid(t *testing.T) {
	_, err := Encode("abc", 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Encode("snow ☃", 8)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Encode("a\x00b", 8)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDecode(t *testing.T) {
	s, err := Decode("0110100001101001")
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	s, err = Decode("011010000000000000")
	require.NoError(t, err)
	assert.Equal(t, "h", s)

	_, err = Decode("0110x000")
	assert.ErrorIs(t, err, ErrMalformedBlock)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	texts := []string{"hello world", "Größe", "~!@#$%^&*()", strings.Repeat("z", 257)}
	for _, text := range texts {
		for _, blockBits := range []int{1, 7, 8, 13, 64, 1023} {
			bits, err := Encode(text, blockBits)
			require.NoError(t, err)
			assert.Zero(t, len(bits)%blockBits)

			got, err := Decode(bits)
			require.NoError(t, err)
			assert.Equal(t, text, got, "block bits %d", blockBits)
		}
	}
}

func TestChunk(t *testing.T) {
	blocks := slices.Collect(Chunk("1011001", 3))
	assert.Equal(t, []string{"101", "100", "100"}, blocks)

	// restartable
	assert.Equal(t, blocks, slices.Collect(Chunk("1011001", 3)))

	assert.Empty(t, slices.Collect(Chunk("", 3)))
	assert.Empty(t, slices.Collect(Chunk("101", 0)))

	seq := Chunk("000111000111", 3)
	var first []string
	for b := range seq {
		first = append(first, b)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"000", "111"}, first)
	assert.Len(t, slices.Collect(seq), 4)
}

func TestFormatAndParseHex(t *testing.T) {
	armored, err := FormatHex("0110100001101001")
	require.NoError(t, err)
	assert.Equal(t, `\x68\x69`, armored)

	armored, err = FormatHex("1")
	require.NoError(t, err)
	assert.Equal(t, `\x80`, armored)

	bits, err := ParseHex(`\x68 \x69` + "\n")
	require.NoError(t, err)
	assert.Equal(t, "0110100001101001", bits)

	bits, err = ParseHex(`\XFF`)
	require.NoError(t, err)
	assert.Equal(t, "11111111", bits)

	for _, bad := range []string{`x68`, `\x6`, `\xzz`, `\x68\`} {
		_, err := ParseHex(bad)
		assert.ErrorIs(t, err, ErrMalformedBlock, "input %q", bad)
	}
}

func TestTrimToBlocks(t *testing.T) {
	bits, err := trimToBlocks("1010100000", 5)
	require.NoError(t, err)
	assert.Equal(t, "1010100000", bits)

	bits, err = trimToBlocks("10101000", 5)
	require.NoError(t, err)
	assert.Equal(t, "10101", bits)

	_, err = trimToBlocks("10101001", 5)
	assert.ErrorIs(t, err, ErrMalformedBlock)
}
