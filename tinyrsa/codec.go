package tinyrsa

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const charBits = 8

// Encode writes every character of text as its 8-bit code and pads the
// result on the right with zero bits to a multiple of blockBits.
// Characters must be in the range 1..255.
func Encode(text string, blockBits int) (string, error) {
	if blockBits < 1 {
		return "", errors.Wrapf(ErrInvalidParameter, "block size %d", blockBits)
	}

	var sb strings.Builder
	for _, r := range text {
		if r < 1 || r > 0xff {
			return "", errors.Wrapf(ErrInvalidParameter, "character %q outside 1..255", r)
		}
		fmt.Fprintf(&sb, "%08b", r)
	}

	if rem := sb.Len() % blockBits; rem != 0 {
		sb.WriteString(strings.Repeat("0", blockBits-rem))
	}
	return sb.String(), nil
}

// Decode maps 8-bit groups back to characters. A short final group is
// padded on the right; trailing NUL characters are padding and dropped.
func Decode(bits string) (string, error) {
	if err := checkBinary(bits); err != nil {
		return "", err
	}

	var sb strings.Builder
	for group := range Chunk(bits, charBits) {
		c, err := strconv.ParseUint(group, 2, charBits)
		if err != nil {
			return "", errors.Wrapf(ErrMalformedBlock, "group %q", group)
		}
		sb.WriteRune(rune(c))
	}
	return strings.TrimRight(sb.String(), "\x00"), nil
}

// Chunk yields bits in blockBits sized pieces, padding the last one on the
// right with zero bits. The sequence can be ranged over more than once.
func Chunk(bits string, blockBits int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if blockBits < 1 {
			return
		}
		for i := 0; i < len(bits); i += blockBits {
			end := i + blockBits
			var block string
			if end > len(bits) {
				block = bits[i:] + strings.Repeat("0", end-len(bits))
			} else {
				block = bits[i:end]
			}
			if !yield(block) {
				return
			}
		}
	}
}

// FormatHex pads bits on the right to whole bytes and renders every byte
// as \xHH.
func FormatHex(bits string) (string, error) {
	if err := checkBinary(bits); err != nil {
		return "", err
	}

	var sb strings.Builder
	for group := range Chunk(bits, charBits) {
		b, err := strconv.ParseUint(group, 2, charBits)
		if err != nil {
			return "", errors.Wrapf(ErrMalformedBlock, "group %q", group)
		}
		fmt.Fprintf(&sb, `\x%02x`, b)
	}
	return sb.String(), nil
}

// ParseHex is the inverse of FormatHex. Whitespace between bytes is
// ignored.
func ParseHex(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	var sb strings.Builder
	for len(s) > 0 {
		if len(s) < 4 || s[0] != '\\' || (s[1] != 'x' && s[1] != 'X') {
			return "", errors.Wrapf(ErrMalformedBlock, "expected \\xHH at %q", truncate(s, 8))
		}
		b, err := strconv.ParseUint(s[2:4], 16, 8)
		if err != nil {
			return "", errors.Wrapf(ErrMalformedBlock, "bad hex byte %q", s[:4])
		}
		fmt.Fprintf(&sb, "%08b", b)
		s = s[4:]
	}
	return sb.String(), nil
}

// trimToBlocks drops the byte alignment padding FormatHex added after the
// last whole block. The dropped bits must be zero.
func trimToBlocks(bits string, blockBits int) (string, error) {
	whole := len(bits) / blockBits * blockBits
	if strings.Trim(bits[whole:], "0") != "" {
		return "", errors.Wrapf(ErrMalformedBlock, "%d trailing bits are not padding", len(bits)-whole)
	}
	return bits[:whole], nil
}

func checkBinary(bits string) error {
	if i := strings.IndexFunc(bits, func(r rune) bool { return r != '0' && r != '1' }); i >= 0 {
		return errors.Wrapf(ErrMalformedBlock, "non-binary character at offset %d", i)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
