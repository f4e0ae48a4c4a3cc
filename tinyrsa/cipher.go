package tinyrsa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// CryptBlock returns block^exponent mod modulus as a bit string left padded
// to the width of block. The block value must be below modulus.
func CryptBlock(block string, exponent, modulus *big.Int) (string, error) {
	if block == "" {
		return "", errors.Wrap(ErrMalformedBlock, "empty block")
	}
	if modulus == nil || modulus.Cmp(bigOne) <= 0 || exponent == nil || exponent.Sign() < 0 {
		return "", errors.Wrap(ErrInvalidParameter, "exponent and modulus > 1 are required")
	}

	if err := checkBinary(block); err != nil {
		return "", err
	}
	m, ok := new(big.Int).SetString(block, 2)
	if !ok {
		return "", errors.Wrapf(ErrMalformedBlock, "block %q is not binary", truncate(block, 16))
	}
	if m.Cmp(modulus) >= 0 {
		return "", errors.Wrap(ErrMalformedBlock, "block value not below modulus")
	}

	c := new(big.Int).Exp(m, exponent, modulus)
	out := fmt.Sprintf("%0*b", len(block), c)
	if len(out) > len(block) {
		return "", errors.Wrapf(ErrMalformedBlock, "result needs %d bits, block has %d", len(out), len(block))
	}
	return out, nil
}

// EncryptMessage encrypts text with (e, n). The text is split into
// n.BitLen()-1 bit payloads, each prefixed with a zero guard bit so every
// block value stays below n. The ciphertext is n.BitLen() bits per block.
func EncryptMessage(text string, e, n *big.Int) (string, error) {
	blockBits, err := blockBitsOf(n)
	if err != nil {
		return "", err
	}
	payload := blockBits - 1

	bits, err := Encode(text, payload)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range Chunk(bits, payload) {
		c, err := CryptBlock("0"+chunk, e, n)
		if err != nil {
			return "", err
		}
		sb.WriteString(c)
	}
	return sb.String(), nil
}

// DecryptMessage reverses EncryptMessage with (d, n).
func DecryptMessage(bits string, d, n *big.Int) (string, error) {
	blockBits, err := blockBitsOf(n)
	if err != nil {
		return "", err
	}
	if len(bits)%blockBits != 0 {
		return "", errors.Wrapf(ErrMalformedBlock, "ciphertext length %d is not a multiple of %d", len(bits), blockBits)
	}
	if err := checkBinary(bits); err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range Chunk(bits, blockBits) {
		m, err := CryptBlock(chunk, d, n)
		if err != nil {
			return "", err
		}
		if m[0] != '0' {
			return "", errors.Wrap(ErrMalformedBlock, "guard bit set, wrong key or corrupted ciphertext")
		}
		sb.WriteString(m[1:])
	}
	return Decode(sb.String())
}

func blockBitsOf(n *big.Int) (int, error) {
	if n == nil || n.BitLen() < 2 {
		return 0, errors.Wrapf(ErrInvalidParameter, "modulus %v too small", n)
	}
	return n.BitLen(), nil
}
