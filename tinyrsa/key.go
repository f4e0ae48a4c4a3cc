package tinyrsa

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
)

// ExponentCandidates are tried in order when choosing the public exponent.
var ExponentCandidates = []int64{3, 5, 17, 257, 65537}

// Key is an RSA key pair. It is immutable; accessors return copies.
type Key struct {
	bitLength int

	p *big.Int // first prime
	q *big.Int // second prime
	n *big.Int // modulus, p*q
	e *big.Int // public exponent
	d *big.Int // private exponent
}

// Generate creates a key from two random primes of bitLength bits each.
func Generate(bitLength int) (*Key, error) {
	return defaultGenerator.GenerateContext(context.Background(), bitLength)
}

// Reconstruct rebuilds a key from caller supplied primes and exponent.
func Reconstruct(p, q, e *big.Int) (*Key, error) {
	return defaultGenerator.Reconstruct(p, q, e)
}

// Generate creates a key from two random primes of bitLength bits each.
func (g *Generator) Generate(bitLength int) (*Key, error) {
	return g.GenerateContext(context.Background(), bitLength)
}

// GenerateContext is Generate with cancellation between prime candidates.
// p and q are drawn independently; they are not checked for equality.
func (g *Generator) GenerateContext(ctx context.Context, bitLength int) (*Key, error) {
	if bitLength < 2 {
		return nil, errors.Wrapf(ErrInvalidParameter, "bit length %d, want >= 2", bitLength)
	}

	p, err := g.PrimeWithBitLengthContext(ctx, bitLength)
	if err != nil {
		return nil, errors.Wrap(err, "generate p")
	}

	q, err := g.PrimeWithBitLengthContext(ctx, bitLength)
	if err != nil {
		return nil, errors.Wrap(err, "generate q")
	}

	carmichael := carmichaelOf(p, q)

	e, err := ChooseExponent(carmichael)
	if err != nil {
		return nil, err
	}

	return newKey(bitLength, p, q, e, carmichael)
}

// Reconstruct validates p, q and e and derives n and d from them.
func (g *Generator) Reconstruct(p, q, e *big.Int) (*Key, error) {
	if p == nil || q == nil || e == nil {
		return nil, errors.Wrap(ErrInvalidKeyMaterial, "p, q and e are required")
	}
	if !g.IsProbablyPrime(p) || !g.IsProbablyPrime(q) {
		return nil, errors.Wrap(ErrInvalidKeyMaterial, "p and q must be prime")
	}

	carmichael := carmichaelOf(p, q)
	if e.Cmp(bigOne) <= 0 || GCD(e, carmichael).Cmp(bigOne) != 0 {
		return nil, errors.Wrapf(ErrInvalidKeyMaterial, "exponent %v not coprime with lcm(p-1, q-1)", e)
	}

	bitLength := p.BitLen()
	if q.BitLen() > bitLength {
		bitLength = q.BitLen()
	}

	return newKey(bitLength, new(big.Int).Set(p), new(big.Int).Set(q), new(big.Int).Set(e), carmichael)
}

func newKey(bitLength int, p, q, e, carmichael *big.Int) (*Key, error) {
	d, err := ModularInverse(e, carmichael)
	if err != nil {
		return nil, errors.Wrap(err, "derive private exponent")
	}

	return &Key{
		bitLength: bitLength,
		p:         p,
		q:         q,
		n:         new(big.Int).Mul(p, q),
		e:         e,
		d:         d,
	}, nil
}

// carmichaelOf returns lcm(p-1, q-1).
func carmichaelOf(p, q *big.Int) *big.Int {
	p1 := new(big.Int).Sub(p, bigOne)
	q1 := new(big.Int).Sub(q, bigOne)
	return LCM(p1, q1)
}

// ChooseExponent returns the first of ExponentCandidates that does not
// divide carmichael. The candidates are prime, so that is the first one
// coprime with it.
func ChooseExponent(carmichael *big.Int) (*big.Int, error) {
	if carmichael == nil || carmichael.Sign() < 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "carmichael value %v", carmichael)
	}

	rem := new(big.Int)
	for _, c := range ExponentCandidates {
		candidate := big.NewInt(c)
		if rem.Mod(carmichael, candidate).Sign() != 0 {
			return candidate, nil
		}
	}
	return nil, errors.Wrapf(ErrNoValidExponent, "every candidate divides %v", carmichael)
}

// BitLength is the bit length the primes were requested with.
func (k *Key) BitLength() int { return k.bitLength }

func (k *Key) P() *big.Int { return new(big.Int).Set(k.p) }
func (k *Key) Q() *big.Int { return new(big.Int).Set(k.q) }
func (k *Key) N() *big.Int { return new(big.Int).Set(k.n) }
func (k *Key) E() *big.Int { return new(big.Int).Set(k.e) }
func (k *Key) D() *big.Int { return new(big.Int).Set(k.d) }

// Carmichael returns lcm(p-1, q-1).
func (k *Key) Carmichael() *big.Int { return carmichaelOf(k.p, k.q) }

// BlockBits is the width of a ciphertext block, the bit length of n.
func (k *Key) BlockBits() int { return k.n.BitLen() }

// Equal reports whether both keys hold the same values.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.p.Cmp(other.p) == 0 &&
		k.q.Cmp(other.q) == 0 &&
		k.n.Cmp(other.n) == 0 &&
		k.e.Cmp(other.e) == 0 &&
		k.d.Cmp(other.d) == 0
}

// Encrypt encrypts text with (e, n) and returns the ciphertext bit string.
func (k *Key) Encrypt(text string) (string, error) {
	return EncryptMessage(text, k.e, k.n)
}

// Decrypt decrypts a ciphertext bit string with (d, n).
func (k *Key) Decrypt(bits string) (string, error) {
	return DecryptMessage(bits, k.d, k.n)
}

// EncryptHex is Encrypt with the result rendered by FormatHex.
func (k *Key) EncryptHex(text string) (string, error) {
	bits, err := k.Encrypt(text)
	if err != nil {
		return "", err
	}
	return FormatHex(bits)
}

// DecryptHex parses a FormatHex ciphertext and decrypts it.
func (k *Key) DecryptHex(armored string) (string, error) {
	bits, err := ParseHex(armored)
	if err != nil {
		return "", err
	}
	bits, err = trimToBlocks(bits, k.BlockBits())
	if err != nil {
		return "", err
	}
	return k.Decrypt(bits)
}
