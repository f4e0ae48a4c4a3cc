package tinyrsa

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// DefaultRounds is the number of Miller-Rabin bases tried per candidate.
const DefaultRounds = 40

var (
	bigOne   = big.NewInt(1)
	bigTwo   = big.NewInt(2)
	bigThree = big.NewInt(3)
)

// Generator draws primes and keys from Random, testing candidates with
// Rounds Miller-Rabin bases. The zero value uses crypto/rand and
// DefaultRounds.
type Generator struct {
	Rounds int
	Random io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator(rounds int) *Generator {
	return &Generator{Rounds: rounds, Random: rand.Reader}
}

var defaultGenerator = NewGenerator(DefaultRounds)

func (g *Generator) rounds() int {
	if g == nil || g.Rounds < 1 {
		return DefaultRounds
	}
	return g.Rounds
}

func (g *Generator) random() io.Reader {
	if g == nil || g.Random == nil {
		return rand.Reader
	}
	return g.Random
}

// IsProbablyPrime reports whether n passes rounds Miller-Rabin trials.
// Values below 2 and nil are never prime.
func IsProbablyPrime(n *big.Int, rounds int) bool {
	ok, err := millerRabinTest(n, rounds, rand.Reader)
	return err == nil && ok
}

// IsProbablyPrime tests n with the generator's round count and source.
func (g *Generator) IsProbablyPrime(n *big.Int) bool {
	ok, err := millerRabinTest(n, g.rounds(), g.random())
	return err == nil && ok
}

func millerRabinTest(n *big.Int, rounds int, random io.Reader) (bool, error) {
	if n == nil || n.Cmp(bigTwo) < 0 {
		return false, nil
	}
	if n.Cmp(bigTwo) == 0 || n.Cmp(bigThree) == 0 {
		return true, nil
	}
	if n.Bit(0) == 0 {
		return false, nil
	}
	if rounds < 1 {
		rounds = 1
	}

	// n - 1 = d * 2^s
	nMinusOne := new(big.Int).Sub(n, bigOne)
	s := nMinusOne.TrailingZeroBits()
	d := new(big.Int).Rsh(nMinusOne, s)

	// bases are drawn from [2, n-2]
	span := new(big.Int).Sub(n, bigThree)

	for i := 0; i < rounds; i++ {
		a, err := rand.Int(random, span)
		if err != nil {
			return false, errors.Wrap(err, "draw witness")
		}
		a.Add(a, bigTwo)

		x := new(big.Int).Exp(a, d, n)
		if x.Cmp(bigOne) == 0 || x.Cmp(nMinusOne) == 0 {
			continue
		}

		passed := false
		for j := uint(1); j < s; j++ {
			x.Exp(x, bigTwo, n)
			if x.Cmp(nMinusOne) == 0 {
				passed = true
				break
			}
		}
		if !passed {
			return false, nil
		}
	}
	return true, nil
}

// PrimeWithBitLength returns a random prime with exactly l significant bits.
func PrimeWithBitLength(l int) (*big.Int, error) {
	return defaultGenerator.PrimeWithBitLengthContext(context.Background(), l)
}

// PrimeWithBitLength returns a random prime with exactly l significant bits.
func (g *Generator) PrimeWithBitLength(l int) (*big.Int, error) {
	return g.PrimeWithBitLengthContext(context.Background(), l)
}

// PrimeWithBitLengthContext samples odd candidates in [2^(l-1)+1, 2^l)
// until one passes the primality test or ctx is done.
func (g *Generator) PrimeWithBitLengthContext(ctx context.Context, l int) (*big.Int, error) {
	if l < 2 {
		return nil, errors.Wrapf(ErrInvalidParameter, "bit length %d, want >= 2", l)
	}

	low := new(big.Int).Lsh(bigOne, uint(l-1))
	random := g.random()
	rounds := g.rounds()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := generateOddNumber(random, low)
		if err != nil {
			return nil, err
		}

		ok, err := millerRabinTest(candidate, rounds, random)
		if err != nil {
			return nil, err
		}
		if ok {
			return candidate, nil
		}
	}
}

// generateOddNumber returns low + x with the low bit set, x uniform in
// [0, low). low must be a power of two.
func generateOddNumber(random io.Reader, low *big.Int) (*big.Int, error) {
	n, err := rand.Int(random, low)
	if err != nil {
		return nil, errors.Wrap(err, "draw candidate")
	}
	n.Add(n, low)
	n.SetBit(n, 0, 1)
	return n, nil
}

// GCD returns the greatest common divisor of |a| and |b|.
func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	for y.Sign() != 0 {
		x.Mod(x, y)
		x, y = y, x
	}
	return x
}

// LCM returns |a*b| / gcd(a, b). LCM(0, 0) is 0.
func LCM(a, b *big.Int) *big.Int {
	g := GCD(a, b)
	if g.Sign() == 0 {
		return new(big.Int)
	}
	l := new(big.Int).Mul(a, b)
	l.Abs(l)
	return l.Quo(l, g)
}

// ModularInverse returns x in [0, b) with a*x = 1 (mod b), computed with
// the extended Euclidean algorithm.
func ModularInverse(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() < 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "modulus %v, want >= 1", b)
	}
	if b.Cmp(bigOne) == 0 {
		return new(big.Int), nil
	}

	r0 := new(big.Int).Set(b)
	r1 := new(big.Int).Mod(a, b)
	x, u := new(big.Int), big.NewInt(1)
	q, r := new(big.Int), new(big.Int)

	for r1.Sign() != 0 {
		q.QuoRem(r0, r1, r)
		// m = x - u*q
		m := new(big.Int).Mul(u, q)
		m.Sub(x, m)
		r0, r1, r = r1, r, r0
		x, u = u, m
	}

	if r0.Cmp(bigOne) != 0 {
		return nil, errors.Wrapf(ErrNotInvertible, "gcd(%v, %v) = %v", a, b, r0)
	}
	return x.Mod(x, b), nil
}
