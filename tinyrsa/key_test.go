package tinyrsa

import (
	"context"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkKeyInvariants(t *testing.T, k *Key) {
	t.Helper()

	assert.Equal(t, 0, k.N().Cmp(new(big.Int).Mul(k.P(), k.Q())), "n = p*q")

	lambda := k.Carmichael()
	assert.True(t, k.E().Cmp(bigOne) > 0)
	assert.Equal(t, 0, GCD(k.E(), lambda).Cmp(bigOne), "gcd(e, lambda) = 1")

	d := k.D()
	assert.True(t, d.Sign() >= 0 && d.Cmp(lambda) < 0, "d in [0, lambda)")
	ed := new(big.Int).Mul(k.E(), d)
	assert.Equal(t, int64(1), ed.Mod(ed, lambda).Int64(), "d*e = 1 mod lambda")
}

func TestGenerate(t *testing.T) {
	for _, l := range []int{8, 16, 32, 64, 128} {
		k, err := Generate(l)
		require.NoError(t, err)

		assert.Equal(t, l, k.BitLength())
		assert.Equal(t, l, k.P().BitLen())
		assert.Equal(t, l, k.Q().BitLen())
		assert.Contains(t, []int{2*l - 1, 2 * l}, k.BlockBits())
		assert.True(t, IsProbablyPrime(k.P(), 40))
		assert.True(t, IsProbablyPrime(k.Q(), 40))
		checkKeyInvariants(t, k)
	}
}

func TestGenerateInvalidBitLength(t *testing.T) {
	for _, l := range []int{-5, 0, 1} {
		k, err := Generate(l)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.Nil(t, k)
	}
}

func TestGenerateContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	k, err := NewGenerator(DefaultRounds).GenerateContext(ctx, 512)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, k)
}

func TestGenerateParallel(t *testing.T) {
	keys := make(chan *Key, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			k, err := Generate(64)
			if err != nil {
				errs <- err
				return
			}
			keys <- k
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case err := <-errs:
			t.Fatal(err)
		case k := <-keys:
			checkKeyInvariants(t, k)
		}
	}
}

func TestReconstructFixedPrimes(t *testing.T) {
	k, err := Reconstruct(big.NewInt(257), big.NewInt(263), big.NewInt(3))
	require.NoError(t, err)

	assert.Equal(t, int64(67591), k.N().Int64())
	assert.Equal(t, int64(33536), k.Carmichael().Int64())
	assert.Equal(t, int64(3), k.E().Int64())
	assert.Equal(t, int64(11179), k.D().Int64())
	assert.Equal(t, 9, k.BitLength())
	checkKeyInvariants(t, k)

	m := big.NewInt(42)
	c := new(big.Int).Exp(m, k.E(), k.N())
	assert.Equal(t, int64(6497), c.Int64())
	assert.Equal(t, int64(42), new(big.Int).Exp(c, k.D(), k.N()).Int64())
}

func TestReconstructMatchesGenerate(t *testing.T) {
	g := &Generator{Rounds: 20, Random: mrand.New(mrand.NewSource(11))}
	k, err := g.Generate(96)
	require.NoError(t, err)

	again, err := Reconstruct(k.P(), k.Q(), k.E())
	require.NoError(t, err)
	assert.True(t, k.Equal(again))
	assert.Equal(t, k.BitLength(), again.BitLength())
}

func TestReconstructInvalid(t *testing.T) {
	cases := []struct {
		name    string
		p, q, e *big.Int
	}{
		{"not prime", big.NewInt(8), big.NewInt(9), big.NewInt(3)},
		{"q not prime", big.NewInt(257), big.NewInt(261), big.NewInt(3)},
		{"exponent shares factor", big.NewInt(257), big.NewInt(263), big.NewInt(131)},
		{"exponent one", big.NewInt(257), big.NewInt(263), big.NewInt(1)},
		{"missing e", big.NewInt(257), big.NewInt(263), nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			k, err := Reconstruct(c.p, c.q, c.e)
			assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
			assert.Nil(t, k)
		})
	}
}

func TestChooseExponent(t *testing.T) {
	cases := []struct {
		carmichael int64
		want       int64
	}{
		{33536, 3},
		{3 * 4, 5},
		{3 * 5 * 4, 17},
		{3 * 5 * 17 * 2, 257},
		{3 * 5 * 17 * 257, 65537},
	}
	for _, c := range cases {
		e, err := ChooseExponent(big.NewInt(c.carmichael))
		require.NoError(t, err)
		assert.Equal(t, c.want, e.Int64(), "carmichael %d", c.carmichael)
	}

	_, err := ChooseExponent(big.NewInt(3 * 5 * 17 * 257 * 65537))
	assert.ErrorIs(t, err, ErrNoValidExponent)

	_, err = ChooseExponent(big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestKeyAccessorsCopy(t *testing.T) {
	k, err := Reconstruct(big.NewInt(257), big.NewInt(263), big.NewInt(3))
	require.NoError(t, err)

	n := k.N()
	n.SetInt64(1)
	assert.Equal(t, int64(67591), k.N().Int64())
}

func TestKeyEqual(t *testing.T) {
	a, err := Reconstruct(big.NewInt(257), big.NewInt(263), big.NewInt(3))
	require.NoError(t, err)
	b, err := Reconstruct(big.NewInt(257), big.NewInt(263), big.NewInt(5))
	require.NoError(t, err)

	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
