package tinyrsa

import "github.com/pkg/errors"

var (
	// ErrInvalidParameter is returned when a bit length, block size or
	// numeric argument fails its precondition.
	ErrInvalidParameter = errors.New("tinyrsa: invalid parameter")

	// ErrNotInvertible is returned by ModularInverse when gcd(a, b) != 1.
	ErrNotInvertible = errors.New("tinyrsa: not invertible")

	// ErrNoValidExponent is returned when every exponent candidate divides
	// the Carmichael value.
	ErrNoValidExponent = errors.New("tinyrsa: no valid exponent")

	// ErrInvalidKeyMaterial is returned by Reconstruct for non-prime p, q or
	// an exponent not coprime with lcm(p-1, q-1).
	ErrInvalidKeyMaterial = errors.New("tinyrsa: invalid key material")

	// ErrMalformedBlock is returned for bit strings that are not a valid
	// block representation.
	ErrMalformedBlock = errors.New("tinyrsa: malformed block")
)
