// Package field implements arithmetic in GF(p) for p = 2^521 - 1, the 13th
// Mersenne prime, as used by the Shamir secret-sharing engine.
package field

import "math/big"

// P is the field modulus, 2^521 - 1.
var P = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 521)
	p.Sub(p, big.NewInt(1))
	return p
}()

// HexWidth is the number of hex characters needed to represent any element
// of the field (ceil(521/4)).
const HexWidth = 131

// Reduce normalises x into [0, P).
func Reduce(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, P)
	if r.Sign() < 0 {
		r.Add(r, P)
	}
	return r
}

// Add returns (a+b) mod P.
func Add(a, b *big.Int) *big.Int {
	return Reduce(new(big.Int).Add(a, b))
}

// Sub returns (a-b) mod P.
func Sub(a, b *big.Int) *big.Int {
	return Reduce(new(big.Int).Sub(a, b))
}

// Mul returns (a*b) mod P.
func Mul(a, b *big.Int) *big.Int {
	return Reduce(new(big.Int).Mul(a, b))
}

// Inverse returns the modular multiplicative inverse of a via the extended
// Euclidean algorithm. Panics if a is 0 mod P (callers must never invoke it
// on an untrusted zero divisor without checking first).
func Inverse(a *big.Int) *big.Int {
	a = Reduce(a)
	if a.Sign() == 0 {
		panic("field: inverse of zero")
	}
	return new(big.Int).ModInverse(a, P)
}

// EvalPolynomial evaluates the polynomial with the given coefficients
// (coeffs[0] is the constant term) at x, using Horner's method, mod P.
func EvalPolynomial(coeffs []*big.Int, x *big.Int) *big.Int {
	result := big.NewInt(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = Add(Mul(result, x), coeffs[i])
	}
	return result
}

// Point is one (x, y) sample of a polynomial, used both during split and
// during Lagrange interpolation at reconstruct time.
type Point struct {
	X, Y *big.Int
}

// InterpolateAtZero recovers f(0) given a set of (x, y) samples on a
// polynomial, via Lagrange interpolation.
func InterpolateAtZero(points []Point) *big.Int {
	secret := big.NewInt(0)
	for i, pi := range points {
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)
		for j, pj := range points {
			if i == j {
				continue
			}
			// numerator *= -x_j
			numerator = Mul(numerator, Sub(big.NewInt(0), pj.X))
			// denominator *= (x_i - x_j)
			denominator = Mul(denominator, Sub(pi.X, pj.X))
		}
		term := Mul(pi.Y, Mul(numerator, Inverse(denominator)))
		secret = Add(secret, term)
	}
	return secret
}
