// Package shamir implements (t,n) threshold secret sharing over the field
// defined by pkg/field, grounded on the teacher's project structure and
// translated directly from the reference ShamirSecretSharing
// implementation this system's Shamir engine is specified against.
package shamir

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"votingcore/pkg/field"
	"votingcore/pkg/model"
)

// Share is one (index, value) pair produced by Split. Value is the
// zero-padded upper-case hex encoding of y_i, matching the external share
// transcription format.
type Share struct {
	Index int
	Value string // hex, zero-padded to field.HexWidth
}

// Split divides secret into n shares, any t of which can reconstruct it.
// The coefficients are drawn from a CSPRNG and discarded once Split
// returns - nothing here retains polynomial state after issuance.
func Split(secret []byte, t, n int) ([]Share, error) {
	if t < 2 || t > n {
		return nil, fmt.Errorf("shamir: invalid threshold t=%d for n=%d shares", t, n)
	}

	secretInt := new(big.Int).SetBytes(secret)
	if secretInt.Cmp(field.P) >= 0 {
		return nil, model.ErrSecretTooLarge
	}

	coeffs := make([]*big.Int, t)
	coeffs[0] = secretInt
	for j := 1; j < t; j++ {
		c, err := randomFieldElement()
		if err != nil {
			return nil, fmt.Errorf("shamir: drawing coefficient: %w", err)
		}
		coeffs[j] = c
	}

	shares := make([]Share, n)
	for i := 1; i <= n; i++ {
		y := field.EvalPolynomial(coeffs, big.NewInt(int64(i)))
		shares[i-1] = Share{Index: i, Value: zeroPadHex(y)}
	}

	// Best-effort wipe of the coefficient state; Go cannot guarantee this
	// survives GC/compiler reordering, but there is no reason to keep the
	// backing arrays alive past this point.
	for j := range coeffs {
		coeffs[j].SetInt64(0)
	}

	return shares, nil
}

// Reconstruct recovers a secret of exactly expectedLen bytes from a set of
// shares, given at least t of the n originally issued. It uses the first t
// shares after deduplicating by index.
func Reconstruct(shares []Share, t, expectedLen int) ([]byte, error) {
	seen := make(map[int]bool)
	unique := make([]Share, 0, len(shares))
	for _, s := range shares {
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		unique = append(unique, s)
	}
	if len(unique) < t {
		return nil, model.ErrInsufficientShares
	}

	points := make([]field.Point, 0, t)
	for _, s := range unique[:t] {
		y, ok := new(big.Int).SetString(s.Value, 16)
		if !ok {
			return nil, fmt.Errorf("shamir: share %d is not valid hex: %w", s.Index, model.ErrShareCorruption)
		}
		points = append(points, field.Point{X: big.NewInt(int64(s.Index)), Y: y})
	}

	secretInt := field.InterpolateAtZero(points)
	secretBytes := secretInt.Bytes()
	if len(secretBytes) > expectedLen {
		return nil, model.ErrShareCorruption
	}

	out := make([]byte, expectedLen)
	copy(out[expectedLen-len(secretBytes):], secretBytes)
	return out, nil
}

func randomFieldElement() (*big.Int, error) {
	// Draw uniformly from [1, P).
	max := new(big.Int).Sub(field.P, big.NewInt(1))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	return n.Add(n, big.NewInt(1)), nil
}

func zeroPadHex(y *big.Int) string {
	s := strings.ToUpper(y.Text(16))
	if len(s) < field.HexWidth {
		s = fmt.Sprintf("%0*s", field.HexWidth, s)
	}
	return s
}
