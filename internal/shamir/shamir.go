// Package shamir implements (k, n) Shamir threshold secret sharing over
// GF(M61), including leave-one-out corrupt-share detection.
package shamir

import (
	"errors"

	"github.com/noospheer/Liun/internal/gf61"
)

// ErrInvalidParams flags a malformed (secret, k, n) triple.
var ErrInvalidParams = errors.New("shamir: invalid parameters")

// ErrInsufficientShares flags a reconstruction attempt with fewer
// shares than the caller-supplied threshold.
var ErrInsufficientShares = errors.New("shamir: insufficient shares")

// Share is one Shamir share: (x, y) with x != 0 and y = f(x).
type Share struct {
	X, Y gf61.Elem
}

// Split samples a random degree-(k-1) polynomial with constant term
// secret and returns n shares evaluated at x = 1, ..., n.
func Split(secret gf61.Elem, k, n int) ([]Share, error) {
	if secret >= gf61.M61 {
		return nil, ErrInvalidParams
	}
	if k < 1 {
		return nil, ErrInvalidParams
	}
	if n < k {
		return nil, ErrInvalidParams
	}

	coeffs := make([]gf61.Elem, k)
	coeffs[0] = secret
	for i := 1; i < k; i++ {
		c, err := gf61.RandElement()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	shares := make([]Share, n)
	for i := 1; i <= n; i++ {
		x := gf61.Elem(i)
		shares[i-1] = Share{X: x, Y: gf61.PolyEvalLow(coeffs, x)}
	}
	return shares, nil
}

// ReconstructAt interpolates the polynomial implied by shares at x.
// No threshold check is applied here — see the package doc comment on
// ReconstructAtThreshold for the checked variant that spec §4.2 calls
// for when a caller knows k in advance.
func ReconstructAt(shares []Share, x gf61.Elem) (gf61.Elem, error) {
	pts := toPoints(shares)
	return gf61.LagrangeInterpolateAt(pts, x)
}

// ReconstructAtThreshold is ReconstructAt but fails with
// ErrInsufficientShares if fewer than k shares are supplied.
func ReconstructAtThreshold(shares []Share, k int, x gf61.Elem) (gf61.Elem, error) {
	if len(shares) < k {
		return 0, ErrInsufficientShares
	}
	return ReconstructAt(shares, x)
}

// Reconstruct recovers the secret f(0).
func Reconstruct(shares []Share) (gf61.Elem, error) {
	return ReconstructAt(shares, 0)
}

// ConsistencyResult partitions shares into those consistent with a
// degree-(k-1) polynomial ("good") and those that are not ("bad"),
// via leave-one-out interpolation (spec §4.2). Detection is partial
// below 2k shares and MUST NOT falsely accuse: with fewer than k+1
// shares total, no corruption can be detected at all: every share comes
// back in Good and Bad is empty.
type ConsistencyResult struct {
	Good []Share
	Bad  []Share
}

// ConsistencyCheck implements the leave-one-out detector described in
// spec §4.2: for each share s, interpolate the degree-(k-1) polynomial
// through k of the other shares and check whether s lies on it.
func ConsistencyCheck(shares []Share, k int) ConsistencyResult {
	n := len(shares)
	if n < k+1 {
		// Not enough redundancy to accuse anyone; return everything as
		// good rather than risk a false accusation.
		return ConsistencyResult{Good: append([]Share(nil), shares...)}
	}

	var good, bad []Share
	for i, s := range shares {
		others := make([]Share, 0, n-1)
		for j, o := range shares {
			if j == i {
				continue
			}
			others = append(others, o)
			if len(others) == k {
				break
			}
		}
		expected, err := ReconstructAt(others, s.X)
		if err != nil || expected != s.Y {
			bad = append(bad, s)
			continue
		}
		good = append(good, s)
	}
	return ConsistencyResult{Good: good, Bad: bad}
}

func toPoints(shares []Share) []gf61.Point {
	pts := make([]gf61.Point, len(shares))
	for i, s := range shares {
		pts[i] = gf61.Point{X: s.X, Y: s.Y}
	}
	return pts
}
