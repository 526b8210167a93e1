// Package gf61 implements arithmetic over GF(M61), the prime field of
// order M61 = 2^61 - 1. It is the shared numeric substrate for Shamir
// secret sharing, unconditionally-secure signatures, and distributed
// key generation elsewhere in Liun.
package gf61

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/bits"
)

// M61 is the Mersenne prime 2^61 - 1.
const M61 uint64 = (1 << 61) - 1

// ErrDivideByZero is returned by Inv and Div when asked to invert zero.
var ErrDivideByZero = errors.New("gf61: cannot invert zero")

// ErrInvalidInput flags malformed interpolation inputs (duplicate
// x-coordinates, empty point sets).
var ErrInvalidInput = errors.New("gf61: invalid input")

// Elem is a field element, always held reduced into [0, M61).
type Elem = uint64

// reduceFull performs the fast Mersenne reduction described in spec §9:
// v mod (2^61-1) = (v&M61) + (v>>61), with one conditional subtraction.
// Valid for any 64-bit v, since v>>61 <= 7.
func reduceFull(v uint64) Elem {
	v = (v & M61) + (v >> 61)
	if v >= M61 {
		v -= M61
	}
	return v
}

// reduce folds a 128-bit product hi:lo down to a field element. It uses
// 2^64 ≡ 8 (mod M61) (since 2^61 ≡ 1) to fold hi into the low word
// before applying reduceFull, avoiding any need for wider arithmetic.
func reduce(hi, lo uint64) Elem {
	t := hi << 3 // hi < 2^58 for a 61-bit x 61-bit product, so no overflow
	sum, carry := bits.Add64(lo, t, 0)
	sum, _ = bits.Add64(sum, carry*8, 0)
	return reduceFull(sum)
}

// Add returns (a + b) mod M61.
func Add(a, b Elem) Elem {
	s := a + b
	if s >= M61 {
		s -= M61
	}
	return s
}

// Sub returns (a - b) mod M61.
func Sub(a, b Elem) Elem {
	if a >= b {
		return a - b
	}
	return M61 - (b - a)
}

// Neg returns (-a) mod M61.
func Neg(a Elem) Elem {
	if a == 0 {
		return 0
	}
	return M61 - a
}

// Mul returns (a * b) mod M61 using a 128-bit intermediate product,
// per spec §4.1 / §9 ("implementers must use 128-bit intermediates").
func Mul(a, b Elem) Elem {
	hi, lo := bits.Mul64(a, b)
	return reduce(hi, lo)
}

// Pow returns a^e mod M61 via square-and-multiply.
func Pow(a Elem, e uint64) Elem {
	result := Elem(1)
	base := a % M61
	for e > 0 {
		if e&1 == 1 {
			result = Mul(result, base)
		}
		base = Mul(base, base)
		e >>= 1
	}
	return result
}

// Inv returns the multiplicative inverse of a via Fermat's little
// theorem: a^(M61-2) mod M61. Fails with ErrDivideByZero for a == 0.
func Inv(a Elem) (Elem, error) {
	if a == 0 {
		return 0, ErrDivideByZero
	}
	return Pow(a, M61-2), nil
}

// Div returns (a / b) mod M61 = a * b^-1 mod M61.
func Div(a, b Elem) (Elem, error) {
	bi, err := Inv(b)
	if err != nil {
		return 0, err
	}
	return Mul(a, bi), nil
}

// PolyEvalHigh evaluates a polynomial given coefficients highest-degree
// first ([a_d, ..., a_1, a_0]) at x via Horner's method.
func PolyEvalHigh(coeffs []Elem, x Elem) Elem {
	var result Elem
	for _, c := range coeffs {
		result = Add(Mul(result, x), c)
	}
	return result
}

// PolyEvalLow evaluates a polynomial given coefficients lowest-degree
// first ([a_0, a_1, ..., a_d]) at x via Horner's method.
func PolyEvalLow(coeffs []Elem, x Elem) Elem {
	var result Elem
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = Add(Mul(result, x), coeffs[i])
	}
	return result
}

// Point is one (x, y) evaluation of a polynomial over GF(M61).
type Point struct {
	X, Y Elem
}

// LagrangeInterpolateAt returns the unique degree-(len(points)-1)
// polynomial's value at x, given distinct-x points. Fails with
// ErrInvalidInput on duplicate x-coordinates or an empty point set.
func LagrangeInterpolateAt(points []Point, x Elem) (Elem, error) {
	n := len(points)
	if n == 0 {
		return 0, ErrInvalidInput
	}
	if err := checkDistinctX(points); err != nil {
		return 0, err
	}
	var result Elem
	for i := 0; i < n; i++ {
		xi, yi := points[i].X, points[i].Y
		num, den := Elem(1), Elem(1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			xj := points[j].X
			num = Mul(num, Sub(x, xj))
			den = Mul(den, Sub(xi, xj))
		}
		denInv, err := Inv(den)
		if err != nil {
			// unreachable given distinct-x check, kept for safety
			return 0, err
		}
		basis := Mul(num, denInv)
		result = Add(result, Mul(yi, basis))
	}
	return result, nil
}

// LagrangeBasisAt computes the Lagrange basis coefficient L_i(target)
// for the i-th point among xs: prod_{j!=i} (target - x_j)/(x_i - x_j).
func LagrangeBasisAt(xs []Elem, i int, target Elem) (Elem, error) {
	if i < 0 || i >= len(xs) {
		return 0, ErrInvalidInput
	}
	xi := xs[i]
	num, den := Elem(1), Elem(1)
	for j, xj := range xs {
		if j == i {
			continue
		}
		num = Mul(num, Sub(target, xj))
		den = Mul(den, Sub(xi, xj))
	}
	denInv, err := Inv(den)
	if err != nil {
		return 0, ErrInvalidInput
	}
	return Mul(num, denInv), nil
}

func checkDistinctX(points []Point) error {
	seen := make(map[Elem]struct{}, len(points))
	for _, p := range points {
		if _, ok := seen[p.X]; ok {
			return ErrInvalidInput
		}
		seen[p.X] = struct{}{}
	}
	return nil
}

// NewtonPoly is a precomputed Newton-form interpolant: O(n^2) to build,
// O(n) per subsequent evaluation. Used where the same point set is
// evaluated many times (e.g. DKG local-consistency checks).
type NewtonPoly struct {
	xs     []Elem
	coeffs []Elem
}

// NewNewtonPoly builds the divided-difference table for points.
func NewNewtonPoly(points []Point) (*NewtonPoly, error) {
	if len(points) == 0 {
		return nil, ErrInvalidInput
	}
	if err := checkDistinctX(points); err != nil {
		return nil, err
	}
	n := len(points)
	xs := make([]Elem, n)
	d := make([]Elem, n)
	for i, p := range points {
		xs[i] = p.X
		d[i] = p.Y
	}
	for j := 1; j < n; j++ {
		for i := n - 1; i >= j; i-- {
			num := Sub(d[i], d[i-1])
			den := Sub(xs[i], xs[i-j])
			q, err := Div(num, den)
			if err != nil {
				return nil, ErrInvalidInput
			}
			d[i] = q
		}
	}
	return &NewtonPoly{xs: xs, coeffs: d}, nil
}

// EvalAt evaluates the Newton-form polynomial at t in O(n).
func (p *NewtonPoly) EvalAt(t Elem) Elem {
	n := len(p.coeffs)
	result := p.coeffs[n-1]
	for i := n - 2; i >= 0; i-- {
		result = Add(Mul(result, Sub(t, p.xs[i])), p.coeffs[i])
	}
	return result
}

// RandElement samples a uniform element of [0, M61) from a
// cryptographically secure source via rejection sampling.
func RandElement() (Elem, error) {
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		r := binary.BigEndian.Uint64(buf[:]) >> 3 // 61 bits
		if r < M61 {
			return r, nil
		}
	}
}

// RandNonzero samples a uniform nonzero element of GF(M61).
func RandNonzero() (Elem, error) {
	for {
		r, err := RandElement()
		if err != nil {
			return 0, err
		}
		if r != 0 {
			return r, nil
		}
	}
}

// MustRandElement is RandElement without an error return, for call
// sites (test polynomial construction) where the caller already
// treats RNG failure as fatal.
func MustRandElement() Elem {
	r, err := RandElement()
	if err != nil {
		panic(err)
	}
	return r
}
