package gf61

import (
	"math/rand"
	"testing"
)

func TestAddCommutative(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		a := Elem(r.Uint64() % M61)
		b := Elem(r.Uint64() % M61)
		if Add(a, b) != Add(b, a) {
			t.Fatalf("addition not commutative for %d, %d", a, b)
		}
	}
}

func TestMulRange(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 2000; i++ {
		a := Elem(r.Uint64() % M61)
		b := Elem(r.Uint64() % M61)
		p := Mul(a, b)
		if p >= M61 {
			t.Fatalf("Mul(%d,%d)=%d out of range", a, b, p)
		}
	}
}

func TestMulKnown(t *testing.T) {
	// M61 - 1 squared, checked independently via big.Int-equivalent identity:
	// (M61-1) * (M61-1) mod M61 == 1 since (M61-1) ≡ -1 (mod M61).
	a := M61 - 1
	if got := Mul(a, a); got != 1 {
		t.Fatalf("(-1)*(-1) = %d, want 1", got)
	}
}

func TestInvIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		a := Elem(r.Uint64()%(M61-1)) + 1 // nonzero
		inv, err := Inv(a)
		if err != nil {
			t.Fatalf("Inv(%d) failed: %v", a, err)
		}
		if got := Mul(a, inv); got != 1 {
			t.Fatalf("a * a^-1 = %d, want 1 (a=%d)", got, a)
		}
	}
}

func TestInvZero(t *testing.T) {
	if _, err := Inv(0); err != ErrDivideByZero {
		t.Fatalf("Inv(0) = %v, want ErrDivideByZero", err)
	}
}

func TestPolyEvalHighLowAgree(t *testing.T) {
	// low-to-high [a0, a1, a2] represents the same polynomial as
	// high-to-low [a2, a1, a0].
	low := []Elem{5, 7, 11}
	high := []Elem{11, 7, 5}
	x := Elem(42)
	if PolyEvalLow(low, x) != PolyEvalHigh(high, x) {
		t.Fatalf("PolyEvalLow/PolyEvalHigh disagree")
	}
}

func TestLagrangeExactRecovery(t *testing.T) {
	// f(x) = 3 + 5x + 7x^2 (low-to-high), degree 2, needs 3 points.
	coeffs := []Elem{3, 5, 7}
	pts := []Point{
		{X: 1, Y: PolyEvalLow(coeffs, 1)},
		{X: 2, Y: PolyEvalLow(coeffs, 2)},
		{X: 3, Y: PolyEvalLow(coeffs, 3)},
	}
	for _, target := range []Elem{0, 10, 100} {
		got, err := LagrangeInterpolateAt(pts, target)
		if err != nil {
			t.Fatalf("interpolate failed: %v", err)
		}
		want := PolyEvalLow(coeffs, target)
		if got != want {
			t.Fatalf("interpolate at %d = %d, want %d", target, got, want)
		}
	}
}

func TestLagrangeSinglePointIsConstant(t *testing.T) {
	pts := []Point{{X: 5, Y: 99}}
	got, err := LagrangeInterpolateAt(pts, 12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 99 {
		t.Fatalf("single-point interpolation = %d, want 99", got)
	}
}

func TestLagrangeDuplicateXFails(t *testing.T) {
	pts := []Point{{X: 1, Y: 1}, {X: 1, Y: 2}}
	if _, err := LagrangeInterpolateAt(pts, 0); err != ErrInvalidInput {
		t.Fatalf("duplicate x, got err=%v want ErrInvalidInput", err)
	}
}

func TestNewtonMatchesLagrange(t *testing.T) {
	coeffs := []Elem{9, 2, 8, 1} // degree 3
	pts := make([]Point, 4)
	for i := range pts {
		x := Elem(i + 1)
		pts[i] = Point{X: x, Y: PolyEvalLow(coeffs, x)}
	}
	np, err := NewNewtonPoly(pts)
	if err != nil {
		t.Fatalf("NewNewtonPoly failed: %v", err)
	}
	for _, target := range []Elem{0, 7, 4242} {
		want, err := LagrangeInterpolateAt(pts, target)
		if err != nil {
			t.Fatalf("lagrange failed: %v", err)
		}
		if got := np.EvalAt(target); got != want {
			t.Fatalf("newton eval at %d = %d, want %d", target, got, want)
		}
	}
}

func TestRandElementInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		v, err := RandElement()
		if err != nil {
			t.Fatalf("RandElement failed: %v", err)
		}
		if v >= M61 {
			t.Fatalf("RandElement out of range: %d", v)
		}
	}
}

func TestRandNonzeroNeverZero(t *testing.T) {
	for i := 0; i < 200; i++ {
		v, err := RandNonzero()
		if err != nil {
			t.Fatalf("RandNonzero failed: %v", err)
		}
		if v == 0 {
			t.Fatalf("RandNonzero returned 0")
		}
	}
}
