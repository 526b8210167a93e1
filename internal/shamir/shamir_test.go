package shamir

import (
	"testing"

	"github.com/noospheer/Liun/internal/gf61"
)

// S1: split(secret=12345, k=3, n=5) -> 5 shares; reconstruct at 0 from
// shares {1,3,5} recovers 12345.
func TestScenarioS1Roundtrip(t *testing.T) {
	shares, err := Split(12345, 3, 5)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("got %d shares, want 5", len(shares))
	}
	subset := []Share{shares[0], shares[2], shares[4]} // x = 1, 3, 5
	got, err := Reconstruct(subset)
	if err != nil {
		t.Fatalf("reconstruct failed: %v", err)
	}
	if got != 12345 {
		t.Fatalf("reconstructed %d, want 12345", got)
	}
}

// S2: corrupt share_3.y by +7; consistency_check with k=3 reports it bad.
func TestScenarioS2CorruptDetection(t *testing.T) {
	shares, err := Split(12345, 3, 5)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	shares[2].Y = gf61.Add(shares[2].Y, 7) // share_3 (index 2, x=3)

	res := ConsistencyCheck(shares, 3)
	foundBad := false
	for _, b := range res.Bad {
		if b.X == 3 {
			foundBad = true
		}
	}
	if !foundBad {
		t.Fatalf("expected share x=3 flagged bad, got good=%v bad=%v", res.Good, res.Bad)
	}
}

func TestKEqualsOneShareIsSecret(t *testing.T) {
	shares, err := Split(777, 1, 4)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	for _, s := range shares {
		if s.Y != 777 {
			t.Fatalf("k=1 share y=%d, want 777", s.Y)
		}
	}
}

func TestKEqualsNRequiresAllShares(t *testing.T) {
	secret := gf61.Elem(555)
	shares, err := Split(secret, 4, 4)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	// n-1 shares reveal nothing usable via direct interpolation at 0
	// with fewer than k points (interpolation itself would need k
	// points to be meaningful; reconstructing with 3 of 4 must not
	// coincidentally equal the secret except by chance handled below).
	if _, err := ReconstructAtThreshold(shares[:3], 4, 0); err != ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestSplitInvalidParams(t *testing.T) {
	if _, err := Split(1, 0, 5); err != ErrInvalidParams {
		t.Fatalf("k=0 should fail, got %v", err)
	}
	if _, err := Split(1, 5, 3); err != ErrInvalidParams {
		t.Fatalf("n<k should fail, got %v", err)
	}
	if _, err := Split(gf61.M61, 2, 3); err != ErrInvalidParams {
		t.Fatalf("secret out of field should fail, got %v", err)
	}
}

func TestConsistencyCheckBelowThresholdIsPartial(t *testing.T) {
	shares, err := Split(1, 3, 4) // n=4, k=3 -> n < k+1+... exactly at boundary
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	shares[0].Y = gf61.Add(shares[0].Y, 1)
	res := ConsistencyCheck(shares, 3)
	// n=4, k+1=4, so detection is possible but not guaranteed reliable;
	// the important invariant is it never panics and never accuses a
	// share it can't check when n < k+1.
	_ = res
}

func TestConsistencyCheckNoFalseAccusationBelowRedundancy(t *testing.T) {
	shares, err := Split(42, 3, 3) // n == k, below k+1 redundancy
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	res := ConsistencyCheck(shares, 3)
	if len(res.Bad) != 0 {
		t.Fatalf("expected no accusations below redundancy threshold, got %v", res.Bad)
	}
}
