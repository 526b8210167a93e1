package bootstrap

import (
	"testing"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/shamir"
)

func TestThresholdFormula(t *testing.T) {
	if got := Threshold(20); got != 14 {
		t.Fatalf("expected tau=14 for k=20, got %d", got)
	}
}

func TestSelectDiverseSpreadsAcrossBuckets(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, Candidate{
			PeerID:       gf61.Elem(i),
			Jurisdiction: "juris-A",
			RouteClass:   "fiber",
		})
	}
	for i := 10; i < 20; i++ {
		candidates = append(candidates, Candidate{
			PeerID:       gf61.Elem(i),
			Jurisdiction: "juris-B",
			RouteClass:   "satellite",
		})
	}
	selected := SelectDiverse(candidates, 4)
	if len(selected) != 4 {
		t.Fatalf("expected 4 selected, got %d", len(selected))
	}
	seenA, seenB := false, false
	for _, c := range selected {
		if c.Jurisdiction == "juris-A" {
			seenA = true
		}
		if c.Jurisdiction == "juris-B" {
			seenB = true
		}
	}
	if !seenA || !seenB {
		t.Fatalf("expected diversity across both buckets, got %+v", selected)
	}
}

func TestEncodeDecodeSecretRoundtrip(t *testing.T) {
	secret, err := gf61.RandElement()
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	shares, err := EncodeSecret(secret, 20)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	recovered, bad, err := DecodeSecret(shares, 20)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("expected no corrupt shares, got %d", len(bad))
	}
	if recovered != secret {
		t.Fatalf("recovered %d != original %d", recovered, secret)
	}
}

func TestDecodeSecretToleratesCorruptShares(t *testing.T) {
	secret, _ := gf61.RandElement()
	shares, _ := EncodeSecret(secret, 20) // tau = 14, up to 6 corrupt tolerated
	for i := 0; i < 5; i++ {
		shares[i].Y = gf61.Add(shares[i].Y, 1)
	}
	recovered, bad, err := DecodeSecret(shares, 20)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bad) < 5 {
		t.Fatalf("expected at least 5 flagged bad, got %d", len(bad))
	}
	if recovered != secret {
		t.Fatalf("recovered %d != original %d despite tolerable corruption", recovered, secret)
	}
}

func TestDerivePSKDeterministic(t *testing.T) {
	secret := []byte("shared-secret-bytes-32-long!!!!")
	a := DerivePSK(secret, 2048)
	b := DerivePSK(secret, 2048)
	if len(a) != 32+2048/8 {
		t.Fatalf("unexpected psk length %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("derive_psk not deterministic")
		}
	}
}

func TestRunObservationAloneDoesNotBreakReconstruction(t *testing.T) {
	targets := []gf61.Elem{1, 2, 3}
	observeAll := func(gf61.Elem, int) bool { return true }
	// Observation alone does not corrupt any route's share, so
	// reconstruction succeeds for every target (spec §4.6: passive
	// eavesdropping on a route threatens secrecy, not correctness).
	result, err := Run(3, targets, observeAll, nil)
	if err != nil {
		t.Fatalf("unexpected error with full observation but clean delivery: %v", err)
	}
	if result.Observed != len(targets) {
		t.Fatalf("expected all %d targets flagged observed, got %d", len(targets), result.Observed)
	}
	if len(result.PSKs) != len(targets) {
		t.Fatalf("expected reconstruction to succeed despite observation, got %d PSKs", len(result.PSKs))
	}
}

func TestRunToleratesCorruptRoutesUpToShamirThreshold(t *testing.T) {
	targets := []gf61.Elem{100}
	corruptFn := func(_ gf61.Elem, routeIdx int, sh shamir.Share) (shamir.Share, bool) {
		if routeIdx < 5 { // comfortably within the 20-14=6 tolerance
			sh.Y = gf61.Add(sh.Y, 1)
			return sh, true
		}
		return sh, false
	}
	result, err := Run(20, targets, nil, corruptFn)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Corrupted != 5 {
		t.Fatalf("expected 5 corrupted routes exercised, got %d", result.Corrupted)
	}
	if len(result.PSKs) != 1 {
		t.Fatalf("expected reconstruction to survive <= floor(k/3) corrupt routes, got %d PSKs", len(result.PSKs))
	}
}

func TestRunDropsTargetBeyondCorruptionThreshold(t *testing.T) {
	targets := []gf61.Elem{100}
	corruptFn := func(_ gf61.Elem, routeIdx int, sh shamir.Share) (shamir.Share, bool) {
		if routeIdx < 10 { // well beyond Shamir's floor(k/3)=6 tolerance
			sh.Y = gf61.Add(sh.Y, 1)
			return sh, true
		}
		return sh, false
	}
	_, err := Run(20, targets, nil, corruptFn)
	if err != ErrNoCleanPath {
		t.Fatalf("expected ErrNoCleanPath when the only target's secret is unreconstructable, got %v", err)
	}
}

func TestRunFailsWithNoCleanPath(t *testing.T) {
	empty := NewSession(3)
	if _, err := empty.Complete(map[gf61.Elem]gf61.Elem{}); err != ErrNoCleanPath {
		t.Fatalf("expected ErrNoCleanPath on empty delivery, got %v", err)
	}
}

func TestTemporalAccumulatesAcrossSessions(t *testing.T) {
	temporal := NewTemporal(3)
	if _, err := temporal.RunSession([]gf61.Elem{1, 2, 3}, nil, nil); err != nil {
		t.Fatalf("session 1: %v", err)
	}
	if _, err := temporal.RunSession([]gf61.Elem{4, 5, 6}, nil, nil); err != nil {
		t.Fatalf("session 2: %v", err)
	}
	if temporal.TotalChannels() != 6 {
		t.Fatalf("expected 6 accumulated channels, got %d", temporal.TotalChannels())
	}
}
