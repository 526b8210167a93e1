// Package bootstrap implements multi-path Shamir-protected key
// agreement for a new node joining Liun with no existing channels
// (spec §4.6). Grounded on original_source/src/liun/bootstrap.py.
package bootstrap

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/psk"
	"github.com/noospheer/Liun/internal/shamir"
)

// ErrNoCleanPath is returned when not even one candidate yields an
// unobserved, uncorrupted secret (spec §4.6 Failure handling).
var ErrNoCleanPath = errors.New("bootstrap: no clean path to any candidate")

// DefaultCandidateCount is the spec's minimum k (spec §4.6 step 1).
const DefaultCandidateCount = 20

// DefaultTargetPSKBytes is the run-dependent part of the PSK length
// when no run-count based sizing is requested; the derived PSK is
// 32 + DefaultTargetPSKBytes bytes (288). Matches original_source's
// derive_psk default of 256 bytes.
const DefaultTargetPSKBytes = 256

// Candidate is one peer under consideration for bootstrap, carrying
// whatever metadata the local diversity scorer needs. The core
// contract only requires that a selection function exists and
// operates on this metadata (spec §4.6 step 1: "diversity scoring is
// implementation-defined").
type Candidate struct {
	PeerID       gf61.Elem
	Jurisdiction string
	RouteClass   string
}

// SelectDiverse returns up to k candidates maximizing route/
// jurisdiction diversity: a round-robin pick across distinct
// (Jurisdiction, RouteClass) buckets so no single administrative
// domain or network path dominates the selection.
func SelectDiverse(candidates []Candidate, k int) []Candidate {
	buckets := make(map[string][]Candidate)
	var order []string
	for _, c := range candidates {
		key := c.Jurisdiction + "|" + c.RouteClass
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], c)
	}
	sort.Strings(order)

	var out []Candidate
	for len(out) < k {
		progressed := false
		for _, key := range order {
			if len(out) >= k {
				break
			}
			if len(buckets[key]) == 0 {
				continue
			}
			out = append(out, buckets[key][0])
			buckets[key] = buckets[key][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// Threshold computes tau = k - floor(k/3), the Shamir reconstruction
// threshold for k-path secret splitting (spec §4.6 step 2).
func Threshold(k int) int {
	return k - k/3
}

// EncodeSecret Shamir-splits a secret field element (61 bits; not a
// 256-bit value) into k shares at threshold tau, one per selected route.
func EncodeSecret(secret gf61.Elem, k int) ([]shamir.Share, error) {
	return shamir.Split(secret, Threshold(k), k)
}

// DecodeSecret reconstructs a secret from received shares, rejecting
// shares flagged corrupt by consistency_check first (spec §4.6 step 2:
// "B_i's side collects shares and runs consistency_check, discarding
// corrupt shares, reconstructing r_i").
func DecodeSecret(received []shamir.Share, k int) (gf61.Elem, []shamir.Share, error) {
	tau := Threshold(k)
	result := shamir.ConsistencyCheck(received, tau)
	if len(result.Good) < tau {
		return 0, result.Bad, shamir.ErrInsufficientShares
	}
	secret, err := shamir.ReconstructAtThreshold(result.Good, tau, 0)
	return secret, result.Bad, err
}

// DerivePSK expands a raw shared secret to PSK length via the
// length-preserving ITS expander (spec §4.6 step 3): 32 + ceil(bits/8)
// bytes, using internal/psk's blake2xb-based Expand.
func DerivePSK(secret []byte, bits int) []byte {
	targetLen := 32 + (bits+7)/8
	return psk.Expand(secret, targetLen)
}

// elemBytes encodes a reconstructed field-element secret to the byte
// form DerivePSK expands, matching internal/wire's 8-byte
// little-endian field-element encoding.
func elemBytes(e gf61.Elem) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(e))
	return buf
}

// GenerateSecret samples a fresh r_i for one bootstrap path (spec
// §4.6 step 2), represented as a GF(M61) field element — the same
// domain every other secret in this codebase lives in (DKG
// contributions, signing shares) — so it can be Shamir-split by
// internal/shamir directly.
func GenerateSecret() (gf61.Elem, error) {
	return gf61.RandElement()
}

// Session runs one bootstrap attempt across k candidate peers,
// mirroring original_source's BootstrapSession (spec §4.6).
type Session struct {
	K           int
	RawSecrets  map[gf61.Elem]gf61.Elem // target -> r_i, pre-split
	DerivedPSKs map[gf61.Elem][]byte
}

// NewSession prepares a session for k candidate targets.
func NewSession(k int) *Session {
	return &Session{
		K:           k,
		RawSecrets:  make(map[gf61.Elem]gf61.Elem),
		DerivedPSKs: make(map[gf61.Elem][]byte),
	}
}

// GenerateSecrets samples one fresh r_i per target.
func (s *Session) GenerateSecrets(targets []gf61.Elem) error {
	for _, t := range targets {
		secret, err := GenerateSecret()
		if err != nil {
			return err
		}
		s.RawSecrets[t] = secret
	}
	return nil
}

// Complete derives PSKs for every target whose secret was
// successfully reconstructed (spec §4.6 steps 3-4), returning the set
// of successful targets. Fails with ErrNoCleanPath if none succeed.
func (s *Session) Complete(received map[gf61.Elem]gf61.Elem) (map[gf61.Elem][]byte, error) {
	for tid, secret := range received {
		s.DerivedPSKs[tid] = DerivePSK(elemBytes(secret), DefaultTargetPSKBytes*8)
	}
	if len(s.DerivedPSKs) == 0 {
		return nil, ErrNoCleanPath
	}
	return s.DerivedPSKs, nil
}

// MultiPathResult reports outcomes of one bootstrap.Run call.
type MultiPathResult struct {
	PSKs      map[gf61.Elem][]byte
	NTargets  int
	Observed  int
	Corrupted int
	Clean     int
}

// RouteObserver reports whether an adversary observes routeIdx of the
// share transport toward target (spec §4.6 security contract: "if >=
// 1 route per peer pair is unobserved by the adversary, that PSK is
// perfectly secret").
type RouteObserver func(target gf61.Elem, routeIdx int) bool

// RouteCorruptor optionally tampers with a single route's transmitted
// Shamir share (spec §4.6 security contract: "if <= floor(k/3) relays
// per peer pair are corrupt, Shamir consistency identifies and
// excludes them"). ok=false leaves the share untouched.
type RouteCorruptor func(target gf61.Elem, routeIdx int, share shamir.Share) (tampered shamir.Share, ok bool)

// Run drives the full multi-path bootstrap protocol against targets
// (>= k): for each target it Shamir-splits a fresh r_i into (tau, k)
// shares, applies observeFn/corruptFn per route, and runs
// consistency_check via DecodeSecret to discard corrupt shares and
// reconstruct r_i before deriving that target's PSK (spec §4.6 step
// 2). A target whose corrupt-route count exceeds Shamir's tolerance
// is dropped rather than failing the whole run, mirroring
// original_source's per-target "received" filtering.
func Run(k int, targets []gf61.Elem, observeFn RouteObserver, corruptFn RouteCorruptor) (*MultiPathResult, error) {
	if len(targets) > k {
		targets = targets[:k]
	}
	session := NewSession(k)
	if err := session.GenerateSecrets(targets); err != nil {
		return nil, err
	}

	received := make(map[gf61.Elem]gf61.Elem)
	observed, corrupted := 0, 0
	for _, tid := range targets {
		shares, err := EncodeSecret(session.RawSecrets[tid], k)
		if err != nil {
			return nil, err
		}

		routeObserved := false
		for i, sh := range shares {
			if observeFn != nil && observeFn(tid, i) {
				routeObserved = true
			}
			if corruptFn != nil {
				if tampered, ok := corruptFn(tid, i, sh); ok {
					shares[i] = tampered
					corrupted++
				}
			}
		}
		if routeObserved {
			observed++
		}

		secret, _, err := DecodeSecret(shares, k)
		if err != nil {
			// More corrupt routes than Shamir consistency can
			// tolerate for this target; drop it rather than the
			// whole run.
			continue
		}
		received[tid] = secret
	}

	psks, err := session.Complete(received)
	if err != nil {
		return nil, err
	}
	return &MultiPathResult{
		PSKs:      psks,
		NTargets:  len(targets),
		Observed:  observed,
		Corrupted: corrupted,
		Clean:     len(targets) - observed,
	}, nil
}

// Temporal coordinates repeated bootstrap sessions across separate
// network contexts (spec §9 supplemented feature, mirroring
// original_source's TemporalBootstrap): each session contributes a
// fresh batch of channels, letting a node accumulate its k-path
// diversity over days rather than in one shot.
type Temporal struct {
	KPerSession int
	Sessions    []*MultiPathResult
	AllPSKs     map[gf61.Elem][]byte
}

// NewTemporal creates a temporal bootstrap coordinator.
func NewTemporal(kPerSession int) *Temporal {
	return &Temporal{KPerSession: kPerSession, AllPSKs: make(map[gf61.Elem][]byte)}
}

// RunSession executes one temporal session and folds its results into
// the accumulated PSK set.
func (t *Temporal) RunSession(targets []gf61.Elem, observeFn RouteObserver, corruptFn RouteCorruptor) (*MultiPathResult, error) {
	result, err := Run(t.KPerSession, targets, observeFn, corruptFn)
	if err != nil {
		return nil, err
	}
	t.Sessions = append(t.Sessions, result)
	for id, p := range result.PSKs {
		t.AllPSKs[id] = p
	}
	return result, nil
}

// TotalChannels reports how many distinct peer PSKs have accumulated
// across all temporal sessions.
func (t *Temporal) TotalChannels() int { return len(t.AllPSKs) }
