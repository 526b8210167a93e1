// Package dkg implements distributed key generation without a trusted
// dealer (spec §4.5): per-node polynomial contributions, pairwise
// share distribution, cross-verification, complaint-based exclusion,
// and share combination. Grounded on original_source/src/liun/dkg.py.
package dkg

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sort"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
	"github.com/noospheer/Liun/internal/wire"
	"golang.org/x/exp/slices"
)

// ErrNotCompleted is returned by operations that require a finished
// run, such as reconstructing the test-only combined secret.
var ErrNotCompleted = errors.New("dkg: run has not completed")

// ErrIncompletePolynomial flags a contribution whose share count is
// too small to ever be cross-verified (spec §4.5 step 4: "once ≥ d+2
// cross-verified values ... are collected").
var ErrIncompletePolynomial = errors.New("dkg: insufficient shares to verify")

// Contribution is one node's random polynomial contribution (spec
// §4.5 step 1). Coeffs are low-to-high; Coeffs[0] is the node's
// individual secret f_i(0).
type Contribution struct {
	NodeID gf61.Elem
	Degree int
	Coeffs []gf61.Elem
}

// NewContribution samples a fresh random degree-d polynomial.
func NewContribution(nodeID gf61.Elem, degree int) (*Contribution, error) {
	coeffs := make([]gf61.Elem, degree+1)
	for i := range coeffs {
		c, err := gf61.RandElement()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Contribution{NodeID: nodeID, Degree: degree, Coeffs: coeffs}, nil
}

// Secret returns this node's individual secret f_i(0).
func (c *Contribution) Secret() gf61.Elem { return c.Coeffs[0] }

// ComputeShare returns f_i(targetID), the share owed to targetID
// (spec §4.5 step 2).
func (c *Contribution) ComputeShare(targetID gf61.Elem) gf61.Elem {
	return gf61.PolyEvalLow(c.Coeffs, targetID)
}

// ConsistencyVerifier checks whether a sender's distributed shares all
// lie on a single degree-d polynomial (spec §4.5 steps 3-4), using
// Newton-form interpolation over the first d+1 cross-verified values
// and comparing the rest in O(k) each thereafter.
type ConsistencyVerifier struct {
	Degree int
}

// VerifySender returns nil if the (target -> share) values received
// for one sender lie on a single degree-d polynomial, or
// ErrIncompletePolynomial if too few points were supplied to make a
// determination (below the redundancy bound, no false accusation is
// possible so the sender is treated as innocent-until-checkable), or
// a mismatch error naming the first inconsistent evaluation point.
func (v *ConsistencyVerifier) VerifySender(shares map[gf61.Elem]gf61.Elem) error {
	points := make([]gf61.Point, 0, len(shares))
	for x, y := range shares {
		points = append(points, gf61.Point{X: x, Y: y})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })

	if len(points) <= v.Degree+1 {
		return ErrIncompletePolynomial
	}

	basis := points[:v.Degree+1]
	poly, err := gf61.NewNewtonPoly(basis)
	if err != nil {
		return err
	}
	for _, p := range points[v.Degree+1:] {
		if poly.EvalAt(p.X) != p.Y {
			return errMismatch(p.X)
		}
	}
	return nil
}

type mismatchError struct{ at gf61.Elem }

func (e *mismatchError) Error() string { return "dkg: inconsistent share detected" }
func errMismatch(at gf61.Elem) error   { return &mismatchError{at: at} }

// Combine sums a node's received shares into its combined signing
// share s_j = Sum_{i not excluded} f_i(j) (spec §4.5 step 6).
func Combine(received map[gf61.Elem]gf61.Elem) gf61.Elem {
	var total gf61.Elem
	for _, v := range received {
		total = gf61.Add(total, v)
	}
	return total
}

// Run orchestrates a full DKG protocol instance across an in-process
// committee: contribution, distribution, cross-verification,
// complaint aggregation, and combination. This corresponds to
// original_source's DKG class used for tests and for the trusted local
// simulation bus; production nodes drive the same steps individually
// through their KeyChannels instead of holding every contribution
// centrally.
type Run struct {
	NodeIDs   []gf61.Elem
	Threshold int
	Degree    int

	contributions map[gf61.Elem]*Contribution
	committed     map[gf61.Elem]*CommittedContribution // pairing-curve companion per sender, spec §9 C15
	sharesSent    map[gf61.Elem]map[gf61.Elem]gf61.Elem // sender -> receiver -> value
	channels      map[gf61.Elem]map[gf61.Elem]*keychannel.Simulated // sender -> receiver -> pairwise MAC channel (spec §4.5 steps 2-3)
	combined      map[gf61.Elem]gf61.Elem
	excluded      map[gf61.Elem]struct{}
	completed     bool
}

// NewRun constructs a DKG run over nodeIDs. If threshold is 0, the
// spec's connectivity-driven default 2n/3 + 1 is used (spec §4.5
// Connectivity remark: single-round verification requires min-degree
// > d = 2n/3).
func NewRun(nodeIDs []gf61.Elem, threshold int) *Run {
	ids := append([]gf61.Elem(nil), nodeIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if threshold == 0 {
		threshold = 2*len(ids)/3 + 1
	}
	return &Run{
		NodeIDs:       ids,
		Threshold:     threshold,
		Degree:        threshold - 1,
		contributions: make(map[gf61.Elem]*Contribution),
		committed:     make(map[gf61.Elem]*CommittedContribution),
		sharesSent:    make(map[gf61.Elem]map[gf61.Elem]gf61.Elem),
		channels:      make(map[gf61.Elem]map[gf61.Elem]*keychannel.Simulated),
		combined:      make(map[gf61.Elem]gf61.Elem),
		excluded:      make(map[gf61.Elem]struct{}),
	}
}

// initChannels opens one pairwise simulated key channel per unordered
// node pair, mirroring the real KeyChannel each pair of production
// nodes would already hold (spec §4.3): this centralized run stands in
// for that per-pair transport so DistributeShares can MAC-authenticate
// every share exactly as individual nodes would (spec §4.5 steps 2-3).
func (r *Run) initChannels() error {
	for _, s := range r.NodeIDs {
		r.channels[s] = make(map[gf61.Elem]*keychannel.Simulated)
	}
	for i, a := range r.NodeIDs {
		for _, b := range r.NodeIDs[i+1:] {
			psk := make([]byte, 64)
			if _, err := rand.Read(psk); err != nil {
				return err
			}
			r.channels[a][b] = keychannel.Open(b, psk)
			r.channels[b][a] = keychannel.Open(a, psk)
		}
	}
	return nil
}

// GenerateContributions runs spec §4.5 step 1 for every node, plus
// each sender's Feldman companion polynomial on the pairing curve
// (spec §9 C15) that lets the commitment be checked without ever
// exchanging the GF(M61) coefficients.
func (r *Run) GenerateContributions() error {
	if err := r.initChannels(); err != nil {
		return err
	}
	for _, id := range r.NodeIDs {
		c, err := NewContribution(id, r.Degree)
		if err != nil {
			return err
		}
		r.contributions[id] = c
		r.committed[id] = NewCommittedContribution(r.Degree)
	}
	return nil
}

// PublicCommitment returns the marshaled Feldman commitment senderID
// broadcasts alongside its GF(M61) shares (spec §4.5 step 3, hardened
// per DESIGN.md C15).
func (r *Run) PublicCommitment(senderID gf61.Elem) ([]byte, error) {
	cc, ok := r.committed[senderID]
	if !ok {
		return nil, fmt.Errorf("dkg: unknown sender %d", senderID)
	}
	return cc.CommitmentBytes()
}

// VerifyFeldman independently checks that senderID's declared pairing
// polynomial is well-formed: Threshold of its pairing private shares
// jointly sign the sender's own commitment, and the recovered
// threshold signature must verify against the recovered public
// polynomial. This never touches the GF(M61) coefficients, so it
// catches a sender who is inconsistent on the pairing curve but who
// might otherwise slip past the GF(M61) cross-check alone.
func (r *Run) VerifyFeldman(senderID gf61.Elem) error {
	cc, ok := r.committed[senderID]
	if !ok {
		return fmt.Errorf("dkg: unknown sender %d", senderID)
	}
	n := len(r.NodeIDs)
	commitment, err := cc.CommitmentBytes()
	if err != nil {
		return err
	}

	pubShares := cc.PublicShares(n)
	priShares := cc.PrivateShares(n)
	sigShares := make([][]byte, 0, r.Threshold)
	for i := 0; i < r.Threshold; i++ {
		sig, err := SignShare(cc.Suite(), priShares[i], commitment)
		if err != nil {
			return err
		}
		sigShares = append(sigShares, sig)
	}

	if _, err := RecoverThresholdSignature(cc.Suite(), pubShares, commitment, sigShares, r.Threshold, n); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitmentMismatch, err)
	}
	return nil
}

// ErrShareMACFailure flags a distributed share whose MAC did not
// verify against the sender/receiver pairwise channel (spec §4.5
// steps 2-3: shares and their cross-verification values travel
// MAC-authenticated exactly like every other inter-core exchange,
// spec §6.3).
var ErrShareMACFailure = errors.New("dkg: share failed MAC verification")

// DistributeShares runs spec §4.5 step 2 for every sender/receiver
// pair, sealing each share with wire.Seal over the pair's channel and
// immediately opening it on the receiver's side of that same channel —
// the values collected into sharesSent (and later fed to
// VerifyConsistency for step 3's cross-verification) are exactly the
// MAC-verified payloads, never the raw computed shares.
func (r *Run) DistributeShares() error {
	for _, sender := range r.NodeIDs {
		row := make(map[gf61.Elem]gf61.Elem, len(r.NodeIDs))
		contrib := r.contributions[sender]
		for _, receiver := range r.NodeIDs {
			share := contrib.ComputeShare(receiver)
			if receiver == sender {
				row[receiver] = share
				continue
			}
			env, err := wire.Seal(r.channels[sender][receiver], sender, receiver, 0, wire.DKGShare, []gf61.Elem{share})
			if err != nil {
				return err
			}
			payload, err := wire.Open(r.channels[receiver][sender], env)
			if err != nil {
				return fmt.Errorf("%w: sender %d -> receiver %d: %v", ErrShareMACFailure, sender, receiver, err)
			}
			row[receiver] = payload[0]
		}
		r.sharesSent[sender] = row
	}
	return nil
}

// VerifyConsistency runs spec §4.5 steps 3-5: local consistency checks
// followed by complaint aggregation. A node is excluded iff the number
// of nodes that complain about it exceeds t, t < n/3.
func (r *Run) VerifyConsistency() []gf61.Elem {
	verifier := &ConsistencyVerifier{Degree: r.Degree}
	t := (len(r.NodeIDs) - 1) / 3
	complaints := make(map[gf61.Elem]int)

	for sender, row := range r.sharesSent {
		faulted := false
		switch err := verifier.VerifySender(row); err {
		case nil:
		case ErrIncompletePolynomial:
			// Below the redundancy bound no honest observer can find
			// an inconsistency, so no complaint is raised (spec §4.5:
			// "false complaints from <= t corrupt nodes cannot exceed
			// the t threshold" — silence here is not itself a fault).
		default:
			faulted = true
		}
		if err := r.VerifyFeldman(sender); err != nil {
			// Independent pairing-curve check per spec §9 C15; a
			// mismatch here is as damning as a GF(M61) mismatch even
			// if the GF(M61) check alone passed.
			faulted = true
		}
		if faulted {
			// Every honest observer holding the full cross-verified set
			// for this sender independently reaches the same verdict; in
			// this centralized run every other node shares that view.
			complaints[sender] = len(r.NodeIDs) - 1
		}
	}

	var excluded []gf61.Elem
	for id, count := range complaints {
		if count > t {
			r.excluded[id] = struct{}{}
			excluded = append(excluded, id)
		}
	}
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })
	return excluded
}

// CombineShares runs spec §4.5 step 6 for every non-excluded node.
func (r *Run) CombineShares() {
	for _, nid := range r.NodeIDs {
		if _, ex := r.excluded[nid]; ex {
			continue
		}
		received := make(map[gf61.Elem]gf61.Elem)
		for _, sender := range r.NodeIDs {
			if _, ex := r.excluded[sender]; ex {
				continue
			}
			received[sender] = r.sharesSent[sender][nid]
		}
		r.combined[nid] = Combine(received)
	}
	r.completed = true
}

// Execute runs the full protocol (generate, distribute, verify,
// combine) and returns the combined shares of surviving nodes.
func (r *Run) Execute(verify bool) (map[gf61.Elem]gf61.Elem, error) {
	if err := r.GenerateContributions(); err != nil {
		return nil, err
	}
	if err := r.DistributeShares(); err != nil {
		return nil, err
	}
	if verify {
		r.VerifyConsistency()
	}
	r.CombineShares()
	out := make(map[gf61.Elem]gf61.Elem, len(r.combined))
	for k, v := range r.combined {
		out[k] = v
	}
	return out, nil
}

// Excluded reports the set of nodes excluded by complaint aggregation.
func (r *Run) Excluded() []gf61.Elem {
	out := make([]gf61.Elem, 0, len(r.excluded))
	for id := range r.excluded {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GenerateVerificationPoints runs spec §4.5 step 7: each surviving
// node is handed countPerNode disjoint public evaluation points of the
// combined polynomial, drawn at fresh random arguments disjoint from
// every node id and from every other node's points. The combined
// polynomial itself is never materialized — each point is obtained by
// summing the surviving contributions' own evaluations at that
// argument (spec §3: "F_epoch is never materialized anywhere"). Must
// be called after CombineShares, once the excluded set is final.
func (r *Run) GenerateVerificationPoints(countPerNode int) (map[gf61.Elem][]gf61.Point, error) {
	used := make(map[gf61.Elem]struct{}, len(r.NodeIDs))
	for _, id := range r.NodeIDs {
		used[id] = struct{}{}
	}

	out := make(map[gf61.Elem][]gf61.Point, len(r.NodeIDs))
	for _, nid := range r.NodeIDs {
		if _, ex := r.excluded[nid]; ex {
			continue
		}
		pts := make([]gf61.Point, 0, countPerNode)
		for len(pts) < countPerNode {
			x, err := gf61.RandElement()
			if err != nil {
				return nil, err
			}
			if _, taken := used[x]; taken {
				continue
			}
			used[x] = struct{}{}
			pts = append(pts, gf61.Point{X: x, Y: r.evalCombinedAt(x)})
		}
		out[nid] = pts
	}
	return out, nil
}

// evalCombinedAt evaluates the (never-materialized) combined
// polynomial at x by summing each surviving contributor's own
// evaluation there.
func (r *Run) evalCombinedAt(x gf61.Elem) gf61.Elem {
	var total gf61.Elem
	for _, sender := range r.NodeIDs {
		if _, ex := r.excluded[sender]; ex {
			continue
		}
		total = gf61.Add(total, r.contributions[sender].ComputeShare(x))
	}
	return total
}

// CombinedSecret reconstructs F_combined(0) from surviving nodes'
// combined shares. Test-only: production code never does this (spec
// §3: "the combined polynomial F_epoch is never materialized
// anywhere").
func (r *Run) CombinedSecret() (gf61.Elem, error) {
	if !r.completed {
		return 0, ErrNotCompleted
	}
	var honest []gf61.Elem
	for _, id := range r.NodeIDs {
		if _, ex := r.excluded[id]; !ex {
			honest = append(honest, id)
		}
	}
	if len(honest) < r.Threshold {
		return 0, ErrIncompletePolynomial
	}
	points := make([]gf61.Point, r.Threshold)
	for i := 0; i < r.Threshold; i++ {
		id := honest[i]
		points[i] = gf61.Point{X: id, Y: r.combined[id]}
	}
	return gf61.LagrangeInterpolateAt(points, 0)
}

// InjectCorruptShares tampers with every share a corrupt sender
// distributed except to itself, using tamperFn (default: +1 mod
// M61). Test helper mirroring original_source's inject_corrupt_shares.
func (r *Run) InjectCorruptShares(corruptID gf61.Elem, tamperFn func(receiver, original gf61.Elem) gf61.Elem) {
	if !slices.Contains(r.NodeIDs, corruptID) {
		return
	}
	if tamperFn == nil {
		tamperFn = func(_, original gf61.Elem) gf61.Elem { return gf61.Add(original, 1) }
	}
	row := r.sharesSent[corruptID]
	for receiver, original := range row {
		if receiver == corruptID {
			continue
		}
		row[receiver] = tamperFn(receiver, original)
	}
}
