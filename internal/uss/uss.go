// Package uss implements unconditionally secure threshold signatures
// (spec §4.4): partial signing, combination, verification, dispute
// resolution, and per-epoch signature-budget enforcement. Grounded on
// original_source/src/liun/uss.py.
package uss

import (
	"errors"

	"github.com/noospheer/Liun/internal/gf61"
)

// ErrInvalidCommittee flags a partial-sign call from a node not in the
// committee it was asked to sign for.
var ErrInvalidCommittee = errors.New("uss: signer not in committee")

// ErrBudgetExhausted is returned when a node's per-epoch signature
// budget (d/2 distinct messages) has been used up.
var ErrBudgetExhausted = errors.New("uss: signature budget exhausted")

// ErrInsufficientShares flags a combine call with fewer than k partials.
var ErrInsufficientShares = errors.New("uss: insufficient partial signatures")

// SigningPolynomial holds a full secret polynomial F of degree d. In
// production nobody ever materializes this — see spec §3 ("the
// combined polynomial F_epoch is never materialized anywhere"). Only
// the tests use it.
type SigningPolynomial struct {
	Degree int
	Coeffs []gf61.Elem // low-to-high, len == Degree+1
}

// NewSigningPolynomial samples a fresh random polynomial of the given
// degree.
func NewSigningPolynomial(degree int) (*SigningPolynomial, error) {
	coeffs := make([]gf61.Elem, degree+1)
	for i := range coeffs {
		c, err := gf61.RandElement()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &SigningPolynomial{Degree: degree, Coeffs: coeffs}, nil
}

// EvalAt returns F(x).
func (p *SigningPolynomial) EvalAt(x gf61.Elem) gf61.Elem {
	return gf61.PolyEvalLow(p.Coeffs, x)
}

// Sign returns sigma = F(message).
func (p *SigningPolynomial) Sign(message gf61.Elem) gf61.Elem {
	return p.EvalAt(message)
}

// Share returns (nodeID, F(nodeID)) as a signing share.
func (p *SigningPolynomial) Share(nodeID gf61.Elem) (gf61.Elem, gf61.Elem) {
	return nodeID, p.EvalAt(nodeID)
}

// VerificationPoints returns evaluation points of F at each x in xs,
// the "verification arguments" of spec §4.5 step 7.
func (p *SigningPolynomial) VerificationPoints(xs []gf61.Elem) []gf61.Point {
	pts := make([]gf61.Point, len(xs))
	for i, x := range xs {
		pts[i] = gf61.Point{X: x, Y: p.EvalAt(x)}
	}
	return pts
}

// PartialSigner is a node holding one signing share s_j = F(node_id).
type PartialSigner struct {
	NodeID  gf61.Elem
	ShareY  gf61.Elem
	Budget  *SignatureBudget
}

// NewPartialSigner constructs a signer bound to a per-epoch budget.
func NewPartialSigner(nodeID, shareY gf61.Elem, budget *SignatureBudget) *PartialSigner {
	return &PartialSigner{NodeID: nodeID, ShareY: shareY, Budget: budget}
}

// PartialSign computes partial = s_j * L_j(message), the Lagrange
// basis coefficient of node_id evaluated at message among committee
// (spec §4.4). Fails with ErrInvalidCommittee if the signer is not a
// member, and ErrBudgetExhausted if the local signature budget for
// this epoch is spent.
func (s *PartialSigner) PartialSign(message gf61.Elem, committee []gf61.Elem) (gf61.Elem, error) {
	idx := indexOf(committee, s.NodeID)
	if idx < 0 {
		return 0, ErrInvalidCommittee
	}
	if s.Budget != nil && !s.Budget.AlreadySigned(message) && !s.Budget.CanSign() {
		return 0, ErrBudgetExhausted
	}
	basis, err := gf61.LagrangeBasisAt(committee, idx, message)
	if err != nil {
		return 0, err
	}
	if s.Budget != nil {
		s.Budget.Record(message)
	}
	return gf61.Mul(s.ShareY, basis), nil
}

func indexOf(xs []gf61.Elem, target gf61.Elem) int {
	for i, x := range xs {
		if x == target {
			return i
		}
	}
	return -1
}

// Combine sums partial signatures into sigma = F(message), valid
// exactly when |committee| >= k and all partials are honest (spec
// §4.4, property (a)). Fails with ErrInsufficientShares if fewer than
// k partials are supplied.
func Combine(partials []gf61.Elem, k int) (gf61.Elem, error) {
	if len(partials) < k {
		return 0, ErrInsufficientShares
	}
	var sigma gf61.Elem
	for _, p := range partials {
		sigma = gf61.Add(sigma, p)
	}
	return sigma, nil
}

// Verifier holds a node's private subset of verification points and
// checks (message, sigma) consistency against them.
type Verifier struct {
	Points []gf61.Point
	Degree int
}

// NewVerifier constructs a verifier over degree d.
func NewVerifier(points []gf61.Point, degree int) *Verifier {
	return &Verifier{Points: points, Degree: degree}
}

// Verify checks whether (message, sigma) is consistent with the held
// verification points (spec §4.4): interpolate the degree-d
// polynomial through d+1 of the points and check equality on the rest
// plus the claimed pair. Requires |V| > d to make a real
// determination; with |V| <= d, verification is vacuously true and
// insufficientPoints is set — callers MUST check that flag rather
// than treat vacuous success as a real verification (spec: "no caller
// may treat vacuous as verified").
func (v *Verifier) Verify(message, sigma gf61.Elem) (ok bool, insufficientPoints bool) {
	if len(v.Points) <= v.Degree {
		return true, true
	}

	all := make([]gf61.Point, 0, len(v.Points)+1)
	all = append(all, v.Points...)
	all = append(all, gf61.Point{X: message, Y: sigma})

	basis := all[:v.Degree+1]
	for i := v.Degree + 1; i < len(all); i++ {
		x, y := all[i].X, all[i].Y
		expected, err := gf61.LagrangeInterpolateAt(basis, x)
		if err != nil || expected != y {
			return false, false
		}
	}
	return true, false
}

// TrustWeights maps a node id to its nonnegative trust weight, as
// produced by internal/trust's personalized PageRank.
type TrustWeights map[gf61.Elem]float64

// VerifierReport is one verifier's (accept/reject) attestation for a
// disputed signature.
type VerifierReport struct {
	VerifierID gf61.Elem
	Accepted   bool
}

// ResolveDispute adjudicates a disputed signature by trust-weighted
// vote (spec §4.4, upgraded from original_source's flat majority vote
// per SPEC_FULL.md / DESIGN.md Open Question 4): returns "forged" if
// weighted rejection is >= weighted acceptance, "valid" otherwise.
func ResolveDispute(reports []VerifierReport, trust TrustWeights) string {
	var acceptWeight, rejectWeight float64
	for _, r := range reports {
		w := trust[r.VerifierID]
		if r.Accepted {
			acceptWeight += w
		} else {
			rejectWeight += w
		}
	}
	if rejectWeight >= acceptWeight {
		return "forged"
	}
	return "valid"
}

// SignatureBudget tracks per-epoch signature usage. A node may sign at
// most Degree/2 distinct messages per epoch (spec §4.4): duplicate
// messages are free, since a repeated evaluation reveals no new point
// (spec §9 Open Question 1, preserved verbatim).
type SignatureBudget struct {
	Degree         int
	MaxSignatures  int
	used           int
	signedMessages map[gf61.Elem]struct{}
}

// NewSignatureBudget creates a budget capped at degree/2 signatures.
func NewSignatureBudget(degree int) *SignatureBudget {
	return &SignatureBudget{
		Degree:         degree,
		MaxSignatures:  degree / 2,
		signedMessages: make(map[gf61.Elem]struct{}),
	}
}

// CanSign reports whether a new, distinct message can still be signed
// without exceeding the budget. Repeats of an already-signed message
// do not depend on it (see AlreadySigned).
func (b *SignatureBudget) CanSign() bool {
	return b.used < b.MaxSignatures
}

// AlreadySigned reports whether message was already signed this
// epoch, in which case re-signing it consumes no new budget (spec
// §4.4: "duplicate messages do not reveal new evaluation points") and
// must be allowed even once the budget is otherwise exhausted.
func (b *SignatureBudget) AlreadySigned(message gf61.Elem) bool {
	_, ok := b.signedMessages[message]
	return ok
}

// Record consumes budget for message, unless message was already
// signed this epoch.
func (b *SignatureBudget) Record(message gf61.Elem) {
	if _, ok := b.signedMessages[message]; ok {
		return
	}
	b.signedMessages[message] = struct{}{}
	b.used++
}

// Remaining returns how many more distinct messages may be signed.
func (b *SignatureBudget) Remaining() int {
	r := b.MaxSignatures - b.used
	if r < 0 {
		return 0
	}
	return r
}

// Used returns how many distinct messages have been signed so far.
func (b *SignatureBudget) Used() int { return b.used }
