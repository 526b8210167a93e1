package node

import (
	"testing"

	"github.com/noospheer/Liun/internal/bootstrap"
	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/introduce"
	"github.com/noospheer/Liun/internal/keychannel"
	"github.com/noospheer/Liun/internal/uss"
	"github.com/noospheer/Liun/internal/wire"
)

func TestBootstrapOpensChannels(t *testing.T) {
	n := New(1, []gf61.Elem{1, 2, 3})
	var candidates []bootstrap.Candidate
	for i := gf61.Elem(100); i < 125; i++ {
		candidates = append(candidates, bootstrap.Candidate{PeerID: i, Jurisdiction: "j", RouteClass: "r"})
	}
	opened, err := n.Bootstrap(candidates, 20)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(opened) == 0 {
		t.Fatalf("expected at least one channel opened")
	}
	if n.Graph.Degree(1) != len(opened) {
		t.Fatalf("graph degree should match opened channel count")
	}
}

func TestAdvanceEpochAndSign(t *testing.T) {
	committee := []gf61.Elem{1, 2, 3, 4, 5, 6, 7}
	nodes := make(map[gf61.Elem]*Node, len(committee))
	for _, id := range committee {
		nodes[id] = New(id, committee)
	}

	// All nodes share the same epoch manager state in this test by
	// running advance_epoch independently against identical DKG inputs
	// is not realistic (DKG is randomized); instead drive one node's
	// manager and reuse its epoch id semantics via the manager itself.
	n := nodes[1]
	epID, err := n.AdvanceEpoch(6, 4)
	if err != nil {
		t.Fatalf("advance epoch: %v", err)
	}
	if epID.String() == "" {
		t.Fatalf("expected non-empty epoch id")
	}

	sigma, err := n.Sign(42, committee)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_ = sigma
}

func TestAdvanceEpochAndVerify(t *testing.T) {
	committee := []gf61.Elem{1, 2, 3, 4, 5, 6, 7}
	n := New(1, committee)
	epID, err := n.AdvanceEpoch(6, 4)
	if err != nil {
		t.Fatalf("advance epoch: %v", err)
	}

	sigma, err := n.Sign(42, committee)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// A lone partial signature is not the full threshold signature, but
	// verification against this node's own private points must still be
	// a real (non-vacuous) check that rejects it.
	ok, insufficient, err := n.Verify(epID, 42, sigma)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if insufficient {
		t.Fatalf("expected sufficient verification points after advance_epoch")
	}
	if ok {
		t.Fatalf("a lone partial signature should not verify as the combined signature")
	}

	if cur := n.Epochs.Current(); cur.ID != epID {
		t.Fatalf("epoch mismatch")
	}

	// A genuine threshold-combined signature, built from every
	// committee member's share, must verify true against node 1's
	// private points.
	ep := n.Epochs.Current()
	var partials []gf61.Elem
	for _, id := range committee {
		signer := uss.NewPartialSigner(id, ep.Shares[id], nil)
		p, err := signer.PartialSign(42, committee)
		if err != nil {
			t.Fatalf("partial sign %d: %v", id, err)
		}
		partials = append(partials, p)
	}
	combined, err := uss.Combine(partials, 4)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	ok2, insufficient2, err := n.Verify(epID, 42, combined)
	if err != nil {
		t.Fatalf("verify combined: %v", err)
	}
	if insufficient2 {
		t.Fatalf("expected sufficient verification points")
	}
	if !ok2 {
		t.Fatalf("expected genuine combined signature to verify")
	}
}

func TestSignWithoutEpochFails(t *testing.T) {
	n := New(1, []gf61.Elem{1, 2, 3})
	if _, err := n.Sign(1, []gf61.Elem{1, 2, 3}); err != ErrNoActiveEpoch {
		t.Fatalf("expected ErrNoActiveEpoch, got %v", err)
	}
}

func TestResolveDisputeRequiresReports(t *testing.T) {
	n := New(1, []gf61.Elem{1, 2, 3})
	if _, _, err := n.ResolveDispute(1, 2, nil); err != ErrDisputeUnresolvable {
		t.Fatalf("expected ErrDisputeUnresolvable, got %v", err)
	}
}

func TestResolveDisputeWithAuditKeyIssuesToken(t *testing.T) {
	n := New(1, []gf61.Elem{1, 2, 3})
	n.Trust = map[gf61.Elem]float64{10: 1.0}
	n.AuditKey = []byte("test-signing-key-material")

	reports := []uss.VerifierReport{{VerifierID: 10, Accepted: true}}
	verdict, token, err := n.ResolveDispute(5, 6, reports)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if verdict != "valid" {
		t.Fatalf("expected valid verdict, got %s", verdict)
	}
	if token == "" {
		t.Fatalf("expected non-empty attestation token")
	}
}

func TestIntroduceToRequiresMutualContacts(t *testing.T) {
	n := New(1, []gf61.Elem{1, 2, 3})
	fetch := func(introducer gf61.Elem, ch keychannel.Channel) (wire.Envelope, error) {
		comp, err := introduce.GenerateComponent()
		if err != nil {
			return wire.Envelope{}, err
		}
		return wire.Seal(ch, introducer, n.ID, ch.RunIndex(), wire.IntroComponent, wire.DecodeFieldElements(comp))
	}
	if _, err := n.IntroduceTo(2, fetch, 256); err != introduce.ErrNoIntroducers {
		t.Fatalf("expected ErrNoIntroducers, got %v", err)
	}
}
