// Package trust computes Sybil-resistant node trust via personalized
// PageRank over the channel graph, and trust-weighted BFT acceptance
// (spec §4.9). Grounded on original_source/src/liun/overlay.py's
// PersonalizedPageRank and TrustWeightedBFT.
package trust

import (
	"sort"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/overlay"
)

// Damping is the PageRank teleport-avoidance factor (spec §4.9).
const Damping = 0.85

// Iterations is the fixed iteration count used instead of a
// convergence threshold, matching original_source's PersonalizedPageRank
// which runs a constant number of power-iteration steps rather than
// polling for convergence.
const Iterations = 20

// PersonalizedPageRank computes trust scores for every node in the
// graph snapshot from the perspective of source: nodes closer to
// source in the weighted channel graph accumulate higher trust, and
// Sybil clusters (subgraphs with few real edges back to source) decay
// toward zero rather than accumulating rank for free.
func PersonalizedPageRank(snap *overlay.Snapshot, source gf61.Elem) map[gf61.Elem]float64 {
	nodes := snap.Nodes()
	n := len(nodes)
	if n == 0 {
		return map[gf61.Elem]float64{}
	}

	rank := make(map[gf61.Elem]float64, n)
	for _, node := range nodes {
		rank[node] = 0
	}
	rank[source] = 1.0

	for iter := 0; iter < Iterations; iter++ {
		next := make(map[gf61.Elem]float64, n)
		for _, node := range nodes {
			next[node] = (1 - Damping) * indicator(node, source)
		}
		for _, node := range nodes {
			outW := snap.OutWeight(node)
			if outW == 0 {
				continue
			}
			share := Damping * rank[node] / outW
			for nb := range snap.Neighbors(node) {
				w := edgeWeight(snap, node, nb)
				next[nb] += share * w
			}
		}
		rank = next
	}
	return rank
}

func indicator(node, source gf61.Elem) float64 {
	if node == source {
		return 1.0
	}
	return 0.0
}

func edgeWeight(snap *overlay.Snapshot, a, b gf61.Elem) float64 {
	if w, ok := snap.Weights[[2]gf61.Elem{a, b}]; ok {
		return w
	}
	return 1.0
}

// RankedNodes returns node ids sorted by descending trust score, for
// callers that prefer high-trust participants (spec §4.9: "trust scores
// bias committee/witness selection toward well-connected, long-lived
// peers"). Nothing outside its tests calls it.
func RankedNodes(rank map[gf61.Elem]float64) []gf61.Elem {
	nodes := make([]gf61.Elem, 0, len(rank))
	for n := range rank {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if rank[nodes[i]] != rank[nodes[j]] {
			return rank[nodes[i]] > rank[nodes[j]]
		}
		return nodes[i] < nodes[j]
	})
	return nodes
}

// AcceptanceThreshold is the fraction of total trust weight that must
// vote to accept before a trust-weighted BFT decision passes (spec
// §4.9: reuses the classic 2/3 supermajority, but weighted by trust
// rather than by raw vote count so a Sybil swarm of low-trust nodes
// cannot outvote a small set of well-established ones).
const AcceptanceThreshold = 2.0 / 3.0

// Vote is one node's accept/reject ballot in a trust-weighted decision.
type Vote struct {
	NodeID gf61.Elem
	Accept bool
}

// WeightedAccept tallies accepting votes weighted by rank and reports
// whether that weight strictly clears AcceptanceThreshold of the
// TOTAL known trust — not just the trust of nodes that voted (spec
// §4.9: "returns true iff Sum_{a in attestations} trust[a] >
// (2/3) * Sum_all trust" — a tie at exactly 2/3 does not pass, and a
// minority of the network cannot swing a decision merely because
// everyone else abstained). Nodes absent from rank contribute zero
// weight (unknown voters cannot swing a decision).
func WeightedAccept(votes []Vote, rank map[gf61.Elem]float64) bool {
	var total float64
	for _, w := range rank {
		total += w
	}
	if total == 0 {
		return false
	}
	var accept float64
	for _, v := range votes {
		if v.Accept {
			accept += rank[v.NodeID]
		}
	}
	return accept > AcceptanceThreshold*total
}
