// Package overlay maintains the ChannelTable and ChannelGraph (spec
// §4.8): the set of a node's active KeyChannels and the (weak,
// view-only) adjacency graph of channels between peers gossiped over
// the network. Grounded on original_source/src/liun/liu_channel.py
// (ChannelTable) and original_source/src/liun/overlay.py (OverlayGraph,
// GraphMonitor).
package overlay

import (
	"math"
	"sync"

	"github.com/noospheer/Liun/internal/gf61"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"
)

// gossipEdgeCacheSize bounds how many recently-gossiped edge facts the
// graph remembers as "recently touched", mirroring the teacher's
// lru_size = 200 marker-registry cap (generate/server/server.go).
const gossipEdgeCacheSize = 200

// Graph is an undirected, weighted multigraph over node IDs (spec §3:
// ChannelGraph). Reads take an immutable snapshot; writers serialize
// via the internal mutex (spec §5 shared-resource policy).
type Graph struct {
	mu          sync.RWMutex
	adj         map[gf61.Elem]map[gf61.Elem]struct{}
	weights     map[[2]gf61.Elem]float64
	recentEdges *lru.Cache[[2]gf61.Elem, struct{}]
}

// NewGraph constructs an empty channel graph.
func NewGraph() *Graph {
	cache, _ := lru.New[[2]gf61.Elem, struct{}](gossipEdgeCacheSize)
	return &Graph{
		adj:         make(map[gf61.Elem]map[gf61.Elem]struct{}),
		weights:     make(map[[2]gf61.Elem]float64),
		recentEdges: cache,
	}
}

func edgeKey(a, b gf61.Elem) [2]gf61.Elem { return [2]gf61.Elem{a, b} }

// AddNode registers a node with no edges if it is not already present.
func (g *Graph) AddNode(id gf61.Elem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id gf61.Elem) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[gf61.Elem]struct{})
	}
}

// AddEdge records a (possibly re-weighted) channel between a and b.
func (g *Graph) AddEdge(a, b gf61.Elem, weight float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(a)
	g.addNodeLocked(b)
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	g.weights[edgeKey(a, b)] = weight
	g.weights[edgeKey(b, a)] = weight
	g.recentEdges.Add(edgeKey(a, b), struct{}{})
}

// RemoveEdge drops the channel between a and b.
func (g *Graph) RemoveEdge(a, b gf61.Elem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ns, ok := g.adj[a]; ok {
		delete(ns, b)
	}
	if ns, ok := g.adj[b]; ok {
		delete(ns, a)
	}
	delete(g.weights, edgeKey(a, b))
	delete(g.weights, edgeKey(b, a))
}

// ApplyGossipEdge folds in an edge fact learned via gossip (spec §9
// Open Question: "the core assumes nodes learn about distant edges via
// ITS-authenticated gossip, but no specific gossip protocol is
// mandated"). Callers are responsible for authenticating the gossip
// message before calling this; the graph itself does not re-verify.
func (g *Graph) ApplyGossipEdge(a, b gf61.Elem, weight float64) {
	g.AddEdge(a, b, weight)
}

// Neighbors returns a's neighbor set as of the current snapshot.
func (g *Graph) Neighbors(a gf61.Elem) map[gf61.Elem]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[gf61.Elem]struct{}, len(g.adj[a]))
	for n := range g.adj[a] {
		out[n] = struct{}{}
	}
	return out
}

// Degree returns the number of channels a has.
func (g *Graph) Degree(a gf61.Elem) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[a])
}

// OutWeight sums the weights of a's outgoing edges.
func (g *Graph) OutWeight(a gf61.Elem) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total float64
	for n := range g.adj[a] {
		total += g.weights[edgeKey(a, n)]
	}
	return total
}

// Weight returns the weight of edge (a, b), or 1.0 if unset.
func (g *Graph) Weight(a, b gf61.Elem) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if w, ok := g.weights[edgeKey(a, b)]; ok {
		return w
	}
	return 1.0
}

// Nodes returns all known node ids.
func (g *Graph) Nodes() []gf61.Elem {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]gf61.Elem, 0, len(g.adj))
	for n := range g.adj {
		out = append(out, n)
	}
	return out
}

// NNodes returns the number of known nodes.
func (g *Graph) NNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj)
}

// Snapshot is an immutable copy of the graph, used by Trust
// computations so they never observe mutations in progress (spec §9
// Design Notes: "Trust computation must not observe graph mutations in
// progress").
type Snapshot struct {
	Adj     map[gf61.Elem]map[gf61.Elem]struct{}
	Weights map[[2]gf61.Elem]float64
}

// Snap takes a deep, point-in-time copy of the graph.
func (g *Graph) Snap() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj := make(map[gf61.Elem]map[gf61.Elem]struct{}, len(g.adj))
	for n, ns := range g.adj {
		cp := make(map[gf61.Elem]struct{}, len(ns))
		for x := range ns {
			cp[x] = struct{}{}
		}
		adj[n] = cp
	}
	weights := make(map[[2]gf61.Elem]float64, len(g.weights))
	for k, v := range g.weights {
		weights[k] = v
	}
	return &Snapshot{Adj: adj, Weights: weights}
}

func (s *Snapshot) Neighbors(a gf61.Elem) map[gf61.Elem]struct{} { return s.Adj[a] }

func (s *Snapshot) OutWeight(a gf61.Elem) float64 {
	var total float64
	for n := range s.Adj[a] {
		total += s.Weights[edgeKey(a, n)]
	}
	return total
}

func (s *Snapshot) Nodes() []gf61.Elem {
	out := make([]gf61.Elem, 0, len(s.Adj))
	for n := range s.Adj {
		out = append(out, n)
	}
	return out
}

// FindMutualContacts returns peers in the intersection of a's and c's
// neighborhoods, sorted by descending channel weight (a proxy for
// channel age when explicit age tracking is unavailable — see
// original_source/src/liun/overlay.py: MutualContactFinder, which
// falls back to degree ranking under the same circumstance). Fails
// (returns nil) if fewer than minCount mutual contacts exist; callers
// surface InsufficientMutualContacts.
func (g *Graph) FindMutualContacts(a, c gf61.Elem, minCount int) []gf61.Elem {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var mutual []gf61.Elem
	for n := range g.adj[a] {
		if _, ok := g.adj[c][n]; ok {
			mutual = append(mutual, n)
		}
	}
	if len(mutual) < minCount {
		return nil
	}
	slices.SortFunc(mutual, func(x, y gf61.Elem) int {
		wx := g.weights[edgeKey(a, x)]
		wy := g.weights[edgeKey(a, y)]
		switch {
		case wx > wy:
			return -1
		case wx < wy:
			return 1
		default:
			// fall back to degree, matching MutualContactFinder's
			// secondary ranking when weight/age data ties.
			return len(g.adj[y]) - len(g.adj[x])
		}
	})
	return mutual
}

// Health summarizes GraphMonitor.check() (spec §4.8).
type Health struct {
	Connected          bool
	MinDegree          int
	TargetDegree       int
	UnderconnectedIDs  []gf61.Elem
	NNodes             int
}

// Monitor exposes graph-health diagnostics.
type Monitor struct {
	Graph *Graph
	// Dense requests the DKG-dense target (>= 2n/3) instead of the
	// baseline ceil(log2 n) + 1, never below 3 (spec §4.8).
	Dense bool
}

// TargetDegree implements spec §4.8's connectivity target.
func (m *Monitor) TargetDegree() int {
	n := m.Graph.NNodes()
	if n <= 1 {
		return 0
	}
	if m.Dense {
		t := (2 * n) / 3
		if t < 1 {
			t = 1
		}
		return t
	}
	base := int(math.Ceil(math.Log2(float64(n)))) + 1
	if base < 3 {
		base = 3
	}
	return base
}

// Check computes graph health, mirroring GraphMonitor's is_connected,
// underconnected_nodes.
func (m *Monitor) Check() Health {
	nodes := m.Graph.Nodes()
	target := m.TargetDegree()
	var under []gf61.Elem
	minDeg := -1
	for _, n := range nodes {
		d := m.Graph.Degree(n)
		if minDeg == -1 || d < minDeg {
			minDeg = d
		}
		if d < target {
			under = append(under, n)
		}
	}
	if minDeg == -1 {
		minDeg = 0
	}
	return Health{
		Connected:         m.isConnected(nodes),
		MinDegree:         minDeg,
		TargetDegree:      target,
		UnderconnectedIDs: under,
		NNodes:            len(nodes),
	}
}

func (m *Monitor) isConnected(nodes []gf61.Elem) bool {
	if len(nodes) == 0 {
		return true
	}
	visited := make(map[gf61.Elem]struct{})
	stack := []gf61.Elem{nodes[0]}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		for nb := range m.Graph.Neighbors(n) {
			if _, ok := visited[nb]; !ok {
				stack = append(stack, nb)
			}
		}
	}
	return len(visited) == len(nodes)
}
