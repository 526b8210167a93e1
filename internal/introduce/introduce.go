// Package introduce implements multi-introducer peer introduction
// (spec §4.7): m mutual contacts each contribute a PSK component,
// XOR-combined into a fresh pairwise PSK with no topology dependence.
// Grounded on original_source/src/liun/overlay.py: PeerIntroduction,
// MutualContactFinder.
package introduce

import (
	"crypto/rand"
	"errors"
	"sort"

	"github.com/hashicorp/vault/sdk/helper/xor"
	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
	"github.com/noospheer/Liun/internal/overlay"
	"github.com/noospheer/Liun/internal/psk"
	"github.com/noospheer/Liun/internal/wire"
)

// MinIntroducers is the spec's minimum mutual-contact count (spec
// §4.7 inputs: "m >= 3 mutual contacts").
const MinIntroducers = 3

// ComponentBytes is the size of each introducer's uniform PSK
// component (spec §4.7 step 1: "samples a uniform 256-bit component").
const ComponentBytes = 32

// ErrNoIntroducers is returned when fewer than MinIntroducers mutual
// contacts exist, or when none of them delivers a component that opens
// (spec §4.7 Failure).
var ErrNoIntroducers = errors.New("introduce: no usable introducers")

// ErrInsufficientMutualContacts flags a find_mutual_contacts call
// below min_count (spec §4.8).
var ErrInsufficientMutualContacts = errors.New("introduce: insufficient mutual contacts")

// Finder locates mutual contacts between two peers in the channel
// graph and ranks them for introduction (spec §4.7, §4.8).
type Finder struct {
	Graph *overlay.Graph
}

// NewFinder wraps a channel graph for mutual-contact lookups.
func NewFinder(g *overlay.Graph) *Finder { return &Finder{Graph: g} }

// FindForPair returns up to 2*minCount mutual contacts between a and
// c, ranked by descending degree (mirrors MutualContactFinder.find_for_pair's
// "higher degree = more connected = more reliable" heuristic).
func (f *Finder) FindForPair(a, c gf61.Elem, minCount int) ([]gf61.Elem, error) {
	neighborsA := f.Graph.Neighbors(a)
	neighborsC := f.Graph.Neighbors(c)

	var mutual []gf61.Elem
	for n := range neighborsA {
		if _, ok := neighborsC[n]; ok {
			mutual = append(mutual, n)
		}
	}
	if len(mutual) < minCount {
		return nil, ErrInsufficientMutualContacts
	}
	sort.Slice(mutual, func(i, j int) bool {
		di, dj := f.Graph.Degree(mutual[i]), f.Graph.Degree(mutual[j])
		if di != dj {
			return di > dj
		}
		return mutual[i] < mutual[j]
	})
	limit := minCount * 2
	if limit > len(mutual) {
		limit = len(mutual)
	}
	return mutual[:limit], nil
}

// GenerateComponent samples one introducer's uniform PSK component
// (spec §4.7 step 1).
func GenerateComponent() ([]byte, error) {
	buf := make([]byte, ComponentBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CombineComponents XORs introducer components into PSK_AC (spec §4.7
// step 3), using the teacher's own hashicorp/vault xor helper (the
// same primitive it uses to combine public-key hash fingerprints in
// generate/server/server.go).
func CombineComponents(components [][]byte) ([]byte, error) {
	if len(components) == 0 {
		return nil, errors.New("introduce: need at least one PSK component")
	}
	result := make([]byte, len(components[0]))
	copy(result, components[0])
	for _, comp := range components[1:] {
		combined, err := xor.XORBytes(result, comp)
		if err != nil {
			return nil, err
		}
		result = combined
	}
	return result, nil
}

// ExpandToChannelPSK expands the XOR-combined component to full
// Liu-PSK length via the Toeplitz-style expander (spec §4.7 step 4).
func ExpandToChannelPSK(combined []byte, targetLen int) []byte {
	return psk.Expand(combined, targetLen)
}

// Session drives one introduction of A to C through a set of mutual
// introducers (spec §4.7).
type Session struct {
	Finder         *Finder
	MinIntroducers int
}

// NewSession constructs an introduction session over a channel graph.
func NewSession(g *overlay.Graph) *Session {
	return &Session{Finder: NewFinder(g), MinIntroducers: MinIntroducers}
}

// ComponentFetcher retrieves introducer's sealed PSK component
// envelope over its existing pairwise channel with the requester
// (spec §4.7 step 2): the round trip to the introducer is a
// test/production seam, but the returned envelope is always opened
// against ch before its component is trusted.
type ComponentFetcher func(introducer gf61.Elem, ch keychannel.Channel) (wire.Envelope, error)

// Introduce runs the introduction protocol between a and c: locates
// mutual contacts, fetches a MAC-authenticated PSK component from
// each over its already-open channel with a (channels, keyed by
// introducer id), and returns the resulting channel PSK. An introducer
// with no entry in channels, or whose envelope fails to open, is
// skipped exactly like an unreachable introducer (spec §4.7 step 2:
// "components travel MAC-authenticated exactly as every other
// inter-core exchange", spec §6.3).
func (s *Session) Introduce(a, c gf61.Elem, channels map[gf61.Elem]keychannel.Channel, fetch ComponentFetcher, targetLen int) ([]byte, error) {
	introducers, err := s.Finder.FindForPair(a, c, s.MinIntroducers)
	if err != nil {
		return nil, ErrNoIntroducers
	}

	var components [][]byte
	for _, introducer := range introducers {
		ch, ok := channels[introducer]
		if !ok {
			continue // no authenticated channel to this introducer, contributes nothing
		}
		env, err := fetch(introducer, ch)
		if err != nil {
			continue // an unreachable or dishonest introducer just contributes nothing
		}
		payload, err := wire.Open(ch, env)
		if err != nil {
			continue // forged or replayed component, discard like an unreachable introducer
		}
		components = append(components, wire.EncodeFieldElements(payload))
	}
	if len(components) == 0 {
		return nil, ErrNoIntroducers
	}

	combined, err := CombineComponents(components)
	if err != nil {
		return nil, err
	}
	return ExpandToChannelPSK(combined, targetLen), nil
}
