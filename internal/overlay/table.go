package overlay

import (
	"errors"
	"sync"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
)

// ErrUnknownPeer is returned by table operations on a peer with no
// entry.
var ErrUnknownPeer = errors.New("overlay: unknown peer")

// TableEntry is one ChannelTable row (spec §4.8): a peer's channel
// status, last-used marker, and a reference to its KeyChannel.
type TableEntry struct {
	PeerID   gf61.Elem
	Status   keychannel.Status
	LastUsed uint64 // logical clock tick, not wall time (spec §9: no wall-clock dependency in the core)
	Channel  keychannel.Channel
}

// Table is the per-node ChannelTable, a thin wrapper over
// internal/keychannel that Overlay uses to track open channels (spec
// §4.8: "open_channel(peer, psk) / close_channel(peer) — thin wrapper
// over C3"). Grounded on
// original_source/src/liun/liu_channel.py: ChannelTable.
type Table struct {
	mu      sync.Mutex
	entries map[gf61.Elem]*TableEntry
	clock   uint64
}

// NewTable constructs an empty channel table.
func NewTable() *Table {
	return &Table{entries: make(map[gf61.Elem]*TableEntry)}
}

// OpenChannel opens a Simulated key channel to peer using psk and
// records it as active.
func (t *Table) OpenChannel(peer gf61.Elem, psk []byte) *TableEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock++
	ch := keychannel.Open(peer, psk)
	entry := &TableEntry{PeerID: peer, Status: keychannel.StatusActive, LastUsed: t.clock, Channel: ch}
	t.entries[peer] = entry
	return entry
}

// CloseChannel closes and removes a peer's channel entry.
func (t *Table) CloseChannel(peer gf61.Elem) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[peer]
	if !ok {
		return ErrUnknownPeer
	}
	if err := entry.Channel.Close(); err != nil {
		return err
	}
	entry.Status = keychannel.StatusClosed
	delete(t.entries, peer)
	return nil
}

// Touch bumps a peer's last-used marker, called on every successful
// send/receive so idle channels can be distinguished from active ones.
func (t *Table) Touch(peer gf61.Elem) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[peer]
	if !ok {
		return ErrUnknownPeer
	}
	t.clock++
	entry.LastUsed = t.clock
	return nil
}

// Get returns the entry for peer, if any.
func (t *Table) Get(peer gf61.Elem) (*TableEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peer]
	return e, ok
}

// Peers returns all known peer ids.
func (t *Table) Peers() []gf61.Elem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]gf61.Elem, 0, len(t.entries))
	for p := range t.entries {
		out = append(out, p)
	}
	return out
}

// Reconcile checks the invariant of spec §4.8 ("for every active
// entry in ChannelTable, the referenced KeyChannel's state is
// active"): any entry whose channel has drifted to idle/closed is
// downgraded in the table so Overlay can schedule reintroduction.
func (t *Table) Reconcile() []gf61.Elem {
	t.mu.Lock()
	defer t.mu.Unlock()
	var drifted []gf61.Elem
	for peer, entry := range t.entries {
		actual := entry.Channel.Status()
		if entry.Status == keychannel.StatusActive && actual != keychannel.StatusActive {
			entry.Status = actual
			drifted = append(drifted, peer)
		}
	}
	return drifted
}
