// Package epoch manages the DKG re-deal schedule, overlap window, and
// signature-budget-driven cutover (spec §4.10). Extends
// original_source/src/liun/dkg.py's EpochManager, which only tracks a
// linear DKG history, with the overlap/cutover/watchdog state machine
// SPEC_FULL.md requires.
package epoch

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/noospheer/Liun/internal/dkg"
	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/uss"
)

// OverlapFraction is the budget-consumption fraction at which a
// successor epoch's DKG begins while the current epoch remains valid
// (spec §4.10 watch_budget: "when budget_consumed >= 0.8 * budget_max").
const OverlapFraction = 0.8

// ErrDKGFailed reports that an epoch's DKG did not produce a usable
// combined polynomial (spec §7 DKGFailed).
var ErrDKGFailed = errors.New("epoch: dkg failed to produce combined shares")

// gracePeriodCacheSize bounds how many retired epochs are retained
// for verification during their grace period after cutover, using the
// same bounded-LRU idiom as the teacher's registry, at a cap of 32.
const gracePeriodCacheSize = 32

// Epoch is one signing polynomial's lifetime: its DKG run, the
// resulting per-node combined shares, verification points, and the
// signature budget consumed against it.
type Epoch struct {
	ID       uuid.UUID
	Degree   int
	Budget   *uss.SignatureBudget
	Shares   map[gf61.Elem]gf61.Elem // node_id -> combined signing share
	VPoints  map[gf61.Elem][]gf61.Point
	Frozen   bool
}

// Manager coordinates epoch lifecycle across a fixed committee: start,
// budget-triggered overlap, and cutover to the successor (spec §4.10).
type Manager struct {
	mu         sync.Mutex
	nodeIDs    []gf61.Elem
	current    *Epoch
	successor  *Epoch
	retired    *lru.Cache[uuid.UUID, *Epoch]
}

// NewManager constructs an epoch manager over a fixed node-id
// committee.
func NewManager(nodeIDs []gf61.Elem) *Manager {
	cache, _ := lru.New[uuid.UUID, *Epoch](gracePeriodCacheSize)
	return &Manager{nodeIDs: nodeIDs, retired: cache}
}

// StartEpoch runs DKG at threshold (contribution polynomials of degree
// threshold-1) and installs the result as the current epoch (spec §4.10
// start_epoch). degree does not reach the DKG; it sets the epoch's
// Degree and the budget and verification points derived from it. Fails with
// ErrDKGFailed if any node id ends up excluded such that the
// committee can no longer reach threshold.
func (m *Manager) StartEpoch(degree, threshold int) (*Epoch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := dkg.NewRun(m.nodeIDs, threshold)
	shares, err := run.Execute(true)
	if err != nil {
		return nil, err
	}
	survivors := len(m.nodeIDs) - len(run.Excluded())
	if survivors < threshold {
		return nil, ErrDKGFailed
	}

	vpoints, err := run.GenerateVerificationPoints(degree + 2)
	if err != nil {
		return nil, err
	}

	ep := &Epoch{
		ID:      uuid.New(),
		Degree:  degree,
		Budget:  uss.NewSignatureBudget(degree),
		Shares:  shares,
		VPoints: vpoints,
	}
	m.current = ep
	return ep, nil
}

// Current returns the active epoch, or nil if none has started.
func (m *Manager) Current() *Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// WatchBudget checks whether the current epoch's signature budget has
// crossed OverlapFraction and, if so and no overlap is already in
// progress, starts the successor epoch's DKG while current remains
// valid (spec §4.10 watch_budget).
func (m *Manager) WatchBudget(nextDegree, nextThreshold int) (started bool, err error) {
	m.mu.Lock()
	cur := m.current
	already := m.successor != nil
	m.mu.Unlock()

	if cur == nil || already {
		return false, nil
	}
	if float64(cur.Budget.Used()) < OverlapFraction*float64(cur.Budget.MaxSignatures) {
		return false, nil
	}

	run := dkg.NewRun(m.nodeIDs, nextThreshold)
	shares, err := run.Execute(true)
	if err != nil {
		return false, err
	}
	if len(m.nodeIDs)-len(run.Excluded()) < nextThreshold {
		return false, ErrDKGFailed
	}

	vpoints, err := run.GenerateVerificationPoints(nextDegree + 2)
	if err != nil {
		return false, err
	}

	succ := &Epoch{
		ID:      uuid.New(),
		Degree:  nextDegree,
		Budget:  uss.NewSignatureBudget(nextDegree),
		Shares:  shares,
		VPoints: vpoints,
	}

	m.mu.Lock()
	m.successor = succ
	m.mu.Unlock()
	return true, nil
}

// Cutover switches signing to the successor epoch (spec §4.10
// cutover): the old epoch is retired into the grace-period cache
// rather than discarded, so in-flight verifications against it still
// succeed until it ages out.
func (m *Manager) Cutover() (*Epoch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.successor == nil {
		return nil, errors.New("epoch: no successor ready for cutover")
	}
	old := m.current
	if old != nil {
		old.Frozen = true
		m.retired.Add(old.ID, old)
	}
	m.current = m.successor
	m.successor = nil
	return m.current, nil
}

// RetiredEpoch looks up a frozen epoch still inside its grace period,
// used by verify calls against signatures issued just before cutover.
func (m *Manager) RetiredEpoch(id uuid.UUID) (*Epoch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired.Get(id)
}

// InOverlap reports whether a successor epoch's DKG is currently
// running alongside the current epoch.
func (m *Manager) InOverlap() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successor != nil
}
