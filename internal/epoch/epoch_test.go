package epoch

import (
	"testing"

	"github.com/noospheer/Liun/internal/gf61"
)

func committee() []gf61.Elem {
	return []gf61.Elem{1, 2, 3, 4, 5, 6, 7}
}

func TestStartEpochInstallsShares(t *testing.T) {
	m := NewManager(committee())
	ep, err := m.StartEpoch(10, 5)
	if err != nil {
		t.Fatalf("start epoch: %v", err)
	}
	if len(ep.Shares) != len(committee()) {
		t.Fatalf("expected shares for all nodes, got %d", len(ep.Shares))
	}
	if m.Current() != ep {
		t.Fatalf("current epoch not installed")
	}
	for _, id := range committee() {
		pts, ok := ep.VPoints[id]
		if !ok || len(pts) != ep.Degree+2 {
			t.Fatalf("expected %d verification points for node %d, got %d", ep.Degree+2, id, len(pts))
		}
	}
}

func TestWatchBudgetTriggersOverlapAt80Percent(t *testing.T) {
	m := NewManager(committee())
	ep, err := m.StartEpoch(10, 5) // budget max = 5
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := gf61.Elem(1); i <= 3; i++ {
		ep.Budget.Record(i)
	}
	// 3/5 = 0.6, below 0.8 threshold.
	started, err := m.WatchBudget(10, 5)
	if err != nil {
		t.Fatalf("watch budget: %v", err)
	}
	if started {
		t.Fatalf("overlap should not start below 80%% budget usage")
	}

	ep.Budget.Record(4)
	// 4/5 = 0.8, meets threshold.
	started, err = m.WatchBudget(10, 5)
	if err != nil {
		t.Fatalf("watch budget: %v", err)
	}
	if !started {
		t.Fatalf("overlap should start at 80%% budget usage")
	}
	if !m.InOverlap() {
		t.Fatalf("expected InOverlap true")
	}
}

func TestCutoverRetiresOldEpochWithGracePeriod(t *testing.T) {
	m := NewManager(committee())
	old, _ := m.StartEpoch(10, 5)
	for i := gf61.Elem(1); i <= 4; i++ {
		old.Budget.Record(i)
	}
	if _, err := m.WatchBudget(10, 5); err != nil {
		t.Fatalf("watch budget: %v", err)
	}

	newEp, err := m.Cutover()
	if err != nil {
		t.Fatalf("cutover: %v", err)
	}
	if newEp == old {
		t.Fatalf("cutover should install a distinct successor epoch")
	}
	if !old.Frozen {
		t.Fatalf("old epoch should be frozen after cutover")
	}
	if _, ok := m.RetiredEpoch(old.ID); !ok {
		t.Fatalf("old epoch should remain queryable during grace period")
	}
}

func TestCutoverFailsWithoutSuccessor(t *testing.T) {
	m := NewManager(committee())
	if _, err := m.StartEpoch(10, 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Cutover(); err == nil {
		t.Fatalf("expected error cutting over with no successor ready")
	}
}
