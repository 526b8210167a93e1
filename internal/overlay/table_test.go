package overlay

import "testing"

func TestOpenCloseChannel(t *testing.T) {
	tbl := NewTable()
	tbl.OpenChannel(1, make([]byte, 512))
	if _, ok := tbl.Get(1); !ok {
		t.Fatalf("expected entry for peer 1")
	}
	if err := tbl.CloseChannel(1); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := tbl.Get(1); ok {
		t.Fatalf("expected entry removed after close")
	}
}

func TestCloseUnknownPeer(t *testing.T) {
	tbl := NewTable()
	if err := tbl.CloseChannel(99); err != ErrUnknownPeer {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestTouchUpdatesLastUsed(t *testing.T) {
	tbl := NewTable()
	tbl.OpenChannel(1, make([]byte, 512))
	entry, _ := tbl.Get(1)
	before := entry.LastUsed
	if err := tbl.Touch(1); err != nil {
		t.Fatalf("touch: %v", err)
	}
	entry, _ = tbl.Get(1)
	if entry.LastUsed <= before {
		t.Fatalf("expected LastUsed to advance")
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	tbl := NewTable()
	entry := tbl.OpenChannel(1, make([]byte, 512))
	_ = entry.Channel.Close() // drift out from under the table
	drifted := tbl.Reconcile()
	if len(drifted) != 1 || drifted[0] != 1 {
		t.Fatalf("expected drift detected for peer 1, got %v", drifted)
	}
}
