package keychannel

import (
	"bytes"
	"testing"

	"github.com/noospheer/Liun/internal/gf61"
)

func testPSK() []byte {
	psk := make([]byte, 512)
	for i := range psk {
		psk[i] = byte(i * 7)
	}
	return psk
}

func TestBothEndpointsAgreeOnKeyBytes(t *testing.T) {
	psk := testPSK()
	a := Open(1, psk)
	b := Open(2, psk) // peer id differs, PSK identical: same derived stream

	ba, err := a.GenerateKeyBytes(64)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	bb, err := b.GenerateKeyBytes(64)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if !bytes.Equal(ba, bb) {
		t.Fatalf("endpoints diverged on identical PSK")
	}
}

func TestMACRoundtrip(t *testing.T) {
	psk := testPSK()
	a := Open(1, psk)
	b := Open(2, psk)

	data := []gf61.Elem{1, 2, 3, 4, 5}
	tag, err := a.MAC(data, 0)
	if err != nil {
		t.Fatalf("mac: %v", err)
	}
	ok, err := b.VerifyMAC(data, tag, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("mac did not verify across endpoints")
	}
}

func TestMACForgeryRejected(t *testing.T) {
	psk := testPSK()
	a := Open(1, psk)
	data := []gf61.Elem{9, 9, 9}
	tag, _ := a.MAC(data, 0)
	ok, err := a.VerifyMAC(data, gf61.Add(tag, 1), 1) // wrong tag, fresh run
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("forged tag verified")
	}
}

func TestRunIndexReplayRejected(t *testing.T) {
	psk := testPSK()
	a := Open(1, psk)
	data := []gf61.Elem{1}
	tag0, _ := a.MAC(data, 0)
	if ok, err := a.VerifyMAC(data, tag0, 0); err != nil || !ok {
		t.Fatalf("first verify should succeed, ok=%v err=%v", ok, err)
	}
	tagReplay, _ := a.MAC(data, 0)
	if _, err := a.VerifyMAC(data, tagReplay, 0); err != ErrRunIndexReplay {
		t.Fatalf("replay at same run_idx should be rejected, got %v", err)
	}
}

func TestClosedChannelFailsEverything(t *testing.T) {
	a := Open(1, testPSK())
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.GenerateKeyBytes(8); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := a.MAC([]gf61.Elem{1}, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.AdvanceRun(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAdvanceRunMonotonic(t *testing.T) {
	a := Open(1, testPSK())
	if a.RunIndex() != 0 {
		t.Fatalf("expected initial run index 0")
	}
	_ = a.AdvanceRun()
	_ = a.AdvanceRun()
	if a.RunIndex() != 2 {
		t.Fatalf("expected run index 2, got %d", a.RunIndex())
	}
}
