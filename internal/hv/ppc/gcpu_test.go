package ppc

import "testing"

func TestGuestCPUEventBitmap(t *testing.T) {
	g := NewGuestCPU(1, 0, 0, NewGuestPhys(), &fakeTLB1Writer{})

	g.Raise(EventDecrementer)
	g.Raise(EventDoorbell)
	if !g.Has(EventDecrementer) || !g.Has(EventDoorbell) {
		t.Fatalf("Pending() = %#x, expected both EventDecrementer and EventDoorbell set", g.Pending())
	}
	if g.Has(EventFIT) {
		t.Fatalf("Has(EventFIT): expected false, nothing raised it")
	}

	g.Clear(EventDecrementer)
	if g.Has(EventDecrementer) {
		t.Fatalf("Has(EventDecrementer) after Clear: expected false")
	}
	if !g.Has(EventDoorbell) {
		t.Fatalf("Clear(EventDecrementer) must not disturb EventDoorbell")
	}
}

func TestGuestCPUNapWake(t *testing.T) {
	g := NewGuestCPU(1, 0, 0, NewGuestPhys(), &fakeTLB1Writer{})

	if !g.Nap() {
		t.Fatalf("Nap() on an awake vCPU: expected true")
	}
	if g.Nap() {
		t.Fatalf("Nap() on an already-napping vCPU: expected false (no double transition)")
	}
	if !g.IsNapping() {
		t.Fatalf("IsNapping(): expected true")
	}

	if !g.Wake() {
		t.Fatalf("Wake() on a napping vCPU: expected true")
	}
	if g.Wake() {
		t.Fatalf("Wake() on an already-awake vCPU: expected false")
	}
	if g.IsNapping() {
		t.Fatalf("IsNapping() after Wake: expected false")
	}
}
