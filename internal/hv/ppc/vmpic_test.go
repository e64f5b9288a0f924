package ppc

import "testing"

type fakeVMPICBackend struct {
	masked map[int]bool
	eoi    []int
}

func newFakeVMPICBackend() *fakeVMPICBackend {
	return &fakeVMPICBackend{masked: make(map[int]bool)}
}

func (f *fakeVMPICBackend) SetMask(irq int, masked bool)        { f.masked[irq] = masked }
func (f *fakeVMPICBackend) SetDestination(irq int, physCPU uint32) {}
func (f *fakeVMPICBackend) EOIHardware(irq int)                  { f.eoi = append(f.eoi, irq) }

func TestVMPICAssignAndMask(t *testing.T) {
	hw := newFakeVMPICBackend()
	m := NewVMPIC(8, hw)
	handle := m.Assign(1, 3)

	if err := m.SetMask(1, handle, true); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	if !hw.masked[3] {
		t.Fatalf("expected backend to observe irq 3 masked")
	}

	if err := m.SetMask(2, handle, true); err != ErrIRQNotOwned {
		t.Fatalf("SetMask from a non-owning partition: err = %v, want ErrIRQNotOwned", err)
	}
}

func TestVMPICClaimAccept(t *testing.T) {
	hw := newFakeVMPICBackend()
	m := NewVMPIC(4, hw)
	m.Assign(1, 0)
	m.ConfigureStatic(0, true, ClaimActionAccept)

	if err := m.Claim(2, 0); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	owner, ready := m.Transfer(0)
	if !ready || owner != 2 {
		t.Fatalf("Transfer after ClaimActionAccept = %v, %v, want 2, true", owner, ready)
	}
}

func TestVMPICClaimNotifyRequiresRelease(t *testing.T) {
	hw := newFakeVMPICBackend()
	m := NewVMPIC(4, hw)
	m.Assign(1, 0)
	m.ConfigureStatic(0, true, ClaimActionNotify)

	if err := m.Claim(2, 0); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, ready := m.Transfer(0); ready {
		t.Fatalf("Transfer before Release: expected not ready")
	}

	if err := m.Release(1, 0); err != nil {
		t.Fatalf("Release: %v", err)
	}
	owner, ready := m.Transfer(0)
	if !ready || owner != 2 {
		t.Fatalf("Transfer after Release = %v, %v, want 2, true", owner, ready)
	}
}

func TestVMPICClaimNotClaimable(t *testing.T) {
	hw := newFakeVMPICBackend()
	m := NewVMPIC(4, hw)
	m.Assign(1, 0)
	m.ConfigureStatic(0, false, ClaimActionNone)

	if err := m.Claim(2, 0); err != ErrIRQNotClaimable {
		t.Fatalf("Claim on a non-claimable irq: err = %v, want ErrIRQNotClaimable", err)
	}
}
