package ppc

import "sync/atomic"

// GuestEvent is a bit position in a vCPU's pending-event bitmap: conditions
// the trap loop must act on before resuming the guest, distinct from
// VPIC-delivered interrupts (an external IRQ is itself just one event bit).
type GuestEvent uint32

const (
	EventExternalInt GuestEvent = iota
	EventDecrementer
	EventFIT
	EventWatchdog
	EventDoorbell
	EventCriticalDoorbell
	EventMachineCheck
	EventStop // partition-stop requested for this vCPU
	eventCount
)

// ShadowSPRs holds the handful of Book-E special registers that e500mc
// does not provide a guest (G) variant of, so the hypervisor must bank and
// restore them itself across every guest entry/exit instead of letting
// hardware context-switch them automatically.
type ShadowSPRs struct {
	SRR0, SRR1   uint64
	CSRR0, CSRR1 uint64
	MCSRR0, MCSRR1 uint64
	DSRR0, DSRR1 uint64
	ESR, DEAR    uint64
	MCSR         uint64
}

// GuestCPU is the complete per-vCPU state the hypervisor maintains for one
// guest core: its TLB0/TLB1 views, shadow register bank, pending-event
// bitmap, and identity (which partition/vCPU-within-partition it is, and
// which physical core it is pinned to).
type GuestCPU struct {
	LPID     LPID
	VCPUID   int
	PhysCore int

	TLB0 *TLB0
	TLB1 *TLB1

	Shadow ShadowSPRs
	PID    PID
	MSR    uint64

	events atomic.Uint64

	napping atomic.Bool
}

// NewGuestCPU returns a fresh vCPU state for vcpuID within partition lpid,
// pinned to physCore, sharing gphys (the partition's guest-physical page
// table) and writing real TLB1 entries through hw.
func NewGuestCPU(lpid LPID, vcpuID, physCore int, gphys *GuestPhys, hw TLB1Writer) *GuestCPU {
	return &GuestCPU{
		LPID:     lpid,
		VCPUID:   vcpuID,
		PhysCore: physCore,
		TLB0:     NewTLB0(),
		TLB1:     NewTLB1(lpid, gphys, hw),
	}
}

// Raise sets a pending event bit. It does not wake a napping vCPU; callers
// follow it with Wake where that is needed. Safe to call from any goroutine (another vCPU delivering a doorbell, the
// timer goroutine, VPIC delivery).
func (c *GuestCPU) Raise(ev GuestEvent) {
	c.events.Or(1 << uint(ev))
}

// Clear removes a pending event bit once the trap loop has acted on it.
func (c *GuestCPU) Clear(ev GuestEvent) {
	c.events.And(^uint64(1 << uint(ev)))
}

// Pending reports which event bits are currently set.
func (c *GuestCPU) Pending() uint64 {
	return c.events.Load()
}

// Has reports whether a specific event bit is set.
func (c *GuestCPU) Has(ev GuestEvent) bool {
	return c.events.Load()&(1<<uint(ev)) != 0
}

// Nap marks the vCPU as parked in a low-power wait (sync_nap), returning
// true if it actually transitioned from awake and false if it was already
// napping. It does not look at the pending-event bitmap.
func (c *GuestCPU) Nap() bool {
	return c.napping.CompareAndSwap(false, true)
}

// Wake clears the napping flag, returning true if the vCPU was actually
// napping (so the caller knows whether a physical wake kick is needed).
func (c *GuestCPU) Wake() bool {
	return c.napping.CompareAndSwap(true, false)
}

// IsNapping reports whether the vCPU is currently parked.
func (c *GuestCPU) IsNapping() bool {
	return c.napping.Load()
}
