package ppc

import (
	"errors"
	"sync"
)

// ErrIRQNotOwned is returned when a partition operates on a VMPIC
// interrupt it has not been given a handle to.
var ErrIRQNotOwned = errors.New("ppc: interrupt handle not owned by this partition")

// ErrIRQNotClaimable is returned by Claim when the interrupt was not
// configured as claimable, or when its claim action is ClaimActionNone.
var ErrIRQNotClaimable = errors.New("ppc: interrupt is not claimable")

// ClaimAction mirrors the original claim_action field: what the owning
// partition wants to happen when another partition requests ownership of
// one of its claimable interrupts.
type ClaimAction uint8

const (
	// ClaimActionNone: the IRQ cannot be transferred away at all.
	ClaimActionNone ClaimAction = iota
	// ClaimActionAccept: transfer proceeds immediately once requested.
	ClaimActionAccept
	// ClaimActionNotify: the current owner is notified (via its error
	// event queue) and must explicitly release the interrupt before
	// transfer completes.
	ClaimActionNotify
)

// vmpicInterrupt is a physical interrupt source routed through the real
// hardware PIC but owned, at any moment, by at most one partition. Unlike
// a VPIC virtual IRQ, this represents a real device's line.
type vmpicInterrupt struct {
	mu sync.Mutex

	owner       LPID
	hasOwner    bool
	claimable   bool
	claimAction ClaimAction

	// pendingClaimant is set while a Claim from a different partition is
	// outstanding and awaiting the current owner's release.
	pendingClaimant LPID
	hasPending      bool

	config   VPICTrigger
	priority uint8
	masked   bool
}

// VMPIC wraps the single real hardware PIC and multiplexes its physical
// interrupt sources across partitions via a claim/transfer protocol,
// alongside each partition's own per-guest handle table.
type VMPIC struct {
	hw   VMPICBackend
	ints []vmpicInterrupt

	mu      sync.Mutex
	handles map[LPID]map[uint32]int // partition lpid -> guest handle -> physical irq index
	nextH   map[LPID]uint32
}

// VMPICBackend is the real hardware PIC control surface VMPIC drives.
// Implemented by the board's interrupt controller driver; stubbed out in
// tests.
type VMPICBackend interface {
	SetMask(irq int, masked bool)
	SetDestination(irq int, physCPU uint32)
	EOIHardware(irq int)
}

// NewVMPIC returns a VMPIC multiplexing nirqs physical interrupt sources
// through hw.
func NewVMPIC(nirqs int, hw VMPICBackend) *VMPIC {
	return &VMPIC{
		hw:      hw,
		ints:    make([]vmpicInterrupt, nirqs),
		handles: make(map[LPID]map[uint32]int),
		nextH:   make(map[LPID]uint32),
	}
}

// ConfigureStatic assigns a physical interrupt's claimability at system
// configuration time (from the device tree), before any partition is
// running.
func (m *VMPIC) ConfigureStatic(irq int, claimable bool, action ClaimAction) {
	i := &m.ints[irq]
	i.mu.Lock()
	i.claimable = claimable
	i.claimAction = action
	i.mu.Unlock()
}

// Assign grants irq to partition lpid as its initial owner (static
// configuration-time assignment, not a runtime claim) and returns the
// guest-visible handle for it.
func (m *VMPIC) Assign(lpid LPID, irq int) uint32 {
	i := &m.ints[irq]
	i.mu.Lock()
	i.owner = lpid
	i.hasOwner = true
	i.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[lpid] == nil {
		m.handles[lpid] = make(map[uint32]int)
	}
	h := m.nextH[lpid]
	m.nextH[lpid] = h + 1
	m.handles[lpid][h] = irq
	return h
}

func (m *VMPIC) resolve(lpid LPID, handle uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	irq, ok := m.handles[lpid][handle]
	if !ok {
		return 0, ErrIRQNotOwned
	}
	return irq, nil
}

// SetMask masks or unmasks the interrupt behind handle, on behalf of lpid.
func (m *VMPIC) SetMask(lpid LPID, handle uint32, masked bool) error {
	irq, err := m.resolve(lpid, handle)
	if err != nil {
		return err
	}
	i := &m.ints[irq]
	i.mu.Lock()
	owner, hasOwner := i.owner, i.hasOwner
	i.masked = masked
	i.mu.Unlock()
	if !hasOwner || owner != lpid {
		return ErrIRQNotOwned
	}
	m.hw.SetMask(irq, masked)
	return nil
}

// EOI signals end-of-interrupt for handle to the real hardware PIC.
func (m *VMPIC) EOI(lpid LPID, handle uint32) error {
	irq, err := m.resolve(lpid, handle)
	if err != nil {
		return err
	}
	m.hw.EOIHardware(irq)
	return nil
}

// Claim requests ownership of a claimable interrupt currently owned by
// another partition, per the claim/transfer protocol. If the interrupt's
// claimAction is ClaimActionAccept, ownership transfers immediately. If
// ClaimActionNotify, the claim
// is recorded as pending and the caller must poll or wait for the prior
// owner to call Release before the transfer completes (Transfer reports
// whether it is now ready).
func (m *VMPIC) Claim(lpid LPID, irq int) error {
	i := &m.ints[irq]
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.claimable {
		return ErrIRQNotClaimable
	}
	if i.hasOwner && i.owner == lpid {
		return nil
	}

	switch i.claimAction {
	case ClaimActionAccept:
		i.owner = lpid
		i.hasOwner = true
		i.hasPending = false
		return nil
	case ClaimActionNotify:
		i.pendingClaimant = lpid
		i.hasPending = true
		return nil
	default:
		return ErrIRQNotClaimable
	}
}

// Release gives up ownership of irq, completing any pending claim from
// ConfigureStatic's ClaimActionNotify protocol.
func (m *VMPIC) Release(lpid LPID, irq int) error {
	i := &m.ints[irq]
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.hasOwner || i.owner != lpid {
		return ErrIRQNotOwned
	}
	if i.hasPending {
		i.owner = i.pendingClaimant
		i.hasPending = false
		return nil
	}
	i.hasOwner = false
	return nil
}

// Transfer reports whether a pending claim on irq (made via Claim under
// ClaimActionNotify) has completed, i.e. the prior owner has Released it.
func (m *VMPIC) Transfer(irq int) (owner LPID, ready bool) {
	i := &m.ints[irq]
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.hasPending {
		return 0, false
	}
	return i.owner, i.hasOwner
}
