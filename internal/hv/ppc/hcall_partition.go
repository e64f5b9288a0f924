package ppc

// registerPartitionHypercalls wires the hypercalls this package itself
// owns (idle, VMPIC mask/EOI/claim) into a freshly created partition's
// dispatch table. Hypercalls belonging to higher-level concerns
// (byte channels, doorbells, error queues, partition lifecycle) are
// registered by internal/partition once it wraps this VirtualMachine,
// via the Dispatcher/VPIC/VMPIC/GuestPhys accessors below.
func registerPartitionHypercalls(vm *VirtualMachine) {
	d := vm.dispatch

	d.Register(HCallIdle, func(cpu *GuestCPU, args Args) Result {
		return ok()
	})

	d.Register(HCallVMPICSetMask, func(cpu *GuestCPU, args Args) Result {
		if vm.vmpic == nil {
			return fail(HCallENODEV)
		}
		if err := vm.vmpic.SetMask(cpu.LPID, uint32(args.A0), args.A1 != 0); err != nil {
			return fail(statusForVMPICErr(err))
		}
		return ok()
	})

	d.Register(HCallVMPICEOI, func(cpu *GuestCPU, args Args) Result {
		if vm.vmpic == nil {
			return fail(HCallENODEV)
		}
		if err := vm.vmpic.EOI(cpu.LPID, uint32(args.A0)); err != nil {
			return fail(statusForVMPICErr(err))
		}
		return ok()
	})

	d.Register(HCallVMPICClaim, func(cpu *GuestCPU, args Args) Result {
		if vm.vmpic == nil {
			return fail(HCallENODEV)
		}
		if err := vm.vmpic.Claim(cpu.LPID, int(args.A0)); err != nil {
			return fail(statusForVMPICErr(err))
		}
		return ok()
	})
}

func statusForVMPICErr(err error) HCallStatus {
	switch err {
	case ErrIRQNotOwned:
		return HCallEPerm
	case ErrIRQNotClaimable:
		return HCallEINVAL
	default:
		return HCallEFAULT
	}
}

// Dispatcher exposes the partition's hypercall dispatch table so
// internal/partition can register the lifecycle/byte-channel/doorbell/
// error-queue hypercalls it owns, without this package needing to import
// those higher-level concerns.
func (vm *VirtualMachine) Dispatcher() *Dispatcher { return vm.dispatch }

// VPIC exposes the partition's virtual PIC.
func (vm *VirtualMachine) VPIC() *VPIC { return vm.vpic }

// SetVMPIC installs the board's VMPIC wrapper for this partition. Called
// once during partition setup by the code that owns the real hardware PIC
// singleton, since VMPIC is shared across all partitions on the board
// while VPIC is per-partition.
func (vm *VirtualMachine) SetVMPIC(vmpic *VMPIC) { vm.vmpic = vmpic }

// GuestPhys exposes the partition's guest-physical page table.
func (vm *VirtualMachine) GuestPhys() *GuestPhys { return vm.gphys }

// CPUs exposes the partition's vCPUs in physical-core order.
func (vm *VirtualMachine) CPUs() []*VirtualCPU { return vm.cpus }

// LPID exposes the partition's logical partition ID.
func (vm *VirtualMachine) LPID() LPID { return vm.lpid }

// SetWatchdogHook installs the callback invoked when any vCPU's watchdog
// expires, letting internal/partition implement the configured
// notify/stop/reset policy without this package depending on it.
func (vm *VirtualMachine) SetWatchdogHook(hook func(vcpuID int, action WatchdogAction)) {
	vm.watchdogHook = hook
}

// Timer exposes vcpu's timer block for arming DEC/FIT/watchdog from
// hypercalls owned by internal/partition.
func (c *VirtualCPU) Timer() *Timer { return c.timer }

// GuestCPU exposes the vCPU's shadow-register/event-bitmap state.
func (c *VirtualCPU) GuestCPU() *GuestCPU { return c.gcpu }
