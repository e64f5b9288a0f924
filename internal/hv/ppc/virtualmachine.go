package ppc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nxp-qoriq/ppchv/internal/hv"
)

// VirtualMachine is one partition: its guest memory, guest-physical page
// table, virtual and virtualized PICs, hypercall dispatch table, and the
// set of vCPUs pinned to this partition's claimed physical cores.
type VirtualMachine struct {
	hv *Hypervisor

	lpid  LPID
	cores []int

	mu      sync.RWMutex
	memory  []byte
	memBase uint64

	addrSpace *hv.AddressSpace
	gphys     *GuestPhys
	vpic      *VPIC
	vmpic     *VMPIC
	dispatch  *Dispatcher

	devices []hv.Device

	cpus    []*VirtualCPU
	cpuByID map[int]*VirtualCPU

	watchdogHook func(vcpuID int, action WatchdogAction)

	closed bool
}

func newVirtualMachine(h *Hypervisor, lpid LPID, config hv.VMConfig, cores []int) *VirtualMachine {
	vm := &VirtualMachine{
		hv:        h,
		lpid:      lpid,
		cores:     cores,
		memory:    make([]byte, config.MemorySize()),
		memBase:   config.MemoryBase(),
		addrSpace: hv.NewAddressSpace(hv.ArchitecturePPC32E500MC, config.MemoryBase(), config.MemorySize()),
		gphys:     NewGuestPhys(),
		dispatch:  NewDispatcher(),
		cpuByID:   make(map[int]*VirtualCPU),
	}
	vm.vpic = NewVPIC(len(cores), func(vcpuIdx int) {
		if vcpuIdx >= 0 && vcpuIdx < len(vm.cpus) {
			vm.cpus[vcpuIdx].gcpu.Raise(EventExternalInt)
			vm.cpus[vcpuIdx].gcpu.Wake()
		}
	})
	registerPartitionHypercalls(vm)

	for i, core := range cores {
		vm.cpus = append(vm.cpus, newVirtualCPU(vm, i, core))
	}
	for _, c := range vm.cpus {
		vm.cpuByID[c.ID()] = c
	}
	return vm
}

// Hypervisor implements hv.VirtualMachine.
func (vm *VirtualMachine) Hypervisor() hv.Hypervisor { return vm.hv }

// MemorySize implements hv.VirtualMachine.
func (vm *VirtualMachine) MemorySize() uint64 { return uint64(len(vm.memory)) }

// MemoryBase implements hv.VirtualMachine.
func (vm *VirtualMachine) MemoryBase() uint64 { return vm.memBase }

// ReadAt implements io.ReaderAt against guest real-physical memory.
func (vm *VirtualMachine) ReadAt(p []byte, off int64) (int, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if off < 0 || off >= int64(len(vm.memory)) {
		return 0, io.EOF
	}
	n := copy(p, vm.memory[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt against guest real-physical memory.
func (vm *VirtualMachine) WriteAt(p []byte, off int64) (int, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if off < 0 || off >= int64(len(vm.memory)) {
		return 0, fmt.Errorf("ppc: write offset 0x%x out of range", off)
	}
	n := copy(vm.memory[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Close implements io.Closer: stops every vCPU and releases physical cores.
func (vm *VirtualMachine) Close() error {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return nil
	}
	vm.closed = true
	cpus := append([]*VirtualCPU(nil), vm.cpus...)
	vm.mu.Unlock()

	for _, c := range cpus {
		c.gcpu.Raise(EventStop)
		c.gcpu.Wake()
		c.timer.Stop()
	}
	vm.hv.releasePartition(vm.lpid, vm.cores)
	return nil
}

// Run implements hv.VirtualMachine: it runs every vCPU's trap loop
// concurrently under cfg, returning when all of them exit or ctx is
// cancelled. Each vCPU still honors the per-vCPU hv.RunConfig contract
// (e.g. timeslice accounting), they simply all run at once since this
// partition's vCPUs are independent cores, not a single thread of
// execution.
func (vm *VirtualMachine) Run(ctx context.Context, cfg hv.RunConfig) error {
	vm.mu.RLock()
	cpus := append([]*VirtualCPU(nil), vm.cpus...)
	vm.mu.RUnlock()

	errs := make(chan error, len(cpus))
	for _, c := range cpus {
		c := c
		go func() { errs <- cfg.Run(ctx, c) }()
	}
	var firstErr error
	for range cpus {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetIRQ implements hv.VirtualMachine by asserting or deasserting a VPIC
// virtual interrupt line. irqLine is a virtual IRQ index into this
// partition's VPIC, not a physical interrupt number.
func (vm *VirtualMachine) SetIRQ(irqLine uint32, level bool) error {
	if int(irqLine) >= MaxVInt {
		return fmt.Errorf("ppc: irq line %d exceeds MaxVInt", irqLine)
	}
	if level {
		vm.vpic.Assert(int(irqLine))
	} else {
		vm.vpic.Deassert(int(irqLine))
	}
	return nil
}

// VirtualCPUCall implements hv.VirtualMachine.
func (vm *VirtualMachine) VirtualCPUCall(id int, f func(vcpu hv.VirtualCPU) error) error {
	vm.mu.RLock()
	c, ok := vm.cpuByID[id]
	vm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ppc: no vCPU with id %d", id)
	}
	return f(c)
}

// AddDevice implements hv.VirtualMachine.
func (vm *VirtualMachine) AddDevice(dev hv.Device) error {
	if err := dev.Init(vm); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.devices = append(vm.devices, dev)
	vm.mu.Unlock()
	return nil
}

// AddDeviceFromTemplate implements hv.VirtualMachine.
func (vm *VirtualMachine) AddDeviceFromTemplate(template hv.DeviceTemplate) error {
	dev, err := template.Create(vm)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.devices = append(vm.devices, dev)
	vm.mu.Unlock()
	return nil
}

// memoryRegion adapts a slice of vm.memory to hv.MemoryRegion.
type memoryRegion struct {
	vm   *VirtualMachine
	base uint64
	size uint64
}

func (m *memoryRegion) Size() uint64 { return m.size }

func (m *memoryRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off) >= m.size {
		return 0, io.EOF
	}
	return m.vm.ReadAt(p, int64(m.base)+off-int64(m.vm.memBase))
}

func (m *memoryRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off) >= m.size {
		return 0, fmt.Errorf("ppc: memory region write offset 0x%x out of range", off)
	}
	return m.vm.WriteAt(p, int64(m.base)+off-int64(m.vm.memBase))
}

// AllocateMemory implements hv.VirtualMachine. physAddr must fall within
// the partition's already-sized backing memory: unlike a host-accelerated
// backend, this software hypervisor has no way to grow guest memory after
// VM creation, so this only ever carves out a named sub-region of what
// newVirtualMachine already allocated.
func (vm *VirtualMachine) AllocateMemory(physAddr, size uint64) (hv.MemoryRegion, error) {
	if physAddr < vm.memBase || physAddr+size > vm.memBase+uint64(len(vm.memory)) {
		return nil, fmt.Errorf("ppc: region [0x%x,0x%x) falls outside partition memory [0x%x,0x%x)",
			physAddr, physAddr+size, vm.memBase, vm.memBase+uint64(len(vm.memory)))
	}
	return &memoryRegion{vm: vm, base: physAddr, size: size}, nil
}

// CaptureSnapshot implements hv.VirtualMachine. Full VM snapshotting is
// not implemented; only the warm-reboot path (internal/hv/ppc/warmreboot.go)
// persists state, and it persists the PAMU/gphys table directly rather
// than through this generic hook.
func (vm *VirtualMachine) CaptureSnapshot() (hv.Snapshot, error) {
	return nil, hv.ErrHypervisorUnsupported
}

// RestoreSnapshot implements hv.VirtualMachine.
func (vm *VirtualMachine) RestoreSnapshot(snap hv.Snapshot) error {
	return hv.ErrHypervisorUnsupported
}

var _ hv.VirtualMachine = (*VirtualMachine)(nil)
