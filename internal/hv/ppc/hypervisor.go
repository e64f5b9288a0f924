package ppc

import (
	"fmt"
	"log"
	"sync"

	"github.com/nxp-qoriq/ppchv/internal/hv"
)

// Hypervisor is the ppc backend's top-level handle: one physical board,
// its CCSR/GUTS/PCIe MMIO layout, and the set of partitions running on it.
type Hypervisor struct {
	mu         sync.Mutex
	partitions map[LPID]*VirtualMachine
	nextLPID   LPID

	coresTotal int
	coreOwner  map[int]LPID // physical core -> owning partition, for the 1:1 pin invariant

	logger *log.Logger
}

// Open returns a ppc Hypervisor. There is nothing to probe or negotiate
// with (no host acceleration, no capability handshake): the board's core
// count is fixed at compile time for a given SoC variant.
func Open() (hv.Hypervisor, error) {
	return &Hypervisor{
		partitions: make(map[LPID]*VirtualMachine),
		coreOwner:  make(map[int]LPID),
		coresTotal: defaultCoreCount,
		logger:     log.New(log.Writer(), "ppc: ", log.LstdFlags),
	}, nil
}

// defaultCoreCount is the physical core count for the e500mc SoC variant
// this backend targets (e.g. an 8-core QorIQ part). A board with a
// different core count would plumb this through VMConfig instead; no
// caller in this tree needs that yet.
const defaultCoreCount = 8

// Architecture implements hv.Hypervisor.
func (h *Hypervisor) Architecture() hv.CpuArchitecture { return hv.ArchitecturePPC32E500MC }

// Close implements hv.Hypervisor. It stops every still-running partition.
func (h *Hypervisor) Close() error {
	h.mu.Lock()
	vms := make([]*VirtualMachine, 0, len(h.partitions))
	for _, vm := range h.partitions {
		vms = append(vms, vm)
	}
	h.mu.Unlock()

	var firstErr error
	for _, vm := range vms {
		if err := vm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewVirtualMachine implements hv.Hypervisor: it creates one partition,
// claiming config.CPUCount() physical cores for its vCPUs on a strict 1:1
// pinned basis.
func (h *Hypervisor) NewVirtualMachine(config hv.VMConfig) (hv.VirtualMachine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lpid := h.nextLPID
	if lpid > MaxLPID {
		return nil, fmt.Errorf("ppc: partition table exhausted (max %d partitions)", MaxLPID+1)
	}

	ncpus := config.CPUCount()
	cores := make([]int, 0, ncpus)
	for core := 0; core < h.coresTotal && len(cores) < ncpus; core++ {
		if _, taken := h.coreOwner[core]; !taken {
			cores = append(cores, core)
		}
	}
	if len(cores) < ncpus {
		return nil, fmt.Errorf("ppc: not enough free physical cores for %d vCPUs (have %d free)", ncpus, len(cores))
	}
	for _, c := range cores {
		h.coreOwner[c] = lpid
	}
	h.nextLPID++

	vm := newVirtualMachine(h, lpid, config, cores)
	h.partitions[lpid] = vm
	return vm, nil
}

// releasePartition is called by a VirtualMachine on Close to free its
// physical cores back to the pool.
func (h *Hypervisor) releasePartition(lpid LPID, cores []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range cores {
		if h.coreOwner[c] == lpid {
			delete(h.coreOwner, c)
		}
	}
	delete(h.partitions, lpid)
}

var _ hv.Hypervisor = (*Hypervisor)(nil)
