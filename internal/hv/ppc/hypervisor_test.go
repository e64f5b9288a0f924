package ppc

import (
	"testing"

	"github.com/nxp-qoriq/ppchv/internal/hv"
)

func TestHypervisorNewVirtualMachineMemory(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x10000, MemBase: 0})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}
	if vm.MemorySize() != 0x10000 {
		t.Fatalf("MemorySize = %#x, want 0x10000", vm.MemorySize())
	}

	if _, err := vm.WriteAt([]byte("hi"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := vm.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("ReadAt = %q, want %q", buf, "hi")
	}
}

func TestHypervisorCorePinningExhaustion(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: defaultCoreCount, MemSize: 0x1000}); err != nil {
		t.Fatalf("NewVirtualMachine (using all cores): %v", err)
	}
	if _, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x1000}); err == nil {
		t.Fatalf("NewVirtualMachine past the physical core count: expected an error")
	}
}

func TestVirtualMachineAllocateMemoryBounds(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x10000, MemBase: 0x1000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}

	if _, err := vm.AllocateMemory(0x1000, 0x100); err != nil {
		t.Fatalf("AllocateMemory within bounds: %v", err)
	}
	if _, err := vm.AllocateMemory(0, 0x100); err == nil {
		t.Fatalf("AllocateMemory before the partition's base: expected an error")
	}
	if _, err := vm.AllocateMemory(0x1000, 0x20000); err == nil {
		t.Fatalf("AllocateMemory past the partition's memory size: expected an error")
	}
}

func TestVirtualMachineSetIRQRange(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x1000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}
	if err := vm.SetIRQ(0, true); err != nil {
		t.Fatalf("SetIRQ(0): %v", err)
	}
	if err := vm.SetIRQ(MaxVInt, true); err == nil {
		t.Fatalf("SetIRQ(MaxVInt): expected an out-of-range error")
	}
}
