package ppc

import (
	"context"
	"testing"
	"time"

	"github.com/nxp-qoriq/ppchv/internal/hv"
)

func TestVirtualCPURegisters(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x1000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}

	var cpu hv.VirtualCPU
	if err := vm.VirtualCPUCall(0, func(c hv.VirtualCPU) error { cpu = c; return nil }); err != nil {
		t.Fatalf("VirtualCPUCall: %v", err)
	}

	if err := cpu.SetRegisters(map[hv.Register]hv.RegisterValue{
		hv.RegisterPPCPc: hv.Register64(0xdeadbeef),
	}); err != nil {
		t.Fatalf("SetRegisters: %v", err)
	}

	out := map[hv.Register]hv.RegisterValue{hv.RegisterPPCPc: nil}
	if err := cpu.GetRegisters(out); err != nil {
		t.Fatalf("GetRegisters: %v", err)
	}
	if out[hv.RegisterPPCPc] != hv.Register64(0xdeadbeef) {
		t.Fatalf("GetRegisters(pc) = %v, want 0xdeadbeef", out[hv.RegisterPPCPc])
	}
}

func TestVirtualCPURunStopsOnContextCancel(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x1000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	if err := vm.VirtualCPUCall(0, func(c hv.VirtualCPU) error {
		go func() { errs <- c.Run(ctx) }()
		return nil
	}); err != nil {
		t.Fatalf("VirtualCPUCall: %v", err)
	}

	cancel()
	select {
	case err := <-errs:
		if err != context.Canceled {
			t.Fatalf("Run after cancel: err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestVirtualCPUHandleHypercall(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: 1, MemSize: 0x1000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}
	ppcVM := vm.(*VirtualMachine)
	ppcVM.Dispatcher().Register(HCallSystemReset, func(cpu *GuestCPU, args Args) Result {
		return ok(args.A0 * 2)
	})

	var cpu *VirtualCPU
	if err := vm.VirtualCPUCall(0, func(c hv.VirtualCPU) error { cpu = c.(*VirtualCPU); return nil }); err != nil {
		t.Fatalf("VirtualCPUCall: %v", err)
	}
	res := cpu.HandleHypercall(Args{Num: HCallSystemReset, A0: 21})
	if res.Status != HCallSuccess || res.Out[0] != 42 {
		t.Fatalf("HandleHypercall = %+v, want status success and Out[0]=42", res)
	}
}
