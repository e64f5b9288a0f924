package partition

import (
	"context"
	"testing"
	"time"

	"github.com/nxp-qoriq/ppchv/internal/hv"
	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

func newTestVM(t *testing.T, ncpus int) *ppc.VirtualMachine {
	t.Helper()
	h, err := ppc.Open()
	if err != nil {
		t.Fatalf("ppc.Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{NumCPUs: ncpus, MemSize: 0x10000})
	if err != nil {
		t.Fatalf("NewVirtualMachine: %v", err)
	}
	return vm.(*ppc.VirtualMachine)
}

func TestPartitionLifecycle(t *testing.T) {
	vm := newTestVM(t, 1)
	p := New("test", vm)

	if p.State() != StateStopped {
		t.Fatalf("initial State = %v, want StateStopped", p.State())
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != StateRunning {
		t.Fatalf("State after Start = %v, want StateRunning", p.State())
	}

	if err := p.Start(context.Background()); err != ErrInvalidTransition {
		t.Fatalf("double Start: err = %v, want ErrInvalidTransition", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != StateStopped {
		t.Fatalf("State after Stop = %v, want StateStopped", p.State())
	}
}

func TestPartitionRestart(t *testing.T) {
	vm := newTestVM(t, 1)
	p := New("test", vm)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if p.State() != StateRunning {
		t.Fatalf("State after Restart = %v, want StateRunning", p.State())
	}
	p.Stop()
}

func TestPartitionWatchdogStopPolicy(t *testing.T) {
	vm := newTestVM(t, 1)
	p := New("test", vm)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.handleWatchdog(0, ppc.WatchdogStop)

	deadline := time.Now().Add(time.Second)
	for p.State() != StateStopped && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.State() != StateStopped {
		t.Fatalf("State after a WatchdogStop action = %v, want StateStopped", p.State())
	}
	if p.Errors().Guest.Len() == 0 {
		t.Fatalf("expected a guest-domain error record for the watchdog expiry")
	}
}
