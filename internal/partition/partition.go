package partition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/nxp-qoriq/ppchv/internal/hv"
	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// State is a partition's lifecycle state: stopped -> starting ->
// running -> stopping -> stopped.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ErrInvalidTransition is returned when a lifecycle operation is requested
// from a state that does not permit it (e.g. starting an already-running
// partition).
var ErrInvalidTransition = errors.New("partition: invalid lifecycle state transition")

// Partition wraps one internal/hv/ppc.VirtualMachine with the lifecycle
// state machine, its handle table, and its error-event manager. It is the
// unit the configuration layer (internal/partition/config.go) builds
// one of per device-tree partition node.
type Partition struct {
	Name string

	mu    sync.Mutex
	state State

	vm      *ppc.VirtualMachine
	handles HandleTable
	errors  *Manager

	logger *log.Logger

	runCancel context.CancelFunc
	runDone   chan error
}

// New wraps vm as a named partition in the stopped state, with an error
// manager wired to deliver PolicyNotify via vm's VPIC virtual IRQ 0 (the
// conventional error-event virtual interrupt) and PolicyStopPartition via
// Stop.
func New(name string, vm *ppc.VirtualMachine) *Partition {
	p := &Partition{
		Name:   name,
		vm:     vm,
		logger: log.New(log.Writer(), fmt.Sprintf("partition[%s]: ", name), log.LstdFlags),
	}
	p.errors = NewManager(64, 256, 256,
		func(rec Record) { vm.VPIC().Assert(0) },
		func(rec Record) { _ = p.Stop() },
		func(rec Record) { p.logger.Printf("%s: %s: %s", rec.Severity, rec.Source, rec.Message) },
	)
	vm.SetWatchdogHook(func(vcpuID int, action ppc.WatchdogAction) {
		p.handleWatchdog(vcpuID, action)
	})
	registerLifecycleHypercalls(p)
	return p
}

func (p *Partition) handleWatchdog(vcpuID int, action ppc.WatchdogAction) {
	src := "watchdog"
	switch action {
	case ppc.WatchdogNotify:
		p.errors.Raise(Record{Domain: ErrorDomainGuest, Severity: SeverityWarn, Source: src,
			Message: fmt.Sprintf("vcpu %d watchdog expired (notify)", vcpuID)})
	case ppc.WatchdogStop:
		p.errors.Raise(Record{Domain: ErrorDomainGuest, Severity: SeverityFatal, Source: src,
			Message: fmt.Sprintf("vcpu %d watchdog expired (stop)", vcpuID)})
		_ = p.Stop()
	case ppc.WatchdogReset:
		p.errors.Raise(Record{Domain: ErrorDomainGuest, Severity: SeverityFatal, Source: src,
			Message: fmt.Sprintf("vcpu %d watchdog expired (reset)", vcpuID)})
		_ = p.Restart()
	}
}

// State reports the partition's current lifecycle state.
func (p *Partition) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Handles exposes the partition's handle table for configuration-time
// wiring of byte channels, doorbells, and VMPIC interrupts.
func (p *Partition) Handles() *HandleTable { return &p.handles }

// Errors exposes the partition's error-event manager.
func (p *Partition) Errors() *Manager { return p.errors }

// VM exposes the underlying virtual machine.
func (p *Partition) VM() *ppc.VirtualMachine { return p.vm }

// simpleRunConfig runs a vCPU with no extra per-run instrumentation; a
// real board build would pass a RunConfig that also drives timeslice
// tracing.
type simpleRunConfig struct{}

func (simpleRunConfig) Run(ctx context.Context, vcpu hv.VirtualCPU) error {
	return vcpu.Run(ctx)
}

// Start transitions stopped -> starting -> running, launching every
// vCPU's trap loop. It returns right after launching the Run goroutine in
// the background, without waiting for the vCPUs to begin executing; Wait
// blocks for it to finish.
func (p *Partition) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = StateStarting
	runCtx, cancel := context.WithCancel(ctx)
	p.runCancel = cancel
	p.runDone = make(chan error, 1)
	p.mu.Unlock()

	p.mu.Lock()
	p.state = StateRunning
	p.mu.Unlock()

	go func() {
		p.runDone <- p.vm.Run(runCtx, simpleRunConfig{})
	}()
	return nil
}

// Stop transitions running/starting -> stopping -> stopped, cancelling
// every vCPU's trap loop and waiting for it to return.
func (p *Partition) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning && p.state != StateStarting {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = StateStopping
	cancel := p.runCancel
	done := p.runDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	return nil
}

// Restart stops and then immediately starts the partition again, matching
// the watchdog-reset action and the hv_partition_restart hypercall.
func (p *Partition) Restart() error {
	if err := p.Stop(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return p.Start(context.Background())
}

// Wait blocks until the partition's Run call returns (either because it
// was stopped or because the context passed to Start was cancelled),
// returning that error.
func (p *Partition) Wait() error {
	p.mu.Lock()
	done := p.runDone
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	return <-done
}
