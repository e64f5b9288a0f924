package ppc

import "fmt"

// HCallStatus is the status code a hypercall returns in GPR3, the one
// place in this codebase where a typed enum crosses the ABI boundary
// instead of a wrapped Go error — the guest only ever sees this number.
type HCallStatus int64

const (
	HCallSuccess        HCallStatus = 0
	HCallEPerm          HCallStatus = -1
	HCallEINVAL         HCallStatus = -2
	HCallEALIGN         HCallStatus = -3
	HCallEBADHANDLE     HCallStatus = -4
	HCallENOMEM         HCallStatus = -5
	HCallENODEV         HCallStatus = -6
	HCallEAGAIN         HCallStatus = -7
	HCallEFAULT         HCallStatus = -8
	HCallEBUSY          HCallStatus = -9
	HCallEUNIMPLEMENTED HCallStatus = -10
)

// Hypercall numbers, as issued by the guest through the trap instruction
// with the number in GPR11.
const (
	HCallIdle            = 1
	HCallPartitionStart   = 2
	HCallPartitionStop    = 3
	HCallPartitionRestart = 4
	HCallPartitionGetStatus = 5
	HCallDoorbellSend     = 6
	HCallByteChannelSend  = 7
	HCallByteChannelReceive = 8
	HCallByteChannelPoll  = 9
	HCallVMPICSetMask     = 10
	HCallVMPICEOI         = 11
	HCallVMPICClaim       = 12
	HCallErrGetInfo       = 13
	HCallSystemReset      = 14
)

// Args is the set of GPR3-GPR11 a hypercall reads its arguments from; the
// caller (the vCPU trap loop) fills this in before dispatch.
type Args struct {
	Num                uint64
	A0, A1, A2, A3, A4, A5, A6, A7 uint64
}

// Result is what a handler produces; the trap loop writes Status into
// GPR3 and Out[i] into GPR4+i.
type Result struct {
	Status HCallStatus
	Out    [4]uint64
}

func ok(out ...uint64) Result {
	var r Result
	copy(r.Out[:], out)
	return r
}

func fail(status HCallStatus) Result {
	return Result{Status: status}
}

// Handler executes one hypercall on behalf of the calling vCPU.
type Handler func(cpu *GuestCPU, args Args) Result

// Dispatcher is the hypercall ABI's dispatch table, generalizing a
// numbered-extension-call switch into a lookup map so handlers can be
// registered independently by each subsystem (partition lifecycle,
// doorbells, byte channels, VMPIC, error queues) instead of living in one
// giant switch statement.
type Dispatcher struct {
	handlers map[uint64]Handler
}

// NewDispatcher returns an empty hypercall dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint64]Handler)}
}

// Register installs the handler for hypercall number num. It panics on a
// duplicate registration: that is always a wiring bug, never a runtime
// condition.
func (d *Dispatcher) Register(num uint64, h Handler) {
	if _, exists := d.handlers[num]; exists {
		panic(fmt.Sprintf("ppc: hypercall %d already registered", num))
	}
	d.handlers[num] = h
}

// Dispatch looks up and invokes the handler for args.Num, returning
// HCallEUNIMPLEMENTED if no handler is registered (an unknown hypercall
// number, or one this build doesn't support).
func (d *Dispatcher) Dispatch(cpu *GuestCPU, args Args) Result {
	h, ok := d.handlers[args.Num]
	if !ok {
		return fail(HCallEUNIMPLEMENTED)
	}
	return h(cpu, args)
}
