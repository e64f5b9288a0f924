package partition

import (
	"errors"
	"sync"

	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// ErrNoFastDoorbells is returned when a configuration tries to allocate
// more than ppc.MaxFastDoorbells fast doorbells system-wide.
var ErrNoFastDoorbells = errors.New("partition: no fast doorbells remain (hardware limit reached)")

// DoorbellKind distinguishes the two delivery paths: a fast doorbell
// rides the real hardware MSG_DBELL/MSG_GBELL IPI mechanism directly
// between a small, fixed number of cores; a normal doorbell is
// software-routed by the hypervisor to an arbitrary list of receivers
// via their VPIC.
type DoorbellKind uint8

const (
	DoorbellNormal DoorbellKind = iota
	DoorbellFast
	DoorbellCritical
	DoorbellGlobalFast
	DoorbellGlobalCritical
)

// Receiver is one destination a doorbell can deliver to: a specific vCPU's
// virtual PIC, as a specific virtual IRQ.
type Receiver struct {
	VPIC *ppc.VPIC
	VInt int
}

// Doorbell is a single doorbell source. A normal doorbell fans out to an
// arbitrary receiver list; a fast doorbell has exactly one receiver and is
// meant to be rung as close to the hardware MSG_DBELL path as this
// software hypervisor can get (no actual trap-free hardware delivery is
// possible without real guest hypervisor-mode support, but the fast path
// still skips the receiver-list fanout a normal doorbell pays for).
type Doorbell struct {
	kind      DoorbellKind
	receivers []Receiver
}

// doorbellAllocator hands out the system-wide-limited fast doorbells and
// tracks how many remain, mirroring the hardware's fixed MSG_DBELL/
// MSG_GBELL slot count.
type doorbellAllocator struct {
	mu        sync.Mutex
	fastUsed  int
}

var globalDoorbellAllocator doorbellAllocator

// NewNormalDoorbell returns a software-routed doorbell with the given
// receiver list. Any number of these may exist.
func NewNormalDoorbell(receivers ...Receiver) *Doorbell {
	return &Doorbell{kind: DoorbellNormal, receivers: receivers}
}

// NewFastDoorbell allocates one of the system's limited fast doorbell
// slots for a single receiver. Returns ErrNoFastDoorbells once
// ppc.MaxFastDoorbells have been handed out.
func NewFastDoorbell(kind DoorbellKind, receiver Receiver) (*Doorbell, error) {
	globalDoorbellAllocator.mu.Lock()
	defer globalDoorbellAllocator.mu.Unlock()
	if globalDoorbellAllocator.fastUsed >= ppc.MaxFastDoorbells {
		return nil, ErrNoFastDoorbells
	}
	globalDoorbellAllocator.fastUsed++
	return &Doorbell{kind: kind, receivers: []Receiver{receiver}}, nil
}

// Ring delivers the doorbell to every configured receiver by asserting
// their virtual IRQ. A fast/critical doorbell and a normal doorbell differ
// only in allocation policy and receiver-count limits, not in how
// delivery itself works once a receiver is known, since this software
// hypervisor has no real trap-free IPI path to special-case.
func (d *Doorbell) Ring() {
	for _, r := range d.receivers {
		if r.VPIC != nil {
			r.VPIC.Assert(r.VInt)
		}
	}
}

// Kind reports this doorbell's delivery class.
func (d *Doorbell) Kind() DoorbellKind { return d.kind }
