// Package partition implements the partition lifecycle state machine and
// the inter-partition communication primitives (byte channels, doorbells,
// error event queues) layered on top of internal/hv/ppc's vCPU/TLB/VPIC
// substrate.
package partition

import (
	"errors"
	"sync"

	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// ErrHandleTableFull is returned when a partition's handle table has no
// free slots left.
var ErrHandleTableFull = errors.New("partition: handle table is full")

// ErrBadHandle is returned when a hypercall references a handle this
// partition was never given.
var ErrBadHandle = errors.New("partition: unknown handle")

// Handle is a partition-local, guest-visible identifier for any object the
// hypervisor hands a partition a reference to: a byte-channel endpoint, a
// doorbell, a VMPIC interrupt, or anything else configured by the device
// tree at partition-create time.
type Handle uint32

// HandleTable maps a partition's guest-visible handles to the Go objects
// they refer to. Capacity is fixed at ppc.HandleTableSize, matching the
// original's fixed-size per-partition handle array.
type HandleTable struct {
	mu      sync.RWMutex
	entries [ppc.HandleTableSize]any
	used    [ppc.HandleTableSize]bool
}

// Alloc installs obj at the first free slot and returns its handle.
func (t *HandleTable) Alloc(obj any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.used {
		if !t.used[i] {
			t.used[i] = true
			t.entries[i] = obj
			return Handle(i), nil
		}
	}
	return 0, ErrHandleTableFull
}

// AllocAt installs obj at a specific handle number, as required by
// device-tree-configured handles that must land at a fixed, documented
// index (e.g. a partition's stdout byte channel is conventionally handle
// 0). It fails if the slot is already taken.
func (t *HandleTable) AllocAt(h Handle, obj any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) >= len(t.used) {
		return ErrBadHandle
	}
	if t.used[h] {
		return errors.New("partition: handle already allocated")
	}
	t.used[h] = true
	t.entries[h] = obj
	return nil
}

// Get resolves a handle to its object.
func (t *HandleTable) Get(h Handle) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(h) >= len(t.used) || !t.used[h] {
		return nil, ErrBadHandle
	}
	return t.entries[h], nil
}

// Free releases a handle, making its slot available for reuse.
func (t *HandleTable) Free(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) >= len(t.used) || !t.used[h] {
		return ErrBadHandle
	}
	t.used[h] = false
	t.entries[h] = nil
	return nil
}
