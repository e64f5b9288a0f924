package ppc

import (
	"errors"
	"fmt"
)

// ErrTLB1Exhausted is returned when fracturing a guest TLB1 entry would
// need more real hardware TLB1 entries than remain free. This is a
// recoverable condition: the caller reflects a machine check to the
// guest and records a diagnostic error-queue entry, it does not halt
// the hypervisor.
var ErrTLB1Exhausted = errors.New("ppc: real TLB1 has no free entries left to fracture this mapping")

// GuestTLB1Entry is one entry in the guest's 16-entry view of TLB1, as
// written by a guest tlbwe. RPN is a guest-physical page number; it still
// needs gphys translation before it can be installed in hardware.
type GuestTLB1Entry struct {
	Valid bool
	IProt bool
	EPN   uint64
	RPN   uint64 // guest-physical
	Size  uint8  // TSIZE
	PID   PID
	TS    bool
	MAS2  uint32 // cache/endian flags only (E, I, G, W, M)
	MAS3  uint32 // rights mask (MAS3RightsMask)
}

// realFragment is one real hardware TLB1 entry installed on behalf of a
// guest entry. A single guest entry fractures into one realFragment per
// contiguous real-physical run the gphys map resolves it to.
type realFragment struct {
	index uint8 // real TLB1 index, in [0, TLB1Size-TLB1Rsvd)
	epn   uint64
	rpn   uint64
	size  uint8
}

// TLB1Writer installs and invalidates real hardware TLB1 entries. It
// abstracts the actual tlbwe/tlbivax instructions so TLB1 can be tested
// without real hardware.
type TLB1Writer interface {
	WriteReal(index uint8, epn, rpn uint64, size uint8, attr uint32, lpid LPID)
	InvalidateReal(index uint8)
}

// TLB1 is the per-vCPU multiplexer between a guest's 16-entry TLB1 and the
// real hardware TLB1, fracturing each guest entry into one or more real
// entries that honor the partition's guest-physical page table.
type TLB1 struct {
	lpid  LPID
	gphys *GuestPhys
	hw    TLB1Writer

	guest     [TLB1GSize]GuestTLB1Entry
	fragments [TLB1GSize][]realFragment

	// freeReal tracks which of the usable real TLB1 indices (the bottom
	// TLB1Size-TLB1Rsvd of the hardware array; the top TLB1Rsvd are the
	// hypervisor's own reserved, IPROT'd entries and never touched here)
	// are currently unused.
	freeReal []uint8
}

// usableRealEntries is the count of real TLB1 entries available to guests,
// i.e. the hardware array minus the hypervisor's reserved top entries.
const usableRealEntries = TLB1Size - TLB1Rsvd

// NewTLB1 returns an empty TLB1 multiplexer for one vCPU of the partition
// owning gphys, writing real entries through hw.
func NewTLB1(lpid LPID, gphys *GuestPhys, hw TLB1Writer) *TLB1 {
	t := &TLB1{lpid: lpid, gphys: gphys, hw: hw}
	t.freeReal = make([]uint8, usableRealEntries)
	for i := range t.freeReal {
		t.freeReal[i] = uint8(i)
	}
	return t
}

func (t *TLB1) allocReal() (uint8, bool) {
	n := len(t.freeReal)
	if n == 0 {
		return 0, false
	}
	idx := t.freeReal[n-1]
	t.freeReal = t.freeReal[:n-1]
	return idx, true
}

func (t *TLB1) freeFragments(guestIdx int) {
	for _, f := range t.fragments[guestIdx] {
		t.hw.InvalidateReal(f.index)
		t.freeReal = append(t.freeReal, f.index)
	}
	t.fragments[guestIdx] = nil
}

// Write installs a guest tlbwe into real hardware TLB1, fracturing it
// across as many real entries as the underlying gphys map requires. On
// ErrTLB1Exhausted, any fragments already written for this call remain in
// place (the guest entry is left partially mapped); the caller is expected
// to reflect a machine check rather than retry piecemeal.
func (t *TLB1) Write(guestIdx int, e GuestTLB1Entry) error {
	if guestIdx < 0 || guestIdx >= TLB1GSize {
		return fmt.Errorf("ppc: tlb1 guest index %d out of range", guestIdx)
	}
	t.freeFragments(guestIdx)
	t.guest[guestIdx] = e

	if !e.Valid {
		return nil
	}

	pageSize := PageSizeBytes(e.Size)
	guestPages := pageSize >> pageShift
	var frags []realFragment

	epn := e.EPN
	grpn := e.RPN
	remaining := guestPages
	for remaining > 0 {
		rpn, attr, ok, skip := t.gphys.Xlate(grpn, false)
		if !ok {
			// Unmapped guest-physical range inside the entry: skip
			// it without consuming a real TLB1 slot, mirroring the
			// original's treatment of holes as simply not present.
			adv := skip
			if adv == 0 || adv > remaining {
				adv = 1
			}
			epn += adv << pageShift
			grpn += adv
			remaining -= adv
			continue
		}

		runSize := maxPageSize(epn>>pageShift, remaining)
		if a := naturalAlignment(rpn); a < runSize {
			runSize = a
		}
		if a := AttrSize(attr); a < runSize {
			runSize = a
		}
		runPages := PageSizeBytes(runSize) >> pageShift
		if runPages > remaining {
			runPages = remaining
			runSize = TSIZE4K
		}

		idx, ok := t.allocReal()
		if !ok {
			t.fragments[guestIdx] = frags
			return ErrTLB1Exhausted
		}

		finalAttr := attr | e.MAS2 | e.MAS3
		if e.TS {
			finalAttr |= AttrGS
		}
		t.hw.WriteReal(idx, epn, rpn, runSize, finalAttr, t.lpid)
		frags = append(frags, realFragment{index: idx, epn: epn, rpn: rpn, size: runSize})

		epn += runPages << pageShift
		grpn += runPages
		remaining -= runPages
	}

	t.fragments[guestIdx] = frags
	return nil
}

// Invalidate removes a single guest TLB1 entry and all its real fragments.
func (t *TLB1) Invalidate(guestIdx int) {
	if guestIdx < 0 || guestIdx >= TLB1GSize {
		return
	}
	t.freeFragments(guestIdx)
	t.guest[guestIdx] = GuestTLB1Entry{}
}

// InvalidateAll tears down every guest TLB1 entry, e.g. on a partition
// stop or a full context switch away from this vCPU's lpid.
func (t *TLB1) InvalidateAll() {
	for i := range t.guest {
		t.freeFragments(i)
		t.guest[i] = GuestTLB1Entry{}
	}
}

// Read returns the guest's view of TLB1 entry idx, as tlbre would see it.
func (t *TLB1) Read(guestIdx int) (GuestTLB1Entry, bool) {
	if guestIdx < 0 || guestIdx >= TLB1GSize {
		return GuestTLB1Entry{}, false
	}
	return t.guest[guestIdx], true
}

// FreeCount reports how many real hardware TLB1 entries remain unallocated,
// for diagnostics and the error-queue record on exhaustion.
func (t *TLB1) FreeCount() int {
	return len(t.freeReal)
}
