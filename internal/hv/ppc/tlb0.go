package ppc

import "sync/atomic"

// tlb0Ways is the associativity of the TLB0 software cache, matching the
// hardware TLB0's own 4-way-set-associative organization (TLBC_WAYS in the
// original tlbcache.h).
const tlb0Ways = 4

// tlb0Sets is the number of cache sets. Real e500mc TLB0 has 512 entries in
// 128 sets of 4 ways; this cache mirrors that shape.
const tlb0Sets = 128

// tlb0Tag packs everything a lookup needs to compare in a single word, so a
// reader can validate a hit with one atomic load and no lock:
//
//	bits 63..12  virtual page number (EPN, 4 KiB page)
//	bit  11      valid
//	bit  10      address space (TS)
//	bits  9..4   LPID (6 bits)
//	bits  3..0   PID low 4 bits (the remaining 10 bits of the 14-bit PID
//	             are folded into set selection, see tlb0Set)
type tlb0Tag uint64

const (
	tlb0TagValidBit = 1 << 11
	tlb0TagTSBit    = 1 << 10
	tlb0TagLPIDShift = 4
	tlb0TagLPIDMask  = 0x3f << tlb0TagLPIDShift
	tlb0TagPIDMask   = 0xf
	tlb0TagEPNShift  = 12
)

func makeTLB0Tag(epn uint64, ts bool, lpid LPID, pidLow4 uint8) tlb0Tag {
	tag := tlb0Tag(epn<<tlb0TagEPNShift) | tlb0TagValidBit
	if ts {
		tag |= tlb0TagTSBit
	}
	tag |= tlb0Tag(lpid&0x3f) << tlb0TagLPIDShift
	tag |= tlb0Tag(pidLow4 & 0xf)
	return tag
}

// tlb0Entry is one way within a set. tag is stored atomically and doubles
// as the entry's publish/invalidate flag: a reader loads tag once, and if
// it matches the sought key proceeds to read rpn/attr, which are only ever
// written before tag is published (and tag is invalidated before rpn/attr
// are overwritten on eviction), so a torn read is never observable as a
// false hit.
type tlb0Entry struct {
	tag  atomic.Uint64
	rpn  uint64
	attr uint32
	pid  PID
}

type tlb0Set struct {
	ways [tlb0Ways]tlb0Entry
	// clock is a simple round-robin replacement pointer for this set,
	// touched only under the set's owning TLB0's write path.
	clock uint32
}

// TLB0 is the per-vCPU software cache standing in front of the gphys page
// table and the TLB1 multiplexer: a guest TLB0 refill first probes this
// cache, and only walks gphys on a miss.
type TLB0 struct {
	sets [tlb0Sets]tlb0Set
}

// NewTLB0 returns an empty TLB0 software cache.
func NewTLB0() *TLB0 {
	return &TLB0{}
}

func tlb0SetIndex(epn uint64, pid PID) int {
	// Fold the upper bits of PID into set selection, mirroring the
	// original tag-plus-set split that keeps the packed tag word to 64
	// bits while still distinguishing same-EPN entries of different
	// processes within a set.
	h := uint64(pid) >> 4
	return int((epn ^ h) % tlb0Sets)
}

// Lookup probes the cache for (epn, ts, lpid, pid). It takes no lock: each
// way's tag is read with a single atomic load, so concurrent Insert/Evict
// calls on other vCPUs sharing this structure (there are none by
// construction — each vCPU owns its TLB0 — but the invariant is kept for
// safety under future reuse) can never hand back a torn entry.
func (c *TLB0) Lookup(epn uint64, ts bool, lpid LPID, pid PID) (rpn uint64, attr uint32, ok bool) {
	set := &c.sets[tlb0SetIndex(epn, pid)]
	want := makeTLB0Tag(epn, ts, lpid, uint8(pid)&0xf)
	for i := range set.ways {
		w := &set.ways[i]
		tag := tlb0Tag(w.tag.Load())
		if tag&tlb0TagValidBit == 0 {
			continue
		}
		if tag == want && w.pid == pid {
			return w.rpn, w.attr, true
		}
	}
	return 0, 0, false
}

// Insert publishes a new cache entry, evicting a way via round-robin if the
// set is full. The tag is written last (atomic store) so a concurrent
// Lookup never observes rpn/attr before the tag that validates them.
func (c *TLB0) Insert(epn uint64, ts bool, lpid LPID, pid PID, rpn uint64, attr uint32) {
	set := &c.sets[tlb0SetIndex(epn, pid)]

	for i := range set.ways {
		if tlb0Tag(set.ways[i].tag.Load())&tlb0TagValidBit == 0 {
			c.publish(&set.ways[i], epn, ts, lpid, pid, rpn, attr)
			return
		}
	}

	victim := &set.ways[set.clock%tlb0Ways]
	set.clock++
	victim.tag.Store(0)
	c.publish(victim, epn, ts, lpid, pid, rpn, attr)
}

func (c *TLB0) publish(w *tlb0Entry, epn uint64, ts bool, lpid LPID, pid PID, rpn uint64, attr uint32) {
	w.rpn = rpn
	w.attr = attr
	w.pid = pid
	w.tag.Store(uint64(makeTLB0Tag(epn, ts, lpid, uint8(pid)&0xf)))
}

// Invalidate removes every entry whose LPID matches, e.g. on a partition
// stop. Invalidation clears tag first, the inverse order of publish, so a
// concurrent Lookup either sees the old valid entry or a miss, never a
// stale rpn paired with a fresh tag.
func (c *TLB0) Invalidate(lpid LPID) {
	for s := range c.sets {
		set := &c.sets[s]
		for i := range set.ways {
			w := &set.ways[i]
			tag := tlb0Tag(w.tag.Load())
			if tag&tlb0TagValidBit == 0 {
				continue
			}
			if (tag&tlb0TagLPIDMask)>>tlb0TagLPIDShift == tlb0Tag(lpid&0x3f) {
				w.tag.Store(0)
			}
		}
	}
}

// InvalidateAll clears the entire cache, e.g. on a full TLB0 flush (tlbia
// reflected from a guest, or a physical-core reassignment).
func (c *TLB0) InvalidateAll() {
	for s := range c.sets {
		set := &c.sets[s]
		for i := range set.ways {
			set.ways[i].tag.Store(0)
		}
	}
}
