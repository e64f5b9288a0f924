package ppc

import (
	"errors"
	"sync"
)

// ErrMappingConflict is returned when map() is asked to install a small
// mapping inside an existing large-page slot. The original hypervisor
// silently dropped this request (a FIXME in its source); here it is an
// explicit, reportable error instead.
var ErrMappingConflict = errors.New("ppc: gphys mapping conflicts with an existing large-page entry")

// ErrInvalidRange is returned by GetRPN when the requested guest-physical
// range is not contiguous, not DMA-mapped, or not writable.
var ErrInvalidRange = errors.New("ppc: guest-physical range is not a valid contiguous DMA buffer")

const (
	pgDirBits  = 10 // 1024 entries per level
	pgDirSize  = 1 << pgDirBits
	pgDirMask  = pgDirSize - 1
	pageShift  = 12 // 4 KiB base page
	pgDirShift = pageShift + pgDirBits
)

// pte is one page-table entry: a real page frame number plus the
// hypervisor's attribute word (see arch.go). A valid bottom-level pte maps
// one 4 KiB page and carries in AttrSize(attr) the TSIZE of the run it was
// installed as part of; a valid level1Entry leaf maps a large page
// (AttrSize(attr) >= TLBTSize4M).
type pte struct {
	rpn  uint64
	attr uint32
}

func (p pte) valid() bool { return p.attr&AttrValid != 0 }
func (p pte) dma() bool   { return p.attr&AttrDMA != 0 }

// level0 is the bottom-level table: pte is itself a leaf once reached.
type level0 struct {
	entries [pgDirSize]pte
}

// level1 entries are either a leaf (large page, AttrSize(attr) >= TLBTSize4M)
// or a pointer to a level0 table (AttrSize(attr) == 0, valid == false is used
// as the "has child table" discriminant via the child pointer itself).
type level1Entry struct {
	leaf  pte
	child *level0
}

// GuestPhys is the two-level guest-physical -> real-physical page table for
// one partition, plus its reverse map. A zero value is an empty map (every
// guest-physical page invalid).
type GuestPhys struct {
	mu  sync.RWMutex
	top [pgDirSize]level1Entry

	// rev maps a real page frame number back to the guest-physical page
	// number that owns it, for the handful of operations (claim/release,
	// diagnostics) that need the reverse direction. Only tracked for
	// base (4 KiB) pages, mirroring gphys_rev's original scope.
	rev map[uint64]uint64
}

// NewGuestPhys returns an empty guest-physical page table.
func NewGuestPhys() *GuestPhys {
	return &GuestPhys{rev: make(map[uint64]uint64)}
}

func maxPageSize(epn, remaining uint64) uint8 {
	// Largest TSIZE such that the page is aligned to epn and does not
	// overrun remaining pages (remaining measured in 4 KiB pages).
	best := uint8(TSIZE4K)
	for tsize := uint8(TSIZE1G); tsize >= TSIZE4K; tsize-- {
		pages := PageSizeBytes(tsize) >> pageShift
		if pages == 0 {
			continue
		}
		if epn%pages == 0 && remaining >= pages {
			best = tsize
			break
		}
	}
	return best
}

func naturalAlignment(rpn uint64) uint8 {
	if rpn == 0 {
		return TSIZE1G
	}
	best := uint8(TSIZE4K)
	for tsize := uint8(TSIZE1G); tsize >= TSIZE4K; tsize-- {
		pages := PageSizeBytes(tsize) >> pageShift
		if rpn%pages == 0 {
			best = tsize
			break
		}
	}
	return best
}

// Map greedily installs the largest power-of-two page sizes consistent with
// both the guest-physical and real-physical alignments until [epn,
// epn+npages) is covered.
func (g *GuestPhys) Map(epn, rpn uint64, npages uint64, attr uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining := npages
	for remaining > 0 {
		tsize := maxPageSize(epn, remaining)
		if a := naturalAlignment(rpn); a < tsize {
			tsize = a
		}
		if err := g.installLocked(epn, rpn, tsize, attr); err != nil {
			return err
		}
		pages := PageSizeBytes(tsize) >> pageShift
		epn += pages
		rpn += pages
		remaining -= pages
	}
	return nil
}

func (g *GuestPhys) installLocked(epn, rpn uint64, tsize uint8, attr uint32) error {
	topIdx := (epn >> pgDirBits) & pgDirMask
	entry := &g.top[topIdx]
	pages := PageSizeBytes(tsize) >> pageShift

	if tsize >= TLBTSize4M {
		// Large page: becomes (or overwrites) the level-1 leaf of
		// every top-level slot it spans. If a level-0 child table
		// exists under it, the large page supersedes it entirely; the
		// caller guarantees the existing small mappings are a subset
		// of the new large page's rights.
		for i := uint64(0); i < pages/pgDirSize; i++ {
			e := &g.top[(topIdx+i)&pgDirMask]
			e.child = nil
			e.leaf = pte{rpn: rpn, attr: WithAttrSize(attr|AttrValid, tsize)}
		}
		return nil
	}

	if entry.leaf.valid() && AttrSize(entry.leaf.attr) >= TLBTSize4M {
		// A small mapping landing inside an existing large-page slot
		// is rejected outright: the large page already provides a
		// superset of rights, so failing loudly beats a silent drop.
		return ErrMappingConflict
	}

	if entry.child == nil {
		entry.child = &level0{}
	}
	botIdx := epn & pgDirMask
	for i := uint64(0); i < pages; i++ {
		entry.child.entries[botIdx+i] = pte{rpn: rpn + i, attr: WithAttrSize(attr|AttrValid, tsize)}
		g.rev[rpn+i] = epn + i
	}
	return nil
}

// Xlate returns the real page number covering epn and its attribute word.
// If the covering slot is invalid it returns ok == false and skipMask set to
// the number of guest-physical pages that can be skipped before the next
// possibly-valid slot, letting callers advance past a hole without walking
// it page by page. If dma is true, DMA-mapped (not merely Valid) is the
// presence test.
func (g *GuestPhys) Xlate(epn uint64, dma bool) (rpn uint64, attr uint32, ok bool, skipPages uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	topIdx := (epn >> pgDirBits) & pgDirMask
	entry := &g.top[topIdx]

	present := func(p pte) bool {
		if dma {
			return p.dma()
		}
		return p.valid()
	}

	if entry.child == nil {
		if present(entry.leaf) {
			size := AttrSize(entry.leaf.attr)
			pages := PageSizeBytes(size) >> pageShift
			off := epn % pages
			return entry.leaf.rpn + off, entry.leaf.attr, true, 0
		}
		return 0, 0, false, pgDirSize - (epn & pgDirMask)
	}

	botIdx := epn & pgDirMask
	p := entry.child.entries[botIdx]
	if present(p) {
		return p.rpn, p.attr, true, 0
	}
	return 0, 0, false, 1
}

// GetRPN verifies that [grpn, grpn+npages) is contiguous in real-physical
// space, DMA-mapped, and writable, returning the starting rpn. Used by
// hypercalls (e.g. err_get_info) that hand memory buffers to the
// hypervisor.
func (g *GuestPhys) GetRPN(grpn uint64, npages uint64) (uint64, error) {
	if npages == 0 {
		return 0, ErrInvalidRange
	}
	start, attr, ok, _ := g.Xlate(grpn, true)
	if !ok || attr&AttrSuperWrite == 0 {
		return 0, ErrInvalidRange
	}
	for i := uint64(1); i < npages; i++ {
		rpn, a, ok, _ := g.Xlate(grpn+i, true)
		if !ok || a&AttrSuperWrite == 0 || rpn != start+i {
			return 0, ErrInvalidRange
		}
	}
	return start, nil
}

// gphysMapping is one leaf entry as recorded for warm-reboot persistence.
type gphysMapping struct {
	EPN   uint64
	RPN   uint64
	Pages uint64
	Attr  uint32
}

// dumpMappings walks the full table and returns every valid leaf as a
// single flat list, merging nothing back together: a large page and the
// base pages it was fractured from (there never are both at once for the
// same range, by installLocked's construction) are each emitted as found.
func (g *GuestPhys) dumpMappings() []gphysMapping {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []gphysMapping
	for topIdx, entry := range g.top {
		if entry.child == nil {
			if entry.leaf.valid() {
				size := AttrSize(entry.leaf.attr)
				pages := PageSizeBytes(size) >> pageShift
				epn := uint64(topIdx) << pgDirBits
				if epn%pages == 0 {
					out = append(out, gphysMapping{EPN: epn, RPN: entry.leaf.rpn, Pages: pages, Attr: entry.leaf.attr})
				}
			}
			continue
		}
		for botIdx, p := range entry.child.entries {
			if !p.valid() {
				continue
			}
			epn := uint64(topIdx)<<pgDirBits | uint64(botIdx)
			out = append(out, gphysMapping{EPN: epn, RPN: p.rpn, Pages: 1, Attr: p.attr})
		}
	}
	return out
}
