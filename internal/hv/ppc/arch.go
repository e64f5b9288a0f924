// Package ppc implements a software partitioning hypervisor for the
// e500mc/Book-E PowerPC architecture: per-partition guest-physical page
// tables, a TLB1 multiplexer and TLB0 software cache, a virtual/virtualized
// PIC pair, and the vCPU trap loop that ties them together.
//
// The bit layouts in this file are architecture-defined (Book-E MAS
// registers and the hypervisor's own page-table attribute word) and must
// stay bit-exact; they are kept in one place rather than re-derived at
// each call site.
package ppc

// Page sizes the hypervisor deals in, expressed as TLB TSIZE encodings
// (log2(page bytes) = 10 + 2*tsize). TLB_TSIZE_4M is the boundary between
// "level 0, base pages" and "level 1, large pages" in the gphys page table.
const (
	TSIZE4K  = 1
	TSIZE16K = 2
	TSIZE64K = 3
	TSIZE256K = 4
	TSIZE1M  = 5
	TSIZE4M  = 6
	TSIZE16M = 7
	TSIZE64M = 8
	TSIZE256M = 9
	TSIZE1G  = 10

	TLBTSize4M = TSIZE4M
)

// PageSizeBytes returns the page size, in bytes, for a TLB TSIZE encoding.
func PageSizeBytes(tsize uint8) uint64 {
	return uint64(1) << (10 + 2*uint(tsize))
}

// Page-table attribute word bits (the hypervisor's own format, not a raw
// MAS encoding, but constructed to translate directly into MAS2/MAS3/MAS8).
const (
	AttrValid uint32 = 1 << 0
	AttrGlobal uint32 = 1 << 1

	// Per-mode rights, mirroring MAS3 UX/UW/UR/SX/SW/SR.
	AttrUserRead    uint32 = 1 << 2
	AttrUserWrite   uint32 = 1 << 3
	AttrUserExec    uint32 = 1 << 4
	AttrSuperRead   uint32 = 1 << 5
	AttrSuperWrite  uint32 = 1 << 6
	AttrSuperExec   uint32 = 1 << 7

	AttrEndianLE    uint32 = 1 << 8 // MAS2 E
	AttrCacheInhibit uint32 = 1 << 9 // MAS2 I
	AttrGuarded     uint32 = 1 << 10 // MAS2 G
	AttrWriteThrough uint32 = 1 << 11 // MAS2 W
	AttrMemCoherent uint32 = 1 << 12 // MAS2 M

	AttrVF  uint32 = 1 << 13 // virtualization fault: trap to hypervisor on access
	AttrGS  uint32 = 1 << 14 // guest-space: MAS8 GS bit to apply
	AttrDMA uint32 = 1 << 15 // page is DMA-mapped (PAMU window present)

	// TSIZE of the mapping a PTE belongs to, stored in bits 24-29: a
	// bottom-level PTE carries the size (TSIZE4K up to TSIZE1M) of the
	// run it was installed as part of; a top-level leaf carries a
	// large-page size (>= TLBTSize4M) and ends the walk there.
	AttrSizeShift = 24
	AttrSizeMask  = 0x3f << AttrSizeShift
)

// AttrSize extracts the TSIZE-like log-page-size field from an attribute word.
func AttrSize(attr uint32) uint8 {
	return uint8((attr & AttrSizeMask) >> AttrSizeShift)
}

// WithAttrSize returns attr with its size field set to tsize.
func WithAttrSize(attr uint32, tsize uint8) uint32 {
	return (attr &^ AttrSizeMask) | (uint32(tsize) << AttrSizeShift)
}

// MAS register fields relevant to the TLB1 multiplexer and TLB0 cache.
// These mirror the real Book-E MAS0-MAS8 layout closely enough to translate
// 1:1 with the page-table attribute word above; they are not a complete
// MAS encoding (reserved/don't-care bits are omitted).
type MAS struct {
	MAS0 uint32 // TLBSEL, ESEL
	MAS1 uint32 // V, IPROT, TID (PID), TS, TSIZE
	MAS2 uint32 // EPN, flags (E, I, G, W, M, VLE)
	MAS3 uint32 // RPN low bits, rights (UX/UW/UR/SX/SW/SR), U0-U3
	MAS7 uint32 // RPN high bits
	MAS8 uint32 // TGS, VF, LPID
}

const (
	MAS1Valid  uint32 = 1 << 31
	MAS1IProt  uint32 = 1 << 30
	MAS1TSizeShift = 7
	MAS1TSizeMask  = 0xf << MAS1TSizeShift
	MAS1TIDShift   = 16
	MAS1TIDMask    = 0x3fff << MAS1TIDShift
	MAS1TS     uint32 = 1 << 12

	MAS3RightsMask uint32 = 0x3f // SR SW SX UR UW UX, bits 0-5

	MAS8TGS  uint32 = 1 << 27
	MAS8VF   uint32 = 1 << 26
	MAS8LPIDMask uint32 = 0x3f
)

// LPID is a 6-bit Logical Partition Identifier.
type LPID uint8

const MaxLPID LPID = 63

// PID is the 14-bit process ID Book-E tags translations with.
type PID uint16

// TLB1GSize is the number of TLB1 entries the guest is shown, regardless of
// how many real hardware TLB1 entries the hypervisor actually has.
const TLB1GSize = 16

// TLB1Size and TLB1Rsvd describe the real hardware TLB1: TLB1Size total
// entries, the top TLB1Rsvd of which ([TLB1Size-TLB1Rsvd, TLB1Size)) are
// reserved for the hypervisor's own mappings and never handed to a guest.
const (
	TLB1Size = 64
	TLB1Rsvd = 4
)

// MaxVInt is the maximum number of VPIC virtual IRQs per partition.
const MaxVInt = 64

// MaxFastDoorbells is the hardware-imposed ceiling on fast (hardware-IPI)
// doorbells system-wide.
const MaxFastDoorbells = 4

// HandleTableSize is the capacity of a partition's handle table.
const HandleTableSize = 1024
