package ppc

import "testing"

type fakeTLB1Writer struct {
	written []uint8
}

func (f *fakeTLB1Writer) WriteReal(index uint8, epn, rpn uint64, size uint8, attr uint32, lpid LPID) {
	f.written = append(f.written, index)
}

func (f *fakeTLB1Writer) InvalidateReal(index uint8) {
	for i, idx := range f.written {
		if idx == index {
			f.written = append(f.written[:i], f.written[i+1:]...)
			return
		}
	}
}

func TestTLB1WriteAndInvalidate(t *testing.T) {
	g := NewGuestPhys()
	if err := g.Map(0, 0x1000, 256, AttrValid|AttrSuperWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}
	hw := &fakeTLB1Writer{}
	tl := NewTLB1(3, g, hw)

	entry := GuestTLB1Entry{Valid: true, EPN: 0, RPN: 0, Size: TSIZE1M, MAS3: MAS3RightsMask}
	if err := tl.Write(0, entry); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(hw.written) == 0 {
		t.Fatalf("Write: expected at least one real fragment installed")
	}
	got, ok := tl.Read(0)
	if !ok || !got.Valid {
		t.Fatalf("Read(0) = %+v, %v, want a valid entry", got, ok)
	}

	before := tl.FreeCount()
	tl.Invalidate(0)
	if len(hw.written) != 0 {
		t.Fatalf("Invalidate: expected all real fragments released, got %v", hw.written)
	}
	if tl.FreeCount() <= before {
		t.Fatalf("FreeCount after Invalidate = %d, want > %d", tl.FreeCount(), before)
	}
}

func TestTLB1Exhaustion(t *testing.T) {
	g := NewGuestPhys()
	// One real-physical page per guest-physical page, all 4 KiB and
	// non-contiguous in a way that defeats the large-page collapse, so
	// each guest entry consumes real TLB1 slots one at a time until the
	// hardware array is exhausted.
	for i := uint64(0); i < usableRealEntries+4; i++ {
		if err := g.Map(i, i*2, 1, AttrValid|AttrSuperWrite); err != nil {
			t.Fatalf("Map(%d): %v", i, err)
		}
	}
	hw := &fakeTLB1Writer{}
	tl := NewTLB1(0, g, hw)

	var lastErr error
	for i := 0; i < TLB1GSize; i++ {
		e := GuestTLB1Entry{Valid: true, EPN: uint64(i) * 16, RPN: uint64(i) * 16, Size: TSIZE64K, MAS3: MAS3RightsMask}
		if err := tl.Write(i, e); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr != ErrTLB1Exhausted {
		t.Fatalf("expected ErrTLB1Exhausted once the real TLB1 fills, got %v", lastErr)
	}
}

func TestTLB1InvalidateAll(t *testing.T) {
	g := NewGuestPhys()
	if err := g.Map(0, 0, 16, AttrValid|AttrSuperWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}
	hw := &fakeTLB1Writer{}
	tl := NewTLB1(0, g, hw)
	for i := 0; i < 3; i++ {
		e := GuestTLB1Entry{Valid: true, EPN: 0, RPN: 0, Size: TSIZE16K, MAS3: MAS3RightsMask}
		if err := tl.Write(i, e); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	tl.InvalidateAll()
	if len(hw.written) != 0 {
		t.Fatalf("InvalidateAll: expected no real fragments left, got %v", hw.written)
	}
	if tl.FreeCount() != usableRealEntries {
		t.Fatalf("FreeCount after InvalidateAll = %d, want %d", tl.FreeCount(), usableRealEntries)
	}
}
