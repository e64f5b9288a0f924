package ppc

import "testing"

func TestWarmRebootRoundTrip(t *testing.T) {
	g := NewGuestPhys()
	if err := g.Map(0, 0x4000, 4, AttrValid|AttrSuperWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := g.Map(50, 0x8000, 1, AttrValid|AttrSuperRead); err != nil {
		t.Fatalf("Map: %v", err)
	}

	blob := CaptureWarmReboot(7, g)

	g2 := NewGuestPhys()
	lpid, err := RestoreWarmReboot(blob, g2)
	if err != nil {
		t.Fatalf("RestoreWarmReboot: %v", err)
	}
	if lpid != 7 {
		t.Fatalf("restored lpid = %d, want 7", lpid)
	}

	rpn, _, ok, _ := g2.Xlate(2, false)
	if !ok || rpn != 0x4002 {
		t.Fatalf("Xlate(2) after restore = %#x, %v, want 0x4002, true", rpn, ok)
	}
}

func TestWarmRebootBadMagic(t *testing.T) {
	g := NewGuestPhys()
	if _, err := RestoreWarmReboot([]byte{0, 0, 0, 0}, g); err != ErrWarmRebootBadMagic {
		t.Fatalf("RestoreWarmReboot with garbage: err = %v, want ErrWarmRebootBadMagic", err)
	}
}

func TestWarmRebootCorruptedChecksum(t *testing.T) {
	g := NewGuestPhys()
	if err := g.Map(0, 0x1000, 1, AttrValid); err != nil {
		t.Fatalf("Map: %v", err)
	}
	blob := CaptureWarmReboot(1, g)
	blob[len(blob)-1] ^= 0xff

	g2 := NewGuestPhys()
	if _, err := RestoreWarmReboot(blob, g2); err == nil {
		t.Fatalf("RestoreWarmReboot with a flipped mapping byte: expected a checksum error")
	}
}
