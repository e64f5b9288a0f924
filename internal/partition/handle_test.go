package partition

import "testing"

func TestHandleTableAllocAndGet(t *testing.T) {
	var tbl HandleTable
	h, err := tbl.Alloc("first")
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	obj, err := tbl.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj != "first" {
		t.Fatalf("Get(%d) = %v, want %q", h, obj, "first")
	}
}

func TestHandleTableAllocAtRejectsReuse(t *testing.T) {
	var tbl HandleTable
	if err := tbl.AllocAt(0, "stdout"); err != nil {
		t.Fatalf("AllocAt: %v", err)
	}
	if err := tbl.AllocAt(0, "again"); err == nil {
		t.Fatalf("AllocAt on an already-used handle: expected an error")
	}
}

func TestHandleTableFreeAndReuse(t *testing.T) {
	var tbl HandleTable
	h, err := tbl.Alloc("a")
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := tbl.Free(h); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, err := tbl.Get(h); err != ErrBadHandle {
		t.Fatalf("Get after Free: err = %v, want ErrBadHandle", err)
	}
	if _, err := tbl.Alloc("b"); err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
}

func TestHandleTableFull(t *testing.T) {
	var tbl HandleTable
	for i := 0; i < len(tbl.entries); i++ {
		if _, err := tbl.Alloc(i); err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
	}
	if _, err := tbl.Alloc("overflow"); err != ErrHandleTableFull {
		t.Fatalf("Alloc past capacity: err = %v, want ErrHandleTableFull", err)
	}
}
