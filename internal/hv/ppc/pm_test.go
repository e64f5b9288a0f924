package ppc

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeCore struct {
	mu                  sync.Mutex
	flushed, napped, woke bool
	failFlush           bool
}

func (c *fakeCore) FlushAndDisableCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFlush {
		return errors.New("flush failed")
	}
	c.flushed = true
	return nil
}

func (c *fakeCore) Nap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.napped = true
	return nil
}

func (c *fakeCore) Wake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.woke = true
	return nil
}

func TestSyncNapCoordinatesAllCores(t *testing.T) {
	cores := []*fakeCore{{}, {}, {}}
	ctrl := make([]CoreControl, len(cores))
	for i, c := range cores {
		ctrl[i] = c
	}
	s := NewSyncNap(ctrl)
	if err := s.Coordinate(context.Background()); err != nil {
		t.Fatalf("Coordinate: %v", err)
	}
	for i, c := range cores {
		if !c.flushed || !c.napped || !c.woke {
			t.Fatalf("core %d: flushed=%v napped=%v woke=%v, want all true", i, c.flushed, c.napped, c.woke)
		}
	}
}

func TestSyncNapAbortsOnFlushFailure(t *testing.T) {
	bad := &fakeCore{failFlush: true}
	good := &fakeCore{}
	s := NewSyncNap([]CoreControl{bad, good})
	if err := s.Coordinate(context.Background()); err == nil {
		t.Fatalf("Coordinate: expected the flush failure to propagate")
	}
	if good.napped {
		t.Fatalf("a flush failure on one core must prevent any core from napping")
	}
}

func TestIdleLoop(t *testing.T) {
	c := &fakeCore{}
	if err := IdleLoop(context.Background(), c); err != nil {
		t.Fatalf("IdleLoop: %v", err)
	}
	if !c.flushed || !c.napped || !c.woke {
		t.Fatalf("IdleLoop: flushed=%v napped=%v woke=%v, want all true", c.flushed, c.napped, c.woke)
	}
}
