package ppc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CoreControl is the per-physical-core hook the power-management
// coordinator drives: cache flush/disable on the way into nap, and the
// actual wait-for-interrupt/nap instruction itself.
type CoreControl interface {
	FlushAndDisableCache(ctx context.Context) error
	Nap(ctx context.Context) error
	Wake(ctx context.Context) error
}

// SyncNap coordinates a synchronized nap across a set of physical cores:
// every participating core must flush and disable its cache before any of
// them actually naps, since a core left running with another core's cache
// disabled could see stale data. The boot core (the caller of Coordinate)
// drives the barrier; the errgroup fans the flush phase out across cores
// and waits for all of them before admitting any core to the actual nap.
type SyncNap struct {
	cores []CoreControl
}

// NewSyncNap returns a coordinator for the given set of physical cores.
func NewSyncNap(cores []CoreControl) *SyncNap {
	return &SyncNap{cores: cores}
}

// Coordinate runs one synchronized nap/wake cycle: flush+disable cache on
// every core concurrently, barrier, nap every core concurrently, then (once
// woken) bring every core back up concurrently. It returns the first error
// from any phase; a flush failure on one core aborts the whole cycle
// before any core naps.
func (s *SyncNap) Coordinate(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.cores {
		c := c
		g.Go(func() error { return c.FlushAndDisableCache(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	for _, c := range s.cores {
		c := c
		g.Go(func() error { return c.Nap(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	for _, c := range s.cores {
		c := c
		g.Go(func() error { return c.Wake(gctx) })
	}
	return g.Wait()
}

// IdleLoop runs a single core's idle policy: flush and disable its cache,
// nap, and on wake hand control back to the caller. Used by a core that is
// idling independently rather than as part of a SyncNap barrier (e.g. a
// vCPU with no runnable guest work but whose partition is not napping the
// whole board).
func IdleLoop(ctx context.Context, c CoreControl) error {
	if err := c.FlushAndDisableCache(ctx); err != nil {
		return err
	}
	if err := c.Nap(ctx); err != nil {
		return err
	}
	return c.Wake(ctx)
}
