package batch

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paperlens/paperlens/internal/core"
)

// Options tune one executor run.
//
// BatchSize:    units processed concurrently per batch (default 5).
// ReclaimEvery: completed-unit interval between resource reclamations
//               (default 5). Reclamation runs at batch boundaries.
// Weight:       progress span of this run within its stage (default 100).
// BaseOffset:   progress value the run starts from.
// Reclaim:      reclamation hook; defaults to runtime.GC.
// Progress:     progress callback, called with BaseOffset + floor(done/n*Weight).
type Options struct {
	BatchSize    int
	ReclaimEvery int
	Weight       int
	BaseOffset   int
	Reclaim      func()
	Progress     func(percent int)
}

// UnitFunc processes the unit at the given zero-based index.
type UnitFunc func(ctx context.Context, index int) error

// Run processes n units in fixed-size batches. Units inside a batch run
// concurrently; batches are sequential so peak memory stays bounded by
// BatchSize. A unit's failure does not abort the run: failures are collected
// and returned once as a *core.BatchError after all units finish. Only a
// context cancellation stops the run early.
func Run(ctx context.Context, n int, opts Options, fn UnitFunc) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.ReclaimEvery <= 0 {
		opts.ReclaimEvery = 5
	}
	if opts.Weight <= 0 {
		opts.Weight = 100
	}
	if opts.Reclaim == nil {
		opts.Reclaim = runtime.GC
	}

	var (
		mu     sync.Mutex
		failed = map[int]error{}
		done   int
	)

	report := func() {
		if opts.Progress != nil {
			opts.Progress(opts.BaseOffset + done*opts.Weight/n)
		}
	}

	for start := 0; start < n; start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + opts.BatchSize
		if end > n {
			end = n
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				err := fn(gctx, i)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return err
					}
					failed[i] = err
				}
				done++
				report()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Reclaim at the batch boundary whenever a ReclaimEvery mark was
		// crossed; this is what keeps hundred-page documents in bounds.
		if done/opts.ReclaimEvery > start/opts.ReclaimEvery {
			opts.Reclaim()
		}
	}

	if len(failed) > 0 {
		return &core.BatchError{Failed: failed}
	}
	return nil
}
