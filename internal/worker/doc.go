// Package worker provides a goroutine pool for fanning out per-member work
// within a single recovery phase.
//
// # Basic Usage
//
//	err := worker.ForEach(ctx, 4, members, func(ctx context.Context, m node.Member) {
//	    // stop, check or purge one member
//	})
//
// ForEach blocks until every submitted job has finished. Cancellation is
// delivered through the ctx handed to each job; jobs already queued still run
// so that per-member bookkeeping is never skipped.
//
// # Pool
//
// The underlying Pool manages a fixed number of worker goroutines reading from
// a shared queue:
//
//	pool := worker.NewPool(4)
//	pool.Start(ctx)
//	defer pool.Stop()
//	pool.SubmitWait(func() { ... })
//
// Stop() waits for running jobs to return before closing the queue.
package worker
