// Package metrics counts the per-member operations of a recovery run.
//
// Every remote action (stop, start, write-marker, wait-ready, remove, purge ...)
// is recorded under its operation name together with its latency, so the
// final report can show how many of each succeeded or failed and how long
// the slowest one took.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	err := doStop(ctx)
//	m.Observe("stop", start, err)
//
//	snap := m.Snapshot()
//	for _, op := range snap.Ops {
//	    fmt.Printf("%s: %d ok, %d failed, max %v\n", op.Op, op.Success, op.Failed, op.MaxLatency)
//	}
//
// # Thread Safety
//
// Totals use atomic counters and the per-operation table is guarded by a
// mutex; all methods are safe for concurrent use. Observe is a no-op on a
// nil *Metrics.
package metrics
