// Package cluster reads the externally observable group 0 state of a
// cluster without changing it.
//
// A StateReader combines the admin tool (membership and liveness) with
// per-member queries (latest group 0 history entry, current group 0 id).
//
// # Basic Usage
//
//	r := cluster.NewStateReader(admin, querier, 0)
//
//	alive, dead, err := r.ObserveMembership(ctx)
//	if err != nil {
//	    return err
//	}
//
//	// Members that do not answer are omitted, not reported as errors
//	obs := r.ObserveHistoryOf(ctx, alive)
//
//	groupID, err := r.GroupID(ctx, alive)
//
// # Thread Safety
//
// History queries fan out to all members in parallel. A StateReader holds
// no mutable state and can be shared.
package cluster
