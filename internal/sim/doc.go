// Package sim provides an in-memory cluster that has lost group 0 quorum.
//
// A Cluster answers remote commands (nodetool, systemctl, marker writes)
// and system table statements the way real members would, records every
// call in order, and lets tests inject faults per member.
//
// # Basic Usage
//
//	c := sim.EntryLossScenario()
//	_ = c.Inject("10.0.0.1", sim.FaultNeverReady)
//
//	exec := c.Executor()
//	querier := c.Querier()
//	admin := nodetool.New(exec, "nodetool", c.Contacts())
//
//	// ... run a recovery against exec, querier and admin ...
//
//	for _, call := range c.CallsOf(sim.OpRemove) {
//	    fmt.Println(call.HostID, call.Ignore)
//	}
//
// # Presets
//
// GetPreset and ListPresets expose named clusters (entry-loss,
// leader-timeout, follower-timeout, many-dead, partial-history, degraded)
// used by the CLI simulate mode.
package sim
