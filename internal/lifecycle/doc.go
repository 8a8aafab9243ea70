// Package lifecycle drives a single member through the recovery restart:
// stop, write the recovery marker, start, and wait until it answers queries.
//
// Each member moves through the states
//
//	running -> stopping -> stopped -> reconfiguring -> starting -> ready | failed
//
// and every transition is published on the events bus. Stopping a member
// that is already stopped is a no-op.
//
// # Basic Usage
//
//	c := lifecycle.New(exec, querier, lifecycle.DefaultConfig())
//
//	if err := c.Stop(ctx, m); err != nil {
//	    return err
//	}
//	if err := c.WriteRecoveryMarker(ctx, m, leader.HostID); err != nil {
//	    return err
//	}
//	if err := c.StartAndWait(ctx, m, 5*time.Minute); err != nil {
//	    // errors.Is(err, errs.ErrStartupTimeout)
//	}
package lifecycle
