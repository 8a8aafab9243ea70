// Package leader chooses the recovery leader from group 0 history observations.
package leader

import (
	"group0-recovery/internal/cluster"
	"group0-recovery/internal/errs"
	"group0-recovery/internal/logger"
)

// Select は最も新しいstate_idを持つ観測を返す
// タイムスタンプが同じ場合は先に現れた観測を採用する
func Select(obs []cluster.Observation) (cluster.Observation, error) {
	if len(obs) == 0 {
		return cluster.Observation{}, errs.ErrEmptyObservationSet
	}

	best := obs[0]
	for _, o := range obs[1:] {
		if o.StateID.CompareTime(best.StateID) > 0 {
			best = o
		}
	}

	logger.Info(best.Member.Address, "Selected as recovery leader (state_id %s, %d candidates)", best.StateID, len(obs))
	return best, nil
}
