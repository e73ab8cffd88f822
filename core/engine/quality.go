package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"hospital-abc/core/types"
)

// deviationWarnings flags driver values sitting more than threshold
// standard deviations from the mean of the pool's weights. Needs at least
// three values to say anything.
func deviationWarnings(driverID string, pool types.CostPool, weights []weight, threshold float64) []string {
	if threshold <= 0 || len(weights) < 3 {
		return nil
	}

	n := float64(len(weights))
	var sum float64
	for _, w := range weights {
		sum += w.value.InexactFloat64()
	}
	mean := sum / n

	var sq float64
	for _, w := range weights {
		d := w.value.InexactFloat64() - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)
	if std == 0 {
		return nil
	}

	var out []string
	for _, w := range weights {
		z := math.Abs(w.value.InexactFloat64()-mean) / std
		if z > threshold {
			out = append(out, fmt.Sprintf("driver %s value for %s in pool %s deviates %.1fσ from the mean (%s vs %.2f)",
				driverID, w.targetID, pool.ID, z, w.value.String(), mean))
		}
	}
	return out
}

// driftWarnings reports mappings whose rules belong to this stage and whose
// ratios are not in sync with their driver
func (e *Engine) driftWarnings(ctx context.Context, sr *stageRun) []string {
	if e.mappings == nil || len(sr.rules) == 0 {
		return nil
	}

	mappings, err := e.mappings.List(ctx)
	if err != nil {
		e.logger.Warn("list driver mappings", zap.Error(err))
		return nil
	}

	inStage := make(map[string]bool, len(sr.rules))
	for _, r := range sr.rules {
		inStage[r.ID] = true
	}

	var out []string
	for _, m := range mappings {
		if !inStage[m.AllocationRuleID] {
			continue
		}
		switch m.SyncStatus {
		case types.SyncOutOfSync:
			out = append(out, fmt.Sprintf("mapping %s: rule %s is out of sync with driver %s", m.ID, m.AllocationRuleID, m.DriverID))
		case types.SyncError:
			out = append(out, fmt.Sprintf("mapping %s: last sync of rule %s failed", m.ID, m.AllocationRuleID))
		}
	}
	return out
}
