package engine

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"hospital-abc/core/catalog"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

var hundred = decimal.NewFromInt(100)

// weight is one target's share basis within a pool
type weight struct {
	targetID string
	value    decimal.Decimal
}

type poolOutput struct {
	results  []types.AllocationResult
	warnings []string
	retained bool
}

// allocatePool splits one pool across its targets. It only reads sr.
func (e *Engine) allocatePool(sr *stageRun, pool types.CostPool) (poolOutput, error) {
	switch sr.spec.weights {
	case weightsDirect:
		return e.allocateDirect(sr, pool)
	case weightsRule:
		return e.allocateByRule(sr, pool)
	default:
		return e.allocateByDriver(sr, pool, e.poolTargets(sr, pool))
	}
}

// poolTargets resolves a pool's target set: its own TargetIDs, else the
// union of targets of active stage rules allocating from it, in priority
// order. Nil means unscoped.
func (e *Engine) poolTargets(sr *stageRun, pool types.CostPool) []string {
	if len(pool.TargetIDs) > 0 {
		return pool.TargetIDs
	}
	seen := make(map[string]bool)
	var targets []string
	for _, r := range sr.rules {
		if !r.HasSource(pool.ID) {
			continue
		}
		for _, t := range r.TargetIDs {
			if !seen[t] {
				seen[t] = true
				targets = append(targets, t)
			}
		}
	}
	return targets
}

func (e *Engine) allocateByDriver(sr *stageRun, pool types.CostPool, targets []string) (poolOutput, error) {
	var out poolOutput
	if sr.driver == nil {
		return out, errors.Config("no driver available for pool %s", pool.ID)
	}

	var weights []weight
	if targets == nil {
		// Only the first stage spreads an unscoped pool over every measured entity.
		if sr.spec.stage != types.StageRTR {
			if pool.Derived {
				out.retained = true
				return out, nil
			}
			return out, errors.Config("no targets configured for pool %s", pool.ID)
		}
		for _, v := range sr.values {
			if v.SourceType != sr.spec.target {
				continue
			}
			weights = append(weights, weight{targetID: v.SourceID, value: v.Value})
		}
	} else {
		byTarget := make(map[string]decimal.Decimal, len(sr.values))
		measured := make(map[string]bool, len(sr.values))
		for _, v := range sr.values {
			byTarget[v.SourceID] = byTarget[v.SourceID].Add(v.Value)
			measured[v.SourceID] = true
		}
		for _, t := range targets {
			if measured[t] {
				weights = append(weights, weight{targetID: t, value: byTarget[t]})
			}
		}
	}

	if len(weights) == 0 {
		return out, errors.Config("driver %s has no values for pool %s", sr.driver.ID, pool.ID)
	}
	if !sumWeights(weights).IsPositive() {
		return out, errors.Config("driver %s values for pool %s sum to zero", sr.driver.ID, pool.ID)
	}

	out.warnings = deviationWarnings(sr.driver.ID, pool, weights, e.opts.DeviationThreshold)
	out.results = e.distribute(sr, pool, weights, sr.driver.ID, sr.driver.Name)
	return out, nil
}

func (e *Engine) allocateByRule(sr *stageRun, pool types.CostPool) (poolOutput, error) {
	var out poolOutput

	var owner *types.AllocationRule
	for _, r := range sr.rules {
		if ratios := r.RatiosFor(pool.ID); len(ratios) > 0 {
			weights := make([]weight, 0, len(ratios))
			for _, ar := range ratios {
				if ar.Ratio.IsNegative() {
					return out, errors.Config("rule %s ratio %s -> %s is negative", r.ID, pool.ID, ar.TargetID)
				}
				weights = append(weights, weight{targetID: ar.TargetID, value: ar.Ratio})
			}
			if !sumWeights(weights).IsPositive() {
				return out, errors.Config("rule %s ratios for %s sum to zero", r.ID, pool.ID)
			}
			if !catalog.RatioSumWithin(ratios, e.opts.RatioTolerance) {
				out.warnings = append(out.warnings, fmt.Sprintf(
					"rule %s: ratios for %s sum to %s, normalized to 1", r.ID, pool.ID, sumWeights(weights).StringFixed(4)))
			}
			out.results = e.distribute(sr, pool, weights, r.DriverID, "rule "+r.ID)
			return out, nil
		}
		if owner == nil && r.HasSource(pool.ID) {
			owner = r
		}
	}

	// Without stored ratios fall back to a configured driver over the rule's targets.
	if sr.driver != nil {
		targets := pool.TargetIDs
		if len(targets) == 0 && owner != nil {
			targets = owner.TargetIDs
		}
		if len(targets) > 0 {
			return e.allocateByDriver(sr, pool, targets)
		}
	}

	if pool.Derived {
		out.retained = true
		return out, nil
	}
	return out, errors.Config("no allocation ratios configured for pool %s", pool.ID)
}

func (e *Engine) allocateDirect(sr *stageRun, pool types.CostPool) (poolOutput, error) {
	var out poolOutput

	target, driverID := pool.TargetID, ""
	for _, r := range sr.rules {
		if !r.HasSource(pool.ID) {
			continue
		}
		if target == "" && len(r.TargetIDs) > 0 {
			target = r.TargetIDs[0]
		}
		driverID = r.DriverID
		break
	}
	if target == "" {
		if pool.Derived {
			out.retained = true
			return out, nil
		}
		return out, errors.Config("no target configured for pool %s", pool.ID)
	}

	out.results = []types.AllocationResult{{
		ID:                e.ids.Generate(sr.runID, string(sr.spec.stage), pool.ID, target, "0"),
		Stage:             sr.spec.stage,
		SourceID:          pool.ID,
		SourceType:        sourceType(sr, pool),
		TargetID:          target,
		TargetType:        sr.spec.target,
		Amount:            e.round(pool.Amount),
		DriverID:          driverID,
		DriverRatio:       decimal.NewFromInt(1),
		CalculationMethod: sr.spec.tag,
		ExecutionTime:     sr.at,
		Notes:             fmt.Sprintf("%s: 100.00%% assigned directly to %s", pool.Label(), target),
	}}
	return out, nil
}

// distribute emits one result per weight. With rounding enabled the
// residual lands on the largest share so the pool still sums exactly.
func (e *Engine) distribute(sr *stageRun, pool types.CostPool, weights []weight, driverID, basis string) []types.AllocationResult {
	total := sumWeights(weights)
	results := make([]types.AllocationResult, len(weights))

	allocated := decimal.Zero
	largest := 0
	for i, w := range weights {
		ratio := w.value.Div(total)
		amount := e.round(pool.Amount.Mul(w.value).Div(total))
		allocated = allocated.Add(amount)
		if w.value.GreaterThan(weights[largest].value) {
			largest = i
		}

		results[i] = types.AllocationResult{
			ID:                e.ids.Generate(sr.runID, string(sr.spec.stage), pool.ID, w.targetID, strconv.Itoa(i)),
			Stage:             sr.spec.stage,
			SourceID:          pool.ID,
			SourceType:        sourceType(sr, pool),
			TargetID:          w.targetID,
			TargetType:        sr.spec.target,
			Amount:            amount,
			DriverID:          driverID,
			DriverRatio:       ratio,
			CalculationMethod: sr.spec.tag,
			ExecutionTime:     sr.at,
			Notes: fmt.Sprintf("%s: %s%% allocated to %s by %s",
				pool.Label(), ratio.Mul(hundred).StringFixed(2), w.targetID, basis),
		}
	}

	if e.opts.Rounding.Enabled() {
		if residual := e.round(pool.Amount).Sub(allocated); !residual.IsZero() {
			results[largest].Amount = results[largest].Amount.Add(residual)
		}
	}
	return results
}

func (e *Engine) round(d decimal.Decimal) decimal.Decimal {
	switch e.opts.Rounding.Method {
	case types.RoundingHalfUp:
		return d.Round(e.opts.Rounding.Precision)
	case types.RoundingBankers:
		return d.RoundBank(e.opts.Rounding.Precision)
	default:
		return d
	}
}

func sourceType(sr *stageRun, pool types.CostPool) types.EntityType {
	if pool.Type != "" {
		return pool.Type
	}
	return sr.spec.source
}

func sumWeights(weights []weight) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w.value)
	}
	return total
}
