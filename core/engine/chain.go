package engine

import (
	"github.com/shopspring/decimal"

	"hospital-abc/core/types"
)

// balances is the running position of every entity after the completed
// stages: inflows from being a target minus outflows from being a source.
type balances struct {
	order map[types.EntityType][]string
	value map[types.EntityType]map[string]decimal.Decimal
}

func newBalances(results []types.AllocationResult) *balances {
	b := &balances{
		order: make(map[types.EntityType][]string),
		value: make(map[types.EntityType]map[string]decimal.Decimal),
	}
	for _, r := range results {
		b.add(r.TargetType, r.TargetID, r.Amount)
		b.add(r.SourceType, r.SourceID, r.Amount.Neg())
	}
	return b
}

func (b *balances) add(kind types.EntityType, id string, amount decimal.Decimal) {
	byID, ok := b.value[kind]
	if !ok {
		byID = make(map[string]decimal.Decimal)
		b.value[kind] = byID
	}
	if _, seen := byID[id]; !seen {
		b.order[kind] = append(b.order[kind], id)
	}
	byID[id] = byID[id].Add(amount)
}

// positive returns entities of kind holding a positive balance, in first-seen order
func (b *balances) positive(kind types.EntityType) []types.CostPool {
	var pools []types.CostPool
	for _, id := range b.order[kind] {
		if amt := b.value[kind][id]; amt.IsPositive() {
			pools = append(pools, types.CostPool{ID: id, Type: kind, Amount: amt, Derived: true})
		}
	}
	return pools
}

// resolvePools returns the pools a stage allocates. Without chaining this is
// the supplied ledger. With chaining, positive balances left by earlier
// stages on the stage's source type are added to the ledger; supplied
// pools keep their position, names and target scopes.
func (e *Engine) resolvePools(state *types.ExecutionState, spec stageSpec, cfg types.StageConfig) ([]types.CostPool, bool) {
	if !cfg.ChainFromPrevious && !e.opts.ChainStages {
		return cfg.Pools, false
	}

	carried := newBalances(state.Results).positive(spec.source)
	if len(carried) == 0 {
		return cfg.Pools, false
	}

	pools := make([]types.CostPool, 0, len(cfg.Pools)+len(carried))
	index := make(map[string]int, len(cfg.Pools))
	for _, p := range cfg.Pools {
		index[p.ID] = len(pools)
		pools = append(pools, p)
	}
	for _, c := range carried {
		if i, ok := index[c.ID]; ok {
			pools[i].Amount = pools[i].Amount.Add(c.Amount)
			continue
		}
		pools = append(pools, c)
	}
	return pools, true
}
