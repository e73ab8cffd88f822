// Package mapping binds drivers to allocation rules and keeps the rules'
// stored ratios in step with the drivers' current values.
package mapping

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hospital-abc/core/catalog"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
	"hospital-abc/internal/logging"
)

// ratioEpsilon is the drift below which recomputed ratios count as unchanged
var ratioEpsilon = decimal.New(1, -9)

// Store is the catalog surface the registry needs
type Store interface {
	catalog.Repository
	catalog.RuleWriter
}

// Registry holds driver mappings
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]*types.DriverMapping
	order    []string

	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the registry clock
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over store
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		mappings: make(map[string]*types.DriverMapping),
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).Named("mapping")
	return r
}

// Put stores a mapping, assigning an id when missing
func (r *Registry) Put(m types.DriverMapping) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SyncStatus == "" {
		m.SyncStatus = types.SyncOutOfSync
	}
	if m.MappingType == "" {
		m.MappingType = types.MappingCalculated
	}
	if _, ok := r.mappings[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.mappings[m.ID] = m.Clone()
	return m.ID
}

// Get returns a copy of a mapping
func (r *Registry) Get(id string) (*types.DriverMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[id]
	if !ok {
		return nil, errors.NotFound("driver mapping", id)
	}
	return m.Clone(), nil
}

// List returns copies of all mappings in insertion order
func (r *Registry) List(ctx context.Context) ([]*types.DriverMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.DriverMapping, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.mappings[id].Clone())
	}
	return out, nil
}

// Delete removes a mapping
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mappings[id]; !ok {
		return errors.NotFound("driver mapping", id)
	}
	delete(r.mappings, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// Refresh marks synced mappings out_of_sync when the driver values of their
// period changed after the last sync. It returns the ids that changed status.
func (r *Registry) Refresh(ctx context.Context) ([]string, error) {
	mappings, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, m := range mappings {
		if m.SyncStatus != types.SyncSynced {
			continue
		}
		values, err := r.store.ListDriverValues(ctx, m.DriverID, catalog.Period(m.Config.PeriodMonth))
		if err != nil {
			return changed, err
		}
		if !valuesChangedSince(values, m.LastSyncDate) {
			continue
		}

		r.mu.Lock()
		if cur, ok := r.mappings[m.ID]; ok && cur.SyncStatus == types.SyncSynced {
			cur.SyncStatus = types.SyncOutOfSync
			changed = append(changed, m.ID)
		}
		r.mu.Unlock()
	}

	if len(changed) > 0 {
		r.logger.Info("driver mappings drifted", zap.Strings("mappings", changed))
	}
	return changed, nil
}

func valuesChangedSince(values []types.DriverValue, since *time.Time) bool {
	if since == nil {
		return len(values) > 0
	}
	for _, v := range values {
		if v.UpdatedAt.After(*since) {
			return true
		}
	}
	return false
}

// SyncDriverMapping recomputes the bound rule's ratios from current driver
// values. When the ratios are unchanged the rule is left untouched and a
// synced mapping is not modified, so repeated calls are no-ops. An
// out_of_sync or errored mapping whose ratios turn out current is marked
// synced again; only its own status changes.
func (r *Registry) SyncDriverMapping(ctx context.Context, mappingID string) (types.SyncResult, error) {
	m, err := r.Get(mappingID)
	if err != nil {
		return types.SyncResult{}, err
	}

	if m.MappingType == types.MappingManual && m.Config.OverrideRatios {
		return types.SyncResult{
			Success: false,
			Message: "manual mapping keeps its override ratios; nothing recomputed",
		}, nil
	}

	rule, err := r.store.GetRule(ctx, m.AllocationRuleID)
	if err != nil {
		return types.SyncResult{}, err
	}
	values, err := r.store.ListDriverValues(ctx, m.DriverID, catalog.Period(m.Config.PeriodMonth))
	if err != nil {
		return types.SyncResult{}, err
	}

	ratios, err := ComputeRatios(rule, values)
	if err != nil {
		r.recordFailure(mappingID, err)
		r.logger.Warn("driver mapping sync failed",
			zap.String("mapping", mappingID), zap.String("rule", rule.ID), zap.Error(err))
		return types.SyncResult{Success: false, Message: errors.Detail(err)}, nil
	}

	if ratiosEqual(rule.AllocationRatios, ratios) {
		r.markVerified(mappingID)
		return types.SyncResult{
			Success:       true,
			Message:       "allocation ratios already match driver values",
			UpdatedRatios: rule.AllocationRatios,
		}, nil
	}

	now := r.now()
	if err := r.store.UpdateRuleRatios(ctx, rule.ID, ratios, now); err != nil {
		r.recordFailure(mappingID, err)
		return types.SyncResult{}, err
	}

	r.mu.Lock()
	if cur, ok := r.mappings[mappingID]; ok {
		cur.SyncStatus = types.SyncSynced
		cur.LastSyncDate = &now
		cur.SyncErrors = nil
	}
	r.mu.Unlock()

	r.logger.Info("driver mapping synced",
		zap.String("mapping", mappingID), zap.String("rule", rule.ID), zap.Int("ratios", len(ratios)))

	return types.SyncResult{
		Success:       true,
		Message:       fmt.Sprintf("updated %d allocation ratios on rule %s", len(ratios), rule.ID),
		UpdatedRatios: ratios,
	}, nil
}

// markVerified records that an unsynced mapping was checked and found
// current. Synced mappings are not touched.
func (r *Registry) markVerified(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.mappings[id]
	if !ok || cur.SyncStatus == types.SyncSynced {
		return
	}
	now := r.now()
	cur.SyncStatus = types.SyncSynced
	cur.LastSyncDate = &now
	cur.SyncErrors = nil
}

func (r *Registry) recordFailure(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.mappings[id]; ok {
		cur.SyncStatus = types.SyncError
		cur.SyncErrors = append(cur.SyncErrors, errors.Detail(err))
	}
}

// ComputeRatios derives source→target ratios for every source of rule from
// the driver values measured on its targets.
func ComputeRatios(rule *types.AllocationRule, values []types.DriverValue) ([]types.AllocationRatio, error) {
	if len(rule.TargetIDs) == 0 {
		return nil, errors.Config("rule %s has no targets", rule.ID)
	}
	if len(rule.SourceIDs) == 0 {
		return nil, errors.Config("rule %s has no sources", rule.ID)
	}

	byTarget := make(map[string]decimal.Decimal, len(values))
	for _, v := range values {
		byTarget[v.SourceID] = byTarget[v.SourceID].Add(v.Value)
	}

	total := decimal.Zero
	for _, t := range rule.TargetIDs {
		total = total.Add(byTarget[t])
	}
	if !total.IsPositive() {
		return nil, errors.Config("driver values for rule %s targets sum to zero", rule.ID)
	}

	out := make([]types.AllocationRatio, 0, len(rule.SourceIDs)*len(rule.TargetIDs))
	for _, src := range rule.SourceIDs {
		for _, t := range rule.TargetIDs {
			out = append(out, types.AllocationRatio{
				SourceID:    src,
				TargetID:    t,
				Ratio:       byTarget[t].Div(total),
				DriverValue: byTarget[t],
			})
		}
	}
	return out, nil
}

func ratiosEqual(a, b []types.AllocationRatio) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SourceID != b[i].SourceID || a[i].TargetID != b[i].TargetID {
			return false
		}
		if a[i].Ratio.Sub(b[i].Ratio).Abs().GreaterThan(ratioEpsilon) {
			return false
		}
	}
	return true
}
