// Package catalog is the read-mostly store of drivers, driver values and
// allocation rules. Runs only read from it; writes come from configuration.
package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

// Repository is what the engine and mapping registry read from. A real
// deployment backs it with a database; Catalog is the in-memory version.
type Repository interface {
	// ListDrivers returns drivers of a category, or all for ""
	ListDrivers(ctx context.Context, category types.DriverCategory) ([]types.Driver, error)

	// GetDriver returns one driver
	GetDriver(ctx context.Context, id string) (types.Driver, error)

	// ListDriverValues returns a driver's values, optionally for one period
	ListDriverValues(ctx context.Context, driverID string, periodMonth *int) ([]types.DriverValue, error)

	// ListRules returns rules matching filter ordered by priority
	ListRules(ctx context.Context, filter RuleFilter) ([]*types.AllocationRule, error)

	// GetRule returns one rule
	GetRule(ctx context.Context, id string) (*types.AllocationRule, error)
}

// RuleWriter persists recomputed ratios for a rule
type RuleWriter interface {
	UpdateRuleRatios(ctx context.Context, ruleID string, ratios []types.AllocationRatio, at time.Time) error
}

// RuleFilter narrows ListRules
type RuleFilter struct {
	// Stage limits to one stage; "" means all stages
	Stage types.Stage

	// ActiveOnly drops inactive rules
	ActiveOnly bool
}

// Period is a helper for period-scoped lookups
func Period(month int) *int {
	return &month
}

// Catalog is an in-memory Repository
type Catalog struct {
	mu sync.RWMutex

	drivers     map[string]types.Driver
	driverOrder []string
	values      map[string][]types.DriverValue
	rules       map[string]*types.AllocationRule
	ruleOrder   []string
	scenarios   map[string]types.AllocationScenario

	validate *validator.Validate
	now      func() time.Time
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{
		drivers:   make(map[string]types.Driver),
		values:    make(map[string][]types.DriverValue),
		rules:     make(map[string]*types.AllocationRule),
		scenarios: make(map[string]types.AllocationScenario),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// SetClock overrides the clock used to stamp writes
func (c *Catalog) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// PutDriver creates or replaces a driver
func (c *Catalog) PutDriver(ctx context.Context, d types.Driver) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.validate.Struct(d); err != nil {
		return errors.Validation("invalid driver "+d.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.drivers[d.ID]; !ok {
		c.driverOrder = append(c.driverOrder, d.ID)
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = c.now()
	}
	c.drivers[d.ID] = d
	return nil
}

// DeleteDriver removes a driver that no rule references
func (c *Catalog) DeleteDriver(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.drivers[id]; !ok {
		return errors.NotFound("driver", id)
	}
	for _, ruleID := range c.ruleOrder {
		if c.rules[ruleID].DriverID == id {
			return errors.Newf(errors.TypeValidation, "driver %s is referenced by rule %s", id, ruleID)
		}
	}

	delete(c.drivers, id)
	delete(c.values, id)
	c.driverOrder = slices.DeleteFunc(c.driverOrder, func(s string) bool { return s == id })
	return nil
}

// PutDriverValue records an observation, replacing the value for the same
// driver, source and period
func (c *Catalog) PutDriverValue(ctx context.Context, v types.DriverValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.validate.Struct(v); err != nil {
		return errors.Validation("invalid driver value for "+v.SourceID, err)
	}
	if v.Value.IsNegative() {
		return errors.Newf(errors.TypeValidation, "driver value for %s must not be negative", v.SourceID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.drivers[v.DriverID]; !ok {
		return errors.NotFound("driver", v.DriverID)
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = c.now()
	}

	values := c.values[v.DriverID]
	for i := range values {
		if values[i].Key() == v.Key() {
			values[i] = v
			return nil
		}
	}
	c.values[v.DriverID] = append(values, v)
	return nil
}

// PutRule creates or replaces a rule. Ratio sums are not enforced here;
// ValidateAllocationRatio surfaces them as advice.
func (c *Catalog) PutRule(ctx context.Context, r types.AllocationRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.validate.Struct(r); err != nil {
		return errors.Validation("invalid rule "+r.ID, err)
	}
	if err := checkRatioSigns(r.ID, r.AllocationRatios); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r.DriverID != "" {
		d, ok := c.drivers[r.DriverID]
		if !ok {
			return errors.NotFound("driver", r.DriverID)
		}
		r.DriverBasis = d.Basis
		r.DriverCategory = d.Category
	}
	if _, ok := c.rules[r.ID]; !ok {
		c.ruleOrder = append(c.ruleOrder, r.ID)
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = c.now()
	}
	c.rules[r.ID] = r.Clone()
	return nil
}

// DeleteRule removes a rule
func (c *Catalog) DeleteRule(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rules[id]; !ok {
		return errors.NotFound("rule", id)
	}
	delete(c.rules, id)
	c.ruleOrder = slices.DeleteFunc(c.ruleOrder, func(s string) bool { return s == id })
	return nil
}

// UpdateRuleRatios replaces a rule's ratios and bumps its version
func (c *Catalog) UpdateRuleRatios(ctx context.Context, ruleID string, ratios []types.AllocationRatio, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := checkRatioSigns(ruleID, ratios); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rules[ruleID]
	if !ok {
		return errors.NotFound("rule", ruleID)
	}
	r.AllocationRatios = append([]types.AllocationRatio(nil), ratios...)
	r.UpdatedAt = at
	return nil
}

func checkRatioSigns(ruleID string, ratios []types.AllocationRatio) error {
	for _, ar := range ratios {
		if ar.Ratio.IsNegative() {
			return errors.Newf(errors.TypeValidation, "rule %s: ratio %s -> %s must not be negative", ruleID, ar.SourceID, ar.TargetID)
		}
	}
	return nil
}

// PutScenario stores a scenario
func (c *Catalog) PutScenario(ctx context.Context, s types.AllocationScenario) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.validate.Struct(s); err != nil {
		return errors.Validation("invalid scenario "+s.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range s.RuleIDs {
		if _, ok := c.rules[id]; !ok {
			return errors.NotFound("rule", id)
		}
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = c.now()
	}
	s.RuleIDs = append([]string(nil), s.RuleIDs...)
	c.scenarios[s.ID] = s
	return nil
}

// GetScenario returns a scenario
func (c *Catalog) GetScenario(ctx context.Context, id string) (types.AllocationScenario, error) {
	if err := ctx.Err(); err != nil {
		return types.AllocationScenario{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.scenarios[id]
	if !ok {
		return types.AllocationScenario{}, errors.NotFound("scenario", id)
	}
	return s, nil
}

// ListDrivers implements Repository
func (c *Catalog) ListDrivers(ctx context.Context, category types.DriverCategory) ([]types.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.Driver, 0, len(c.driverOrder))
	for _, id := range c.driverOrder {
		d := c.drivers[id]
		if category != "" && d.Category != category {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// GetDriver implements Repository
func (c *Catalog) GetDriver(ctx context.Context, id string) (types.Driver, error) {
	if err := ctx.Err(); err != nil {
		return types.Driver{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.drivers[id]
	if !ok {
		return types.Driver{}, errors.NotFound("driver", id)
	}
	return d, nil
}

// ListDriverValues implements Repository. Values come back in the order
// they were first recorded.
func (c *Catalog) ListDriverValues(ctx context.Context, driverID string, periodMonth *int) ([]types.DriverValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.drivers[driverID]; !ok {
		return nil, errors.NotFound("driver", driverID)
	}

	var out []types.DriverValue
	for _, v := range c.values[driverID] {
		if periodMonth != nil && v.PeriodMonth != *periodMonth {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// GetDriverValues is ListDriverValues for callers without a context
func (c *Catalog) GetDriverValues(driverID string, periodMonth *int) ([]types.DriverValue, error) {
	return c.ListDriverValues(context.Background(), driverID, periodMonth)
}

// ListRules implements Repository
func (c *Catalog) ListRules(ctx context.Context, filter RuleFilter) ([]*types.AllocationRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*types.AllocationRule
	for _, id := range c.ruleOrder {
		r := c.rules[id]
		if filter.Stage != "" && r.Stage != filter.Stage {
			continue
		}
		if filter.ActiveOnly && !r.Active {
			continue
		}
		out = append(out, r.Clone())
	}
	slices.SortStableFunc(out, func(a, b *types.AllocationRule) int {
		if a.Stage != b.Stage {
			return a.Stage.Index() - b.Stage.Index()
		}
		return a.Priority - b.Priority
	})
	return out, nil
}

// GetRule implements Repository
func (c *Catalog) GetRule(ctx context.Context, id string) (*types.AllocationRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rules[id]
	if !ok {
		return nil, errors.NotFound("rule", id)
	}
	return r.Clone(), nil
}

// Stats summarizes catalog contents
type Stats struct {
	Drivers      int
	DriverValues int
	Rules        int
	ActiveRules  int
	Scenarios    int
}

// Stats returns catalog statistics
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Drivers:   len(c.drivers),
		Rules:     len(c.rules),
		Scenarios: len(c.scenarios),
	}
	for _, vs := range c.values {
		s.DriverValues += len(vs)
	}
	for _, r := range c.rules {
		if r.Active {
			s.ActiveRules++
		}
	}
	return s
}
