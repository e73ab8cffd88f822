package scenario

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hospital-abc/core/catalog"
	"hospital-abc/core/mapping"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
	"hospital-abc/internal/logging"
)

// Bundle is a decoded scenario: catalog contents plus a run plan
type Bundle struct {
	// Scenario describes the rule set; zero when the file has no scenario block
	Scenario types.AllocationScenario

	// Drivers are the driver definitions
	Drivers []types.Driver

	// Values are the driver observations
	Values []types.DriverValue

	// Rules are the allocation rules
	Rules []types.AllocationRule

	// Mappings bind drivers to rules
	Mappings []types.DriverMapping

	// Stages are the stages to run; empty means every stage with a stage block
	Stages []types.Stage

	// StageConfigs hold the pools of each stage
	StageConfigs map[types.Stage]types.StageConfig

	// ChainStages enables chaining for every stage
	ChainStages bool
}

func build(filename string, doc *file) (*Bundle, error) {
	b := &Bundle{StageConfigs: make(map[types.Stage]types.StageConfig)}

	for _, d := range doc.Drivers {
		b.Drivers = append(b.Drivers, types.Driver{
			ID:       d.ID,
			Name:     d.Name,
			Code:     d.Code,
			Category: types.DriverCategory(d.Category),
			Basis:    types.DriverBasis(d.Basis),
			Unit:     d.Unit,
			Active:   boolOr(d.Active, true),
		})

		values, err := driverValues(d.ID, types.EntityType(d.SourceType), 0, d.Values)
		if err != nil {
			return nil, err
		}
		b.Values = append(b.Values, values...)
		for _, p := range d.Periods {
			month, err := strconv.Atoi(p.Month)
			if err != nil || month < 1 || month > 12 {
				return nil, errors.Newf(errors.TypeValidation, "%s: driver %s: period %q must be a month 1-12", filename, d.ID, p.Month)
			}
			values, err := driverValues(d.ID, types.EntityType(d.SourceType), month, p.Values)
			if err != nil {
				return nil, err
			}
			b.Values = append(b.Values, values...)
		}
	}

	for _, r := range doc.Rules {
		rule := types.AllocationRule{
			ID:         r.ID,
			Name:       r.Name,
			Stage:      types.Stage(r.Stage),
			Method:     types.AllocationMethod(r.Method),
			Active:     boolOr(r.Active, true),
			Priority:   r.Priority,
			SourceType: types.EntityType(r.SourceType),
			SourceIDs:  r.SourceIDs,
			TargetType: types.EntityType(r.TargetType),
			TargetIDs:  r.TargetIDs,
			DriverID:   r.DriverID,
		}
		for _, ar := range r.Ratios {
			ratio, err := decimal.NewFromString(ar.Ratio)
			if err != nil {
				return nil, errors.Validation(fmt.Sprintf("%s: rule %s: ratio %s→%s", filename, r.ID, ar.SourceID, ar.TargetID), err)
			}
			rule.AllocationRatios = append(rule.AllocationRatios, types.AllocationRatio{
				SourceID: ar.SourceID, TargetID: ar.TargetID, Ratio: ratio,
			})
		}
		b.Rules = append(b.Rules, rule)
	}

	for _, m := range doc.Mappings {
		b.Mappings = append(b.Mappings, types.DriverMapping{
			ID:               m.ID,
			DriverID:         m.DriverID,
			AllocationRuleID: m.RuleID,
			MappingType:      types.MappingType(m.Type),
			Active:           boolOr(m.Active, true),
			Config: types.MappingConfig{
				AutoSync:        m.AutoSync,
				OverrideRatios:  m.OverrideRatios,
				ValidationRules: m.ValidationRules,
				PeriodMonth:     m.PeriodMonth,
			},
		})
	}

	for _, s := range doc.Stages {
		stage, err := types.ParseStage(s.Stage)
		if err != nil {
			return nil, errors.Validation(filename, err)
		}
		if _, dup := b.StageConfigs[stage]; dup {
			return nil, errors.Newf(errors.TypeValidation, "%s: stage %s declared twice", filename, stage)
		}
		cfg := types.StageConfig{
			DriverID:          s.DriverID,
			PeriodMonth:       s.PeriodMonth,
			ChainFromPrevious: s.ChainFromPrevious,
		}
		for _, p := range s.Pools {
			amount, err := decimal.NewFromString(p.Amount)
			if err != nil {
				return nil, errors.Validation(fmt.Sprintf("%s: stage %s: pool %s amount", filename, stage, p.ID), err)
			}
			cfg.Pools = append(cfg.Pools, types.CostPool{
				ID:        p.ID,
				Name:      p.Name,
				Type:      types.EntityType(p.Type),
				Amount:    amount,
				TargetIDs: p.TargetIDs,
				TargetID:  p.TargetID,
			})
		}
		b.StageConfigs[stage] = cfg
	}

	if sc := doc.Scenario; sc != nil {
		b.Scenario = types.AllocationScenario{
			ID:          sc.ID,
			Name:        sc.Name,
			Version:     sc.Version,
			Description: sc.Description,
		}
		for _, r := range b.Rules {
			b.Scenario.RuleIDs = append(b.Scenario.RuleIDs, r.ID)
		}
		if sc.Rounding != nil {
			b.Scenario.Settings.Rounding = types.Rounding{
				Method:    types.RoundingMethod(sc.Rounding.Method),
				Precision: sc.Rounding.Precision,
			}
		}
		b.ChainStages = sc.ChainStages
		for _, s := range sc.Stages {
			stage, err := types.ParseStage(s)
			if err != nil {
				return nil, errors.Validation(filename, err)
			}
			b.Stages = append(b.Stages, stage)
		}
	}

	if len(b.Stages) == 0 {
		for _, stage := range types.StageOrder {
			if _, ok := b.StageConfigs[stage]; ok {
				b.Stages = append(b.Stages, stage)
			}
		}
	}
	return b, nil
}

// driverValues expands a source→value map in source id order
func driverValues(driverID string, kind types.EntityType, month int, raw map[string]string) ([]types.DriverValue, error) {
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]types.DriverValue, 0, len(ids))
	for _, id := range ids {
		v, err := decimal.NewFromString(raw[id])
		if err != nil {
			return nil, errors.Validation(fmt.Sprintf("driver %s value for %s", driverID, id), err)
		}
		out = append(out, types.DriverValue{
			DriverID:    driverID,
			SourceID:    id,
			SourceType:  kind,
			Value:       v,
			PeriodMonth: month,
		})
	}
	return out, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Apply writes the bundle into the catalog and registry. Mappings with
// auto_sync are synced once everything is in place; their results are
// returned keyed by mapping id.
func (b *Bundle) Apply(ctx context.Context, cat *catalog.Catalog, reg *mapping.Registry) (map[string]types.SyncResult, error) {
	for _, d := range b.Drivers {
		if err := cat.PutDriver(ctx, d); err != nil {
			return nil, err
		}
	}
	for _, v := range b.Values {
		if err := cat.PutDriverValue(ctx, v); err != nil {
			return nil, err
		}
	}
	for _, r := range b.Rules {
		if err := cat.PutRule(ctx, r); err != nil {
			return nil, err
		}
	}
	if b.Scenario.ID != "" {
		if err := cat.PutScenario(ctx, b.Scenario); err != nil {
			return nil, err
		}
	}

	synced := make(map[string]types.SyncResult)
	if reg == nil {
		return synced, nil
	}
	var auto []string
	for _, m := range b.Mappings {
		id := reg.Put(m)
		if m.Config.AutoSync {
			auto = append(auto, id)
		}
	}
	for _, id := range auto {
		res, err := reg.SyncDriverMapping(ctx, id)
		if err != nil {
			return synced, err
		}
		synced[id] = res
	}
	return synced, nil
}

// Workspace is a bundle applied to its own catalog and mapping registry
type Workspace struct {
	Bundle   *Bundle
	Catalog  *catalog.Catalog
	Mappings *mapping.Registry

	// Synced holds the auto_sync results keyed by mapping id
	Synced map[string]types.SyncResult
}

// Open applies the bundle to a fresh catalog and registry
func Open(ctx context.Context, b *Bundle, logger *zap.Logger) (*Workspace, error) {
	cat := catalog.New()
	reg := mapping.NewRegistry(cat, mapping.WithLogger(logging.OrNop(logger)))

	synced, err := b.Apply(ctx, cat, reg)
	if err != nil {
		return nil, err
	}
	return &Workspace{Bundle: b, Catalog: cat, Mappings: reg, Synced: synced}, nil
}
