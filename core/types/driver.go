package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Driver is a named measurable quantity used as an allocation weight
type Driver struct {
	// ID uniquely identifies the driver
	ID string `json:"id" validate:"required"`

	// Name is a human-readable name (e.g. "Floor Area")
	Name string `json:"name" validate:"required"`

	// Code is a short business code
	Code string `json:"code,omitempty"`

	// Category is what the driver measures
	Category DriverCategory `json:"category" validate:"required,oneof=area time patient volume revenue headcount other"`

	// Basis is why this driver tracks cost incidence
	Basis DriverBasis `json:"basis" validate:"required,oneof=causal benefit ability"`

	// Unit is the measurement unit (m², minutes, patients)
	Unit string `json:"unit,omitempty"`

	// Active marks the driver as usable by runs
	Active bool `json:"active"`

	// UpdatedAt is the last time the definition changed
	UpdatedAt time.Time `json:"updated_at"`
}

// DriverValue is one observed magnitude of a driver for one source entity
// in one period
type DriverValue struct {
	// DriverID is the owning driver
	DriverID string `json:"driver_id" validate:"required"`

	// SourceID is the entity the value was measured on
	SourceID string `json:"source_id" validate:"required"`

	// SourceType is the kind of entity
	SourceType EntityType `json:"source_type" validate:"required,oneof=department activity account revenue cost_object"`

	// Value is the non-negative measured magnitude
	Value decimal.Decimal `json:"value"`

	// PeriodMonth is 0 for annual values and 1-12 for monthly ones
	PeriodMonth int `json:"period_month" validate:"gte=0,lte=12"`

	// UpdatedAt is when the observation was last written
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies a value slot; writing the same key replaces the value.
func (v DriverValue) Key() string {
	return fmt.Sprintf("%s|%s|%d", v.DriverID, v.SourceID, v.PeriodMonth)
}
