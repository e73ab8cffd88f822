package types

// EntityType classifies the source or target of an allocation
type EntityType string

const (
	EntityDepartment EntityType = "department"
	EntityActivity   EntityType = "activity"
	EntityAccount    EntityType = "account"
	EntityRevenue    EntityType = "revenue"
	EntityCostObject EntityType = "cost_object"
)

// DriverCategory groups drivers by what they measure
type DriverCategory string

const (
	CategoryArea      DriverCategory = "area"
	CategoryTime      DriverCategory = "time"
	CategoryPatient   DriverCategory = "patient"
	CategoryVolume    DriverCategory = "volume"
	CategoryRevenue   DriverCategory = "revenue"
	CategoryHeadcount DriverCategory = "headcount"
	CategoryOther     DriverCategory = "other"
)

// DriverBasis records why a driver is an acceptable proxy for cost incidence
type DriverBasis string

const (
	BasisCausal  DriverBasis = "causal"
	BasisBenefit DriverBasis = "benefit"
	BasisAbility DriverBasis = "ability"
)

// AllocationMethod is how a rule redistributes amounts
type AllocationMethod string

const (
	MethodDirect       AllocationMethod = "direct"
	MethodProportional AllocationMethod = "proportional"
	MethodStepDown     AllocationMethod = "step_down"
	MethodReciprocal   AllocationMethod = "reciprocal"
	MethodEqual        AllocationMethod = "equal"
)

// RoundingMethod selects how allocated amounts are rounded
type RoundingMethod string

const (
	RoundingNone    RoundingMethod = "none"
	RoundingHalfUp  RoundingMethod = "half_up"
	RoundingBankers RoundingMethod = "bankers"
)

// Rounding controls amount rounding for a run
type Rounding struct {
	// Method is the rounding mode
	Method RoundingMethod `json:"method" env:"ABC_ROUNDING_METHOD"`

	// Precision is the number of decimal places kept
	Precision int32 `json:"precision" env:"ABC_ROUNDING_PRECISION"`
}

// Enabled reports whether amounts should be rounded
func (r Rounding) Enabled() bool {
	return r.Method == RoundingHalfUp || r.Method == RoundingBankers
}
