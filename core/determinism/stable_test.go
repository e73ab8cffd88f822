package determinism

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hospital-abc/core/types"
)

func TestGenerateIsStable(t *testing.T) {
	gen := NewIDGenerator("allocation")

	a := gen.Generate("run-1", "rtr", "electricity", "dept_a")
	b := gen.Generate("run-1", "rtr", "electricity", "dept_a")
	c := gen.Generate("run-1", "rtr", "electricity", "dept_b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestGenerateSeparatesParts(t *testing.T) {
	gen := NewIDGenerator("allocation")
	assert.NotEqual(t, gen.Generate("ab", "c"), gen.Generate("a", "bc"))
}

func TestFingerprintIgnoresIDsAndTimes(t *testing.T) {
	base := types.AllocationResult{
		ID:          "x",
		Stage:       types.StageRTR,
		SourceID:    "electricity",
		TargetID:    "dept_a",
		Amount:      decimal.NewFromInt(100),
		DriverRatio: decimal.NewFromFloat(0.5),
	}
	other := base
	other.ID = "y"
	other.ExecutionTime = time.Now()

	assert.Equal(t, Fingerprint([]types.AllocationResult{base}), Fingerprint([]types.AllocationResult{other}))

	other.Amount = decimal.NewFromInt(101)
	assert.NotEqual(t, Fingerprint([]types.AllocationResult{base}), Fingerprint([]types.AllocationResult{other}))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"pc4": 1, "checkup_center": 2, "er": 3}
	assert.Equal(t, []string{"checkup_center", "er", "pc4"}, SortedKeys(m))
}
