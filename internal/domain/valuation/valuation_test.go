package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
)

func dollars(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = money.MustParse(s)
	}
	return out
}

func TestComputeMedianAssessment_OverAssessed(t *testing.T) {
	t.Parallel()

	r, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"),
		dollars("210000", "220000", "230000", "240000"), 3)
	require.NoError(t, err)

	assert.True(t, r.MedianValue.Equal(money.MustParse("225000")), r.MedianValue.String())
	assert.True(t, r.Difference.Equal(money.MustParse("25000")))
	assert.True(t, r.PotentialSavings.Equal(money.MustParse("25000")))
	require.NotNil(t, r.PercentAboveMedian)
	assert.True(t, r.PercentAboveMedian.Equal(decimal.NewFromFloat(11.1)), r.PercentAboveMedian.String())
	assert.True(t, r.Reliable)
	assert.True(t, r.OverAssessed())
	assert.Equal(t, 4, r.ComparableCount)
}

func TestComputeMedianAssessment_UnderAssessedClampsSavings(t *testing.T) {
	t.Parallel()

	r, err := ComputeMedianAssessment(BaselineMarket, money.MustParse("200000"),
		dollars("210000", "220000", "230000"), 3)
	require.NoError(t, err)

	assert.True(t, r.Difference.Equal(money.MustParse("-20000")))
	assert.True(t, r.PotentialSavings.IsZero())
	assert.False(t, r.OverAssessed())
	require.NotNil(t, r.PercentAboveMedian)
	assert.True(t, r.PercentAboveMedian.IsNegative())
}

func TestComputeMedianAssessment_RangeBracketsMedian(t *testing.T) {
	t.Parallel()

	r, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"),
		dollars("230000", "210000", "240000", "220000"), 3)
	require.NoError(t, err)

	assert.True(t, r.MinValue.Equal(money.MustParse("210000")), r.MinValue.String())
	assert.True(t, r.MaxValue.Equal(money.MustParse("240000")), r.MaxValue.String())
	assert.True(t, r.MinValue.LessThanOrEqual(r.MedianValue))
	assert.True(t, r.MedianValue.LessThanOrEqual(r.MaxValue))

	// A single comparable collapses the range onto the median.
	single, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"),
		dollars("215000"), 3)
	require.NoError(t, err)
	assert.True(t, single.MinValue.Equal(single.MedianValue))
	assert.True(t, single.MaxValue.Equal(single.MedianValue))
}

func TestComputeMedianAssessment_NoComparables(t *testing.T) {
	t.Parallel()

	_, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"), nil, 3)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientData))
}

func TestComputeMedianAssessment_FewComparablesUnreliable(t *testing.T) {
	t.Parallel()

	r, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"),
		dollars("210000", "230000"), 3)
	require.NoError(t, err)

	assert.False(t, r.Reliable)
	assert.True(t, r.MedianValue.Equal(money.MustParse("220000")))
}

func TestComputeMedianAssessment_ZeroMedian(t *testing.T) {
	t.Parallel()

	r, err := ComputeMedianAssessment(BaselineAppraised, money.MustParse("250000"),
		dollars("0", "0", "0"), 3)
	require.NoError(t, err)

	assert.Nil(t, r.PercentAboveMedian)
	assert.True(t, r.PotentialSavings.Equal(money.MustParse("250000")))
}

func TestApplyMarketAdjustment(t *testing.T) {
	t.Parallel()

	got, err := ApplyMarketAdjustment(money.MustParse("250000"), 2.0, 0.5, 3.5)
	require.NoError(t, err)
	assert.True(t, got.Equal(money.MustParse("245000")), got.String())

	// Boundaries are inclusive.
	low, err := ApplyMarketAdjustment(money.MustParse("100000"), 0.5, 0.5, 3.5)
	require.NoError(t, err)
	assert.True(t, low.Equal(money.MustParse("99500")))

	high, err := ApplyMarketAdjustment(money.MustParse("100000"), 3.5, 0.5, 3.5)
	require.NoError(t, err)
	assert.True(t, high.Equal(money.MustParse("96500")))
}

func TestApplyMarketAdjustment_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, pct := range []float64{0.4, 3.6, -1, 50} {
		_, err := ApplyMarketAdjustment(money.MustParse("250000"), pct, 0.5, 3.5)
		require.Error(t, err, "percent %v", pct)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAdjustmentOutOfRange))
	}
}

func TestProposedValue(t *testing.T) {
	t.Parallel()

	got := ProposedValue(money.MustParse("250000"), money.MustParse("4500"), money.MustParse("1550.50"))
	assert.True(t, got.Equal(money.MustParse("243949.50")), got.String())

	// Deductions larger than the value floor at zero.
	assert.True(t, ProposedValue(money.MustParse("10000"), money.MustParse("0"), money.MustParse("25000")).IsZero())
}
