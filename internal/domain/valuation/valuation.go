// Package valuation implements the dollar math behind a protest: the median
// comparison of the subject against its comparables, the market decline
// adjustment, and the proposed value after deductions.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
)

// Baseline names which appraisal-roll figure the comparison runs against.
type Baseline string

const (
	// BaselineMarket compares against the total market value.
	BaselineMarket Baseline = "market"
	// BaselineAppraised compares against the capped appraised value.
	BaselineAppraised Baseline = "appraised"
)

// MedianAssessmentResult is the outcome of comparing the subject's baseline
// value to the median of its comparables' adjusted values.
type MedianAssessmentResult struct {
	Baseline      Baseline        `json:"baseline"`
	BaselineValue decimal.Decimal `json:"baseline_value"`

	MedianValue     decimal.Decimal `json:"median_value"`
	ComparableCount int             `json:"comparable_count"`

	// MinValue and MaxValue are the extremes of the adjusted-value list the
	// median was taken from.
	MinValue decimal.Decimal `json:"min_value"`
	MaxValue decimal.Decimal `json:"max_value"`

	// Difference is baseline minus median, signed: positive means the subject
	// is assessed above its comparables.
	Difference decimal.Decimal `json:"difference"`

	// PotentialSavings is the difference clamped at zero.  An under-assessed
	// subject has zero savings, never negative.
	PotentialSavings decimal.Decimal `json:"potential_savings"`

	// PercentAboveMedian is the difference as a percentage of the median,
	// or nil when the median is zero and no ratio exists.
	PercentAboveMedian *decimal.Decimal `json:"percent_above_median,omitempty"`

	// Reliable reports whether enough comparables backed the median for the
	// result to support a protest on its own.
	Reliable bool `json:"reliable"`
}

// OverAssessed reports whether the subject is assessed above the median.
func (r *MedianAssessmentResult) OverAssessed() bool {
	return r.Difference.IsPositive()
}

// ComputeMedianAssessment compares baselineValue against the median of the
// comparables' adjusted values.  Returns an ErrCodeInsufficientData AppError
// when no comparable values are supplied; with one or two comparables the
// computation proceeds but the result is marked unreliable (threshold
// minComparables, default 3).
func ComputeMedianAssessment(baseline Baseline, baselineValue decimal.Decimal, values []decimal.Decimal, minComparables int) (*MedianAssessmentResult, error) {
	if len(values) == 0 {
		return nil, errors.New(errors.ErrCodeInsufficientData, "no comparable values to take a median of")
	}

	median := money.Median(values)
	minValue, maxValue := money.MinMax(values)
	diff := baselineValue.Sub(median)

	r := &MedianAssessmentResult{
		Baseline:         baseline,
		BaselineValue:    baselineValue,
		MedianValue:      median,
		ComparableCount:  len(values),
		MinValue:         minValue,
		MaxValue:         maxValue,
		Difference:       diff,
		PotentialSavings: diff,
		Reliable:         len(values) >= minComparables,
	}
	if r.PotentialSavings.IsNegative() {
		r.PotentialSavings = decimal.Zero
	}
	if !median.IsZero() {
		pct := diff.Div(median).Mul(decimal.NewFromInt(100)).Round(1)
		r.PercentAboveMedian = &pct
	}
	return r, nil
}

// hundred is shared by the percentage conversions below.
var hundred = decimal.NewFromInt(100)

// ApplyMarketAdjustment reduces value by percent (a market decline since the
// appraisal date).  Percent must lie within [minPercent, maxPercent]; outside
// that window the adjustment is rejected with ErrCodeAdjustmentOutOfRange.
// The adjustment only ever lowers the value.
func ApplyMarketAdjustment(value decimal.Decimal, percent, minPercent, maxPercent float64) (decimal.Decimal, error) {
	if percent < minPercent || percent > maxPercent {
		return decimal.Zero, errors.Newf(errors.ErrCodeAdjustmentOutOfRange,
			"market adjustment %.2f%% outside allowed range %.2f%%-%.2f%%", percent, minPercent, maxPercent)
	}
	pct := decimal.NewFromFloat(percent).Div(hundred)
	return value.Sub(value.Mul(pct)).Round(0), nil
}

// ProposedValue is the value the protest asks for: the starting value less
// the extra-feature reduction and the deduction total, floored at zero.
func ProposedValue(starting, extraFeatureReduction, deductionTotal decimal.Decimal) decimal.Decimal {
	v := starting.Sub(extraFeatureReduction).Sub(deductionTotal)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
