package comparable

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// CandidateRecord is a raw appraisal-roll record for a potential comparable,
// before any adjustment math.  Candidates typically come from the subject's
// neighborhood on the county rolls.
type CandidateRecord struct {
	Account       common.AccountNumber `json:"account"`
	Address       string               `json:"address"`
	YearImproved  int                  `json:"year_improved"`
	BuildingSqFt  int                  `json:"building_sqft"`
	BuildingValue decimal.Decimal      `json:"building_value"`
	LandValue     decimal.Decimal      `json:"land_value"`
	TotalValue    decimal.Decimal      `json:"total_value"`
}

// Adjustment is the sales-grid adjustment of one candidate onto the subject:
// what the candidate's improvements would be worth if they matched the
// subject's size and age, plus the subject's own land value.
type Adjustment struct {
	Candidate CandidateRecord `json:"candidate"`

	ImprovementPSF decimal.Decimal `json:"improvement_psf"`
	SizeAdjustment decimal.Decimal `json:"size_adjustment"`
	AgeAdjustment  decimal.Decimal `json:"age_adjustment"`

	// TotalAdjustedValue = candidate building value + size + age adjustments
	// + subject land value.
	TotalAdjustedValue decimal.Decimal `json:"total_adjusted_value"`
	AdjustedPSF        decimal.Decimal `json:"adjusted_psf"`
}

// Size differences are credited at half the candidate's improvement rate;
// age differences at half a percent of building value per year.
var (
	sizeAdjustmentDivisor = decimal.NewFromInt(2)
	ageAdjustmentRate     = decimal.NewFromFloat(0.005)
)

// Adjust computes the sales-grid adjustment of one candidate onto the subject.
// A candidate with no recorded building area gets a zero improvement rate and
// therefore no size adjustment.
func Adjust(subject property.SubjectProperty, c CandidateRecord) Adjustment {
	adj := Adjustment{Candidate: c}

	if c.BuildingSqFt > 0 {
		adj.ImprovementPSF = c.BuildingValue.Div(decimal.NewFromInt(int64(c.BuildingSqFt)))
	}

	sqftDelta := decimal.NewFromInt(int64(subject.BuildingSqFt - c.BuildingSqFt))
	adj.SizeAdjustment = adj.ImprovementPSF.Mul(sqftDelta).Div(sizeAdjustmentDivisor)

	yearDelta := decimal.NewFromInt(int64(subject.YearImproved - c.YearImproved))
	adj.AgeAdjustment = ageAdjustmentRate.Mul(yearDelta).Mul(c.BuildingValue)

	adj.TotalAdjustedValue = c.BuildingValue.
		Add(adj.SizeAdjustment).
		Add(adj.AgeAdjustment).
		Add(subject.LandValue)

	if c.BuildingSqFt > 0 {
		adj.AdjustedPSF = adj.TotalAdjustedValue.Div(decimal.NewFromInt(int64(c.BuildingSqFt)))
	}

	return adj
}

// AdjustAll maps Adjust over a candidate set, preserving input order.
func AdjustAll(subject property.SubjectProperty, candidates []CandidateRecord) []Adjustment {
	out := make([]Adjustment, len(candidates))
	for i, c := range candidates {
		out[i] = Adjust(subject, c)
	}
	return out
}

// Comparable converts an adjustment into a ranked Comparable record.
func (a Adjustment) Comparable(rank int) Comparable {
	return Comparable{
		Rank:          rank,
		Account:       a.Candidate.Account,
		Address:       a.Candidate.Address,
		AdjustedValue: a.TotalAdjustedValue.Round(0),
		AdjustedPSF:   a.AdjustedPSF.Round(2),
	}
}

// GroupedComparables are the three shortlists shown to the owner when picking
// comparables: nearest in age, nearest in size, and cheapest after adjustment.
type GroupedComparables struct {
	ClosestByAge  []Adjustment `json:"closest_by_age"`
	ClosestBySqFt []Adjustment `json:"closest_by_sqft"`
	LowestByValue []Adjustment `json:"lowest_by_value"`
}

// DefaultGroupSize is how many candidates each shortlist carries.
const DefaultGroupSize = 5

// Group builds the three shortlists from an adjusted candidate set.  Ties
// keep input order, so results are deterministic.  The input slice is not
// modified.
func Group(subject property.SubjectProperty, adjustments []Adjustment, size int) GroupedComparables {
	if size <= 0 {
		size = DefaultGroupSize
	}

	byAge := sortedCopy(adjustments, func(a, b Adjustment) bool {
		da := absInt(a.Candidate.YearImproved - subject.YearImproved)
		db := absInt(b.Candidate.YearImproved - subject.YearImproved)
		return da < db
	})
	bySqFt := sortedCopy(adjustments, func(a, b Adjustment) bool {
		da := absInt(a.Candidate.BuildingSqFt - subject.BuildingSqFt)
		db := absInt(b.Candidate.BuildingSqFt - subject.BuildingSqFt)
		return da < db
	})
	byValue := sortedCopy(adjustments, func(a, b Adjustment) bool {
		return a.TotalAdjustedValue.LessThan(b.TotalAdjustedValue)
	})

	return GroupedComparables{
		ClosestByAge:  head(byAge, size),
		ClosestBySqFt: head(bySqFt, size),
		LowestByValue: head(byValue, size),
	}
}

func sortedCopy(in []Adjustment, less func(a, b Adjustment) bool) []Adjustment {
	out := make([]Adjustment, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func head(in []Adjustment, n int) []Adjustment {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
