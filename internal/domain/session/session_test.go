package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
)

func testSubject() property.SubjectProperty {
	return property.SubjectProperty{
		Account:             "0660640130020",
		SiteAddress:         "8214 Oak Moss Dr",
		YearImproved:        2004,
		BuildingSqFt:        2350,
		TotalMarketValue:    money.MustParse("254500"),
		TotalAppraisedValue: money.MustParse("250000"),
	}
}

func testAnalysis() comparable.AnalysisData {
	return comparable.AnalysisData{
		TopComparables: []comparable.Comparable{
			{Rank: 1, Account: "1111111111111", AdjustedValue: money.MustParse("210000")},
			{Rank: 2, Account: "2222222222222", AdjustedValue: money.MustParse("220000")},
			{Rank: 3, Account: "3333333333333", AdjustedValue: money.MustParse("230000")},
		},
	}
}

// withAnalysisAttached walks a fresh session to the analysis stage and
// attaches a minimal analysis.
func withAnalysisAttached(t *testing.T) *Session {
	t.Helper()
	s, err := New(testSubject()).Advance() // review -> analyze
	require.NoError(t, err)
	a := testAnalysis()
	r, err := valuation.ComputeMedianAssessment(valuation.BaselineAppraised,
		money.MustParse("250000"), a.AdjustedValues(), 3)
	require.NoError(t, err)
	s, err = s.WithAnalysis(a, r)
	require.NoError(t, err)
	return s
}

// finalized walks a session through every stage to the frozen state.
func finalized(t *testing.T) *Session {
	t.Helper()
	s := withAnalysisAttached(t)
	for !s.Stage.Last() {
		var err error
		s, err = s.Advance()
		require.NoError(t, err)
	}
	s, err := s.Freeze()
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	assert.Equal(t, StageReviewDetails, s.Stage)
	assert.Equal(t, 1, s.Version)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Finalized)
}

func TestAdvance_WalksAllStages(t *testing.T) {
	t.Parallel()

	s := withAnalysisAttached(t)
	want := []Stage{StageExtraFeatures, StageAdditionalDeductions, StageMarketAdjustment, StageGenerateReport}
	for _, st := range want {
		var err error
		s, err = s.Advance()
		require.NoError(t, err)
		assert.Equal(t, st, s.Stage)
	}

	// Off the end.
	_, err := s.Advance()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestAdvance_RequiresAnalysis(t *testing.T) {
	t.Parallel()

	s, err := New(testSubject()).Advance()
	require.NoError(t, err)
	require.Equal(t, StageUpdateAndAnalyze, s.Stage)

	_, err = s.Advance()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAnalysisNotReady))
}

func TestAdvance_DoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	next, err := s.Advance()
	require.NoError(t, err)

	assert.Equal(t, StageReviewDetails, s.Stage)
	assert.Equal(t, StageUpdateAndAnalyze, next.Stage)
	assert.Equal(t, s.Version+1, next.Version)
}

func TestBack_KeepsWork(t *testing.T) {
	t.Parallel()

	s := withAnalysisAttached(t)
	s, err := s.Advance() // extra features
	require.NoError(t, err)

	back, err := s.Back()
	require.NoError(t, err)
	assert.Equal(t, StageUpdateAndAnalyze, back.Stage)
	assert.NotNil(t, back.Analysis)

	// Before the first stage.
	first := New(testSubject())
	_, err = first.Back()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestWithOverrides_InvalidatesAnalysis(t *testing.T) {
	t.Parallel()

	s := withAnalysisAttached(t)
	require.NotNil(t, s.Analysis)

	sqft := 2600
	s2, err := s.WithOverrides(property.Overrides{BuildingSqFt: &sqft})
	require.NoError(t, err)

	assert.Nil(t, s2.Analysis)
	assert.Nil(t, s2.Assessment)
	assert.Equal(t, 2600, s2.EffectiveSubject().BuildingSqFt)
	// Original keeps its analysis.
	assert.NotNil(t, s.Analysis)
	assert.Equal(t, 2350, s.EffectiveSubject().BuildingSqFt)
}

func TestWithDeduction_AndTotals(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	s, err := s.WithDeduction(deduction.Deduction{Description: "slab crack", Amount: money.MustParse("1200")})
	require.NoError(t, err)
	s, err = s.WithDeduction(deduction.Deduction{Description: "leak", Amount: money.MustParse("350.50")})
	require.NoError(t, err)

	assert.True(t, s.DeductionTotal().Equal(money.MustParse("1550.50")))

	_, err = s.WithDeduction(deduction.Deduction{Description: "bad", Amount: money.MustParse("-5")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAmount))

	s2, err := s.WithoutDeduction(s.Deductions[0].ID)
	require.NoError(t, err)
	assert.Len(t, s2.Deductions, 1)
	assert.Len(t, s.Deductions, 2)
}

func TestWithEvidenceAndQuote(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	s, err := s.WithDeduction(deduction.Deduction{Description: "hail damage", Amount: money.MustParse("9800")})
	require.NoError(t, err)
	dedID := s.Deductions[0].ID

	s2, err := s.WithEvidence(dedID, deduction.EvidenceFile{
		ID: "ev-1", FileName: "roof.jpg", ContentType: "image/jpeg", SizeBytes: 20480,
	})
	require.NoError(t, err)
	require.Len(t, s2.Deductions[0].Evidence, 1)
	assert.Equal(t, "roof.jpg", s2.Deductions[0].Evidence[0].FileName)
	// Receiver keeps its ledger untouched.
	assert.Empty(t, s.Deductions[0].Evidence)

	s3, err := s2.WithQuote(dedID, deduction.QuoteFile{
		ID: "q-1", FileName: "quote.pdf", Contractor: "ABC Roofing", Amount: money.MustParse("9800"),
	})
	require.NoError(t, err)
	require.Len(t, s3.Deductions[0].Quotes, 1)
	assert.Equal(t, "ABC Roofing", s3.Deductions[0].Quotes[0].Contractor)

	// Unknown deduction.
	_, err = s3.WithEvidence("missing", deduction.EvidenceFile{ID: "ev-2", FileName: "x.jpg"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeductionNotFound))
	_, err = s3.WithQuote("missing", deduction.QuoteFile{ID: "q-2", FileName: "y.pdf"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeductionNotFound))
}

func TestWithExtraFeatureDispute(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	s, err := s.WithExtraFeatureDispute(ExtraFeatureDispute{
		FeatureCode: "POOL", Description: "pool removed in 2022", Reduction: money.MustParse("4500"),
	})
	require.NoError(t, err)
	assert.True(t, s.ExtraFeatureReduction().Equal(money.MustParse("4500")))

	_, err = s.WithExtraFeatureDispute(ExtraFeatureDispute{Reduction: money.MustParse("-1")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAmount))
}

func TestFreeze(t *testing.T) {
	t.Parallel()

	// Not at the report stage yet.
	s := withAnalysisAttached(t)
	_, err := s.Freeze()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	f := finalized(t)
	assert.True(t, f.Finalized)

	// Frozen twice is rejected, as is any other mutation.
	_, err = f.Freeze()
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFinalized))
	_, err = f.Advance()
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFinalized))
	_, err = f.Back()
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFinalized))
	_, err = f.WithDeduction(deduction.Deduction{Description: "late", Amount: money.MustParse("1")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFinalized))
	_, err = f.WithMarketAdjustment(2.0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionFinalized))
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	s := withAnalysisAttached(t)
	_, err := s.Snapshot()
	require.Error(t, err)

	f := finalized(t)
	snap, err := f.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, f.ID, snap.SessionID)
	assert.Equal(t, f.Account, snap.Account)
	require.NotNil(t, snap.Analysis)
	assert.Len(t, snap.Analysis.TopComparables, 3)
	require.NotNil(t, snap.Assessment)
	assert.True(t, snap.Assessment.MedianValue.Equal(money.MustParse("220000")))
}

func TestSnapshot_CarriesOverridesAndEffectiveSubject(t *testing.T) {
	t.Parallel()

	sqft := 2600
	s, err := New(testSubject()).WithOverrides(property.Overrides{
		BuildingSqFt: &sqft, EvidenceFileName: "survey.pdf",
	})
	require.NoError(t, err)
	s = withAnalysisOn(t, s)
	for !s.Stage.Last() {
		s, err = s.Advance()
		require.NoError(t, err)
	}
	s, err = s.Freeze()
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2600, snap.Subject.BuildingSqFt)
	require.NotNil(t, snap.Overrides.BuildingSqFt)
	assert.Equal(t, 2600, *snap.Overrides.BuildingSqFt)
	assert.Equal(t, "survey.pdf", snap.Overrides.EvidenceFileName)
}

// withAnalysisOn advances an existing session to the analysis stage and
// attaches a minimal analysis.
func withAnalysisOn(t *testing.T, s *Session) *Session {
	t.Helper()
	s, err := s.Advance()
	require.NoError(t, err)
	a := testAnalysis()
	r, err := valuation.ComputeMedianAssessment(valuation.BaselineAppraised,
		money.MustParse("250000"), a.AdjustedValues(), 3)
	require.NoError(t, err)
	s, err = s.WithAnalysis(a, r)
	require.NoError(t, err)
	return s
}

func TestWithMarketAdjustment(t *testing.T) {
	t.Parallel()

	s := New(testSubject())
	s2, err := s.WithMarketAdjustment(2.5)
	require.NoError(t, err)
	require.NotNil(t, s2.MarketAdjustmentPercent)
	assert.Equal(t, 2.5, *s2.MarketAdjustmentPercent)
	assert.Nil(t, s.MarketAdjustmentPercent)
}

func TestStages(t *testing.T) {
	t.Parallel()

	all := Stages()
	require.Len(t, all, 6)
	assert.Equal(t, StageReviewDetails, all[0])
	assert.Equal(t, StageGenerateReport, all[5])

	for i, st := range all {
		assert.Equal(t, i, st.Index())
		assert.True(t, st.Valid())
	}
	assert.False(t, Stage("bogus").Valid())
	assert.True(t, all[0].First())
	assert.True(t, all[5].Last())
}
