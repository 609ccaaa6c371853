// Package session holds the protest session aggregate: one owner's pass
// through the preparation workflow for one property, from reviewing the roll
// record to generating the evidence package.
//
// Sessions are immutable values.  Every mutating method returns a new
// *Session and leaves the receiver untouched, so concurrent readers never
// see a half-applied change and the service layer can retry optimistic
// writes safely.
package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// ExtraFeatureDispute challenges one extra-feature line item on the roll
// (e.g. a pool that was removed), reducing the proposed value by Reduction.
type ExtraFeatureDispute struct {
	FeatureCode string          `json:"feature_code"`
	Description string          `json:"description"`
	Reduction   decimal.Decimal `json:"reduction"`
	Note        string          `json:"note,omitempty"`
}

// Session is the aggregate for one protest in preparation.
type Session struct {
	ID      common.ID                `json:"id"`
	Account common.AccountNumber     `json:"account"`
	Subject property.SubjectProperty `json:"subject"`

	Stage     Stage `json:"stage"`
	Finalized bool  `json:"finalized"`

	Overrides property.Overrides `json:"overrides"`

	Analysis   *comparable.AnalysisData          `json:"analysis,omitempty"`
	Assessment *valuation.MedianAssessmentResult `json:"assessment,omitempty"`

	ExtraFeatureDisputes []ExtraFeatureDispute `json:"extra_feature_disputes,omitempty"`
	Deductions           []deduction.Deduction `json:"deductions,omitempty"`

	// MarketAdjustmentPercent is nil until the owner applies one.
	MarketAdjustmentPercent *float64 `json:"market_adjustment_percent,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New opens a session at the first workflow stage.
func New(subject property.SubjectProperty) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        common.NewID(),
		Account:   subject.Account,
		Subject:   subject,
		Stage:     stageOrder[0],
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// clone copies the session, including its slices, so the copy can be
// modified without the original observing it.
func (s *Session) clone() *Session {
	out := *s
	if s.ExtraFeatureDisputes != nil {
		out.ExtraFeatureDisputes = make([]ExtraFeatureDispute, len(s.ExtraFeatureDisputes))
		copy(out.ExtraFeatureDisputes, s.ExtraFeatureDisputes)
	}
	if s.Deductions != nil {
		out.Deductions = make([]deduction.Deduction, len(s.Deductions))
		copy(out.Deductions, s.Deductions)
	}
	if s.MarketAdjustmentPercent != nil {
		pct := *s.MarketAdjustmentPercent
		out.MarketAdjustmentPercent = &pct
	}
	return &out
}

// touch bumps the version and timestamp on a clone.
func (s *Session) touch() {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// guardMutable rejects changes to a finalized session.
func (s *Session) guardMutable() error {
	if s.Finalized {
		return errors.Newf(errors.ErrCodeSessionFinalized, "session %s is finalized", s.ID)
	}
	return nil
}

// Advance moves the session to the next stage.  Leaving the analysis stage
// requires an attached analysis; running off the end of the workflow is an
// invalid transition.
func (s *Session) Advance() (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	if s.Stage == StageUpdateAndAnalyze && s.Analysis == nil {
		return nil, errors.New(errors.ErrCodeAnalysisNotReady,
			"run the comparable analysis before moving on")
	}
	next, err := s.Stage.next()
	if err != nil {
		return nil, err
	}
	out := s.clone()
	out.Stage = next
	out.touch()
	return out, nil
}

// Back moves the session to the previous stage.  Earlier inputs are kept;
// stepping back never discards work.
func (s *Session) Back() (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	prev, err := s.Stage.prev()
	if err != nil {
		return nil, err
	}
	out := s.clone()
	out.Stage = prev
	out.touch()
	return out, nil
}

// WithOverrides records owner corrections to the roll data.  Changing the
// facts invalidates any analysis already run.
func (s *Session) WithOverrides(o property.Overrides) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	out := s.clone()
	out.Overrides = o
	out.Analysis = nil
	out.Assessment = nil
	out.touch()
	return out, nil
}

// EffectiveSubject is the subject record with overrides applied.
func (s *Session) EffectiveSubject() property.SubjectProperty {
	return s.Overrides.Apply(s.Subject)
}

// WithAnalysis attaches a completed comparable analysis and its valuation.
func (s *Session) WithAnalysis(a comparable.AnalysisData, r *valuation.MedianAssessmentResult) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	out := s.clone()
	out.Analysis = &a
	out.Assessment = r
	out.touch()
	return out, nil
}

// WithExtraFeatureDispute records a dispute of one extra-feature line item.
func (s *Session) WithExtraFeatureDispute(d ExtraFeatureDispute) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	if d.Reduction.IsNegative() {
		return nil, errors.New(errors.ErrCodeInvalidAmount, "feature reduction cannot be negative")
	}
	out := s.clone()
	out.ExtraFeatureDisputes = append(out.ExtraFeatureDisputes, d)
	out.touch()
	return out, nil
}

// WithDeduction validates and appends a repair-cost deduction.
func (s *Session) WithDeduction(d deduction.Deduction) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	stored, err := deduction.RestoreLedger(s.Deductions).Add(d)
	if err != nil {
		return nil, err
	}
	out := s.clone()
	out.Deductions = append(out.Deductions, stored)
	out.touch()
	return out, nil
}

// WithEvidence attaches an uploaded evidence file to one of the session's
// deductions.
func (s *Session) WithEvidence(dedID common.ID, f deduction.EvidenceFile) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	ledger := deduction.RestoreLedger(s.Deductions)
	if err := ledger.AttachEvidence(dedID, f); err != nil {
		return nil, err
	}
	out := s.clone()
	out.Deductions = ledger.Items()
	out.touch()
	return out, nil
}

// WithQuote attaches a contractor quote to one of the session's deductions.
func (s *Session) WithQuote(dedID common.ID, q deduction.QuoteFile) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	ledger := deduction.RestoreLedger(s.Deductions)
	if err := ledger.AttachQuote(dedID, q); err != nil {
		return nil, err
	}
	out := s.clone()
	out.Deductions = ledger.Items()
	out.touch()
	return out, nil
}

// WithoutEvidence detaches an evidence file from one of the session's
// deductions.  Detaching an absent file is a no-op apart from the version
// bump.
func (s *Session) WithoutEvidence(dedID common.ID, fileID common.ID) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	ledger := deduction.RestoreLedger(s.Deductions)
	ledger.DetachEvidence(dedID, fileID)
	out := s.clone()
	out.Deductions = ledger.Items()
	out.touch()
	return out, nil
}

// WithoutQuote detaches a contractor quote from one of the session's
// deductions, with the same idempotence as WithoutEvidence.
func (s *Session) WithoutQuote(dedID common.ID, fileID common.ID) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	ledger := deduction.RestoreLedger(s.Deductions)
	ledger.DetachQuote(dedID, fileID)
	out := s.clone()
	out.Deductions = ledger.Items()
	out.touch()
	return out, nil
}

// WithoutDeduction removes a deduction by ID.  Removing an absent ID returns
// the session unchanged apart from the version bump.
func (s *Session) WithoutDeduction(id common.ID) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	out := s.clone()
	for i, d := range out.Deductions {
		if d.ID == id {
			out.Deductions = append(out.Deductions[:i], out.Deductions[i+1:]...)
			break
		}
	}
	out.touch()
	return out, nil
}

// WithMarketAdjustment records the market decline percentage.  Range
// checking happens in the valuation package before this is called; the
// session only stores what was accepted.
func (s *Session) WithMarketAdjustment(percent float64) (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	out := s.clone()
	out.MarketAdjustmentPercent = &percent
	out.touch()
	return out, nil
}

// DeductionTotal sums the session's deductions.
func (s *Session) DeductionTotal() decimal.Decimal {
	return deduction.RestoreLedger(s.Deductions).Total()
}

// ExtraFeatureReduction sums the disputed feature reductions.
func (s *Session) ExtraFeatureReduction() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.ExtraFeatureDisputes {
		total = total.Add(d.Reduction)
	}
	return total
}

// Freeze finalizes the session once it has reached the report stage.  A
// frozen session rejects every further mutation.
func (s *Session) Freeze() (*Session, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	if s.Stage != StageGenerateReport {
		return nil, errors.Newf(errors.ErrCodeInvalidTransition,
			"cannot finalize from stage %s", s.Stage)
	}
	out := s.clone()
	out.Finalized = true
	out.touch()
	return out, nil
}

// Snapshot is the read-only view of a finalized session handed to report
// generation.
type Snapshot struct {
	SessionID common.ID            `json:"session_id"`
	Account   common.AccountNumber `json:"account"`

	// Subject is the effective record, overrides already applied; Overrides
	// is kept alongside so reports can show what the owner corrected.
	Subject   property.SubjectProperty `json:"subject"`
	Overrides property.Overrides       `json:"overrides"`

	Analysis   *comparable.AnalysisData          `json:"analysis,omitempty"`
	Assessment *valuation.MedianAssessmentResult `json:"assessment,omitempty"`

	ExtraFeatureDisputes []ExtraFeatureDispute `json:"extra_feature_disputes,omitempty"`
	Deductions           []deduction.Deduction `json:"deductions,omitempty"`

	MarketAdjustmentPercent *float64 `json:"market_adjustment_percent,omitempty"`

	FrozenAt time.Time `json:"frozen_at"`
}

// Snapshot captures the session's state for report generation.  Only a
// finalized session can be snapshotted.
func (s *Session) Snapshot() (*Snapshot, error) {
	if !s.Finalized {
		return nil, errors.Newf(errors.ErrCodeAnalysisNotReady,
			"session %s is not finalized", s.ID)
	}
	c := s.clone()
	return &Snapshot{
		SessionID:               c.ID,
		Account:                 c.Account,
		Subject:                 c.EffectiveSubject(),
		Overrides:               c.Overrides,
		Analysis:                c.Analysis,
		Assessment:              c.Assessment,
		ExtraFeatureDisputes:    c.ExtraFeatureDisputes,
		Deductions:              c.Deductions,
		MarketAdjustmentPercent: c.MarketAdjustmentPercent,
		FrozenAt:                c.UpdatedAt,
	}, nil
}

// Repository persists sessions with optimistic concurrency on Version.
type Repository interface {
	// Save inserts or updates the session.  Updates must match the stored
	// version and return an ErrCodeConflict AppError otherwise.
	Save(ctx context.Context, s *Session) error

	// FindByID returns the stored session, or an ErrCodeSessionNotFound
	// AppError when no session has that ID.
	FindByID(ctx context.Context, id common.ID) (*Session, error)

	// FindByAccount lists sessions for an account, newest first.
	FindByAccount(ctx context.Context, acct common.AccountNumber) ([]*Session, error)
}
