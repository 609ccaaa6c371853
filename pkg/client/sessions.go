package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// SessionsClient drives protest workflow sessions through the staged
// pipeline: lookup, analysis, deductions, market adjustment, report.
type SessionsClient struct {
	client *Client
}

// Session is the API representation of a protest workflow session.
type Session struct {
	ID      string   `json:"id"`
	Account string   `json:"account"`
	Subject Property `json:"subject"`

	Stage     string `json:"stage"`
	Finalized bool   `json:"finalized"`

	Overrides SubjectOverrides `json:"overrides"`

	Analysis   *AnalysisData     `json:"analysis,omitempty"`
	Assessment *MedianAssessment `json:"assessment,omitempty"`

	ExtraFeatureDisputes []ExtraFeatureDispute `json:"extra_feature_disputes,omitempty"`
	Deductions           []Deduction           `json:"deductions,omitempty"`

	MarketAdjustmentPercent *float64 `json:"market_adjustment_percent,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectOverrides are owner-asserted corrections to the county record.
type SubjectOverrides struct {
	YearImproved     *int   `json:"year_improved,omitempty"`
	BuildingSqFt     *int   `json:"building_sqft,omitempty"`
	EvidenceFileName string `json:"evidence_file_name,omitempty"`
}

// RankedComparable is one ranked entry in the analysis result.
type RankedComparable struct {
	Rank          int             `json:"rank"`
	Account       string          `json:"account"`
	Address       string          `json:"address"`
	AdjustedValue decimal.Decimal `json:"adjusted_value"`
	AdjustedPSF   decimal.Decimal `json:"adjusted_psf"`
	Rationale     string          `json:"rationale,omitempty"`
}

// ExcludedProperty records why a candidate was dropped from the ranking.
type ExcludedProperty struct {
	Account string `json:"account"`
	Note    string `json:"note"`
}

// AnalysisData is the ranked comparable set attached to a session.
type AnalysisData struct {
	TopComparables []RankedComparable `json:"top_comps"`
	Excluded       []ExcludedProperty `json:"excluded"`
}

// MedianAssessment summarizes the median-of-comparables valuation.
type MedianAssessment struct {
	Baseline           string           `json:"baseline"`
	BaselineValue      decimal.Decimal  `json:"baseline_value"`
	MedianValue        decimal.Decimal  `json:"median_value"`
	ComparableCount    int              `json:"comparable_count"`
	MinValue           decimal.Decimal  `json:"min_value"`
	MaxValue           decimal.Decimal  `json:"max_value"`
	Difference         decimal.Decimal  `json:"difference"`
	PotentialSavings   decimal.Decimal  `json:"potential_savings"`
	PercentAboveMedian *decimal.Decimal `json:"percent_above_median,omitempty"`
	Reliable           bool             `json:"reliable"`
}

// ExtraFeatureDispute challenges a line item on the extra-features schedule.
type ExtraFeatureDispute struct {
	FeatureCode string          `json:"feature_code"`
	Description string          `json:"description"`
	Reduction   decimal.Decimal `json:"reduction"`
	Note        string          `json:"note,omitempty"`
}

// EvidenceFile is an uploaded photo or document backing a deduction.
type EvidenceFile struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Bucket      string    `json:"bucket,omitempty"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// QuoteFile is a contractor repair quote backing a deduction.
type QuoteFile struct {
	ID         string          `json:"id"`
	FileName   string          `json:"file_name"`
	Contractor string          `json:"contractor,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Bucket     string          `json:"bucket,omitempty"`
	StorageKey string          `json:"storage_key"`
	UploadedAt time.Time       `json:"uploaded_at"`
}

// Deduction is a condition-based value deduction claimed by the owner.
type Deduction struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Evidence    []EvidenceFile  `json:"evidence,omitempty"`
	Quotes      []QuoteFile     `json:"quotes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DeductionRequest adds a deduction to a session.  Amount is a decimal
// string, e.g. "12500" or "$12,500".
type DeductionRequest struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// ExtraFeatureRequest disputes an extra-features line item.
type ExtraFeatureRequest struct {
	FeatureCode string `json:"feature_code"`
	Description string `json:"description"`
	Reduction   string `json:"reduction"`
	Note        string `json:"note,omitempty"`
}

type startSessionRequest struct {
	Account string `json:"account"`
}

type stageRequest struct {
	ToStage string `json:"to_stage,omitempty"`
}

type overridesRequest struct {
	YearImproved     *int   `json:"year_improved,omitempty"`
	BuildingSqFt     *int   `json:"building_sqft,omitempty"`
	EvidenceFileName string `json:"evidence_file_name,omitempty"`
}

type marketAdjustmentRequest struct {
	RatePercent float64 `json:"rate_percent"`
}

type proposedValueResponse struct {
	ProposedValue decimal.Decimal `json:"proposed_value"`
}

// Start opens a protest session for the given account number.
func (sc *SessionsClient) Start(ctx context.Context, account string) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, "/api/v1/sessions", startSessionRequest{Account: account}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get fetches a session by ID.
func (sc *SessionsClient) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := sc.client.get(ctx, sc.path(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// List fetches all sessions for an account number.
func (sc *SessionsClient) List(ctx context.Context, account string) ([]Session, error) {
	var list []Session
	path := "/api/v1/sessions?account=" + url.QueryEscape(account)
	if err := sc.client.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Advance moves the session to the next stage.  toStage, when non-empty, is
// asserted against the expected next stage server-side.
func (sc *SessionsClient) Advance(ctx context.Context, id, toStage string) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/advance", stageRequest{ToStage: toStage}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Back moves the session to the previous stage.
func (sc *SessionsClient) Back(ctx context.Context, id, toStage string) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/back", stageRequest{ToStage: toStage}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetOverrides records owner corrections to the county record.
func (sc *SessionsClient) SetOverrides(ctx context.Context, id string, yearImproved, buildingSqFt *int, evidenceFileName string) (*Session, error) {
	var s Session
	req := overridesRequest{
		YearImproved:     yearImproved,
		BuildingSqFt:     buildingSqFt,
		EvidenceFileName: evidenceFileName,
	}
	if err := sc.client.post(ctx, sc.path(id)+"/overrides", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RunAnalysis asks the server to run comparable analysis on the session's
// effective subject property.
func (sc *SessionsClient) RunAnalysis(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/analysis", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SubmitAnalysis attaches a caller-supplied comparable set instead of running
// the server-side analyzer.  The server cleans and re-assesses the data.
func (sc *SessionsClient) SubmitAnalysis(ctx context.Context, id string, data AnalysisData) (*Session, error) {
	var s Session
	body := struct {
		Analysis AnalysisData `json:"analysis"`
	}{Analysis: data}
	if err := sc.client.post(ctx, sc.path(id)+"/analysis", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AddDeduction adds a condition deduction to the session.
func (sc *SessionsClient) AddDeduction(ctx context.Context, id string, req DeductionRequest) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/deductions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RemoveDeduction removes a deduction by ID.  Removal is idempotent.
func (sc *SessionsClient) RemoveDeduction(ctx context.Context, id, deductionID string) error {
	return sc.client.delete(ctx, sc.path(id)+"/deductions/"+url.PathEscape(deductionID))
}

// ComparableExclusion marks one comparable for removal from the analysis.
type ComparableExclusion struct {
	Account string `json:"account"`
	Note    string `json:"note,omitempty"`
}

// ExcludeComparables drops reviewer-rejected comparables from the attached
// analysis; the server re-ranks the survivors and recomputes the median.
func (sc *SessionsClient) ExcludeComparables(ctx context.Context, id string, exclusions []ComparableExclusion) (*Session, error) {
	var s Session
	body := struct {
		Exclusions []ComparableExclusion `json:"exclusions"`
	}{Exclusions: exclusions}
	if err := sc.client.post(ctx, sc.path(id)+"/analysis/exclusions", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DetachEvidence unlinks an uploaded evidence file from a deduction and
// releases the stored object.  Detaching twice succeeds.
func (sc *SessionsClient) DetachEvidence(ctx context.Context, id, deductionID, fileID string) error {
	return sc.client.delete(ctx, sc.path(id)+"/deductions/"+url.PathEscape(deductionID)+
		"/evidence/"+url.PathEscape(fileID))
}

// AddExtraFeature disputes an extra-features line item.
func (sc *SessionsClient) AddExtraFeature(ctx context.Context, id string, req ExtraFeatureRequest) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/extra-features", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetMarketAdjustment records the claimed market decline rate in percent.
func (sc *SessionsClient) SetMarketAdjustment(ctx context.Context, id string, ratePercent float64) (*Session, error) {
	var s Session
	if err := sc.client.post(ctx, sc.path(id)+"/market-adjustment", marketAdjustmentRequest{RatePercent: ratePercent}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ProposedValue computes the session's current proposed total value.
func (sc *SessionsClient) ProposedValue(ctx context.Context, id string) (decimal.Decimal, error) {
	var resp proposedValueResponse
	if err := sc.client.get(ctx, sc.path(id)+"/proposed-value", &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.ProposedValue, nil
}

// GenerateReport finalizes the session and queues report generation.
func (sc *SessionsClient) GenerateReport(ctx context.Context, id string) (*Report, error) {
	var rep Report
	if err := sc.client.post(ctx, sc.path(id)+"/report", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (sc *SessionsClient) path(id string) string {
	return fmt.Sprintf("/api/v1/sessions/%s", url.PathEscape(id))
}
