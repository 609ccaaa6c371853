// Package property defines the subject-property aggregate: the appraisal
// record a protest is filed against, as pulled from the county appraisal
// district rolls.
package property

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// SubjectProperty is the appraisal-roll record for the property under protest.
// All dollar figures are decimals; sizes are in square feet.
type SubjectProperty struct {
	Account          common.AccountNumber `json:"account"`
	SiteAddress      string               `json:"site_address"`
	NeighborhoodCode string               `json:"neighborhood_code"`

	YearImproved   int `json:"year_improved"`
	BuildingSqFt   int `json:"building_sqft"`
	LandSqFt       int `json:"land_sqft"`

	LandValue          decimal.Decimal `json:"land_value"`
	BuildingValue      decimal.Decimal `json:"building_value"`
	ExtraFeaturesValue decimal.Decimal `json:"extra_features_value"`
	TotalMarketValue   decimal.Decimal `json:"total_market_value"`
	TotalAppraisedValue decimal.Decimal `json:"total_appraised_value"`

	RetrievedAt time.Time `json:"retrieved_at"`
}

// Validate checks that the record is usable as the subject of an analysis.
func (p *SubjectProperty) Validate() error {
	if err := p.Account.Validate(); err != nil {
		return errors.New(errors.ErrCodeAccountNumberInvalid, err.Error())
	}
	if strings.TrimSpace(p.SiteAddress) == "" {
		return errors.New(errors.ErrCodePropertyDataInvalid, "site address is required")
	}
	if p.TotalMarketValue.IsNegative() || p.TotalAppraisedValue.IsNegative() {
		return errors.New(errors.ErrCodePropertyDataInvalid, "appraised values cannot be negative")
	}
	if p.TotalMarketValue.IsZero() && p.TotalAppraisedValue.IsZero() {
		return errors.New(errors.ErrCodePropertyDataInvalid, "record carries no market or appraised value")
	}
	return nil
}

// ImprovementPSF returns the building value per square foot of improvement,
// or zero when the building area is unknown.
func (p *SubjectProperty) ImprovementPSF() decimal.Decimal {
	if p.BuildingSqFt <= 0 {
		return decimal.Zero
	}
	return p.BuildingValue.Div(decimal.NewFromInt(int64(p.BuildingSqFt)))
}

// Overrides carries owner-supplied corrections to roll data, used when the
// county record is wrong (e.g. wrong square footage after a remodel).
// Nil pointer fields mean "no correction".
type Overrides struct {
	YearImproved     *int   `json:"year_improved,omitempty"`
	BuildingSqFt     *int   `json:"building_sqft,omitempty"`
	EvidenceFileName string `json:"evidence_file_name,omitempty"`
}

// Apply returns a copy of p with the overrides folded in.  The receiver is
// not modified.
func (o Overrides) Apply(p SubjectProperty) SubjectProperty {
	out := p
	if o.YearImproved != nil {
		out.YearImproved = *o.YearImproved
	}
	if o.BuildingSqFt != nil {
		out.BuildingSqFt = *o.BuildingSqFt
	}
	return out
}

// Empty reports whether the overrides change nothing.
func (o Overrides) Empty() bool {
	return o.YearImproved == nil && o.BuildingSqFt == nil
}

// Repository persists subject-property records fetched from the county so
// later sessions do not refetch them.
type Repository interface {
	// Save upserts the record keyed by account number.
	Save(ctx context.Context, p *SubjectProperty) error

	// FindByAccount returns the stored record, or an ErrCodePropertyNotFound
	// AppError when the account has never been fetched.
	FindByAccount(ctx context.Context, acct common.AccountNumber) (*SubjectProperty, error)
}
