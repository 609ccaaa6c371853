package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// PropertiesClient exposes property lookup and comparable discovery.
type PropertiesClient struct {
	client *Client
}

// Property is a county appraisal record for a subject property.
type Property struct {
	Account          string `json:"account"`
	SiteAddress      string `json:"site_address"`
	NeighborhoodCode string `json:"neighborhood_code"`

	YearImproved int `json:"year_improved"`
	BuildingSqFt int `json:"building_sqft"`
	LandSqFt     int `json:"land_sqft"`

	LandValue           decimal.Decimal `json:"land_value"`
	BuildingValue       decimal.Decimal `json:"building_value"`
	ExtraFeaturesValue  decimal.Decimal `json:"extra_features_value"`
	TotalMarketValue    decimal.Decimal `json:"total_market_value"`
	TotalAppraisedValue decimal.Decimal `json:"total_appraised_value"`
}

// CandidateRecord is a raw neighborhood record before ranking.
type CandidateRecord struct {
	Account       string          `json:"account"`
	Address       string          `json:"address"`
	YearImproved  int             `json:"year_improved"`
	BuildingSqFt  int             `json:"building_sqft"`
	BuildingValue decimal.Decimal `json:"building_value"`
	LandValue     decimal.Decimal `json:"land_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// ComparableAdjustment is a candidate with equity adjustments applied.
type ComparableAdjustment struct {
	Candidate CandidateRecord `json:"candidate"`

	ImprovementPSF decimal.Decimal `json:"improvement_psf"`
	SizeAdjustment decimal.Decimal `json:"size_adjustment"`
	AgeAdjustment  decimal.Decimal `json:"age_adjustment"`

	TotalAdjustedValue decimal.Decimal `json:"total_adjusted_value"`
	AdjustedPSF        decimal.Decimal `json:"adjusted_psf"`
}

// GroupedComparables buckets adjusted candidates by selection strategy.
type GroupedComparables struct {
	ClosestByAge  []ComparableAdjustment `json:"closest_by_age"`
	ClosestBySqFt []ComparableAdjustment `json:"closest_by_sqft"`
	LowestByValue []ComparableAdjustment `json:"lowest_by_value"`
}

// Get fetches the appraisal record for a 13-digit account number.
func (pc *PropertiesClient) Get(ctx context.Context, account string) (*Property, error) {
	var prop Property
	path := fmt.Sprintf("/api/v1/properties/%s", url.PathEscape(account))
	if err := pc.client.get(ctx, path, &prop); err != nil {
		return nil, err
	}
	return &prop, nil
}

// Comparables fetches adjusted comparable candidates for the account's
// neighborhood, grouped by selection strategy.
func (pc *PropertiesClient) Comparables(ctx context.Context, account string) (*GroupedComparables, error) {
	var groups GroupedComparables
	path := fmt.Sprintf("/api/v1/properties/%s/comparables", url.PathEscape(account))
	if err := pc.client.get(ctx, path, &groups); err != nil {
		return nil, err
	}
	return &groups, nil
}
