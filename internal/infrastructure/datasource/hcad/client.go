// Package hcad fetches appraisal-roll records from the county data service.
package hcad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Config holds the data-service connection settings.
type Config struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryBackoff   time.Duration `json:"retry_backoff"`
}

// DataSource looks up county records for a property.
type DataSource interface {
	// FetchProperty returns the roll record for an account, or an
	// ErrCodePropertyNotFound AppError when the county has no such account.
	FetchProperty(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error)

	// FetchNeighborhoodCandidates returns the raw records of properties in
	// the subject's neighborhood, the comparable candidate pool.
	FetchNeighborhoodCandidates(ctx context.Context, acct common.AccountNumber) ([]comparable.CandidateRecord, error)
}

type client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

// New returns a DataSource over the county's HTTP API.
func New(cfg Config, logger logging.Logger) (DataSource, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "datasource base_url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.Named("hcad"),
	}, nil
}

// propertyRecord mirrors the county API's JSON shape.  Dollar fields arrive
// as strings on the wire.
type propertyRecord struct {
	Account          string `json:"acct"`
	SiteAddress      string `json:"site_addr"`
	NeighborhoodCode string `json:"neighborhood_code"`
	YearImproved     int    `json:"yr_impr"`
	BuildingSqFt     int    `json:"bld_ar"`
	LandSqFt         int    `json:"land_ar"`
	LandValue        string `json:"land_val"`
	BuildingValue    string `json:"bld_val"`
	ExtraFeaturesVal string `json:"x_features_val"`
	TotalMarketValue string `json:"tot_mkt_val"`
	TotalApprValue   string `json:"tot_appr_val"`
}

func (c *client) FetchProperty(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error) {
	if err := acct.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAccountNumberInvalid, "fetch property")
	}

	var rec propertyRecord
	url := fmt.Sprintf("%s/api/property/%s", c.cfg.BaseURL, acct)
	if err := c.getJSON(ctx, url, string(acct), &rec); err != nil {
		return nil, err
	}

	p := &property.SubjectProperty{
		Account:          common.AccountNumber(rec.Account),
		SiteAddress:      rec.SiteAddress,
		NeighborhoodCode: rec.NeighborhoodCode,
		YearImproved:     rec.YearImproved,
		BuildingSqFt:     rec.BuildingSqFt,
		LandSqFt:         rec.LandSqFt,
		RetrievedAt:      time.Now().UTC(),
	}

	var err error
	if p.LandValue, err = parseDollar(rec.LandValue, "land_val"); err != nil {
		return nil, err
	}
	if p.BuildingValue, err = parseDollar(rec.BuildingValue, "bld_val"); err != nil {
		return nil, err
	}
	if p.ExtraFeaturesValue, err = parseDollar(rec.ExtraFeaturesVal, "x_features_val"); err != nil {
		return nil, err
	}
	if p.TotalMarketValue, err = parseDollar(rec.TotalMarketValue, "tot_mkt_val"); err != nil {
		return nil, err
	}
	if p.TotalAppraisedValue, err = parseDollar(rec.TotalApprValue, "tot_appr_val"); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceParseError, "county record unusable")
	}
	return p, nil
}

func (c *client) FetchNeighborhoodCandidates(ctx context.Context, acct common.AccountNumber) ([]comparable.CandidateRecord, error) {
	if err := acct.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAccountNumberInvalid, "fetch candidates")
	}

	var recs []propertyRecord
	url := fmt.Sprintf("%s/api/property/%s/comparables", c.cfg.BaseURL, acct)
	if err := c.getJSON(ctx, url, string(acct), &recs); err != nil {
		return nil, err
	}

	out := make([]comparable.CandidateRecord, 0, len(recs))
	for _, r := range recs {
		cand := comparable.CandidateRecord{
			Account:      common.AccountNumber(r.Account),
			Address:      r.SiteAddress,
			YearImproved: r.YearImproved,
			BuildingSqFt: r.BuildingSqFt,
		}
		var err error
		if cand.BuildingValue, err = parseDollar(r.BuildingValue, "bld_val"); err != nil {
			continue // skip malformed rows rather than failing the pool
		}
		if cand.LandValue, err = parseDollar(r.LandValue, "land_val"); err != nil {
			continue
		}
		if cand.TotalValue, err = parseDollar(r.TotalMarketValue, "tot_mkt_val"); err != nil {
			continue
		}
		out = append(out, cand)
	}
	c.logger.Debug("fetched neighborhood candidates",
		logging.String("account", string(acct)),
		logging.Int("count", len(out)),
		logging.Int("skipped", len(recs)-len(out)))
	return out, nil
}

// getJSON performs a GET with bounded retries on transient failures.
func (c *client) getJSON(ctx context.Context, url, acct string, dst interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrCodeDataSourceUnavailable, "fetch canceled")
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			}
		}

		retryable, err := c.getOnce(ctx, url, acct, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.logger.Warn("county fetch failed, retrying",
			logging.Int("attempt", attempt+1), logging.Err(err))
	}
	return lastErr
}

func (c *client) getOnce(ctx context.Context, url, acct string, dst interface{}) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "build request")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "call county service")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, errors.Newf(errors.ErrCodePropertyNotFound, "account %s not on the rolls", acct)
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, errors.New(errors.ErrCodeDataSourceRateLimited, "county service rate limited")
	case resp.StatusCode >= 500:
		return true, errors.Newf(errors.ErrCodeDataSourceUnavailable, "county service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return false, errors.Newf(errors.ErrCodeDataSourceUnavailable, "county service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return true, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "read response")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDataSourceParseError, "decode county response")
	}
	return false, nil
}

func parseDollar(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return money.Zero, nil
	}
	v, err := money.Parse(s)
	if err != nil {
		return money.Zero, errors.Wrap(err, errors.ErrCodeDataSourceParseError, "field "+field)
	}
	return v, nil
}
