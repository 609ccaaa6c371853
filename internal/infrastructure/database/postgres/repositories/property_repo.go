package repositories

import (
	"context"
	"database/sql"

	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

type postgresPropertyRepo struct {
	conn *postgres.Connection
	tx   *sql.Tx
	log  logging.Logger
}

// NewPostgresPropertyRepo returns a property.Repository over PostgreSQL.
func NewPostgresPropertyRepo(conn *postgres.Connection, log logging.Logger) property.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresPropertyRepo{conn: conn, log: log}
}

func (r *postgresPropertyRepo) executor() queryExecutor {
	if r.tx != nil {
		return r.tx
	}
	return r.conn.DB()
}

func (r *postgresPropertyRepo) Save(ctx context.Context, p *property.SubjectProperty) error {
	query := `
		INSERT INTO properties (
			account, site_address, neighborhood_code, year_improved,
			building_sqft, land_sqft, land_value, building_value,
			extra_features_value, total_market_value, total_appraised_value,
			retrieved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account) DO UPDATE SET
			site_address = EXCLUDED.site_address,
			neighborhood_code = EXCLUDED.neighborhood_code,
			year_improved = EXCLUDED.year_improved,
			building_sqft = EXCLUDED.building_sqft,
			land_sqft = EXCLUDED.land_sqft,
			land_value = EXCLUDED.land_value,
			building_value = EXCLUDED.building_value,
			extra_features_value = EXCLUDED.extra_features_value,
			total_market_value = EXCLUDED.total_market_value,
			total_appraised_value = EXCLUDED.total_appraised_value,
			retrieved_at = EXCLUDED.retrieved_at
	`
	_, err := r.executor().ExecContext(ctx, query,
		string(p.Account), p.SiteAddress, p.NeighborhoodCode, p.YearImproved,
		p.BuildingSqFt, p.LandSqFt, p.LandValue, p.BuildingValue,
		p.ExtraFeaturesValue, p.TotalMarketValue, p.TotalAppraisedValue,
		p.RetrievedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "save property")
	}
	return nil
}

func (r *postgresPropertyRepo) FindByAccount(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error) {
	query := `
		SELECT account, site_address, neighborhood_code, year_improved,
		       building_sqft, land_sqft, land_value, building_value,
		       extra_features_value, total_market_value, total_appraised_value,
		       retrieved_at
		FROM properties WHERE account = $1
	`
	row := r.executor().QueryRowContext(ctx, query, string(acct))
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodePropertyNotFound, "account %s not stored", acct)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "find property")
	}
	return p, nil
}

func scanProperty(s scanner) (*property.SubjectProperty, error) {
	var p property.SubjectProperty
	var acct string
	err := s.Scan(
		&acct, &p.SiteAddress, &p.NeighborhoodCode, &p.YearImproved,
		&p.BuildingSqFt, &p.LandSqFt, &p.LandValue, &p.BuildingValue,
		&p.ExtraFeaturesValue, &p.TotalMarketValue, &p.TotalAppraisedValue,
		&p.RetrievedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Account = common.AccountNumber(acct)
	return &p, nil
}
