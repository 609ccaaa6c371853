package repositories

import (
	"context"
	"database/sql"

	"github.com/fairclaim/protest-engine/internal/application/reporting"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

type postgresReportRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresReportRepo returns a reporting.Repository over PostgreSQL.
func NewPostgresReportRepo(conn *postgres.Connection, log logging.Logger) reporting.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresReportRepo{conn: conn, log: log}
}

func (r *postgresReportRepo) Save(ctx context.Context, rep *reporting.Report) error {
	query := `
		INSERT INTO reports (
			id, session_id, account, status, file_name, bucket, storage_key,
			size_bytes, error, requested_at, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			bucket = EXCLUDED.bucket,
			storage_key = EXCLUDED.storage_key,
			size_bytes = EXCLUDED.size_bytes,
			error = EXCLUDED.error,
			generated_at = EXCLUDED.generated_at
	`
	_, err := r.conn.DB().ExecContext(ctx, query,
		string(rep.ID), string(rep.SessionID), string(rep.Account),
		string(rep.Status), rep.FileName, rep.Bucket, rep.StorageKey,
		rep.SizeBytes, rep.Error, rep.RequestedAt, rep.GeneratedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "save report")
	}
	return nil
}

func (r *postgresReportRepo) FindByID(ctx context.Context, id common.ID) (*reporting.Report, error) {
	row := r.conn.DB().QueryRowContext(ctx, selectReports+" WHERE id = $1", string(id))
	rep, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeReportNotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "find report")
	}
	return rep, nil
}

func (r *postgresReportRepo) FindBySession(ctx context.Context, sessionID common.ID) ([]*reporting.Report, error) {
	rows, err := r.conn.DB().QueryContext(ctx,
		selectReports+" WHERE session_id = $1 ORDER BY requested_at DESC", string(sessionID))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list reports")
	}
	defer rows.Close()

	var out []*reporting.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan report")
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate reports")
	}
	return out, nil
}

const selectReports = `
	SELECT id, session_id, account, status, file_name, bucket, storage_key,
	       size_bytes, error, requested_at, generated_at
	FROM reports`

func scanReport(sc scanner) (*reporting.Report, error) {
	var (
		rep                      reporting.Report
		id, sessionID, acct, st  string
		bucket, storageKey, fail sql.NullString
		size                     sql.NullInt64
		generatedAt              sql.NullTime
	)
	err := sc.Scan(
		&id, &sessionID, &acct, &st, &rep.FileName, &bucket, &storageKey,
		&size, &fail, &rep.RequestedAt, &generatedAt,
	)
	if err != nil {
		return nil, err
	}

	rep.ID = common.ID(id)
	rep.SessionID = common.ID(sessionID)
	rep.Account = common.AccountNumber(acct)
	rep.Status = reporting.Status(st)
	rep.Bucket = bucket.String
	rep.StorageKey = storageKey.String
	rep.SizeBytes = size.Int64
	rep.Error = fail.String
	if generatedAt.Valid {
		t := generatedAt.Time
		rep.GeneratedAt = &t
	}
	return &rep, nil
}
