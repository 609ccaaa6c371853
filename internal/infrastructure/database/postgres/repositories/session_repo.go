package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/postgres"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

type postgresSessionRepo struct {
	conn *postgres.Connection
	tx   *sql.Tx
	log  logging.Logger
}

// NewPostgresSessionRepo returns a session.Repository over PostgreSQL.  The
// aggregate's nested documents (subject, analysis, deductions) are stored as
// JSONB; scalar columns carry what queries filter on.
func NewPostgresSessionRepo(conn *postgres.Connection, log logging.Logger) session.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresSessionRepo{conn: conn, log: log}
}

func (r *postgresSessionRepo) executor() queryExecutor {
	if r.tx != nil {
		return r.tx
	}
	return r.conn.DB()
}

func (r *postgresSessionRepo) Save(ctx context.Context, s *session.Session) error {
	subject, err := json.Marshal(s.Subject)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode subject")
	}
	overrides, err := json.Marshal(s.Overrides)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode overrides")
	}
	var analysis, assessment []byte
	if s.Analysis != nil {
		if analysis, err = json.Marshal(s.Analysis); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode analysis")
		}
	}
	if s.Assessment != nil {
		if assessment, err = json.Marshal(s.Assessment); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode assessment")
		}
	}
	disputes, err := json.Marshal(s.ExtraFeatureDisputes)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode disputes")
	}
	deductions, err := json.Marshal(s.Deductions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode deductions")
	}

	query := `
		INSERT INTO sessions (
			id, account, stage, finalized, subject, overrides, analysis,
			assessment, extra_feature_disputes, deductions,
			market_adjustment_percent, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			finalized = EXCLUDED.finalized,
			overrides = EXCLUDED.overrides,
			analysis = EXCLUDED.analysis,
			assessment = EXCLUDED.assessment,
			extra_feature_disputes = EXCLUDED.extra_feature_disputes,
			deductions = EXCLUDED.deductions,
			market_adjustment_percent = EXCLUDED.market_adjustment_percent,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE sessions.version < EXCLUDED.version
	`
	res, err := r.executor().ExecContext(ctx, query,
		string(s.ID), string(s.Account), string(s.Stage), s.Finalized,
		subject, overrides, analysis, assessment, disputes, deductions,
		s.MarketAdjustmentPercent, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "save session")
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return errors.Newf(errors.ErrCodeConflict,
			"session %s was updated concurrently (version %d is stale)", s.ID, s.Version)
	}
	return nil
}

func (r *postgresSessionRepo) FindByID(ctx context.Context, id common.ID) (*session.Session, error) {
	row := r.executor().QueryRowContext(ctx, selectSessions+" WHERE id = $1", string(id))
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "find session")
	}
	return s, nil
}

func (r *postgresSessionRepo) FindByAccount(ctx context.Context, acct common.AccountNumber) ([]*session.Session, error) {
	rows, err := r.executor().QueryContext(ctx,
		selectSessions+" WHERE account = $1 ORDER BY created_at DESC", string(acct))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list sessions")
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan session")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate sessions")
	}
	return out, nil
}

const selectSessions = `
	SELECT id, account, stage, finalized, subject, overrides, analysis,
	       assessment, extra_feature_disputes, deductions,
	       market_adjustment_percent, version, created_at, updated_at
	FROM sessions`

func scanSession(sc scanner) (*session.Session, error) {
	var (
		s                 session.Session
		id, acct, stage   string
		subject, override []byte
		analysis          []byte
		assessment        []byte
		disputes          []byte
		deductionsJSON    []byte
		marketPct         sql.NullFloat64
	)
	err := sc.Scan(
		&id, &acct, &stage, &s.Finalized, &subject, &override, &analysis,
		&assessment, &disputes, &deductionsJSON, &marketPct,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ID = common.ID(id)
	s.Account = common.AccountNumber(acct)
	s.Stage = session.Stage(stage)

	if err := json.Unmarshal(subject, &s.Subject); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(override, &s.Overrides); err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		var a comparable.AnalysisData
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, err
		}
		s.Analysis = &a
	}
	if len(assessment) > 0 {
		var a valuation.MedianAssessmentResult
		if err := json.Unmarshal(assessment, &a); err != nil {
			return nil, err
		}
		s.Assessment = &a
	}
	if len(disputes) > 0 {
		if err := json.Unmarshal(disputes, &s.ExtraFeatureDisputes); err != nil {
			return nil, err
		}
	}
	if len(deductionsJSON) > 0 {
		var ds []deduction.Deduction
		if err := json.Unmarshal(deductionsJSON, &ds); err != nil {
			return nil, err
		}
		s.Deductions = ds
	}
	if marketPct.Valid {
		s.MarketAdjustmentPercent = &marketPct.Float64
	}
	return &s, nil
}
