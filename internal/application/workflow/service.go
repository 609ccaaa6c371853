// Package workflow drives protest sessions through the six-stage
// preparation pipeline, persisting every transition and publishing the
// lifecycle events other components react to.
package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/internal/infrastructure/messaging/kafka"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// SubjectLookup resolves roll records (served by the analysis service).
type SubjectLookup interface {
	LookupSubject(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error)
}

// EventPublisher is the slice of the Kafka producer this service uses.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, eventType, key string, payload interface{}) error
}

// Locker serializes access to one session across API instances.  Release
// is returned by Lock and must be called when the mutation finishes.
type Locker interface {
	Lock(ctx context.Context, sessionID common.ID) (release func(context.Context) error, err error)
}

// AttachmentStore releases uploaded deduction attachments once their
// deduction or link is removed.  Optional; a nil store keeps the objects.
type AttachmentStore interface {
	Remove(ctx context.Context, bucket, key string) error
}

// NopLocker performs no locking; single-instance deployments and tests.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, common.ID) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// Config tunes the workflow service.
type Config struct {
	MinAdjustmentPercent float64
	MaxAdjustmentPercent float64
	MinComparables       int
	LockTTL              time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinAdjustmentPercent == 0 {
		c.MinAdjustmentPercent = 0.5
	}
	if c.MaxAdjustmentPercent == 0 {
		c.MaxAdjustmentPercent = 3.5
	}
	if c.MinComparables == 0 {
		c.MinComparables = 3
	}
	if c.LockTTL == 0 {
		c.LockTTL = 30 * time.Second
	}
}

// Service owns session lifecycle: creation, stage transitions, deductions,
// market adjustment, and finalization.
type Service struct {
	sessions session.Repository
	subjects SubjectLookup
	locker   Locker
	store    AttachmentStore
	events   EventPublisher
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
	cfg      Config
}

func NewService(
	sessions session.Repository,
	subjects SubjectLookup,
	locker Locker,
	store AttachmentStore,
	events EventPublisher,
	metrics *prometheus.AppMetrics,
	log logging.Logger,
	cfg Config,
) *Service {
	if locker == nil {
		locker = NopLocker{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg.applyDefaults()
	return &Service{
		sessions: sessions,
		subjects: subjects,
		locker:   locker,
		store:    store,
		events:   events,
		metrics:  metrics,
		logger:   log.Named("workflow"),
		cfg:      cfg,
	}
}

// StartSession opens a session for an account at the review stage.
func (s *Service) StartSession(ctx context.Context, acct common.AccountNumber) (*session.Session, error) {
	subject, err := s.subjects.LookupSubject(ctx, acct)
	if err != nil {
		return nil, err
	}
	sess := session.New(*subject)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session started",
		logging.String("session_id", string(sess.ID)),
		logging.String("account", acct.String()))
	return sess, nil
}

// GetSession returns the stored session.
func (s *Service) GetSession(ctx context.Context, id common.ID) (*session.Session, error) {
	return s.sessions.FindByID(ctx, id)
}

// SessionsForAccount lists an account's sessions, newest first.
func (s *Service) SessionsForAccount(ctx context.Context, acct common.AccountNumber) ([]*session.Session, error) {
	return s.sessions.FindByAccount(ctx, acct)
}

// mutate loads the session under the per-session lock, applies fn, and
// persists the result.  fn returns the replacement session.
func (s *Service) mutate(ctx context.Context, id common.ID, fn func(*session.Session) (*session.Session, error)) (*session.Session, error) {
	release, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(ctx); relErr != nil {
			s.logger.Warn("release session lock",
				logging.String("session_id", string(id)), logging.Err(relErr))
		}
	}()

	current, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Advance moves the session to the next stage.
func (s *Service) Advance(ctx context.Context, id common.ID) (*session.Session, error) {
	var from session.Stage
	next, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		from = cur.Stage
		return cur.Advance()
	})
	if err != nil {
		prometheus.RecordStageTransition(s.metrics, string(from), "", string(errors.GetCode(err)))
		return nil, err
	}

	prometheus.RecordStageTransition(s.metrics, string(from), string(next.Stage), "")
	s.publish(ctx, kafka.TopicSessionAdvanced, "session.advanced", next, string(from))
	return next, nil
}

// Back moves the session to the previous stage.
func (s *Service) Back(ctx context.Context, id common.ID) (*session.Session, error) {
	var from session.Stage
	next, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		from = cur.Stage
		return cur.Back()
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordStageTransition(s.metrics, string(from), string(next.Stage), "")
	s.publish(ctx, kafka.TopicSessionAdvanced, "session.stepped_back", next, string(from))
	return next, nil
}

// SetOverrides records owner corrections, invalidating any prior analysis.
func (s *Service) SetOverrides(ctx context.Context, id common.ID, o property.Overrides) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithOverrides(o)
	})
}

// AttachAnalysis stores a completed analysis on the session.
func (s *Service) AttachAnalysis(ctx context.Context, id common.ID, a comparable.AnalysisData, r *valuation.MedianAssessmentResult) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithAnalysis(a, r)
	})
}

// ExcludeComparables drops reviewer-rejected comparables from the attached
// analysis and recomputes the median assessment over the survivors.  The
// exclusions are carried on the analysis with their notes.
func (s *Service) ExcludeComparables(ctx context.Context, id common.ID, exclusions []comparable.ExcludedProperty) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		if cur.Analysis == nil {
			return nil, errors.New(errors.ErrCodeAnalysisNotReady, "no analysis to exclude comparables from")
		}

		accepted, dropped := comparable.ApplyExclusions(cur.Analysis.TopComparables, exclusions)
		next := comparable.AnalysisData{
			TopComparables: accepted,
			Excluded:       append(append([]comparable.ExcludedProperty{}, cur.Analysis.Excluded...), dropped...),
		}

		assessment := cur.Assessment
		if assessment != nil {
			recomputed, err := valuation.ComputeMedianAssessment(
				assessment.Baseline, assessment.BaselineValue, next.AdjustedValues(), s.cfg.MinComparables)
			if err != nil {
				return nil, err
			}
			assessment = recomputed
		}
		return cur.WithAnalysis(next, assessment)
	})
}

// AddDeduction validates and appends a repair-cost deduction.
func (s *Service) AddDeduction(ctx context.Context, id common.ID, d deduction.Deduction) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithDeduction(d)
	})
}

// RemoveDeduction deletes a deduction; removing an absent ID is a no-op.
// Attachments uploaded for the deduction are released from object storage.
func (s *Service) RemoveDeduction(ctx context.Context, id common.ID, dedID common.ID) (*session.Session, error) {
	var removed *deduction.Deduction
	next, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		if d, err := deduction.RestoreLedger(cur.Deductions).Get(dedID); err == nil {
			removed = &d
		}
		return cur.WithoutDeduction(dedID)
	})
	if err != nil {
		return nil, err
	}
	if removed != nil {
		for _, f := range removed.Evidence {
			s.releaseObject(ctx, f.Bucket, f.StorageKey)
		}
		for _, q := range removed.Quotes {
			s.releaseObject(ctx, q.Bucket, q.StorageKey)
		}
	}
	return next, nil
}

// DetachEvidence unlinks an evidence file from a deduction and releases the
// stored object.  Detaching an absent file is a no-op.
func (s *Service) DetachEvidence(ctx context.Context, id common.ID, dedID common.ID, fileID common.ID) (*session.Session, error) {
	var detached *deduction.EvidenceFile
	next, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		if d, err := deduction.RestoreLedger(cur.Deductions).Get(dedID); err == nil {
			for _, f := range d.Evidence {
				if f.ID == fileID {
					detached = &f
					break
				}
			}
		}
		return cur.WithoutEvidence(dedID, fileID)
	})
	if err != nil {
		return nil, err
	}
	if detached != nil {
		s.releaseObject(ctx, detached.Bucket, detached.StorageKey)
	}
	return next, nil
}

// DetachQuote unlinks a contractor quote, with the same semantics as
// DetachEvidence.
func (s *Service) DetachQuote(ctx context.Context, id common.ID, dedID common.ID, fileID common.ID) (*session.Session, error) {
	var detached *deduction.QuoteFile
	next, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		if d, err := deduction.RestoreLedger(cur.Deductions).Get(dedID); err == nil {
			for _, q := range d.Quotes {
				if q.ID == fileID {
					detached = &q
					break
				}
			}
		}
		return cur.WithoutQuote(dedID, fileID)
	})
	if err != nil {
		return nil, err
	}
	if detached != nil {
		s.releaseObject(ctx, detached.Bucket, detached.StorageKey)
	}
	return next, nil
}

// releaseObject best-effort deletes a stored attachment.  The session
// mutation has already committed; a storage failure only leaves an orphan
// object, so it is logged and not surfaced.
func (s *Service) releaseObject(ctx context.Context, bucket, key string) {
	if s.store == nil || bucket == "" || key == "" {
		return
	}
	if err := s.store.Remove(ctx, bucket, key); err != nil {
		s.logger.Warn("release deduction attachment",
			logging.String("bucket", bucket), logging.String("key", key), logging.Err(err))
	}
}

// AttachEvidence links an uploaded file to one of the session's deductions.
func (s *Service) AttachEvidence(ctx context.Context, id common.ID, dedID common.ID, f deduction.EvidenceFile) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithEvidence(dedID, f)
	})
}

// AttachQuote links a contractor quote to one of the session's deductions.
func (s *Service) AttachQuote(ctx context.Context, id common.ID, dedID common.ID, q deduction.QuoteFile) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithQuote(dedID, q)
	})
}

// AddExtraFeatureDispute records a disputed extra-feature line item.
func (s *Service) AddExtraFeatureDispute(ctx context.Context, id common.ID, d session.ExtraFeatureDispute) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.WithExtraFeatureDispute(d)
	})
}

// SetMarketAdjustment validates the decline percentage against the
// configured bounds and stores it.
func (s *Service) SetMarketAdjustment(ctx context.Context, id common.ID, percent float64) (*session.Session, error) {
	return s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		baseline := cur.EffectiveSubject().TotalAppraisedValue
		if _, err := valuation.ApplyMarketAdjustment(baseline, percent,
			s.cfg.MinAdjustmentPercent, s.cfg.MaxAdjustmentPercent); err != nil {
			return nil, err
		}
		return cur.WithMarketAdjustment(percent)
	})
}

// ProposedValue computes the session's current proposed value: the median
// assessment (when available) less feature reductions and deductions, with
// the market decline applied last.
func (s *Service) ProposedValue(ctx context.Context, id common.ID) (decimal.Decimal, error) {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return proposedValue(sess, s.cfg.MinAdjustmentPercent, s.cfg.MaxAdjustmentPercent)
}

func proposedValue(sess *session.Session, minPct, maxPct float64) (decimal.Decimal, error) {
	starting := sess.EffectiveSubject().TotalAppraisedValue
	if sess.Assessment != nil {
		starting = sess.Assessment.MedianValue
	}
	value := valuation.ProposedValue(starting, sess.ExtraFeatureReduction(), sess.DeductionTotal())
	if sess.MarketAdjustmentPercent != nil {
		adjusted, err := valuation.ApplyMarketAdjustment(value, *sess.MarketAdjustmentPercent, minPct, maxPct)
		if err != nil {
			return decimal.Zero, err
		}
		value = adjusted
	}
	return value, nil
}

// Finalize freezes the session at the report stage and requests report
// generation.
func (s *Service) Finalize(ctx context.Context, id common.ID) (*session.Session, error) {
	frozen, err := s.mutate(ctx, id, func(cur *session.Session) (*session.Session, error) {
		return cur.Freeze()
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicSessionFinalized, "session.finalized", frozen, string(frozen.Stage))
	s.logger.Info("session finalized",
		logging.String("session_id", string(frozen.ID)),
		logging.String("account", frozen.Account.String()))
	return frozen, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, sess *session.Session, fromStage string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishEvent(ctx, topic, eventType, string(sess.ID), kafka.SessionStagePayload{
		SessionID: string(sess.ID),
		Account:   sess.Account.String(),
		FromStage: fromStage,
		ToStage:   string(sess.Stage),
		Version:   sess.Version,
		ChangedAt: sess.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("publish event", logging.String("topic", topic), logging.Err(err))
	}
}
