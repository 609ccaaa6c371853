// Package analysis orchestrates subject lookup and comparable analysis:
// county roll data in, cleaned comparables and a median assessment out.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/internal/infrastructure/datasource/hcad"
	"github.com/fairclaim/protest-engine/internal/infrastructure/messaging/kafka"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/fairclaim/protest-engine/internal/intelligence/analyzer"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// EventPublisher is the slice of the Kafka producer this service uses.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, eventType, key string, payload interface{}) error
}

// Cache is the slice of the redis cache this service uses.
type Cache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	Delete(ctx context.Context, keys ...string) error
}

// Config tunes the analysis pipeline.
type Config struct {
	MinComparables int
	PropertyTTL    time.Duration
	GroupSize      int
}

func (c *Config) applyDefaults() {
	if c.MinComparables == 0 {
		c.MinComparables = 3
	}
	if c.PropertyTTL == 0 {
		c.PropertyTTL = 6 * time.Hour
	}
	if c.GroupSize == 0 {
		c.GroupSize = comparable.DefaultGroupSize
	}
}

// Service runs property lookups and comparable analyses.
type Service struct {
	source     hcad.DataSource
	properties property.Repository
	cache      Cache
	analyzer   analyzer.Analyzer
	events     EventPublisher
	metrics    *prometheus.AppMetrics
	logger     logging.Logger
	cfg        Config
}

func NewService(
	source hcad.DataSource,
	properties property.Repository,
	cache Cache,
	az analyzer.Analyzer,
	events EventPublisher,
	metrics *prometheus.AppMetrics,
	log logging.Logger,
	cfg Config,
) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg.applyDefaults()
	return &Service{
		source:     source,
		properties: properties,
		cache:      cache,
		analyzer:   az,
		events:     events,
		metrics:    metrics,
		logger:     log.Named("analysis"),
		cfg:        cfg,
	}
}

func propertyCacheKey(acct common.AccountNumber) string {
	return fmt.Sprintf("property:%s", acct)
}

// LookupSubject returns the roll record for an account: cache first, then
// the county source.  Fresh records are persisted so the engine keeps
// working through county outages.
func (s *Service) LookupSubject(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error) {
	if err := acct.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAccountNumberInvalid, "lookup subject")
	}

	start := time.Now()
	source := "cache"
	var subject property.SubjectProperty
	err := s.cache.GetOrSet(ctx, propertyCacheKey(acct), &subject, s.cfg.PropertyTTL,
		func(ctx context.Context) (interface{}, error) {
			source = "county"
			fetched, err := s.source.FetchProperty(ctx, acct)
			if err != nil {
				// Fall back to the last persisted record when the
				// county source is down, but not for real misses.
				if errors.IsCode(err, errors.ErrCodeDataSourceUnavailable) ||
					errors.IsCode(err, errors.ErrCodeDataSourceRateLimited) {
					stored, findErr := s.properties.FindByAccount(ctx, acct)
					if findErr == nil {
						source = "database"
						s.logger.Warn("county source down, serving stored record",
							logging.String("account", acct.String()), logging.Err(err))
						return stored, nil
					}
				}
				return nil, err
			}
			if saveErr := s.properties.Save(ctx, fetched); saveErr != nil {
				s.logger.Warn("persist property record",
					logging.String("account", acct.String()), logging.Err(saveErr))
			}
			s.publish(ctx, kafka.TopicPropertyFetched, "property.fetched", acct.String(),
				kafka.PropertyFetchedPayload{
					Account:     acct.String(),
					SiteAddress: fetched.SiteAddress,
					RetrievedAt: fetched.RetrievedAt,
				})
			return fetched, nil
		})

	prometheus.RecordPropertyLookup(s.metrics, source, err, time.Since(start))
	prometheus.RecordCacheAccess(s.metrics, "property", source == "cache")
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

// InvalidateSubject drops the cached record so the next lookup refetches.
func (s *Service) InvalidateSubject(ctx context.Context, acct common.AccountNumber) error {
	return s.cache.Delete(ctx, propertyCacheKey(acct))
}

// Candidates fetches the neighborhood records, adjusts each to the subject,
// and shortlists them by age, size, and value.
func (s *Service) Candidates(ctx context.Context, subject property.SubjectProperty) (comparable.GroupedComparables, error) {
	records, err := s.source.FetchNeighborhoodCandidates(ctx, subject.Account)
	if err != nil {
		return comparable.GroupedComparables{}, err
	}
	adjustments := comparable.AdjustAll(subject, records)
	return comparable.Group(subject, adjustments, s.cfg.GroupSize), nil
}

// Result is a completed analysis: cleaned comparables plus the median
// assessment over the accepted set.
type Result struct {
	Analysis   comparable.AnalysisData
	Assessment *valuation.MedianAssessmentResult
}

// Analyze runs the full pipeline for a subject: fetch candidates, adjust,
// rank through the AI analyzer, and compute the median assessment against
// the appraised value.
func (s *Service) Analyze(ctx context.Context, subject property.SubjectProperty) (*Result, error) {
	start := time.Now()
	result, err := s.analyze(ctx, subject)

	accepted, excluded := 0, 0
	if result != nil {
		accepted = len(result.Analysis.TopComparables)
		excluded = len(result.Analysis.Excluded)
	}
	prometheus.RecordAnalysisRun(s.metrics, accepted, excluded, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	prometheus.RecordValuation(s.metrics, string(result.Assessment.Baseline),
		result.Assessment.MedianValue.InexactFloat64(),
		result.Assessment.PotentialSavings.InexactFloat64(), nil)
	s.publish(ctx, kafka.TopicAnalysisCompleted, "analysis.completed", subject.Account.String(),
		kafka.AnalysisCompletedPayload{
			Account:         subject.Account.String(),
			ComparableCount: accepted,
			ExcludedCount:   excluded,
			Reliable:        result.Analysis.Reliable(s.cfg.MinComparables),
			CompletedAt:     time.Now().UTC(),
		})
	return result, nil
}

func (s *Service) analyze(ctx context.Context, subject property.SubjectProperty) (*Result, error) {
	records, err := s.source.FetchNeighborhoodCandidates(ctx, subject.Account)
	if err != nil {
		return nil, err
	}
	adjustments := comparable.AdjustAll(subject, records)
	if len(adjustments) == 0 {
		return nil, errors.Newf(errors.ErrCodeInsufficientData,
			"no comparable candidates found for account %s", subject.Account)
	}

	analysis, err := s.analyzer.SelectComparables(ctx, subject, adjustments)
	if err != nil {
		return nil, err
	}

	assessment, err := valuation.ComputeMedianAssessment(
		valuation.BaselineAppraised,
		subject.TotalAppraisedValue,
		analysis.AdjustedValues(),
		s.cfg.MinComparables,
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("analysis complete",
		logging.String("account", subject.Account.String()),
		logging.Int("accepted", len(analysis.TopComparables)),
		logging.Int("excluded", len(analysis.Excluded)),
		logging.Bool("reliable", assessment.Reliable))
	return &Result{Analysis: analysis, Assessment: assessment}, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType, key string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, topic, eventType, key, payload); err != nil {
		s.logger.Warn("publish event",
			logging.String("topic", topic), logging.Err(err))
	}
}
