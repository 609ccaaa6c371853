package reporting

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/infrastructure/messaging/kafka"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	storage "github.com/fairclaim/protest-engine/internal/infrastructure/storage/minio"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

const reportContentType = "text/plain; charset=utf-8"

// ReportStore is the slice of object storage this service uses.
type ReportStore interface {
	UploadReport(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*storage.StoredObject, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// EventPublisher is the slice of the Kafka producer this service uses.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, eventType, key string, payload interface{}) error
}

// Service owns the report lifecycle: request on finalize, render in the
// worker, download through the API.
type Service struct {
	sessions session.Repository
	reports  Repository
	store    ReportStore
	events   EventPublisher
	builder  *Builder
	logger   logging.Logger
}

func NewService(
	sessions session.Repository,
	reports Repository,
	store ReportStore,
	events EventPublisher,
	builder *Builder,
	log logging.Logger,
) *Service {
	if builder == nil {
		builder = NewBuilder()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Service{
		sessions: sessions,
		reports:  reports,
		store:    store,
		events:   events,
		builder:  builder,
		logger:   log.Named("reporting"),
	}
}

// RequestReport creates a pending report for a finalized session and asks a
// worker to render it.
func (s *Service) RequestReport(ctx context.Context, sessionID common.ID) (*Report, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Finalized {
		return nil, errors.Newf(errors.ErrCodeAnalysisNotReady,
			"session %s must be finalized before a report is generated", sessionID)
	}

	report := &Report{
		ID:          common.NewID(),
		SessionID:   sess.ID,
		Account:     sess.Account,
		Status:      StatusPending,
		FileName:    fmt.Sprintf("property-report-%s.txt", sess.Account),
		RequestedAt: time.Now().UTC(),
	}
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicReportRequested, "report.requested", report)
	s.logger.Info("report requested",
		logging.String("report_id", string(report.ID)),
		logging.String("session_id", string(sess.ID)))
	return report, nil
}

// Generate renders the report body and stores it.  Called by the worker.
func (s *Service) Generate(ctx context.Context, reportID common.ID) (*Report, error) {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == StatusCompleted {
		return report, nil
	}

	sess, err := s.sessions.FindByID(ctx, report.SessionID)
	if err != nil {
		return nil, s.fail(ctx, report, err)
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return nil, s.fail(ctx, report, err)
	}

	body := s.builder.Build(snap)
	obj, err := s.store.UploadReport(ctx, sess.ID, report.FileName, reportContentType,
		strings.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, s.fail(ctx, report, errors.Wrap(err, errors.ErrCodeReportGenerationFailed, "store report"))
	}

	now := time.Now().UTC()
	report.Status = StatusCompleted
	report.Bucket = obj.Bucket
	report.StorageKey = obj.Key
	report.SizeBytes = obj.SizeBytes
	report.Error = ""
	report.GeneratedAt = &now
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.TopicReportGenerated, "report.generated", report)
	s.logger.Info("report generated",
		logging.String("report_id", string(report.ID)),
		logging.String("storage_key", report.StorageKey),
		logging.Int64("size", report.SizeBytes))
	return report, nil
}

func (s *Service) fail(ctx context.Context, report *Report, cause error) error {
	report.Status = StatusFailed
	report.Error = cause.Error()
	if saveErr := s.reports.Save(ctx, report); saveErr != nil {
		s.logger.Error("persist failed report",
			logging.String("report_id", string(report.ID)), logging.Err(saveErr))
	}
	return cause
}

// GetReport returns the report metadata.
func (s *Service) GetReport(ctx context.Context, id common.ID) (*Report, error) {
	return s.reports.FindByID(ctx, id)
}

// Open streams the rendered report body.
func (s *Service) Open(ctx context.Context, id common.ID) (*Report, io.ReadCloser, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if report.Status != StatusCompleted {
		return nil, nil, errors.Newf(errors.ErrCodeReportNotFound,
			"report %s is not ready (status %s)", id, report.Status)
	}
	body, err := s.store.Download(ctx, report.Bucket, report.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return report, body, nil
}

// DownloadURL returns a presigned link to the rendered report.
func (s *Service) DownloadURL(ctx context.Context, id common.ID) (string, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if report.Status != StatusCompleted {
		return "", errors.Newf(errors.ErrCodeReportNotFound,
			"report %s is not ready (status %s)", id, report.Status)
	}
	return s.store.PresignGet(ctx, report.Bucket, report.StorageKey, 0)
}

// HandleReportRequested is the worker's Kafka handler for report-requested
// events.
func (s *Service) HandleReportRequested(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	var payload kafka.ReportGeneratedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	_, err = s.Generate(ctx, common.ID(payload.ReportID))
	return err
}

func (s *Service) publish(ctx context.Context, topic, eventType string, report *Report) {
	if s.events == nil {
		return
	}
	var generatedAt time.Time
	if report.GeneratedAt != nil {
		generatedAt = *report.GeneratedAt
	}
	err := s.events.PublishEvent(ctx, topic, eventType, string(report.SessionID),
		kafka.ReportGeneratedPayload{
			ReportID:    string(report.ID),
			SessionID:   string(report.SessionID),
			Account:     report.Account.String(),
			Bucket:      report.Bucket,
			StorageKey:  report.StorageKey,
			GeneratedAt: generatedAt,
		})
	if err != nil {
		s.logger.Warn("publish event", logging.String("topic", topic), logging.Err(err))
	}
}
