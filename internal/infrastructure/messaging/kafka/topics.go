// Package kafka publishes and consumes the protest platform's domain events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
)

const (
	TopicPropertyFetched   = "property.fetched"
	TopicAnalysisRequested = "analysis.requested"
	TopicAnalysisCompleted = "analysis.completed"
	TopicSessionAdvanced   = "session.advanced"
	TopicSessionFinalized  = "session.finalized"
	TopicReportRequested   = "report.requested"
	TopicReportGenerated   = "report.generated"
	TopicDeadLetter        = "dead_letter.default"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, msg *Message) error

// EventEnvelope is the wire format shared by every topic.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	TraceID       string          `json:"trace_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// PropertyFetchedPayload announces fresh appraisal-roll data for an account.
type PropertyFetchedPayload struct {
	Account     string    `json:"account"`
	SiteAddress string    `json:"site_address"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// AnalysisRequestedPayload asks a worker to run comparable analysis.
type AnalysisRequestedPayload struct {
	SessionID string    `json:"session_id"`
	Account   string    `json:"account"`
	Requested time.Time `json:"requested_at"`
}

// AnalysisCompletedPayload reports the outcome of a comparable analysis run.
type AnalysisCompletedPayload struct {
	SessionID       string    `json:"session_id"`
	Account         string    `json:"account"`
	ComparableCount int       `json:"comparable_count"`
	ExcludedCount   int       `json:"excluded_count"`
	Reliable        bool      `json:"reliable"`
	CompletedAt     time.Time `json:"completed_at"`
}

// SessionStagePayload records a workflow stage change.
type SessionStagePayload struct {
	SessionID string    `json:"session_id"`
	Account   string    `json:"account"`
	FromStage string    `json:"from_stage"`
	ToStage   string    `json:"to_stage"`
	Version   int       `json:"version"`
	ChangedAt time.Time `json:"changed_at"`
}

// ReportGeneratedPayload points at a stored protest packet.
type ReportGeneratedPayload struct {
	ReportID    string    `json:"report_id"`
	SessionID   string    `json:"session_id"`
	Account     string    `json:"account"`
	Bucket      string    `json:"bucket"`
	StorageKey  string    `json:"storage_key"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewEventEnvelope wraps a payload for publication.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event payload empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode event payload")
	}
	return nil
}

// ToMessage serializes the envelope for the given topic.  The session or
// account identifier should be passed as key so one aggregate's events stay
// ordered within a partition.
func (e *EventEnvelope) ToMessage(topic string, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal event envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &ProducerMessage{
		Topic:     topic,
		Key:       []byte(key),
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

// DecodeEnvelope parses a consumed message back into an envelope.
func DecodeEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "unmarshal event envelope")
	}
	return &env, nil
}

// TopicConfig describes one topic to provision.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager provisions the platform's topics at startup.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "dial kafka broker")
	}
	return &TopicManager{conn: conn, logger: log}, nil
}

// NewTopicManagerWithConn wraps an existing connection, for tests.
func NewTopicManagerWithConn(conn ConnInterface, log logging.Logger) *TopicManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: log}
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs),
		})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		// CreateTopics races against other instances starting up.
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "create topic "+cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// EnsureDefaultTopics creates every platform topic that is missing.
func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	for _, topic := range DefaultTopics() {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

const (
	day  = int64(24 * 3600 * 1000)
	week = 7 * day
)

// DefaultTopics lists the platform's topics.  Finalized sessions and
// generated reports are kept longer because protest deadlines span months.
func DefaultTopics() []TopicConfig {
	return []TopicConfig{
		{Name: TopicPropertyFetched, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: TopicAnalysisRequested, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: TopicAnalysisCompleted, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: TopicSessionAdvanced, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 30 * day},
		{Name: TopicSessionFinalized, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 180 * day},
		{Name: TopicReportRequested, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
		{Name: TopicReportGenerated, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 180 * day},
		{Name: TopicDeadLetter, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
	}
}
