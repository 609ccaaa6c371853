package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	Topics            []string      `mapstructure:"topics"`
	StartOffset       string        `mapstructure:"start_offset"` // earliest or latest
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff   time.Duration `mapstructure:"max_retry_backoff"`
	DeadLetterTopic   string        `mapstructure:"dead_letter_topic"`
	Auth              AuthConfig    `mapstructure:"auth"`
}

func (c *ConsumerConfig) applyDefaults() {
	if c.StartOffset == "" {
		c.StartOffset = "earliest"
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = 30 * time.Second
	}
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerMetrics counts consumption outcomes.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
}

// Consumer drives registered handlers from the event bus.  Failed messages
// are retried with exponential backoff, then dead-lettered so one poison
// message cannot stall a partition.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	deadLetter *Producer
	metrics    ConsumerMetrics
}

func NewConsumer(cfg ConsumerConfig, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "group id required")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "topics required")
	}
	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg.applyDefaults()

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	tlsCfg, err := cfg.Auth.tlsConfig()
	if err != nil {
		return nil, err
	}
	dialer.TLS = tlsCfg
	mech, err := cfg.Auth.saslMechanism()
	if err != nil {
		return nil, err
	}
	dialer.SASLMechanism = mech

	readerCfg := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       cfg.Topics,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StartOffset:       kafka.FirstOffset,
		Dialer:            dialer,
	}
	if cfg.StartOffset == "latest" {
		readerCfg.StartOffset = kafka.LastOffset
	}

	var deadLetter *Producer
	if cfg.DeadLetterTopic != "" {
		deadLetter, err = NewProducer(ProducerConfig{Brokers: cfg.Brokers, Auth: cfg.Auth}, log)
		if err != nil {
			return nil, err
		}
	}

	return &Consumer{
		reader:     kafka.NewReader(readerCfg),
		config:     cfg,
		logger:     log.Named("consumer"),
		handlers:   make(map[string]MessageHandler),
		deadLetter: deadLetter,
	}, nil
}

// NewConsumerWithReader wraps an existing reader, for tests.
func NewConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg.applyDefaults()
	return &Consumer{
		reader:   r,
		config:   cfg,
		logger:   log.Named("consumer"),
		handlers: make(map[string]MessageHandler),
	}
}

// Subscribe registers the handler for a topic.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

// Start begins the consume loop.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("consumer started",
		logging.String("group", c.config.GroupID),
		logging.Any("topics", c.config.Topics))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.metrics.MessagesConsumed.Add(1)

		msg := &Message{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Headers:   make(map[string]string, len(m.Headers)),
			Timestamp: m.Time,
		}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
			_ = c.reader.CommitMessages(ctx, m)
			continue
		}

		if err := c.process(ctx, msg, handler); err == nil {
			c.metrics.MessagesProcessed.Add(1)
		} else {
			c.metrics.MessagesFailed.Add(1)
		}
		// Commit either way; failures were retried and dead-lettered.
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit message", logging.Err(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	if err == nil {
		return nil
	}

	backoff := c.config.RetryBackoff
	for i := 0; i < c.config.MaxRetries; i++ {
		c.metrics.MessagesRetried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err = handler(ctx, msg); err == nil {
			return nil
		}

		backoff *= 2
		if backoff > c.config.MaxRetryBackoff {
			backoff = c.config.MaxRetryBackoff
		}
	}

	c.logger.Error("message failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))

	if c.deadLetter != nil {
		headers := make(map[string]string, len(msg.Headers)+2)
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers["original_topic"] = msg.Topic
		headers["error_message"] = err.Error()
		dlErr := c.deadLetter.Publish(ctx, &ProducerMessage{
			Topic:   c.config.DeadLetterTopic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: headers,
		})
		if dlErr != nil {
			c.logger.Error("dead letter publish", logging.Err(dlErr))
		} else {
			c.metrics.MessagesDeadLettered.Add(1)
		}
	}
	return err
}

// Metrics returns a snapshot of consumption counters.
func (c *Consumer) Metrics() (consumed, processed, failed, retried, deadLettered int64) {
	return c.metrics.MessagesConsumed.Load(),
		c.metrics.MessagesProcessed.Load(),
		c.metrics.MessagesFailed.Load(),
		c.metrics.MessagesRetried.Load(),
		c.metrics.MessagesDeadLettered.Load()
}

// Close stops the loop and closes the reader.  Idempotent.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	if c.deadLetter != nil {
		_ = c.deadLetter.Close()
	}
	c.logger.Info("consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()))
	return err
}
