// Package config provides configuration loading, defaults, and validation for
// the protest-engine platform.
package config

import "time"

const (
	DefaultServerPort      = 8080
	DefaultServerMode      = "debug"
	DefaultShutdownTimeout = 30 * time.Second

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "protest"
	DefaultDBSSLMode  = "disable"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisTTL       = 15 * time.Minute
	DefaultRedisKeyPrefix = "protest"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "protest-engine"

	DefaultMinIOEndpoint       = "localhost:9000"
	DefaultMinIOEvidenceBucket = "protest-evidence"
	DefaultMinIOReportBucket   = "protest-reports"
	DefaultMinIOPresignExpiry  = 15 * time.Minute

	DefaultDataSourceBaseURL = "https://api.hcad.org"
	DefaultDataSourceTimeout = 20 * time.Second
	DefaultDataSourceCacheTTL = time.Hour

	DefaultAnalyzerTimeout       = 2 * time.Minute
	DefaultAnalyzerMaxCandidates = 25

	DefaultMinComparables       = 3
	DefaultMinAdjustmentPercent = 0.5
	DefaultMaxAdjustmentPercent = 3.5

	DefaultWorkerConcurrency = 4

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "protest"
)

// NewDefaultConfig returns a Config populated entirely with platform defaults.
// It validates cleanly and is suitable for local development.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate().
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// MinIO
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.EvidenceBucket == "" {
		cfg.MinIO.EvidenceBucket = DefaultMinIOEvidenceBucket
	}
	if cfg.MinIO.ReportBucket == "" {
		cfg.MinIO.ReportBucket = DefaultMinIOReportBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultMinIOPresignExpiry
	}

	// Data source
	if cfg.DataSource.BaseURL == "" {
		cfg.DataSource.BaseURL = DefaultDataSourceBaseURL
	}
	if cfg.DataSource.RequestTimeout == 0 {
		cfg.DataSource.RequestTimeout = DefaultDataSourceTimeout
	}
	if cfg.DataSource.CacheTTL == 0 {
		cfg.DataSource.CacheTTL = DefaultDataSourceCacheTTL
	}

	// Analyzer
	if cfg.Analyzer.RequestTimeout == 0 {
		cfg.Analyzer.RequestTimeout = DefaultAnalyzerTimeout
	}
	if cfg.Analyzer.MaxCandidates == 0 {
		cfg.Analyzer.MaxCandidates = DefaultAnalyzerMaxCandidates
	}

	// Valuation
	if cfg.Valuation.MinComparables == 0 {
		cfg.Valuation.MinComparables = DefaultMinComparables
	}
	if cfg.Valuation.MinAdjustmentPercent == 0 {
		cfg.Valuation.MinAdjustmentPercent = DefaultMinAdjustmentPercent
	}
	if cfg.Valuation.MaxAdjustmentPercent == 0 {
		cfg.Valuation.MaxAdjustmentPercent = DefaultMaxAdjustmentPercent
	}

	// Worker
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 5 * time.Second
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Metrics
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
