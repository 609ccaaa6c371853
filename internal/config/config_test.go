package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func TestValidate_ServerErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"bad mode", func(c *Config) { c.Server.Mode = "production" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DatabaseErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Database.Host = "" }},
		{"missing user", func(c *Config) { c.Database.User = "" }},
		{"missing db name", func(c *Config) { c.Database.DBName = "" }},
		{"zero max conns", func(c *Config) { c.Database.MaxConns = 0 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ValuationBounds(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Valuation.MinComparables = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Valuation.MinAdjustmentPercent = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Valuation.MinAdjustmentPercent = 3.5
	cfg.Valuation.MaxAdjustmentPercent = 0.5
	assert.Error(t, cfg.Validate(), "max must exceed min")

	cfg = validConfig()
	cfg.Valuation.MaxAdjustmentPercent = 150
	assert.Error(t, cfg.Validate(), "max may not exceed 100")

	cfg = validConfig()
	cfg.Valuation.MinAdjustmentPercent = 1.0
	cfg.Valuation.MaxAdjustmentPercent = 10.0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_KafkaAndDataSource(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Kafka.GroupID = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DataSource.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_LogErrors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Log.Format = "text"
	assert.Error(t, cfg.Validate())
}
