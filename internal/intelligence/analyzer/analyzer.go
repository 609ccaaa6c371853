// Package analyzer calls the comparable-selection model: given the subject
// property and its adjusted neighborhood candidates, the model picks the
// strongest comparables and explains what it excluded.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/pkg/errors"
)

// Config holds the model endpoint settings.
type Config struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	Model          string        `json:"model"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
	MaxCandidates  int           `json:"max_candidates"`
	Temperature    float64       `json:"temperature"`
}

// NewConfig returns a Config with working defaults.
func NewConfig() Config {
	return Config{
		Model:          "gpt-4o-mini",
		RequestTimeout: 60 * time.Second,
		MaxRetries:     2,
		MaxCandidates:  40,
		Temperature:    0.2,
	}
}

// Validate checks the settings needed to reach the model.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New(errors.ErrCodeValidation, "analyzer base_url is required")
	}
	if c.Model == "" {
		return errors.New(errors.ErrCodeValidation, "analyzer model is required")
	}
	return nil
}

// Analyzer selects comparables for a subject property.
type Analyzer interface {
	// SelectComparables asks the model to rank the candidates against the
	// subject.  The returned analysis is already cleaned: deduplicated,
	// subject removed, exclusions carried.
	SelectComparables(ctx context.Context, subject property.SubjectProperty, candidates []comparable.Adjustment) (comparable.AnalysisData, error)
}

type client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

// New returns an Analyzer backed by an OpenAI-compatible chat endpoint.
func New(cfg Config, logger logging.Logger) (Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.Named("analyzer"),
	}, nil
}

// chat wire types, the OpenAI-compatible subset we use.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *client) SelectComparables(ctx context.Context, subject property.SubjectProperty, candidates []comparable.Adjustment) (comparable.AnalysisData, error) {
	if len(candidates) == 0 {
		return comparable.AnalysisData{}, errors.New(errors.ErrCodeInsufficientData, "no candidates to analyze")
	}
	if max := c.cfg.MaxCandidates; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}

	prompt, err := BuildPrompt(subject, candidates)
	if err != nil {
		return comparable.AnalysisData{}, err
	}

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return comparable.AnalysisData{}, err
	}

	parsed, err := ParseAnalysis(raw)
	if err != nil {
		c.logger.Warn("model response failed to parse", logging.Err(err))
		return comparable.AnalysisData{}, err
	}

	cleaned := comparable.Clean(parsed, subject.Account)
	c.logger.Info("comparable analysis complete",
		logging.String("account", string(subject.Account)),
		logging.Int("accepted", len(cleaned.TopComparables)),
		logging.Int("excluded", len(cleaned.Excluded)))
	return cleaned, nil
}

// complete sends the chat request, retrying transient failures.
func (c *client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "encode chat request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), errors.ErrCodeAIServiceUnavailable, "analysis canceled")
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		content, retryable, err := c.post(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		c.logger.Warn("model call failed, retrying",
			logging.Int("attempt", attempt+1), logging.Err(err))
	}
	return "", lastErr
}

func (c *client) post(ctx context.Context, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeAIServiceUnavailable, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, errors.Wrap(err, errors.ErrCodeAIServiceUnavailable, "call model")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, errors.Wrap(err, errors.ErrCodeAIServiceUnavailable, "read model response")
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, errors.Newf(errors.ErrCodeAIServiceUnavailable,
			"model returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeAIResponseInvalid, "decode model response")
	}
	if len(out.Choices) == 0 {
		return "", false, errors.New(errors.ErrCodeAIResponseInvalid, "model returned no choices")
	}
	return out.Choices[0].Message.Content, false, nil
}
