package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
)

func testSubject() property.SubjectProperty {
	return property.SubjectProperty{
		Account:             "0660640130020",
		SiteAddress:         "8214 Oak Moss Dr",
		YearImproved:        2004,
		BuildingSqFt:        2350,
		LandValue:           money.MustParse("55000"),
		TotalAppraisedValue: money.MustParse("250000"),
	}
}

func testCandidates() []comparable.Adjustment {
	return comparable.AdjustAll(testSubject(), []comparable.CandidateRecord{
		{Account: "1111111111111", Address: "8218 Oak Moss Dr", YearImproved: 2002, BuildingSqFt: 2300, BuildingValue: money.MustParse("184000")},
		{Account: "2222222222222", Address: "8222 Oak Moss Dr", YearImproved: 2005, BuildingSqFt: 2400, BuildingValue: money.MustParse("192000")},
	})
}

// chatServer fakes the OpenAI-compatible endpoint with a fixed answer.
func chatServer(t *testing.T, status int, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "0660640130020")

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": answer}},
				},
			})
		}
	}))
}

func testConfig(url string) Config {
	cfg := NewConfig()
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.MaxRetries = 0
	return cfg
}

func TestSelectComparables(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusOK, "```yaml\n"+
		`top_comps:
  - rank: 1
    acct: "1111111111111"
    address: "8218 Oak Moss Dr"
    adjusted_value: 238000
  - rank: 2
    acct: "0660640130020"
    adjusted_value: 250000
excluded:
  - acct: "2222222222222"
    note: "backs a commercial lot"
`+"\n```")
	defer srv.Close()

	a, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	got, err := a.SelectComparables(context.Background(), testSubject(), testCandidates())
	require.NoError(t, err)

	// The subject's own account was cleaned out.
	require.Len(t, got.TopComparables, 1)
	assert.Equal(t, "1111111111111", string(got.TopComparables[0].Account))
	require.Len(t, got.Excluded, 2)
}

func TestSelectComparables_NoCandidates(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig("http://unused.invalid"), nil)
	require.NoError(t, err)

	_, err = a.SelectComparables(context.Background(), testSubject(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientData))
}

func TestSelectComparables_ServerError(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	a, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = a.SelectComparables(context.Background(), testSubject(), testCandidates())
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIServiceUnavailable))
}

func TestSelectComparables_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `top_comps:
  - rank: 1
    acct: "1111111111111"
    adjusted_value: 238000
`}},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	a, err := New(cfg, nil)
	require.NoError(t, err)

	got, err := a.SelectComparables(context.Background(), testSubject(), testCandidates())
	require.NoError(t, err)
	assert.Len(t, got.TopComparables, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSelectComparables_GarbageAnswer(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusOK, "no comparables today, sorry")
	defer srv.Close()

	a, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = a.SelectComparables(context.Background(), testSubject(), testCandidates())
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIResponseInvalid))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	assert.Error(t, cfg.Validate()) // no base URL

	cfg.BaseURL = "http://model.internal"
	assert.NoError(t, cfg.Validate())

	cfg.Model = ""
	assert.Error(t, cfg.Validate())

	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p, err := BuildPrompt(testSubject(), testCandidates())
	require.NoError(t, err)

	assert.Contains(t, p, `account: "0660640130020"`)
	assert.Contains(t, p, "8218 Oak Moss Dr")
	assert.Contains(t, p, "top_comps:")
}

func TestSelectComparables_CandidateCap(t *testing.T) {
	t.Parallel()

	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Messages[1].Content
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `top_comps:
  - rank: 1
    acct: "1111111111111"
    adjusted_value: 238000
`}},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxCandidates = 1
	a, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = a.SelectComparables(context.Background(), testSubject(), testCandidates())
	require.NoError(t, err)
	// Only the first candidate made it into the prompt.
	assert.Contains(t, prompt, "1111111111111")
	assert.NotContains(t, prompt, "2222222222222")
}
