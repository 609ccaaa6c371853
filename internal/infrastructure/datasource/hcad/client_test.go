package hcad

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
)

const subjectJSON = `{
	"acct": "0660640130020",
	"site_addr": "8214 Oak Moss Dr",
	"neighborhood_code": "8512.03",
	"yr_impr": 2004,
	"bld_ar": 2350,
	"land_ar": 7200,
	"land_val": "55000",
	"bld_val": "195000",
	"x_features_val": "4500",
	"tot_mkt_val": "254,500",
	"tot_appr_val": "250000"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (DataSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ds, err := New(Config{BaseURL: srv.URL, APIKey: "k", RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)
	return ds, srv
}

func TestFetchProperty(t *testing.T) {
	t.Parallel()

	ds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/property/0660640130020", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(subjectJSON))
	})

	p, err := ds.FetchProperty(context.Background(), "0660640130020")
	require.NoError(t, err)

	assert.Equal(t, "8214 Oak Moss Dr", p.SiteAddress)
	assert.Equal(t, 2350, p.BuildingSqFt)
	// Formatted dollar strings on the wire parse into decimals.
	assert.True(t, p.TotalMarketValue.Equal(money.MustParse("254500")))
	assert.False(t, p.RetrievedAt.IsZero())
}

func TestFetchProperty_NotFound(t *testing.T) {
	t.Parallel()

	ds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := ds.FetchProperty(context.Background(), "0660640130020")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePropertyNotFound))
	assert.True(t, errors.IsNotFound(err))
}

func TestFetchProperty_BadAccount(t *testing.T) {
	t.Parallel()

	ds, err := New(Config{BaseURL: "http://unused.invalid"}, nil)
	require.NoError(t, err)

	_, err = ds.FetchProperty(context.Background(), "not-numeric")
	assert.True(t, errors.IsCode(err, errors.ErrCodeAccountNumberInvalid))
}

func TestFetchProperty_RetriesServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(subjectJSON))
	}))
	defer srv.Close()

	ds, err := New(Config{BaseURL: srv.URL, MaxRetries: 2, RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	p, err := ds.FetchProperty(context.Background(), "0660640130020")
	require.NoError(t, err)
	assert.Equal(t, "8214 Oak Moss Dr", p.SiteAddress)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchProperty_GarbageBody(t *testing.T) {
	t.Parallel()

	ds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := ds.FetchProperty(context.Background(), "0660640130020")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDataSourceParseError))
}

func TestFetchNeighborhoodCandidates(t *testing.T) {
	t.Parallel()

	ds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/property/0660640130020/comparables", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"acct": "1111111111111", "site_addr": "8218 Oak Moss Dr", "yr_impr": 2002,
			 "bld_ar": 2300, "bld_val": "184000", "land_val": "52000", "tot_mkt_val": "236000"},
			{"acct": "2222222222222", "site_addr": "8222 Oak Moss Dr", "yr_impr": 2005,
			 "bld_ar": 2400, "bld_val": "not-a-number", "land_val": "50000", "tot_mkt_val": "240000"}
		]`))
	})

	got, err := ds.FetchNeighborhoodCandidates(context.Background(), "0660640130020")
	require.NoError(t, err)

	// The malformed row is skipped, not fatal.
	require.Len(t, got, 1)
	assert.Equal(t, "1111111111111", string(got[0].Account))
	assert.True(t, got[0].BuildingValue.Equal(money.MustParse("184000")))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestFetchProperty_RateLimitedExhaustsRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ds, err := New(Config{BaseURL: srv.URL, MaxRetries: 1, RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = ds.FetchProperty(context.Background(), "0660640130020")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDataSourceRateLimited))
}
