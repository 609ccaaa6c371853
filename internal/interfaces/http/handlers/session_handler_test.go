package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/internal/application/analysis"
	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	storage "github.com/fairclaim/protest-engine/internal/infrastructure/storage/minio"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// fakeWorkflow drives real session aggregates in memory.
type fakeWorkflow struct {
	sessions map[common.ID]*session.Session
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{sessions: make(map[common.ID]*session.Session)}
}

func (f *fakeWorkflow) StartSession(_ context.Context, acct common.AccountNumber) (*session.Session, error) {
	if err := acct.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAccountNumberInvalid, "account")
	}
	s := session.New(property.SubjectProperty{
		Account:             acct,
		TotalAppraisedValue: money.MustParse("250000"),
	})
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeWorkflow) GetSession(_ context.Context, id common.ID) (*session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

func (f *fakeWorkflow) SessionsForAccount(_ context.Context, acct common.AccountNumber) ([]*session.Session, error) {
	var out []*session.Session
	for _, s := range f.sessions {
		if s.Account == acct {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeWorkflow) mutate(id common.ID, fn func(*session.Session) (*session.Session, error)) (*session.Session, error) {
	cur, ok := f.sessions[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	f.sessions[id] = next
	return next, nil
}

func (f *fakeWorkflow) Advance(_ context.Context, id common.ID) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.Advance() })
}

func (f *fakeWorkflow) Back(_ context.Context, id common.ID) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.Back() })
}

func (f *fakeWorkflow) SetOverrides(_ context.Context, id common.ID, o property.Overrides) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithOverrides(o) })
}

func (f *fakeWorkflow) AttachAnalysis(_ context.Context, id common.ID, a comparable.AnalysisData, r *valuation.MedianAssessmentResult) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithAnalysis(a, r) })
}

func (f *fakeWorkflow) AddDeduction(_ context.Context, id common.ID, d deduction.Deduction) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithDeduction(d) })
}

func (f *fakeWorkflow) RemoveDeduction(_ context.Context, id common.ID, dedID common.ID) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithoutDeduction(dedID) })
}

func (f *fakeWorkflow) AttachEvidence(_ context.Context, id common.ID, dedID common.ID, ev deduction.EvidenceFile) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithEvidence(dedID, ev) })
}

func (f *fakeWorkflow) DetachEvidence(_ context.Context, id common.ID, dedID common.ID, fileID common.ID) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithoutEvidence(dedID, fileID) })
}

func (f *fakeWorkflow) AttachQuote(_ context.Context, id common.ID, dedID common.ID, q deduction.QuoteFile) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithQuote(dedID, q) })
}

func (f *fakeWorkflow) ExcludeComparables(_ context.Context, id common.ID, exclusions []comparable.ExcludedProperty) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) {
		if s.Analysis == nil {
			return nil, errors.New(errors.ErrCodeAnalysisNotReady, "no analysis attached")
		}
		accepted, dropped := comparable.ApplyExclusions(s.Analysis.TopComparables, exclusions)
		next := comparable.AnalysisData{
			TopComparables: accepted,
			Excluded:       append(append([]comparable.ExcludedProperty{}, s.Analysis.Excluded...), dropped...),
		}
		assessment := s.Assessment
		if assessment != nil {
			recomputed, err := valuation.ComputeMedianAssessment(
				assessment.Baseline, assessment.BaselineValue, next.AdjustedValues(), 3)
			if err != nil {
				return nil, err
			}
			assessment = recomputed
		}
		return s.WithAnalysis(next, assessment)
	})
}

func (f *fakeWorkflow) AddExtraFeatureDispute(_ context.Context, id common.ID, d session.ExtraFeatureDispute) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.WithExtraFeatureDispute(d) })
}

func (f *fakeWorkflow) SetMarketAdjustment(_ context.Context, id common.ID, percent float64) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) {
		if percent < 0.5 || percent > 3.5 {
			return nil, errors.Newf(errors.ErrCodeAdjustmentOutOfRange, "rate %.2f%% outside bounds", percent)
		}
		return s.WithMarketAdjustment(percent)
	})
}

func (f *fakeWorkflow) ProposedValue(_ context.Context, id common.ID) (decimal.Decimal, error) {
	s, ok := f.sessions[id]
	if !ok {
		return decimal.Zero, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	return valuation.ProposedValue(s.EffectiveSubject().TotalAppraisedValue,
		s.ExtraFeatureReduction(), s.DeductionTotal()), nil
}

func (f *fakeWorkflow) Finalize(_ context.Context, id common.ID) (*session.Session, error) {
	return f.mutate(id, func(s *session.Session) (*session.Session, error) { return s.Freeze() })
}

type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ property.SubjectProperty) (*analysis.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeEvidenceStore struct {
	uploads []string
}

func (f *fakeEvidenceStore) UploadEvidence(_ context.Context, sessionID common.ID, fileName, _ string, r io.Reader, _ int64) (*storage.StoredObject, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, fileName)
	return &storage.StoredObject{
		Key:        "evidence/" + string(sessionID) + "/" + fileName,
		Bucket:     "protest-evidence",
		UploadedAt: time.Now().UTC(),
	}, nil
}

type sessionTestEnv struct {
	router   *gin.Engine
	workflow *fakeWorkflow
	analyzer *fakeAnalyzer
	store    *fakeEvidenceStore
}

func newSessionEnv() *sessionTestEnv {
	gin.SetMode(gin.TestMode)
	wf := newFakeWorkflow()
	an := &fakeAnalyzer{}
	st := &fakeEvidenceStore{}
	h := NewSessionHandler(wf, an, st)

	r := gin.New()
	s := r.Group("/api/v1/sessions")
	s.POST("", h.Start)
	s.GET("/:id", h.Get)
	s.POST("/:id/advance", h.Advance)
	s.POST("/:id/back", h.Back)
	s.POST("/:id/overrides", h.SetOverrides)
	s.POST("/:id/analysis", h.Analysis)
	s.POST("/:id/analysis/exclusions", h.ExcludeComparables)
	s.POST("/:id/deductions", h.AddDeduction)
	s.DELETE("/:id/deductions/:dedID", h.RemoveDeduction)
	s.POST("/:id/deductions/:dedID/evidence", h.UploadEvidence)
	s.DELETE("/:id/deductions/:dedID/evidence/:fileID", h.DetachEvidence)
	s.POST("/:id/extra-features", h.AddExtraFeature)
	s.POST("/:id/market-adjustment", h.SetMarketAdjustment)
	s.GET("/:id/proposed-value", h.ProposedValue)
	return &sessionTestEnv{router: r, workflow: wf, analyzer: an, store: st}
}

func (e *sessionTestEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *sessionTestEnv) start(t *testing.T) common.ID {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"account": "0660640130020"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return common.ID(resp.Data.ID)
}

func testAnalysisResult() *analysis.Result {
	a := comparable.AnalysisData{
		TopComparables: []comparable.Comparable{
			{Rank: 1, Account: "1111111111111", AdjustedValue: money.MustParse("210000")},
			{Rank: 2, Account: "2222222222222", AdjustedValue: money.MustParse("225000")},
			{Rank: 3, Account: "3333333333333", AdjustedValue: money.MustParse("240000")},
		},
	}
	r, _ := valuation.ComputeMedianAssessment(valuation.BaselineAppraised,
		money.MustParse("250000"), a.AdjustedValues(), 3)
	return &analysis.Result{Analysis: a, Assessment: r}
}

func TestSessionHandler_StartAndGet(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+string(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(session.StageReviewDetails))
}

func TestSessionHandler_GetMissing(t *testing.T) {
	env := newSessionEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "WF_004")
}

func TestSessionHandler_StartRejectsBadAccount(t *testing.T) {
	env := newSessionEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"account": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PROP_003")
}

func TestSessionHandler_AdvanceWithStageAssertion(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)

	// Correct assertion moves on.
	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/advance",
		gin.H{"to_stage": string(session.StageUpdateAndAnalyze)})
	require.Equal(t, http.StatusOK, rec.Code)

	// Skipping a stage is rejected without mutating.
	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/advance",
		gin.H{"to_stage": string(session.StageMarketAdjustment)})
	assert.Contains(t, rec.Body.String(), "WF_001")

	got, err := env.workflow.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.StageUpdateAndAnalyze, got.Stage)
}

func TestSessionHandler_AnalysisRunsAnalyzerOnEmptyBody(t *testing.T) {
	env := newSessionEnv()
	env.analyzer.result = testAnalysisResult()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/advance", nil)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.analyzer.calls)

	got, _ := env.workflow.GetSession(context.Background(), id)
	require.NotNil(t, got.Analysis)
	assert.Len(t, got.Analysis.TopComparables, 3)
}

func TestSessionHandler_AnalysisAcceptsSuppliedData(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/advance", nil)

	body := gin.H{"analysis": gin.H{
		"top_comps": []gin.H{
			{"rank": 1, "account": "1111111111111", "adjusted_value": "210000"},
			{"rank": 2, "account": "2222222222222", "adjusted_value": "225000"},
			{"rank": 3, "account": "0660640130020", "adjusted_value": "240000"},
		},
	}}
	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/analysis", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.analyzer.calls)

	got, _ := env.workflow.GetSession(context.Background(), id)
	require.NotNil(t, got.Analysis)
	// The subject's own account is cleaned out.
	assert.Len(t, got.Analysis.TopComparables, 2)
	require.Len(t, got.Analysis.Excluded, 1)
	assert.Equal(t, common.AccountNumber("0660640130020"), got.Analysis.Excluded[0].Account)
}

func TestSessionHandler_ExcludeComparables(t *testing.T) {
	env := newSessionEnv()
	env.analyzer.result = testAnalysisResult()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/advance", nil)
	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/analysis/exclusions",
		gin.H{"exclusions": []gin.H{{"account": "1111111111111", "note": "gut remodel in 2023"}}})
	require.Equal(t, http.StatusOK, rec.Code)

	got, _ := env.workflow.GetSession(context.Background(), id)
	require.NotNil(t, got.Analysis)
	assert.Len(t, got.Analysis.TopComparables, 2)
	assert.Equal(t, 1, got.Analysis.TopComparables[0].Rank)
	require.NotEmpty(t, got.Analysis.Excluded)
	assert.Equal(t, "gut remodel in 2023", got.Analysis.Excluded[len(got.Analysis.Excluded)-1].Note)

	// No analysis attached yet on a fresh session.
	fresh := env.start(t)
	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(fresh)+"/analysis/exclusions",
		gin.H{"exclusions": []gin.H{{"account": "1111111111111"}}})
	assert.Contains(t, rec.Body.String(), "WF_002")
}

func TestSessionHandler_DetachEvidence(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/deductions",
		gin.H{"category": "roof", "description": "hail damage", "amount": "1200"})
	got, _ := env.workflow.GetSession(context.Background(), id)
	dedID := got.Deductions[0].ID

	fileID := common.NewID()
	_, err := env.workflow.AttachEvidence(context.Background(), id, dedID, deduction.EvidenceFile{
		ID: fileID, FileName: "roof.jpg", Bucket: "protest-evidence", StorageKey: "evidence/roof.jpg",
	})
	require.NoError(t, err)

	path := "/api/v1/sessions/" + string(id) + "/deductions/" + string(dedID) + "/evidence/" + string(fileID)
	rec := env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, _ = env.workflow.GetSession(context.Background(), id)
	assert.Empty(t, got.Deductions[0].Evidence)

	// Detaching again succeeds.
	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionHandler_DeductionLifecycle(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/deductions",
		gin.H{"category": "roof", "description": "hail damage", "amount": "1200"})
	require.Equal(t, http.StatusOK, rec.Code)

	got, _ := env.workflow.GetSession(context.Background(), id)
	require.Len(t, got.Deductions, 1)
	dedID := got.Deductions[0].ID

	// Bad amount.
	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/deductions",
		gin.H{"category": "roof", "description": "x", "amount": "not-money"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "DED_001")

	// Remove is idempotent at the HTTP layer too.
	rec = env.do(t, http.MethodDelete, "/api/v1/sessions/"+string(id)+"/deductions/"+string(dedID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/v1/sessions/"+string(id)+"/deductions/"+string(dedID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionHandler_UploadEvidence(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/deductions",
		gin.H{"category": "roof", "description": "hail damage", "amount": "1200"})
	got, _ := env.workflow.GetSession(context.Background(), id)
	dedID := got.Deductions[0].ID

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "roof.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+string(id)+"/deductions/"+string(dedID)+"/evidence", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"roof.jpg"}, env.store.uploads)

	got, _ = env.workflow.GetSession(context.Background(), id)
	require.Len(t, got.Deductions[0].Evidence, 1)
	assert.Equal(t, "roof.jpg", got.Deductions[0].Evidence[0].FileName)
}

func TestSessionHandler_MarketAdjustmentBounds(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/market-adjustment",
		gin.H{"rate_percent": 2.0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/market-adjustment",
		gin.H{"rate_percent": 9.0})
	assert.Contains(t, rec.Body.String(), "VAL_002")
}

func TestSessionHandler_ProposedValue(t *testing.T) {
	env := newSessionEnv()
	id := env.start(t)
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/deductions",
		gin.H{"category": "roof", "description": "hail damage", "amount": "5000"})
	_ = env.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/extra-features",
		gin.H{"feature_code": "RSP1", "description": "pool removed", "reduction": "5000"})

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+string(id)+"/proposed-value", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "240000")
}
