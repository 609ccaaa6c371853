package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/internal/application/reporting"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

type fakeReporting struct {
	reports map[common.ID]*reporting.Report
	bodies  map[common.ID]string
}

func newFakeReporting() *fakeReporting {
	return &fakeReporting{
		reports: make(map[common.ID]*reporting.Report),
		bodies:  make(map[common.ID]string),
	}
}

func (f *fakeReporting) RequestReport(_ context.Context, sessionID common.ID) (*reporting.Report, error) {
	rep := &reporting.Report{
		ID:          common.NewID(),
		SessionID:   sessionID,
		Status:      reporting.StatusPending,
		FileName:    "report.txt",
		RequestedAt: time.Now().UTC(),
	}
	f.reports[rep.ID] = rep
	return rep, nil
}

func (f *fakeReporting) GetReport(_ context.Context, id common.ID) (*reporting.Report, error) {
	rep, ok := f.reports[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeReportNotFound, "report %s not found", id)
	}
	return rep, nil
}

func (f *fakeReporting) Open(_ context.Context, id common.ID) (*reporting.Report, io.ReadCloser, error) {
	rep, ok := f.reports[id]
	if !ok || rep.Status != reporting.StatusCompleted {
		return nil, nil, errors.Newf(errors.ErrCodeReportNotFound, "report %s is not ready", id)
	}
	body := f.bodies[id]
	return rep, io.NopCloser(bytes.NewReader([]byte(body))), nil
}

type fakeFinalizer struct {
	workflow *fakeWorkflow
}

func (f *fakeFinalizer) Finalize(ctx context.Context, id common.ID) (*session.Session, error) {
	return f.workflow.Finalize(ctx, id)
}

func reportEnv() (*gin.Engine, *fakeReporting, *fakeWorkflow) {
	gin.SetMode(gin.TestMode)
	wf := newFakeWorkflow()
	rep := newFakeReporting()
	h := NewReportHandler(rep, &fakeFinalizer{workflow: wf})

	r := gin.New()
	r.POST("/api/v1/sessions/:id/report", h.Generate)
	r.GET("/api/v1/reports/:id", h.Get)
	r.GET("/api/v1/reports/:id/download", h.Download)
	return r, rep, wf
}

func frozenSessionID(t *testing.T, wf *fakeWorkflow) common.ID {
	t.Helper()
	s, err := wf.StartSession(context.Background(), "0660640130020")
	require.NoError(t, err)

	s, err = s.Advance()
	require.NoError(t, err)
	s, err = s.WithAnalysis(testAnalysisResult().Analysis, testAnalysisResult().Assessment)
	require.NoError(t, err)
	for !s.Stage.Last() {
		s, err = s.Advance()
		require.NoError(t, err)
	}
	wf.sessions[s.ID] = s
	return s.ID
}

func TestReportHandler_Generate(t *testing.T) {
	r, rep, wf := reportEnv()
	id := frozenSessionID(t, wf)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+string(id)+"/report", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), string(reporting.StatusPending))
	assert.Len(t, rep.reports, 1)

	// Session is frozen.
	got, err := wf.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.Finalized)
}

func TestReportHandler_GenerateRejectsEarlyStage(t *testing.T) {
	r, rep, wf := reportEnv()
	s, err := wf.StartSession(context.Background(), "0660640130020")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+string(s.ID)+"/report", nil))

	assert.Contains(t, rec.Body.String(), "WF_001")
	assert.Empty(t, rep.reports)
}

func TestReportHandler_Download(t *testing.T) {
	r, rep, _ := reportEnv()
	now := time.Now().UTC()
	report := &reporting.Report{
		ID:          common.NewID(),
		Status:      reporting.StatusCompleted,
		FileName:    "property-report.txt",
		SizeBytes:   int64(len("the rendered report")),
		GeneratedAt: &now,
	}
	rep.reports[report.ID] = report
	rep.bodies[report.ID] = "the rendered report"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+string(report.ID)+"/download", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the rendered report", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "property-report.txt")
}

func TestReportHandler_DownloadNotReady(t *testing.T) {
	r, rep, wf := reportEnv()
	id := frozenSessionID(t, wf)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+string(id)+"/report", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var reportID common.ID
	for rid := range rep.reports {
		reportID = rid
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+string(reportID)+"/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "RPT_001")
}
