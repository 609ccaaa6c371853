package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/internal/application/reporting"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// ReportingService is the slice of the reporting service the report routes
// use.
type ReportingService interface {
	RequestReport(ctx context.Context, sessionID common.ID) (*reporting.Report, error)
	GetReport(ctx context.Context, id common.ID) (*reporting.Report, error)
	Open(ctx context.Context, id common.ID) (*reporting.Report, io.ReadCloser, error)
}

// SessionFinalizer freezes a session ahead of report generation.
type SessionFinalizer interface {
	Finalize(ctx context.Context, id common.ID) (*session.Session, error)
}

// ReportHandler serves report generation and download.
type ReportHandler struct {
	reports  ReportingService
	sessions SessionFinalizer
}

func NewReportHandler(reports ReportingService, sessions SessionFinalizer) *ReportHandler {
	return &ReportHandler{reports: reports, sessions: sessions}
}

// Generate freezes the session and queues the report for rendering.  The
// response is the pending report; a worker fills in the storage location.
func (h *ReportHandler) Generate(c *gin.Context) {
	id := common.ID(c.Param("id"))
	if _, err := h.sessions.Finalize(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	report, err := h.reports.RequestReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, report)
}

// Get returns report metadata.
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.GetReport(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

// Download streams the rendered report body.
func (h *ReportHandler) Download(c *gin.Context) {
	report, body, err := h.reports.Open(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", `attachment; filename="`+report.FileName+`"`)
	c.DataFromReader(http.StatusOK, report.SizeBytes, "text/plain; charset=utf-8", body, nil)
}
