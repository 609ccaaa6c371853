package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/application/analysis"
	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/deduction"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	storage "github.com/fairclaim/protest-engine/internal/infrastructure/storage/minio"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// WorkflowService is the slice of the workflow service the session routes
// use.
type WorkflowService interface {
	StartSession(ctx context.Context, acct common.AccountNumber) (*session.Session, error)
	GetSession(ctx context.Context, id common.ID) (*session.Session, error)
	SessionsForAccount(ctx context.Context, acct common.AccountNumber) ([]*session.Session, error)
	Advance(ctx context.Context, id common.ID) (*session.Session, error)
	Back(ctx context.Context, id common.ID) (*session.Session, error)
	SetOverrides(ctx context.Context, id common.ID, o property.Overrides) (*session.Session, error)
	AttachAnalysis(ctx context.Context, id common.ID, a comparable.AnalysisData, r *valuation.MedianAssessmentResult) (*session.Session, error)
	AddDeduction(ctx context.Context, id common.ID, d deduction.Deduction) (*session.Session, error)
	RemoveDeduction(ctx context.Context, id common.ID, dedID common.ID) (*session.Session, error)
	AttachEvidence(ctx context.Context, id common.ID, dedID common.ID, f deduction.EvidenceFile) (*session.Session, error)
	DetachEvidence(ctx context.Context, id common.ID, dedID common.ID, fileID common.ID) (*session.Session, error)
	AttachQuote(ctx context.Context, id common.ID, dedID common.ID, q deduction.QuoteFile) (*session.Session, error)
	ExcludeComparables(ctx context.Context, id common.ID, exclusions []comparable.ExcludedProperty) (*session.Session, error)
	AddExtraFeatureDispute(ctx context.Context, id common.ID, d session.ExtraFeatureDispute) (*session.Session, error)
	SetMarketAdjustment(ctx context.Context, id common.ID, percent float64) (*session.Session, error)
	ProposedValue(ctx context.Context, id common.ID) (decimal.Decimal, error)
	Finalize(ctx context.Context, id common.ID) (*session.Session, error)
}

// AnalysisRunner runs the comparable analysis for a subject.
type AnalysisRunner interface {
	Analyze(ctx context.Context, subject property.SubjectProperty) (*analysis.Result, error)
}

// EvidenceStore uploads deduction attachments.
type EvidenceStore interface {
	UploadEvidence(ctx context.Context, sessionID common.ID, fileName, contentType string, r io.Reader, size int64) (*storage.StoredObject, error)
}

// SessionHandler serves the protest session workflow routes.
type SessionHandler struct {
	workflow       WorkflowService
	analyzer       AnalysisRunner
	evidence       EvidenceStore
	maxBody        int64
	minComparables int
}

func NewSessionHandler(workflow WorkflowService, analyzer AnalysisRunner, evidence EvidenceStore) *SessionHandler {
	return &SessionHandler{
		workflow:       workflow,
		analyzer:       analyzer,
		evidence:       evidence,
		maxBody:        32 << 20,
		minComparables: 3,
	}
}

type startSessionRequest struct {
	Account string `json:"account" binding:"required"`
}

// Start opens a new session at the review stage.
func (h *SessionHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.workflow.StartSession(c.Request.Context(), common.AccountNumber(req.Account))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, sess)
}

// Get returns one session.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.workflow.GetSession(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// List returns the sessions for an account, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	acct := common.AccountNumber(c.Query("account"))
	if err := acct.Validate(); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeAccountNumberInvalid, "account query parameter"))
		return
	}
	sessions, err := h.workflow.SessionsForAccount(c.Request.Context(), acct)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sessions)
}

type stageRequest struct {
	ToStage string `json:"to_stage,omitempty"`
}

// Advance moves the session to the next stage.  A to_stage body acts as an
// assertion: if the caller expects a different stage than the one that is
// next, the request is rejected before anything changes.
func (h *SessionHandler) Advance(c *gin.Context) {
	id := common.ID(c.Param("id"))
	var req stageRequest
	_ = c.ShouldBindJSON(&req)

	if req.ToStage != "" {
		if err := h.assertNeighborStage(c.Request.Context(), id, req.ToStage, +1); err != nil {
			respondError(c, err)
			return
		}
	}
	sess, err := h.workflow.Advance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// Back moves the session to the previous stage.
func (h *SessionHandler) Back(c *gin.Context) {
	id := common.ID(c.Param("id"))
	var req stageRequest
	_ = c.ShouldBindJSON(&req)

	if req.ToStage != "" {
		if err := h.assertNeighborStage(c.Request.Context(), id, req.ToStage, -1); err != nil {
			respondError(c, err)
			return
		}
	}
	sess, err := h.workflow.Back(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

func (h *SessionHandler) assertNeighborStage(ctx context.Context, id common.ID, want string, direction int) error {
	cur, err := h.workflow.GetSession(ctx, id)
	if err != nil {
		return err
	}
	idx := cur.Stage.Index() + direction
	stages := session.Stages()
	if idx < 0 || idx >= len(stages) || string(stages[idx]) != want {
		return errors.Newf(errors.ErrCodeInvalidTransition,
			"cannot move from %s to %s", cur.Stage, want)
	}
	return nil
}

type overridesRequest struct {
	YearImproved     *int   `json:"year_improved,omitempty"`
	BuildingSqFt     *int   `json:"building_sqft,omitempty"`
	EvidenceFileName string `json:"evidence_file_name,omitempty"`
}

// SetOverrides records owner corrections to the roll record.
func (h *SessionHandler) SetOverrides(c *gin.Context) {
	var req overridesRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.workflow.SetOverrides(c.Request.Context(), common.ID(c.Param("id")), property.Overrides{
		YearImproved:     req.YearImproved,
		BuildingSqFt:     req.BuildingSqFt,
		EvidenceFileName: req.EvidenceFileName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

type attachAnalysisRequest struct {
	Analysis *comparable.AnalysisData `json:"analysis,omitempty"`
}

// Analysis attaches comparable analysis results to the session.  With an
// empty body the configured analyzer runs against the session's effective
// subject; with a body the supplied results are cleaned and attached.
func (h *SessionHandler) Analysis(c *gin.Context) {
	id := common.ID(c.Param("id"))
	sess, err := h.workflow.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var req attachAnalysisRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &req) {
			return
		}
	}

	var result *analysis.Result
	if req.Analysis != nil {
		cleaned := comparable.Clean(*req.Analysis, sess.Account)
		assessment, err := valuation.ComputeMedianAssessment(
			valuation.BaselineAppraised,
			sess.EffectiveSubject().TotalAppraisedValue,
			cleaned.AdjustedValues(),
			h.minComparables,
		)
		if err != nil {
			respondError(c, err)
			return
		}
		result = &analysis.Result{Analysis: cleaned, Assessment: assessment}
	} else {
		result, err = h.analyzer.Analyze(c.Request.Context(), sess.EffectiveSubject())
		if err != nil {
			respondError(c, err)
			return
		}
	}

	updated, err := h.workflow.AttachAnalysis(c.Request.Context(), id, result.Analysis, result.Assessment)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, updated)
}

type deductionRequest struct {
	Category    string `json:"category" binding:"required"`
	Description string `json:"description" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

// AddDeduction appends a repair-cost deduction.
func (h *SessionHandler) AddDeduction(c *gin.Context) {
	var req deductionRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeInvalidAmount, "parse amount"))
		return
	}
	sess, err := h.workflow.AddDeduction(c.Request.Context(), common.ID(c.Param("id")), deduction.Deduction{
		Category:    deduction.Category(req.Category),
		Description: req.Description,
		Amount:      amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// RemoveDeduction deletes a deduction; removing twice succeeds.
func (h *SessionHandler) RemoveDeduction(c *gin.Context) {
	sess, err := h.workflow.RemoveDeduction(c.Request.Context(),
		common.ID(c.Param("id")), common.ID(c.Param("dedID")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// UploadEvidence stores a multipart file in object storage and links it to
// the deduction.
func (h *SessionHandler) UploadEvidence(c *gin.Context) {
	id := common.ID(c.Param("id"))
	dedID := common.ID(c.Param("dedID"))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "read multipart file"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeEvidenceUploadFailed, "open upload"))
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	obj, err := h.evidence.UploadEvidence(c.Request.Context(), id,
		fileHeader.Filename, contentType, file, fileHeader.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	sess, err := h.workflow.AttachEvidence(c.Request.Context(), id, dedID, deduction.EvidenceFile{
		ID:          common.NewID(),
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		SizeBytes:   fileHeader.Size,
		Bucket:      obj.Bucket,
		StorageKey:  obj.Key,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// DetachEvidence unlinks an evidence file and releases the stored object.
// Detaching twice succeeds.
func (h *SessionHandler) DetachEvidence(c *gin.Context) {
	sess, err := h.workflow.DetachEvidence(c.Request.Context(),
		common.ID(c.Param("id")), common.ID(c.Param("dedID")), common.ID(c.Param("fileID")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

type excludeComparablesRequest struct {
	Exclusions []struct {
		Account string `json:"account"`
		Note    string `json:"note,omitempty"`
	} `json:"exclusions" binding:"required,min=1"`
}

// ExcludeComparables drops reviewer-rejected comparables from the attached
// analysis and recomputes the median assessment.
func (h *SessionHandler) ExcludeComparables(c *gin.Context) {
	var req excludeComparablesRequest
	if !bindJSON(c, &req) {
		return
	}
	exclusions := make([]comparable.ExcludedProperty, 0, len(req.Exclusions))
	for _, e := range req.Exclusions {
		if e.Account == "" {
			respondError(c, errors.New(errors.ErrCodeValidation, "exclusion entries need an account"))
			return
		}
		exclusions = append(exclusions, comparable.ExcludedProperty{
			Account: common.AccountNumber(e.Account),
			Note:    e.Note,
		})
	}

	sess, err := h.workflow.ExcludeComparables(c.Request.Context(), common.ID(c.Param("id")), exclusions)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

type extraFeatureRequest struct {
	FeatureCode string `json:"feature_code" binding:"required"`
	Description string `json:"description" binding:"required"`
	Reduction   string `json:"reduction" binding:"required"`
	Note        string `json:"note,omitempty"`
}

// AddExtraFeature records a disputed extra-feature line item.
func (h *SessionHandler) AddExtraFeature(c *gin.Context) {
	var req extraFeatureRequest
	if !bindJSON(c, &req) {
		return
	}
	reduction, err := decimal.NewFromString(req.Reduction)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeInvalidAmount, "parse reduction"))
		return
	}
	sess, err := h.workflow.AddExtraFeatureDispute(c.Request.Context(), common.ID(c.Param("id")),
		session.ExtraFeatureDispute{
			FeatureCode: req.FeatureCode,
			Description: req.Description,
			Reduction:   reduction,
			Note:        req.Note,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

type marketAdjustmentRequest struct {
	RatePercent float64 `json:"rate_percent" binding:"required"`
}

// SetMarketAdjustment applies a market decline percentage.
func (h *SessionHandler) SetMarketAdjustment(c *gin.Context) {
	var req marketAdjustmentRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.workflow.SetMarketAdjustment(c.Request.Context(), common.ID(c.Param("id")), req.RatePercent)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// ProposedValue returns the current proposed value for the session.
func (h *SessionHandler) ProposedValue(c *gin.Context) {
	value, err := h.workflow.ProposedValue(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"proposed_value": value})
}
