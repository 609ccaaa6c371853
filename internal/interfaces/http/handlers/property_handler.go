package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// PropertyService is the slice of the analysis service the property routes
// use.
type PropertyService interface {
	LookupSubject(ctx context.Context, acct common.AccountNumber) (*property.SubjectProperty, error)
	Candidates(ctx context.Context, subject property.SubjectProperty) (comparable.GroupedComparables, error)
}

// PropertyHandler serves subject lookups and candidate comparables.
type PropertyHandler struct {
	service PropertyService
}

func NewPropertyHandler(service PropertyService) *PropertyHandler {
	return &PropertyHandler{service: service}
}

// Get looks up the appraisal roll record for one account.
func (h *PropertyHandler) Get(c *gin.Context) {
	acct := common.AccountNumber(c.Param("acct"))
	subject, err := h.service.LookupSubject(c.Request.Context(), acct)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, subject)
}

// Comparables returns the neighborhood candidates grouped by closeness in
// age, size and value.
func (h *PropertyHandler) Comparables(c *gin.Context) {
	acct := common.AccountNumber(c.Param("acct"))
	subject, err := h.service.LookupSubject(c.Request.Context(), acct)
	if err != nil {
		respondError(c, err)
		return
	}
	groups, err := h.service.Candidates(c.Request.Context(), *subject)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, groups)
}
