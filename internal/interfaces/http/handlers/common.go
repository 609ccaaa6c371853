// Package handlers implements the gin HTTP handlers for the protest API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/internal/interfaces/http/middleware"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// respond writes the standard success envelope.
func respond(c *gin.Context, status int, data interface{}) {
	resp := common.APIResponse[interface{}]{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: common.NewTimestamp(),
	}
	c.JSON(status, resp)
}

// respondError maps an application error to the standard error envelope
// using the error-code HTTP status table.  Unknown errors are masked.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = errors.DefaultMessageForCode(code)
	}

	detail := &common.ErrorDetail{
		Code:    string(code),
		Message: message,
	}
	// Property lookups that miss get guidance text so the UI can tell the
	// owner what to check.
	if code == errors.ErrCodePropertyNotFound || code == errors.ErrCodeAccountNumberInvalid {
		detail.Details = map[string]interface{}{
			"guidance": "Verify the 13-digit account number on your appraisal notice and try again.",
		}
	}

	c.JSON(status, common.APIResponse[interface{}]{
		Success:   false,
		Error:     detail,
		RequestID: middleware.GetRequestID(c),
		Timestamp: common.NewTimestamp(),
	})
}

// bindJSON decodes the request body, translating malformed input into a
// validation error response.  Returns false when the request was rejected.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "invalid request body"))
		return false
	}
	return true
}
