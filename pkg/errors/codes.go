package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_016"
)

// Sentinel pseudo-codes used by GetCode.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")
)

// Property module error codes
const (
	ErrCodePropertyNotFound     ErrorCode = "PROP_001"
	ErrCodePropertyDataInvalid  ErrorCode = "PROP_002"
	ErrCodeAccountNumberInvalid ErrorCode = "PROP_003"
)

// Comparable module error codes
const (
	ErrCodeComparableDataInvalid ErrorCode = "CMP_001"
	ErrCodeComparableDuplicate   ErrorCode = "CMP_002"
	ErrCodeNoComparables         ErrorCode = "CMP_003"
)

// Valuation module error codes
const (
	ErrCodeInsufficientData    ErrorCode = "VAL_001"
	ErrCodeAdjustmentOutOfRange ErrorCode = "VAL_002"
	ErrCodeValuationFailed     ErrorCode = "VAL_003"
)

// Deduction module error codes
const (
	ErrCodeInvalidAmount       ErrorCode = "DED_001"
	ErrCodeDeductionNotFound   ErrorCode = "DED_002"
	ErrCodeEvidenceUploadFailed ErrorCode = "DED_003"
)

// Workflow module error codes
const (
	ErrCodeInvalidTransition ErrorCode = "WF_001"
	ErrCodeAnalysisNotReady  ErrorCode = "WF_002"
	ErrCodeSessionFinalized  ErrorCode = "WF_003"
	ErrCodeSessionNotFound   ErrorCode = "WF_004"
)

// Report module error codes
const (
	ErrCodeReportNotFound         ErrorCode = "RPT_001"
	ErrCodeReportGenerationFailed ErrorCode = "RPT_002"
)

// Data source error codes
const (
	ErrCodeDataSourceUnavailable ErrorCode = "SRC_001"
	ErrCodeDataSourceRateLimited ErrorCode = "SRC_002"
	ErrCodeDataSourceParseError  ErrorCode = "SRC_003"
)

// AI analysis error codes
const (
	ErrCodeAIServiceUnavailable ErrorCode = "AI_001"
	ErrCodeAIResponseInvalid    ErrorCode = "AI_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,

	ErrCodePropertyNotFound:     http.StatusNotFound,
	ErrCodePropertyDataInvalid:  http.StatusUnprocessableEntity,
	ErrCodeAccountNumberInvalid: http.StatusBadRequest,

	ErrCodeComparableDataInvalid: http.StatusUnprocessableEntity,
	ErrCodeComparableDuplicate:   http.StatusConflict,
	ErrCodeNoComparables:         http.StatusUnprocessableEntity,

	ErrCodeInsufficientData:     http.StatusUnprocessableEntity,
	ErrCodeAdjustmentOutOfRange: http.StatusBadRequest,
	ErrCodeValuationFailed:      http.StatusInternalServerError,

	ErrCodeInvalidAmount:        http.StatusBadRequest,
	ErrCodeDeductionNotFound:    http.StatusNotFound,
	ErrCodeEvidenceUploadFailed: http.StatusInternalServerError,

	ErrCodeInvalidTransition: http.StatusConflict,
	ErrCodeAnalysisNotReady:  http.StatusConflict,
	ErrCodeSessionFinalized:  http.StatusConflict,
	ErrCodeSessionNotFound:   http.StatusNotFound,

	ErrCodeReportNotFound:         http.StatusNotFound,
	ErrCodeReportGenerationFailed: http.StatusInternalServerError,

	ErrCodeDataSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeDataSourceRateLimited: http.StatusTooManyRequests,
	ErrCodeDataSourceParseError:  http.StatusBadGateway,

	ErrCodeAIServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeAIResponseInvalid:    http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessageQueueError:  "message queue error",

	ErrCodePropertyNotFound:     "property not found",
	ErrCodePropertyDataInvalid:  "property record is incomplete or invalid",
	ErrCodeAccountNumberInvalid: "invalid account number",

	ErrCodeComparableDataInvalid: "comparable record is invalid",
	ErrCodeComparableDuplicate:   "duplicate comparable account",
	ErrCodeNoComparables:         "no comparable properties available",

	ErrCodeInsufficientData:     "insufficient data for valuation",
	ErrCodeAdjustmentOutOfRange: "market adjustment rate out of range",
	ErrCodeValuationFailed:      "valuation failed",

	ErrCodeInvalidAmount:        "invalid deduction amount",
	ErrCodeDeductionNotFound:    "deduction not found",
	ErrCodeEvidenceUploadFailed: "failed to store evidence file",

	ErrCodeInvalidTransition: "invalid workflow transition",
	ErrCodeAnalysisNotReady:  "analysis has not completed",
	ErrCodeSessionFinalized:  "session is finalized",
	ErrCodeSessionNotFound:   "session not found",

	ErrCodeReportNotFound:         "report not found",
	ErrCodeReportGenerationFailed: "failed to generate report",

	ErrCodeDataSourceUnavailable: "appraisal district data source unavailable",
	ErrCodeDataSourceRateLimited: "appraisal district data source rate limited",
	ErrCodeDataSourceParseError:  "failed to parse data source response",

	ErrCodeAIServiceUnavailable: "analysis service unavailable",
	ErrCodeAIResponseInvalid:    "analysis service returned an invalid response",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
