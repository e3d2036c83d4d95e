package routes

import (
	"errors"
	"net/http"

	"visitor-access-control/internal/pass"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/visitor"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error    // The underlying error
	StatusCode int      // HTTP status code
	Message    string   // User-friendly message
	StopCodes  []string // Optional stop codes for client-side handling
	Internal   bool     // Whether this is an internal error (hide details from user)
}

// ErrorInfo contains error metadata for user-facing errors
type ErrorInfo struct {
	Message   string   // User-friendly message
	StopCodes []string // Optional stop codes for client-side application
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string, stopCodes ...string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		StopCodes:  stopCodes,
		Internal:   statusCode >= 500,
	}
}

// Routes-specific errors (that don't conflict with the service packages)
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrMissingParam    = errors.New("missing required parameter")
	ErrInternalServer  = errors.New("internal server error")
	ErrQRGeneration    = errors.New("failed to generate QR code")
	ErrAuditUnreadable = errors.New("failed to read audit trail")
)

// errorStatusMap maps errors to HTTP status codes
var errorStatusMap = map[error]int{
	// 400 Bad Request
	ErrInvalidRequest:     http.StatusBadRequest,
	ErrMissingParam:       http.StatusBadRequest,
	pass.ErrValidation:    http.StatusBadRequest,
	visitor.ErrValidation: http.StatusBadRequest,

	// 401 Unauthorized
	ErrUnauthorized:      http.StatusUnauthorized,
	pass.ErrInvalidToken: http.StatusUnauthorized,

	// 403 Forbidden
	ErrForbidden: http.StatusForbidden,

	// 404 Not Found
	pass.ErrNotFound:    http.StatusNotFound,
	visitor.ErrNotFound: http.StatusNotFound,
	storage.ErrNotFound: http.StatusNotFound,

	// 409 Conflict
	pass.ErrLimitReached:              http.StatusConflict,
	pass.ErrDuplicateRequest:          http.StatusConflict,
	visitor.ErrInvalidStateTransition: http.StatusConflict,

	// 410 Gone
	pass.ErrDeactivated: http.StatusGone,
	pass.ErrExpired:     http.StatusGone,

	// 500 Internal Server Error
	ErrInternalServer: http.StatusInternalServerError,
	ErrQRGeneration:   http.StatusInternalServerError,

	// 503 Service Unavailable
	storage.ErrUnavailable: http.StatusServiceUnavailable,
	ErrAuditUnreadable:     http.StatusServiceUnavailable,
}

// errorInfoMap maps errors to user-friendly messages and optional stop codes
var errorInfoMap = map[error]ErrorInfo{
	ErrUnauthorized: {
		Message:   "Authentication required",
		StopCodes: []string{"AUTH_REQUIRED"},
	},
	ErrForbidden: {
		Message:   "Access denied",
		StopCodes: []string{"FORBIDDEN"},
	},
	ErrInvalidRequest: {
		Message:   "Invalid request format",
		StopCodes: []string{"INVALID_REQUEST"},
	},
	ErrMissingParam: {
		Message:   "Required parameter is missing",
		StopCodes: []string{"MISSING_PARAMETER"},
	},

	// Pass lifecycle
	pass.ErrValidation: {
		Message:   "Pass request is invalid",
		StopCodes: []string{"PASS_INVALID_REQUEST"},
	},
	pass.ErrInvalidToken: {
		Message:   "Pass token could not be verified",
		StopCodes: []string{"PASS_INVALID_TOKEN"},
	},
	pass.ErrNotFound: {
		Message:   "Pass not found",
		StopCodes: []string{"PASS_NOT_FOUND"},
	},
	pass.ErrDeactivated: {
		Message:   "Pass has been deactivated",
		StopCodes: []string{"PASS_DEACTIVATED"},
	},
	pass.ErrExpired: {
		Message:   "Pass has expired",
		StopCodes: []string{"PASS_EXPIRED"},
	},
	pass.ErrLimitReached: {
		Message:   "Pass has no scans remaining",
		StopCodes: []string{"PASS_LIMIT_REACHED"},
	},
	pass.ErrDuplicateRequest: {
		Message:   "This redemption was already processed",
		StopCodes: []string{"DUPLICATE_REQUEST"},
	},

	// Visitor lifecycle
	visitor.ErrValidation: {
		Message:   "Visitor request is invalid",
		StopCodes: []string{"VISITOR_INVALID_REQUEST"},
	},
	visitor.ErrNotFound: {
		Message:   "Visitor record not found",
		StopCodes: []string{"VISITOR_NOT_FOUND"},
	},
	visitor.ErrInvalidStateTransition: {
		Message:   "Visitor is not in a state that allows this action",
		StopCodes: []string{"INVALID_STATE_TRANSITION"},
	},

	// Internal (no stop codes for internal errors)
	ErrInternalServer: {
		Message: "An internal error occurred",
	},
	ErrQRGeneration: {
		Message: "Failed to generate QR code",
	},
	ErrAuditUnreadable: {
		Message: "Audit trail is temporarily unavailable",
	},
	storage.ErrUnavailable: {
		Message: "Service is temporarily unavailable",
	},
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	// Check if it's already an HTTPError
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	// Check direct match
	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	// Default to 500 Internal Server Error
	return http.StatusInternalServerError
}

// GetErrorInfo returns error information including message and stop codes
func GetErrorInfo(err error) ErrorInfo {
	// Check if it's an HTTPError with custom info
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ErrorInfo{
			Message:   httpErr.Message,
			StopCodes: httpErr.StopCodes,
		}
	}

	// Check direct match
	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	// Check if error wraps a known error
	for knownErr, info := range errorInfoMap {
		if errors.Is(err, knownErr) {
			return info
		}
	}

	// For unknown errors, return a generic message for 5xx, specific for others
	status := GetErrorStatus(err)
	if status >= 500 {
		return ErrorInfo{Message: "An internal error occurred"}
	}
	return ErrorInfo{Message: err.Error()}
}

// GetErrorMessage returns a user-friendly message for an error
func GetErrorMessage(err error) string {
	return GetErrorInfo(err).Message
}

// GetErrorStopCodes returns stop codes for an error
func GetErrorStopCodes(err error) []string {
	return GetErrorInfo(err).StopCodes
}
