package telephony

import (
	"github.com/gin-gonic/gin"
)

// Error kinds returned in the "error" field of an error body.
const (
	ErrKindInvalidJSON      = "invalid_json"
	ErrKindNotFound         = "not_found"
	ErrKindMethodNotAllowed = "method_not_allowed"
	ErrKindBadRequest       = "bad_request"
	ErrKindInternal         = "internal_error"
)

// ErrorResponse is the JSON body of every 4xx/5xx this service returns.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Details    map[string]any `json:"details,omitempty"`
}

// WriteError aborts the request with a structured error body.
func WriteError(c *gin.Context, status int, kind, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      kind,
		Message:    message,
		StatusCode: status,
		Details:    details,
	})
}
