// internal/utils/response.go
package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every REST reply
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Page      *Page       `json:"page,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError carries a stable code for clients and the underlying cause
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Page locates a listing within its full result set
type Page struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// device faults surface as gateway errors since the service only relays them
var errorCodes = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusConflict:            "CONFLICT",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	http.StatusBadGateway:          "DEVICE_ERROR",
	http.StatusServiceUnavailable:  "SERVICE_UNAVAILABLE",
	http.StatusGatewayTimeout:      "DEVICE_TIMEOUT",
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, envelope(c, true, message, data))
}

// PageResponse sends one page of a listing
func PageResponse(c *gin.Context, message string, items interface{}, page Page) {
	resp := envelope(c, true, message, items)
	resp.Page = &page
	c.JSON(http.StatusOK, resp)
}

// ErrorResponse sends an error response; err, when set, becomes the details
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	resp := envelope(c, false, message, nil)
	resp.Error = &APIError{Code: ErrorCode(statusCode), Message: message}
	if err != nil {
		resp.Error.Details = err.Error()
	}
	c.JSON(statusCode, resp)
}

// ValidationErrorResponse sends the per-field problems of a request
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	resp := envelope(c, false, "Validation failed", gin.H{"validation_errors": errors})
	resp.Error = &APIError{Code: "VALIDATION_ERROR", Message: "Request validation failed"}
	c.JSON(http.StatusBadRequest, resp)
}

// ErrorCode returns the client-facing code for an HTTP status
func ErrorCode(statusCode int) string {
	if code, ok := errorCodes[statusCode]; ok {
		return code
	}
	return "UNKNOWN_ERROR"
}

func envelope(c *gin.Context, success bool, message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	}
}
