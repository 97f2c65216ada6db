package api

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorCode defines standard error codes.
type ErrorCode string

const (
	// Validation errors (4xx)
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Server errors (5xx)
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"

	// Business logic errors
	ErrCodeOrderNotFound    ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeDuplicateOrder   ErrorCode = "DUPLICATE_ORDER"
	ErrCodeInvalidPrice     ErrorCode = "INVALID_PRICE"
	ErrCodeInvalidQuantity  ErrorCode = "INVALID_QUANTITY"
	ErrCodeWrongOrderType   ErrorCode = "WRONG_ORDER_TYPE"
	ErrCodeDuplicateStop    ErrorCode = "DUPLICATE_STOP"
	ErrCodeOrderUnmodifable ErrorCode = "ORDER_NOT_MODIFIABLE"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   string(code),
		Message: message,
		Code:    string(code),
	}
}

// AbortWithError aborts the request with a standardized error response.
func AbortWithError(c *gin.Context, status int, code ErrorCode, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(code, message))
}
