package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

func respond(c *gin.Context, statusCode int, response APIResponse) {
	response.RequestID = c.GetString("request_id")
	response.Timestamp = time.Now().UTC()
	c.JSON(statusCode, response)
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusCreated, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// PaginatedResponse writes one page of data with its pagination metadata.
func PaginatedResponse(c *gin.Context, message string, data interface{}, params *PaginationParams, total int64) {
	respond(c, http.StatusOK, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
		Meta:    &Meta{Pagination: CreatePaginationMeta(params, total)},
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	ErrorResponseWithDetails(c, statusCode, code, message, nil)
}

func ErrorResponseWithDetails(c *gin.Context, statusCode int, code, message string, details map[string]string) {
	respond(c, statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", ErrValidationFailed, errors)
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", ErrInternalServer)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	if message == "" {
		message = ErrUnauthorized
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func ForbiddenResponse(c *gin.Context, message string) {
	if message == "" {
		message = ErrForbidden
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message)
}

func NotFoundResponse(c *gin.Context, resource string) {
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message)
}
