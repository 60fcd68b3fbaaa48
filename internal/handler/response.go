package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"certintake/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var nameErr *domain.InvalidAttachmentNameError
	var partial *domain.PartialBatchFailure
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrInvalidShipmentID):
		return http.StatusBadRequest, "INVALID_SHIPMENT_ID", "shipment id is required"
	case errors.Is(err, domain.ErrEmptyBatch):
		return http.StatusBadRequest, "EMPTY_BATCH", "at least one attachment is required"
	case errors.As(err, &nameErr):
		return http.StatusUnprocessableEntity, "INVALID_ATTACHMENT_NAME", "one or more attachment names cannot be used as a certificate reference"
	case errors.As(err, &partial):
		return http.StatusBadGateway, "PARTIAL_BATCH_FAILURE", "storing the batch failed and applied changes were rolled back"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found"
	case errors.Is(err, domain.ErrDocumentCheckedOut):
		return http.StatusConflict, "DOCUMENT_CHECKED_OUT", "document is checked out by another writer"
	case errors.Is(err, domain.ErrCleanupFailed):
		return http.StatusInternalServerError, "CLEANUP_FAILED", "message processed but could not be removed from storage"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] internal error: %v", requestID, err)
	}
	RespondError(c, status, code, msg)
}
