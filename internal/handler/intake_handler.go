package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"certintake/internal/service"
)

// IntakeRequest is the body of POST /api/v1/intake.
type IntakeRequest struct {
	Key string `json:"key" binding:"required"`
}

// IntakeHandler triggers processing of a stored raw message.
type IntakeHandler struct {
	intake service.IntakeService
}

// NewIntakeHandler creates a new IntakeHandler.
func NewIntakeHandler(intake service.IntakeService) *IntakeHandler {
	return &IntakeHandler{intake: intake}
}

// Process handles POST /api/v1/intake
func (h *IntakeHandler) Process(c *gin.Context) {
	var req IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "key is required")
		return
	}

	out, err := h.intake.ProcessMessage(c.Request.Context(), req.Key)
	if err != nil {
		status, code, msg := MapDomainError(err)
		if status >= 500 {
			requestID, _ := c.Get("request_id")
			log.Printf("[%s] intake of %s failed: %v", requestID, req.Key, err)
		}
		c.JSON(status, APIResponse{Success: false, Data: out, Error: &APIError{Code: code, Message: msg}})
		return
	}
	RespondOK(c, out)
}
