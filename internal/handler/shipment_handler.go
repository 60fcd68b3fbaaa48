package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"certintake/internal/csvexport"
	"certintake/internal/domain"
	"certintake/internal/service"
)

// maxUploadBytes caps a single certificate upload.
const maxUploadBytes = 25 << 20

// ShipmentHandler exposes a shipment's certificate documents.
type ShipmentHandler struct {
	reconciler service.DocumentReconciler
}

// NewShipmentHandler creates a new ShipmentHandler.
func NewShipmentHandler(reconciler service.DocumentReconciler) *ShipmentHandler {
	return &ShipmentHandler{reconciler: reconciler}
}

// ListDocuments handles GET /api/v1/shipments/:shipment_id/documents
func (h *ShipmentHandler) ListDocuments(c *gin.Context) {
	snap, err := h.reconciler.Snapshot(c.Request.Context(), c.Param("shipment_id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, snap)
}

// ExportCSV handles GET /api/v1/shipments/:shipment_id/documents/export
func (h *ShipmentHandler) ExportCSV(c *gin.Context) {
	shipmentID := c.Param("shipment_id")
	snap, err := h.reconciler.Snapshot(c.Request.Context(), shipmentID)
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, csvexport.BuildFilename(shipmentID, time.Now())))
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write(csvexport.BOM); err != nil {
		log.Printf("shipmentHandler.ExportCSV: writing BOM: %v", err)
		return
	}
	w := csvexport.NewWriter(c.Writer)
	if err := w.WriteSnapshotHeader(); err != nil {
		log.Printf("shipmentHandler.ExportCSV: writing header: %v", err)
		return
	}
	if err := w.WriteSnapshot(snap); err != nil {
		log.Printf("shipmentHandler.ExportCSV: writing rows: %v", err)
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("shipmentHandler.ExportCSV: flush: %v", err)
	}
}

// UploadDocuments handles POST /api/v1/shipments/:shipment_id/documents
// Files are reconciled in the order they appear in the "files" field.
func (h *ShipmentHandler) UploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "multipart form is required")
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		RespondError(c, http.StatusBadRequest, "MISSING_FILES", "at least one file is required in 'files' field")
		return
	}

	attachments := make([]domain.Attachment, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		if fh.Size > maxUploadBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size")
			return
		}
		f, err := fh.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "FILE_READ_ERROR", "failed to read uploaded file")
			return
		}
		payload, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "FILE_READ_ERROR", "failed to read uploaded file")
			return
		}
		attachments = append(attachments, domain.Attachment{Name: fh.Filename, Payload: payload})
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), c.Param("shipment_id"), attachments)
	if err != nil {
		status, code, msg := MapDomainError(err)
		if status >= 500 {
			requestID, _ := c.Get("request_id")
			log.Printf("[%s] reconcile failed: %v", requestID, err)
		}
		resp := APIResponse{Success: false, Data: result, Error: &APIError{Code: code, Message: msg}}
		var partial *domain.PartialBatchFailure
		if errors.As(err, &partial) {
			resp.Error.Details = partial.Errors
		} else if result != nil {
			resp.Error.Details = result.Errors
		}
		c.JSON(status, resp)
		return
	}
	RespondCreated(c, result)
}
