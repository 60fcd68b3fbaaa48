package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"certintake/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// receiptColumns is the header row of a batch receipt.
var receiptColumns = []string{
	"Batch ID",
	"Shipment",
	"Attachment",
	"Certificate Reference",
	"Record ID",
	"Status",
	"Error",
}

// snapshotColumns is the header row of a shipment snapshot export.
var snapshotColumns = []string{
	"Shipment",
	"Certificate Reference",
	"Record ID",
	"Verified",
	"Taken At",
}

// Writer wraps csv.Writer for exporting reconciliation data as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteReceiptHeader writes the receipt header row.
func (w *Writer) WriteReceiptHeader() error {
	return w.csv.Write(receiptColumns)
}

// WriteOutcomes writes one row per attachment outcome of a batch.
func (w *Writer) WriteOutcomes(result *domain.ReconcileResult) error {
	for i := range result.Outcomes {
		o := &result.Outcomes[i]
		row := []string{
			result.BatchID.String(),
			result.ShipmentID,
			o.AttachmentName,
			o.CertificateReference,
			formatID(o.RecordID),
			string(o.Status),
			o.Error,
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshotHeader writes the snapshot header row.
func (w *Writer) WriteSnapshotHeader() error {
	return w.csv.Write(snapshotColumns)
}

// WriteSnapshot writes one row per record of a shipment snapshot.
func (w *Writer) WriteSnapshot(snap *domain.ShipmentSnapshot) error {
	takenAt := snap.TakenAt.Format(time.RFC3339)
	for i := range snap.Entries {
		e := &snap.Entries[i]
		row := []string{
			snap.ShipmentID,
			e.CertificateReference,
			e.RecordID.String(),
			formatBool(e.Verified),
			takenAt,
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// WriteReceipt writes a complete receipt for result, BOM included.
func WriteReceipt(out io.Writer, result *domain.ReconcileResult) error {
	if _, err := out.Write(BOM); err != nil {
		return err
	}
	w := NewWriter(out)
	if err := w.WriteReceiptHeader(); err != nil {
		return err
	}
	if err := w.WriteOutcomes(result); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a shipment id for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for Content-Disposition header.
// Format: {sanitized_shipment_id}_certificates_{YYYY-MM-DD}.csv
func BuildFilename(shipmentID string, now time.Time) string {
	return fmt.Sprintf("%s_certificates_%s.csv", SanitizeFilename(shipmentID), now.Format("2006-01-02"))
}
