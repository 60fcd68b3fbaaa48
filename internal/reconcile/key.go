package reconcile

import (
	"path"
	"strings"

	"certintake/internal/domain"
)

// BuildKey derives the natural key of an attachment: the certificate reference
// is the file name without its extension.
func BuildKey(attachmentName, shipmentID string) (domain.NaturalKey, error) {
	ref := strings.TrimSpace(path.Base(strings.ReplaceAll(attachmentName, "\\", "/")))
	if i := strings.LastIndex(ref, "."); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.NaturalKey{}, &domain.InvalidAttachmentNameError{
			AttachmentName: attachmentName,
			Err:            domain.ErrInvalidAttachmentName,
		}
	}
	return domain.NaturalKey{ShipmentID: shipmentID, CertificateReference: ref}, nil
}
