package port

import (
	"context"

	"certintake/internal/domain"
)

// SecretStore looks up named secrets.
type SecretStore interface {
	Get(ctx context.Context, name string) (string, error)
}

// SenderWhitelist reports whether a sender may submit certificates.
type SenderWhitelist interface {
	Contains(ctx context.Context, sender string) (bool, error)
}

// ShipmentVerifier checks a shipment number against the system of record.
type ShipmentVerifier interface {
	Exists(ctx context.Context, shipmentID string) (bool, error)
}

// MailParser extracts the intake fields from a raw message.
type MailParser interface {
	Parse(raw []byte) (*domain.InboundMail, error)
}
