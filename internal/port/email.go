package port

import (
	"context"

	"certintake/internal/domain"
)

// Notification is an outbound email to be rendered from a template kind.
type Notification struct {
	Kind    domain.NotificationKind
	From    string
	To      []string
	Cc      []string
	Subject string
	Data    any
}

// Notifier renders and delivers notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
