package noop

import (
	"context"
	"log"
	"strings"

	"certintake/internal/email"
	"certintake/internal/port"
)

type noopNotifier struct{}

// NewNoopNotifier creates a Notifier that renders notifications and logs them instead of sending.
func NewNoopNotifier() port.Notifier {
	return &noopNotifier{}
}

func (s *noopNotifier) Send(_ context.Context, n port.Notification) error {
	rendered, err := email.Render(n)
	if err != nil {
		return err
	}
	log.Printf("[NOOP EMAIL] %s to=%s cc=%s subject=%q\n%s",
		n.Kind, strings.Join(n.To, ","), strings.Join(n.Cc, ","), rendered.Subject, rendered.Text)
	return nil
}
