package noop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"certintake/internal/domain"
	"certintake/internal/email"
	"certintake/internal/email/noop"
	"certintake/internal/port"
)

func TestNoopNotifier_Send(t *testing.T) {
	n := noop.NewNoopNotifier()

	err := n.Send(context.Background(), port.Notification{
		Kind: domain.NotifyInvalidInput,
		To:   []string{"supplier@example.com"},
		Data: email.RejectionData{OriginalSubject: "S100", Message: "no attachments"},
	})
	assert.NoError(t, err)
}

func TestNoopNotifier_UnknownKind(t *testing.T) {
	n := noop.NewNoopNotifier()

	err := n.Send(context.Background(), port.Notification{Kind: "carrier_pigeon"})
	assert.Error(t, err)
}
