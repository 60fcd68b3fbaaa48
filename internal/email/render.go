package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"certintake/internal/domain"
	"certintake/internal/port"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ReceiptData is rendered into the receipt sent after a committed batch.
type ReceiptData struct {
	ShipmentID string
	Documents  []domain.DocumentRef
	// Existing lists the shipment's records as they were before the batch.
	Existing []domain.SnapshotEntry
}

// RejectionData is rendered for unknown sender and invalid input replies.
type RejectionData struct {
	OriginalSubject string
	Message         string
	MessageLocal    string
}

// ManualReviewData is rendered for messages that need a person to look at them.
type ManualReviewData struct {
	OriginalSubject string
	Sender          string
	Reason          string
	Body            string
	AttachmentNames []string
}

// TechnicalErrorData is rendered for operations when a message failed technically.
type TechnicalErrorData struct {
	Key        string
	ShipmentID string
	Reason     string
	Errors     []string
}

// Rendered is a notification ready to hand to a transport.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

var defaultSubjects = map[domain.NotificationKind]string{
	domain.NotifyReceipt:        "Certificates received",
	domain.NotifyUnknownSender:  "Your email was not processed",
	domain.NotifyInvalidInput:   "Your certificates could not be processed",
	domain.NotifyManualReview:   "Certificate email requires manual handling",
	domain.NotifyTechnicalError: "Technical error in certificate intake",
}

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// Render produces the subject and bodies for n.
func Render(n port.Notification) (*Rendered, error) {
	subject := n.Subject
	if subject == "" {
		var ok bool
		subject, ok = defaultSubjects[n.Kind]
		if !ok {
			return nil, fmt.Errorf("email.Render: unknown notification kind %q", n.Kind)
		}
	}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, string(n.Kind)+".html.tmpl", n.Data); err != nil {
		return nil, fmt.Errorf("email.Render: html %s: %w", n.Kind, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, string(n.Kind)+".txt.tmpl", n.Data); err != nil {
		return nil, fmt.Errorf("email.Render: text %s: %w", n.Kind, err)
	}

	return &Rendered{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}
