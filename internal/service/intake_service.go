package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"certintake/internal/csvexport"
	"certintake/internal/domain"
	"certintake/internal/email"
	"certintake/internal/port"
	"certintake/internal/secrets"
)

const (
	unknownSenderMessage      = "Your email was not processed. Please contact the customs team."
	unknownSenderMessageLocal = "您的电子邮件未被处理。请联系关务部门。"
	manualReviewMessage       = "The email could not be read automatically and has been forwarded for manual handling."
)

// DocumentReconciler stores a shipment's attachments and reports on its records.
type DocumentReconciler interface {
	Snapshot(ctx context.Context, shipmentID string) (*domain.ShipmentSnapshot, error)
	Reconcile(ctx context.Context, shipmentID string, attachments []domain.Attachment) (*domain.ReconcileResult, error)
}

// IntakeConfig holds the storage layout used by the intake service.
type IntakeConfig struct {
	Bucket          string
	PendingPrefix   string
	TechnicalPrefix string
	ReceiptsPrefix  string
}

// IntakeOutcome describes what happened to one raw message.
type IntakeOutcome struct {
	Key        string                   `json:"key"`
	Sender     string                   `json:"sender,omitempty"`
	ShipmentID string                   `json:"shipment_id,omitempty"`
	Kind       domain.IntakeErrorKind   `json:"kind,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Result     *domain.ReconcileResult  `json:"result,omitempty"`
	Snapshot   *domain.ShipmentSnapshot `json:"snapshot,omitempty"`
	ReceiptKey string                   `json:"receipt_key,omitempty"`
}

// IntakeService processes raw certificate emails.
type IntakeService interface {
	// ProcessMessage handles the raw message stored at key. Business rejections
	// are answered by email and return a nil error; technical failures return
	// an error after the message has been preserved for investigation. The
	// pending object is always removed once it has been read.
	ProcessMessage(ctx context.Context, key string) (*IntakeOutcome, error)
}

type intakeService struct {
	storage    port.ObjectStorage
	parser     port.MailParser
	whitelist  port.SenderWhitelist
	shipments  port.ShipmentVerifier
	reconciler DocumentReconciler
	notifier   port.Notifier
	secrets    port.SecretStore
	cfg        IntakeConfig
}

// NewIntakeService creates a new IntakeService implementation.
func NewIntakeService(
	storage port.ObjectStorage,
	parser port.MailParser,
	whitelist port.SenderWhitelist,
	shipments port.ShipmentVerifier,
	reconciler DocumentReconciler,
	notifier port.Notifier,
	secretStore port.SecretStore,
	cfg IntakeConfig,
) IntakeService {
	return &intakeService{
		storage:    storage,
		parser:     parser,
		whitelist:  whitelist,
		shipments:  shipments,
		reconciler: reconciler,
		notifier:   notifier,
		secrets:    secretStore,
		cfg:        cfg,
	}
}

func (s *intakeService) ProcessMessage(ctx context.Context, key string) (out *IntakeOutcome, err error) {
	key = s.pendingKey(key)
	out = &IntakeOutcome{Key: key}

	raw, err := s.storage.Download(ctx, s.cfg.Bucket, key)
	if err != nil {
		return out, fmt.Errorf("intake.ProcessMessage: download %s: %w", key, err)
	}
	log.Printf("intake.ProcessMessage: fetched %s (%d bytes)", key, len(raw))

	defer func() {
		if derr := s.storage.Delete(context.WithoutCancel(ctx), s.cfg.Bucket, key); derr != nil {
			log.Printf("intake.ProcessMessage: removing %s failed: %v", key, derr)
			err = errors.Join(err, fmt.Errorf("%w: %s: %v", domain.ErrCleanupFailed, key, derr))
		}
	}()

	msg, perr := s.parser.Parse(raw)
	if perr != nil {
		return out, s.handleFailure(ctx, out, raw, nil, &domain.IntakeError{
			Kind:    domain.KindManualReview,
			Message: manualReviewMessage,
			Err:     perr,
		})
	}
	out.Sender = msg.Sender
	out.ShipmentID = msg.ShipmentID

	if perr := s.process(ctx, out, msg); perr != nil {
		return out, s.handleFailure(ctx, out, raw, msg, perr)
	}
	return out, nil
}

func (s *intakeService) process(ctx context.Context, out *IntakeOutcome, msg *domain.InboundMail) error {
	allowed, err := s.whitelist.Contains(ctx, strings.ToLower(msg.Sender))
	if err != nil {
		return fmt.Errorf("checking whitelist: %w", err)
	}
	if !allowed {
		return &domain.IntakeError{
			Kind:         domain.KindUnknownSender,
			Message:      unknownSenderMessage,
			MessageLocal: unknownSenderMessageLocal,
		}
	}
	log.Printf("intake.process: sender %s is on whitelist", msg.Sender)

	if !msg.Valid {
		return &domain.IntakeError{
			Kind:    domain.KindInvalidInput,
			Message: msg.InvalidReason + " See instructions below.",
		}
	}

	exists, err := s.shipments.Exists(ctx, msg.ShipmentID)
	if err != nil {
		return fmt.Errorf("verifying shipment %s: %w", msg.ShipmentID, err)
	}
	if !exists {
		return &domain.IntakeError{
			Kind: domain.KindInvalidInput,
			Message: fmt.Sprintf("Shipment number provided '%s' cannot be found in the system. Please make sure the shipment number provided is correct.",
				msg.ShipmentID),
		}
	}

	snapshot, err := s.reconciler.Snapshot(ctx, msg.ShipmentID)
	if err != nil {
		return fmt.Errorf("reading shipment %s: %w", msg.ShipmentID, err)
	}
	out.Snapshot = snapshot

	result, err := s.reconciler.Reconcile(ctx, msg.ShipmentID, msg.Attachments)
	out.Result = result
	if err != nil {
		var nameErr *domain.InvalidAttachmentNameError
		if errors.As(err, &nameErr) && result != nil {
			return &domain.IntakeError{
				Kind:    domain.KindInvalidInput,
				Message: "Error(s) occurred when trying to store the document(s): " + strings.Join(result.Errors, "; "),
				Err:     err,
			}
		}
		return err
	}

	out.ReceiptKey = s.storeReceipt(ctx, result)

	from, cc, err := s.receiptAddresses(ctx)
	if err != nil {
		return err
	}
	log.Printf("intake.process: sending receipt with %d document(s) to %s", len(result.Documents), msg.Sender)
	err = s.notifier.Send(ctx, port.Notification{
		Kind: domain.NotifyReceipt,
		From: from,
		To:   []string{msg.Sender},
		Cc:   cc,
		Data: email.ReceiptData{
			ShipmentID: msg.ShipmentID,
			Documents:  result.Documents,
			Existing:   snapshot.Entries,
		},
	})
	if err != nil {
		return fmt.Errorf("sending receipt: %w", err)
	}
	return nil
}

// handleFailure notifies whoever has to act on cause. It returns nil for
// business rejections that were answered and an error for everything else.
func (s *intakeService) handleFailure(ctx context.Context, out *IntakeOutcome, raw []byte, msg *domain.InboundMail, cause error) error {
	kind := domain.KindOf(cause)
	out.Kind = kind

	var ie *domain.IntakeError
	if errors.As(cause, &ie) {
		out.Message = ie.Message
	}

	if kind != domain.KindTechnical {
		log.Printf("intake.ProcessMessage: %s rejected as %s: %v", out.Key, kind, cause)
		nerr := s.notifyRejection(ctx, kind, ie, msg)
		if nerr == nil {
			return nil
		}
		cause = fmt.Errorf("sending %s notification: %w", kind, nerr)
		out.Kind = domain.KindTechnical
	}

	log.Printf("intake.ProcessMessage: technical error for %s: %v", out.Key, cause)
	return errors.Join(cause, s.preserve(ctx, out, raw, cause))
}

func (s *intakeService) notifyRejection(ctx context.Context, kind domain.IntakeErrorKind, ie *domain.IntakeError, msg *domain.InboundMail) error {
	from, err := s.secrets.Get(ctx, secrets.IntakeAddress)
	if err != nil {
		return err
	}

	var subject, sender string
	if msg != nil {
		subject, sender = msg.Subject, msg.Sender
	}

	switch kind {
	case domain.KindUnknownSender, domain.KindInvalidInput:
		if sender == "" {
			return fmt.Errorf("no sender to reply to")
		}
		notifyKind := domain.NotifyInvalidInput
		if kind == domain.KindUnknownSender {
			notifyKind = domain.NotifyUnknownSender
		}
		return s.notifier.Send(ctx, port.Notification{
			Kind: notifyKind,
			From: from,
			To:   []string{sender},
			Data: email.RejectionData{
				OriginalSubject: subject,
				Message:         ie.Message,
				MessageLocal:    ie.MessageLocal,
			},
		})
	case domain.KindManualReview:
		ops, err := s.secrets.Get(ctx, secrets.OpsNotificationAddress)
		if err != nil {
			return err
		}
		data := email.ManualReviewData{OriginalSubject: subject, Sender: sender, Reason: ie.Message}
		if ie.Err != nil {
			data.Reason = fmt.Sprintf("%s (%v)", ie.Message, ie.Err)
		}
		var cc []string
		if msg != nil {
			data.Body = msg.Body
			for _, att := range msg.Attachments {
				data.AttachmentNames = append(data.AttachmentNames, att.Name)
			}
			cc = []string{sender}
		}
		return s.notifier.Send(ctx, port.Notification{
			Kind: domain.NotifyManualReview,
			From: from,
			To:   []string{ops},
			Cc:   cc,
			Data: data,
		})
	default:
		return fmt.Errorf("no notification for kind %s", kind)
	}
}

// preserve copies the raw message to the technical-errors prefix and alerts operations.
func (s *intakeService) preserve(ctx context.Context, out *IntakeOutcome, raw []byte, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error

	technicalKey := s.cfg.TechnicalPrefix + path.Base(out.Key)
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         technicalKey,
		Body:        bytes.NewReader(raw),
		ContentType: "message/rfc822",
		Size:        int64(len(raw)),
	})
	if err != nil {
		log.Printf("intake.preserve: storing %s failed: %v", technicalKey, err)
		errs = append(errs, fmt.Errorf("preserving raw message: %w", err))
	}

	data := email.TechnicalErrorData{Key: out.Key, ShipmentID: out.ShipmentID, Reason: cause.Error()}
	var pbf *domain.PartialBatchFailure
	if errors.As(cause, &pbf) {
		data.Errors = pbf.Errors
		data.Reason = fmt.Sprintf("A technical error occurred when trying to store document '%s'; %d record(s) were rolled back.",
			pbf.AttachmentName, pbf.RolledBack)
	}

	from, ferr := s.secrets.Get(ctx, secrets.IntakeAddress)
	ops, oerr := s.secrets.Get(ctx, secrets.OpsNotificationAddress)
	if err := errors.Join(ferr, oerr); err != nil {
		log.Printf("intake.preserve: cannot alert operations: %v", err)
		return errors.Join(append(errs, err)...)
	}
	err = s.notifier.Send(ctx, port.Notification{
		Kind: domain.NotifyTechnicalError,
		From: from,
		To:   []string{ops},
		Data: data,
	})
	if err != nil {
		log.Printf("intake.preserve: alerting operations failed: %v", err)
		errs = append(errs, fmt.Errorf("alerting operations: %w", err))
	}
	return errors.Join(errs...)
}

// storeReceipt writes the committed batch as CSV. A failure is logged and does
// not affect the outcome.
func (s *intakeService) storeReceipt(ctx context.Context, result *domain.ReconcileResult) string {
	var buf bytes.Buffer
	if err := csvexport.WriteReceipt(&buf, result); err != nil {
		log.Printf("intake.storeReceipt: rendering receipt for batch %s: %v", result.BatchID, err)
		return ""
	}
	key := fmt.Sprintf("%s%s/%s.csv", s.cfg.ReceiptsPrefix, result.ShipmentID, result.BatchID)
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         key,
		Body:        &buf,
		ContentType: "text/csv",
		Size:        int64(buf.Len()),
	})
	if err != nil {
		log.Printf("intake.storeReceipt: uploading %s: %v", key, err)
		return ""
	}
	return key
}

func (s *intakeService) receiptAddresses(ctx context.Context) (from string, cc []string, err error) {
	from, err = s.secrets.Get(ctx, secrets.IntakeAddress)
	if err != nil {
		return "", nil, err
	}
	cct, err := s.secrets.Get(ctx, secrets.CCTNotificationAddress)
	if err != nil {
		return "", nil, err
	}
	return from, []string{cct}, nil
}

func (s *intakeService) pendingKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if strings.HasPrefix(key, s.cfg.PendingPrefix) {
		return key
	}
	return s.cfg.PendingPrefix + path.Base(key)
}
