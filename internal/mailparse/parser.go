// Package mailparse extracts sender, shipment number and certificate
// attachments from raw RFC 5322 messages.
package mailparse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// ErrUnreadable is returned when a message cannot be decoded at all.
var ErrUnreadable = errors.New("message could not be decoded")

var shipmentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// maxDepth bounds nested multipart recursion.
const maxDepth = 8

type parser struct {
	decoder *mime.WordDecoder
}

// NewParser creates a MailParser for certificate emails.
func NewParser() port.MailParser {
	return &parser{decoder: &mime.WordDecoder{CharsetReader: charsetReader}}
}

// charsetReader decodes text in legacy charsets such as windows-1252 or
// iso-8859-2 into UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// Parse decodes raw. Structural problems a sender can fix are reported through
// InboundMail.Valid; an error is returned only when the message is unreadable.
func (p *parser) Parse(raw []byte) (*domain.InboundMail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	from, err := msg.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, fmt.Errorf("%w: missing or malformed From header", ErrUnreadable)
	}

	subject, err := p.decoder.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}

	out := &domain.InboundMail{
		Sender:  from[0].Address,
		Subject: subject,
	}

	var parts collected
	if err := p.walk(msg.Header, msg.Body, &parts, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	out.Body = parts.body
	out.Attachments = parts.attachments

	out.ShipmentID, out.InvalidReason = validate(subject, parts.attachments)
	out.Valid = out.InvalidReason == ""
	return out, nil
}

type collected struct {
	body        string
	attachments []domain.Attachment
}

// header is satisfied by both mail.Header and textproto.MIMEHeader.
type header interface {
	Get(key string) string
}

func (p *parser) walk(h header, body io.Reader, out *collected, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("multipart nesting exceeds %d levels", maxDepth)
	}

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		// RFC 2045 default for a missing or unparsable type.
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart body without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading part: %w", err)
			}
			if err := p.walk(part.Header, part, out, depth+1); err != nil {
				return err
			}
		}
	}

	data, err := decodeBody(h.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return err
	}

	if name := p.filename(h, params); name != "" {
		out.attachments = append(out.attachments, domain.Attachment{Name: name, Payload: data})
		return nil
	}
	if mediaType == "text/plain" && out.body == "" {
		out.body = strings.TrimSpace(toUTF8(params["charset"], data))
	}
	return nil
}

func (p *parser) filename(h header, typeParams map[string]string) string {
	var name string
	if _, dispParams, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		name = dispParams["filename"]
	}
	if name == "" {
		name = typeParams["name"]
	}
	if decoded, err := p.decoder.DecodeHeader(name); err == nil {
		name = decoded
	}
	// NFC keeps the certificate reference stable across mail clients.
	return norm.NFC.String(strings.TrimSpace(name))
}

func toUTF8(charset string, data []byte) string {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return string(data)
	}
	r, err := charsetReader(cs, bytes.NewReader(data))
	if err != nil {
		return string(data)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		data, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, newlineStripper{body}))
		if err != nil {
			return nil, fmt.Errorf("decoding base64 part: %w", err)
		}
		return data, nil
	case "quoted-printable":
		data, err := io.ReadAll(quotedprintable.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decoding quoted-printable part: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("reading part: %w", err)
		}
		return data, nil
	}
}

// newlineStripper drops CR and LF so line-wrapped base64 decodes cleanly.
type newlineStripper struct {
	r io.Reader
}

func (s newlineStripper) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	j := 0
	for _, b := range p[:n] {
		if b != '\r' && b != '\n' {
			p[j] = b
			j++
		}
	}
	return j, err
}

// validate returns the shipment number, or a reason the sender must fix the email.
func validate(subject string, attachments []domain.Attachment) (string, string) {
	shipmentID := strings.TrimSpace(subject)
	if shipmentID == "" {
		return "", "The subject is empty. The subject must contain only the shipment number."
	}
	if !shipmentPattern.MatchString(shipmentID) {
		return "", fmt.Sprintf("The subject '%s' is not a valid shipment number. The subject must contain only the shipment number.", shipmentID)
	}
	if len(attachments) == 0 {
		return shipmentID, "No attachments were found in the email."
	}

	var unsupported []string
	for _, att := range attachments {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(att.Name), "."))
		if _, ok := domain.AllowedExtensions[ext]; !ok {
			unsupported = append(unsupported, att.Name)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return shipmentID, fmt.Sprintf("Attachment(s) with an unsupported file type: %s. Accepted file types are pdf, jpg, jpeg and png.",
			strings.Join(unsupported, ", "))
	}
	return shipmentID, ""
}
