package ses

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"certintake/internal/email"
	"certintake/internal/port"
)

// API is the subset of the SES v2 client used by the notifier.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesNotifier struct {
	client   API
	fromName string
}

// NewSESNotifier creates a new SES-backed Notifier.
func NewSESNotifier(region, fromName string) (port.Notifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(cfg), fromName), nil
}

// NewWithClient creates a Notifier around an existing SES client.
func NewWithClient(client API, fromName string) port.Notifier {
	return &sesNotifier{client: client, fromName: fromName}
}

func (s *sesNotifier) Send(ctx context.Context, n port.Notification) error {
	if len(n.To) == 0 {
		return fmt.Errorf("ses.Send %s: no recipients", n.Kind)
	}
	rendered, err := email.Render(n)
	if err != nil {
		return err
	}

	from := n.From
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, n.From)
	}

	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: n.To,
			CcAddresses: n.Cc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &rendered.Subject},
				Body: &types.Body{
					Html: &types.Content{Data: &rendered.HTML},
					Text: &types.Content{Data: &rendered.Text},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}
