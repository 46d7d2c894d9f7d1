// internal/channels/email.go
package channels

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"ezlab-notifier/internal/common/config"
	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"
	"ezlab-notifier/internal/models"
)

// SESAPI is the slice of the SES client the email sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender delivers a rendered subject/HTML pair to one address. Any
// transport failure propagates as retryable so the queue backs off and
// tries again; there is no token pruning on this channel.
type EmailSender struct {
	client SESAPI
	cfg    config.EmailConfig
	log    logger.Logger
}

func NewEmailSender(client SESAPI, cfg config.EmailConfig, log logger.Logger) *EmailSender {
	return &EmailSender{
		client: client,
		cfg:    cfg,
		log:    log.WithFields(map[string]interface{}{"component": "email-sender"}),
	}
}

func (s *EmailSender) Send(ctx context.Context, to, subject, html string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.cfg.FromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(html),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return apperrors.NewChannelSendFailedError(string(models.ChannelEmail), err)
	}

	s.log.Debug("email accepted", map[string]interface{}{
		"to":        to,
		"messageId": aws.ToString(out.MessageId),
	})
	metrics.NotificationsDelivered.WithLabelValues(string(models.ChannelEmail)).Inc()
	return nil
}
