package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/internal/notify"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// BuildEmailSender returns the configured confirmation email sender. Missing
// credentials fall back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	fromName := cfg.SendGridFromName
	if fromName == "" {
		fromName = cfg.ClinicName
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  fromName,
		}, logger)
		if sender == nil {
			logger.Warn("SENDGRID_API_KEY not set; confirmation emails are logged only")
			return notify.NewStubEmailSender(logger), nil
		}
		return sender, nil
	case "ses":
		if awsCfg == nil || cfg.SESFromEmail == "" {
			logger.Warn("SES not configured; confirmation emails are logged only")
			return notify.NewStubEmailSender(logger), nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  fromName,
		}, logger), nil
	case "stub", "":
		return notify.NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}
