package email

import "qrcard_backend/pkg/config"

// GlobalEmailService is nil when no Resend key is configured; callers check
// before sending.
var GlobalEmailService *EmailService

func InitEmailService(cfg config.EmailConfig, clientBaseURL string) error {
	service, err := NewEmailService(cfg.ResendAPIKey, cfg.From, clientBaseURL)
	if err != nil {
		return err
	}
	GlobalEmailService = service
	return nil
}
