package app

import (
	"errors"

	"go.uber.org/zap"

	"github.com/rohilsavliya09/smarty-dash/internal/config"
	"github.com/rohilsavliya09/smarty-dash/internal/delivery"
)

// NewSender returns the SMTP sender when a host is configured. Outside
// production it falls back to logging codes.
func NewSender(cfg config.Config, logger *zap.SugaredLogger) (delivery.Sender, error) {
	if cfg.SMTPHost == "" {
		if cfg.Production() {
			return nil, errors.New("no smtp host configured")
		}
		logger.Warnw("SMTP not configured; codes will be written to the log")
		return delivery.NewLogSender(logger), nil
	}
	return delivery.NewSMTPSender(delivery.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
		Timeout:  cfg.DeliveryTimeout,
		CodeTTL:  cfg.CodeTTL,
	}, logger)
}
