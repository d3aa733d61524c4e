package app

import (
	"errors"
	"log/slog"

	"github.com/lako-services/lako-web/internal/notify"
	"github.com/lako-services/lako-web/internal/observability"
)

// Notifiers is the inline delivery pipeline built from configuration.
type Notifiers struct {
	Dispatcher *notify.Dispatcher
	closers    []func() error
}

// Close releases sink resources.
func (n *Notifiers) Close() error {
	var errs []error
	for _, c := range n.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewNotifiers builds the configured sinks. Channels without credentials are
// left out.
func NewNotifiers(cfg *Config, logger *slog.Logger, metrics *observability.Metrics) *Notifiers {
	if logger == nil {
		logger = slog.Default()
	}
	client := notify.NewHTTPClient(notify.HTTPConfig{Timeout: cfg.NotifyTimeout, RetryMax: cfg.NotifyRetryMax})
	out := &Notifiers{}

	var sinks []notify.Sink
	if cfg.ResendAPIKey != "" {
		sinks = append(sinks, notify.NewResendSink(client, "", cfg.ResendAPIKey, cfg.MailFrom, cfg.MailTo))
	} else {
		logger.Warn("RESEND_API_KEY not set, email notifications disabled")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notify.NewTelegramSink(client, "", cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.RegistrationSecret != "" {
		sinks = append(sinks, notify.NewRegistrySink(client, cfg.RegistrationAPIURL, cfg.RegistrationSecret))
	}
	if cfg.SMTPHost != "" {
		sinks = append(sinks, notify.NewSMTPSink(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: "Lako Services",
			To:       []string{cfg.MailTo},
		}))
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewKafkaWriter(logger, cfg.KafkaBrokers)
		out.closers = append(out.closers, writer.Close)
		sinks = append(sinks, notify.NewKafkaSink(writer, cfg.KafkaRegistrationTopic))
	}

	out.Dispatcher = notify.NewDispatcher(logger, sinks...)
	if metrics != nil {
		out.Dispatcher.OnOutcome(metrics.ObserveNotification)
	}
	logger.Info("notification sinks", slog.Any("sinks", out.Dispatcher.Sinks()))
	return out
}
