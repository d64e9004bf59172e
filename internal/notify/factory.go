package notify

import (
	"errors"
	"io"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
)

// FromConfig builds the configured sinks behind a Safe wrapper. The log sink
// is always present. The returned closer releases bus connections.
func FromConfig(cfg config.NotifyConfig) (Sink, io.Closer, error) {
	sinks := Multi{NewLogSink(nil)}
	var closers closeAll

	if cfg.Webhook.URL != "" {
		sinks = append(sinks, NewWebhook(cfg.Webhook.URL))
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID))
	}
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		d, err := NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, d)
	}
	if cfg.NATS.URL != "" {
		n, err := NewNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			// The bus may come up later; keep running without it.
			logger.Warn("NATS notifications disabled", "error", err)
		} else {
			sinks = append(sinks, n)
			closers = append(closers, n)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k := NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, k)
		closers = append(closers, k)
	}

	logger.Info("notification sinks ready", "sinks", sinks.Name())
	return NewSafe(sinks), closers, nil
}

type closeAll []io.Closer

func (c closeAll) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
