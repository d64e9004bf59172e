package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/nats-io/nats.go"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each notification as a JSON Event.
type NATS struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

func NewNATS(url, subject string) (*NATS, error) {
	log := logger.Component("notify_nats")
	nc, err := nats.Connect(url,
		nats.Name("polylend"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if subject == "" {
		subject = "polylend.notifications"
	}
	return &NATS{conn: nc, nc: nc, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Notify(_ context.Context, severity Severity, message string) error {
	data, err := json.Marshal(Event{Severity: severity, Message: message, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
