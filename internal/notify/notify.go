// Package notify delivers operator notifications. Delivery is best effort:
// the engine never fails because a message could not be sent.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
)

type Severity string

const (
	Info     Severity = "INFO"
	Warning  Severity = "WARNING"
	Critical Severity = "CRITICAL"
)

// Sink delivers one message.
type Sink interface {
	Name() string
	Notify(ctx context.Context, severity Severity, message string) error
}

// Event is the structured form published on message buses.
type Event struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Multi fans out to every sink and joins the errors.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, severity Severity, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, severity, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Safe wraps a sink so failures are logged and counted, never returned.
type Safe struct {
	sink    Sink
	timeout time.Duration
	log     *slog.Logger
}

func NewSafe(sink Sink) *Safe {
	return &Safe{sink: sink, timeout: 10 * time.Second, log: logger.Component("notify")}
}

func (s *Safe) Name() string { return s.sink.Name() }

func (s *Safe) Notify(ctx context.Context, severity Severity, message string) error {
	// Shutdown notifications are sent after the root context is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.sink.Notify(ctx, severity, message); err != nil {
		metrics.NotificationFailures.WithLabelValues(s.sink.Name()).Inc()
		s.log.Warn("notification delivery failed", "sink", s.sink.Name(), "severity", severity, "error", err)
	}
	return nil
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = logger.Component("notify")
	}
	return &LogSink{log: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(ctx context.Context, severity Severity, message string) error {
	level := slog.LevelInfo
	switch severity {
	case Warning:
		level = slog.LevelWarn
	case Critical:
		level = slog.LevelError
	}
	s.log.Log(ctx, level, message, "severity", severity)
	return nil
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Notify(_ context.Context, severity Severity, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Severity: severity, Message: message, Timestamp: time.Now().UTC()})
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many notifications of severity were recorded.
func (r *Recorder) Count(severity Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
