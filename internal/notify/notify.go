// Package notify delivers rendered form submissions to the configured
// channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Kinds of notification.
const (
	KindContact      = "contact"
	KindRegistration = "registration"
)

// ErrSkipped is returned by sinks that do not handle a notification.
var ErrSkipped = errors.New("notify: not applicable")

// Notification is one submission, rendered for every channel.
type Notification struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	// HTML is the email body.
	HTML string `json:"html"`
	// Telegram is the chat text in Telegram's HTML subset.
	Telegram string `json:"telegram"`
	ReplyTo  string `json:"replyTo,omitempty"`
	// Payload is the sanitized record forwarded to machine consumers.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sink is a delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Report lists what happened to one notification.
type Report struct {
	Delivered []string
	Skipped   []string
	Failed    map[string]error
}

// Any reports whether at least one sink delivered.
func (r Report) Any() bool { return len(r.Delivered) > 0 }

// Outcome labels passed to observers.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Dispatcher fans a notification out to every sink in parallel. A failing
// sink never cancels the others.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	observe func(sink, outcome string)
}

// NewDispatcher returns a dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// OnOutcome registers a callback for every sink result.
func (d *Dispatcher) OnOutcome(fn func(sink, outcome string)) {
	d.observe = fn
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch sends n to every sink and waits for all of them.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Report {
	report := Report{Failed: make(map[string]error)}
	if len(d.sinks) == 0 {
		d.logger.Error("no notification sinks configured", slog.String("kind", n.Kind))
		return report
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, sink := range d.sinks {
		g.Go(func() error {
			err := sink.Send(ctx, n)
			outcome := OutcomeDelivered

			mu.Lock()
			switch {
			case errors.Is(err, ErrSkipped):
				report.Skipped = append(report.Skipped, sink.Name())
				outcome = OutcomeSkipped
			case err != nil:
				report.Failed[sink.Name()] = err
				outcome = OutcomeFailed
			default:
				report.Delivered = append(report.Delivered, sink.Name())
			}
			mu.Unlock()

			if err != nil && outcome == OutcomeFailed {
				d.logger.Error("notification delivery failed",
					slog.String("sink", sink.Name()),
					slog.String("kind", n.Kind),
					slog.Any("error", err))
			}
			if d.observe != nil {
				d.observe(sink.Name(), outcome)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}
