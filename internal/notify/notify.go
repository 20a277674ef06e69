// Package notify announces finished publication runs to other systems.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/relpub/internal/config"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/publish"
)

// publishTimeout bounds a single JetStream publish.
const publishTimeout = 5 * time.Second

// Notifier receives the result of every publish run.
type Notifier interface {
	Notify(ctx context.Context, res *publish.Result) error
	Close() error
}

// NoopNotifier discards results.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, *publish.Result) error { return nil }
func (NoopNotifier) Close() error { return nil }

// Event is the message body published per run.
type Event struct {
	Type      string          `json:"type"`
	Succeeded bool            `json:"succeeded"`
	Timestamp time.Time       `json:"timestamp"`
	Result    *publish.Result `json:"result"`
}

// EventType is the Event.Type of a finished run.
const EventType = "relpub.run.finished"

// publisher is the subset of jetstream.JetStream used here.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSNotifier publishes each result as JSON to a JetStream subject.
type NATSNotifier struct {
	conn    *nats.Conn
	js      publisher
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// NewNATSNotifier connects to the configured server.
func NewNATSNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*NATSNotifier, error) {
	if !cfg.Enabled() {
		return nil, ferrors.ConfigError("notifications are disabled").
			WithHint("set notify.nats_url").
			Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("relpub"))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).
			Build()
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to create JetStream context").Build()
	}

	logger.Debug("NATS notifier initialized", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject))
	return &NATSNotifier{conn: conn, js: js, subject: cfg.Subject, logger: logger, now: time.Now}, nil
}

// Notify publishes res. The run outcome is never changed by a failed
// notification; callers log the error.
func (n *NATSNotifier) Notify(ctx context.Context, res *publish.Result) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(Event{
		Type:      EventType,
		Succeeded: res.Succeeded(),
		Timestamp: n.now(),
		Result:    res,
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal run event").Build()
	}

	if _, err := n.js.Publish(ctx, n.subject, data, jetstream.WithMsgID(res.RunID)); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish run event").
			WithContext("subject", n.subject).
			Build()
	}
	n.logger.Debug("Published run event", logfields.RunID(res.RunID), slog.String("subject", n.subject))
	return nil
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

// New returns a NATSNotifier when notifications are configured and a
// NoopNotifier otherwise.
func New(cfg config.NotifyConfig, logger *slog.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return NoopNotifier{}, nil
	}
	n, err := NewNATSNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}
