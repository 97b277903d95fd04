// Package notify delivers new-match notifications to operator channels.
//
// Delivery is best effort: a failing channel is logged and counted, and never
// stops the scan or prevents state from being saved.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// Message is one notification about new matches for a single identifier.
type Message struct {
	RunID      string
	Identifier string
	Subject    string
	Body       string
	Hits       []seen.NewHit
	DetectedAt time.Time
}

// Notifier is a single delivery channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Fanout sends each message to every configured channel in order.
type Fanout struct {
	channels []Notifier
	timeout  time.Duration
	logger   *zap.Logger

	// OnResult, when set, is called after every delivery attempt.
	OnResult func(channel string, err error)
}

// NewFanout builds a Fanout. A zero timeout disables the per-channel deadline.
func NewFanout(channels []Notifier, timeout time.Duration, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{channels: channels, timeout: timeout, logger: logger}
}

// Channels lists the names of the configured channels.
func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.channels))
	for _, ch := range f.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify delivers msg to all channels and returns how many failed.
func (f *Fanout) Notify(ctx context.Context, msg Message) int {
	failures := 0
	for _, ch := range f.channels {
		err := f.deliver(ctx, ch, msg)
		if f.OnResult != nil {
			f.OnResult(ch.Name(), err)
		}
		if err != nil {
			failures++
			f.logger.Warn("notification failed",
				zap.String("channel", ch.Name()),
				zap.String("identifier", msg.Identifier),
				zap.Error(err),
			)
			continue
		}
		f.logger.Debug("notification sent",
			zap.String("channel", ch.Name()),
			zap.String("identifier", msg.Identifier),
		)
	}
	return failures
}

func (f *Fanout) deliver(ctx context.Context, ch Notifier, msg Message) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return ch.Notify(ctx, msg)
}
