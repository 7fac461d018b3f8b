// Package notify delivers attempt outcomes to the initiating layer. A
// Notifier is a pure output sink.
package notify

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

// Notifier receives one StatusEvent per observed attempt outcome.
type Notifier interface {
	Notify(ctx context.Context, event models.StatusEvent) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event models.StatusEvent) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, event models.StatusEvent) error { return f(ctx, event) }

// Nop discards every event.
var Nop Notifier = Func(func(context.Context, models.StatusEvent) error { return nil })

// Multi fans an event out to every sink. All sinks are invoked even when
// some fail; the errors are joined.
func Multi(sinks ...Notifier) Notifier {
	out := make([]Notifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multi(out)
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, event models.StatusEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a zerolog logger.
func Log(logger zerolog.Logger) Notifier {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return Func(func(_ context.Context, e models.StatusEvent) error {
		level := zerolog.InfoLevel
		if !e.Success {
			level = zerolog.WarnLevel
		}
		evt := logger.WithLevel(level)
		if e.ErrorReason != "" {
			evt = evt.Str("error_reason", e.ErrorReason)
		}
		if e.ChannelID != nil {
			evt = evt.Int("channel", *e.ChannelID)
		}
		evt.Str("send_id", e.SendID).
			Str("destination", e.Destination).
			Bool("success", e.Success).
			Bool("is_retry", e.IsRetry).
			Str("result_kind", string(e.Kind)).
			Msg("sms status")
		return nil
	})
}
