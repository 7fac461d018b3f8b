package sms

import (
	"context"
	"errors"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/example/sms-failover/internal/adapters/common"
	"github.com/example/sms-failover/internal/models"
	smsprovider "github.com/example/sms-failover/internal/providers/sms"
)

// Registrar records attempt contexts so asynchronous results can be matched
// back to them.
type Registrar interface {
	Register(token string, attempt models.AttemptContext, parts int)
	Withdraw(token string)
}

// Option modifies transmitter behaviour.
type Option func(*Transmitter)

// WithTokenFunc overrides correlation token generation (useful for tests).
func WithTokenFunc(fn func() string) Option {
	return func(t *Transmitter) {
		if fn != nil {
			t.newToken = fn
		}
	}
}

// WithDivider overrides how bodies are split into parts.
func WithDivider(fn func(string) []string) Option {
	return func(t *Transmitter) {
		if fn != nil {
			t.divide = fn
		}
	}
}

// Transmitter implements common.Transmitter on top of a Radio.
type Transmitter struct {
	logger    zerolog.Logger
	radio     smsprovider.Radio
	registrar Registrar
	newToken  func() string
	divide    func(string) []string
}

var _ common.Transmitter = (*Transmitter)(nil)

// NewTransmitter constructs an SMS transmitter.
func NewTransmitter(radio smsprovider.Radio, registrar Registrar, logger zerolog.Logger, opts ...Option) (*Transmitter, error) {
	if radio == nil {
		return nil, errors.New("sms transmitter: radio dependency is required")
	}
	if registrar == nil {
		return nil, errors.New("sms transmitter: registrar dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	t := &Transmitter{
		logger:    logger,
		radio:     radio,
		registrar: registrar,
		newToken:  uuid.NewString,
		divide:    Divide,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Send divides the body, registers the attempt for correlation and hands the
// parts to the radio. Every part shares the same token so the correlator can
// fold them into one outcome.
func (t *Transmitter) Send(ctx context.Context, attempt models.AttemptContext) common.Outcome {
	token := t.newToken()
	parts := t.divide(attempt.Body)

	// Registration precedes the radio call: a fast radio may report before
	// TransmitRaw returns.
	t.registrar.Register(token, attempt, len(parts))

	err := t.radio.TransmitRaw(ctx, smsprovider.Submission{
		Token:       token,
		Channel:     attempt.Channel,
		Destination: attempt.Destination,
		Parts:       parts,
	})
	if err != nil {
		t.registrar.Withdraw(token)
		t.logger.Warn().
			Str("send_id", attempt.SendID).
			Str("channel", attempt.Channel.String()).
			Int("attempt", attempt.Attempt).
			Err(common.WrapRejected(err)).
			Msg("sms transmitter: command rejected")
		return common.Rejected
	}

	t.logger.Debug().
		Str("send_id", attempt.SendID).
		Str("channel", attempt.Channel.String()).
		Int("attempt", attempt.Attempt).
		Str("token", token).
		Int("parts", len(parts)).
		Msg("sms transmitter: command accepted")
	return common.Accepted
}
