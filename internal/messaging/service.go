// Package messaging assembles the channel directory, transmitter, correlator
// and failover coordinator into the single entry point used by callers.
package messaging

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"

	smsadapter "github.com/example/sms-failover/internal/adapters/sms"
	"github.com/example/sms-failover/internal/channels"
	"github.com/example/sms-failover/internal/correlator"
	"github.com/example/sms-failover/internal/failover"
	"github.com/example/sms-failover/internal/logger"
	"github.com/example/sms-failover/internal/models"
	"github.com/example/sms-failover/internal/notify"
	smsprovider "github.com/example/sms-failover/internal/providers/sms"
)

// Config gathers the coordinator and correlator tunables.
type Config struct {
	Failover   failover.Config
	Correlator correlator.Config
}

// Dependencies collects the collaborators of a Service. Radio and Channels
// are required; the rest are optional.
type Dependencies struct {
	Radio    smsprovider.Radio
	Channels channels.Enumerator
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Validate func(destination, body string) error
	// TransmitterOptions customise token generation and body division.
	TransmitterOptions []smsadapter.Option
}

// Service sends messages with single-retry failover and reports each
// attempt outcome to the configured notifier.
type Service struct {
	logger      zerolog.Logger
	correlator  *correlator.Correlator
	coordinator *failover.Coordinator
}

// New wires a Service. Results reported by the radio must be fed back
// through OnRawResult or HandleRawResult.
func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Radio == nil {
		return nil, errors.New("messaging: radio dependency is required")
	}
	if deps.Channels == nil {
		return nil, errors.New("messaging: channel enumerator dependency is required")
	}
	log := deps.Logger
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}

	s := &Service{logger: logger.Component(log, "messaging")}

	// The coordinator and correlator reference each other; the correlator
	// forwards through the service once the coordinator exists.
	corr, err := correlator.New(cfg.Correlator, correlator.HandlerFunc(s.onOutcome), logger.Component(log, "correlator"))
	if err != nil {
		return nil, err
	}

	tx, err := smsadapter.NewTransmitter(deps.Radio, corr, logger.Component(log, "sms-transmitter"), deps.TransmitterOptions...)
	if err != nil {
		return nil, err
	}

	coord, err := failover.New(cfg.Failover, failover.Dependencies{
		Enumerator:  deps.Channels,
		Transmitter: tx,
		Notifier:    deps.Notifier,
		Logger:      logger.Component(log, "failover"),
		Validate:    deps.Validate,
	})
	if err != nil {
		return nil, err
	}

	s.correlator = corr
	s.coordinator = coord
	return s, nil
}

func (s *Service) onOutcome(ctx context.Context, event models.OutcomeEvent) {
	s.coordinator.OnResult(ctx, event)
}

// SendMessage dispatches body to destination. It returns true when at least
// one channel accepted the command; delivery is reported asynchronously.
// The call blocks for the inter-attempt delay on multi-channel devices.
func (s *Service) SendMessage(ctx context.Context, destination, body string) bool {
	return s.coordinator.Send(ctx, destination, body)
}

// Dispatch is SendMessage that also returns the assigned send id.
func (s *Service) Dispatch(ctx context.Context, destination, body string) (string, bool) {
	return s.coordinator.Dispatch(ctx, destination, body)
}

// OnRawResult accepts one per-part platform result. It matches
// smsprovider.ResultFunc so it can be handed to a radio directly.
func (s *Service) OnRawResult(token string, code int) {
	s.correlator.OnRawEvent(token, code)
}

// HandleRawResult is OnRawResult for results delivered over a transport.
func (s *Service) HandleRawResult(ctx context.Context, token string, code int) bool {
	return s.correlator.HandleRaw(ctx, token, code)
}

// RetryPending reports whether a failover retry is in flight for sendID.
func (s *Service) RetryPending(sendID string) bool {
	return s.coordinator.RetryPending(sendID)
}

// ActiveSends returns the number of sends still awaiting a terminal outcome.
func (s *Service) ActiveSends() int {
	return s.coordinator.ActiveSends()
}

// PendingAttempts returns the number of accepted attempts awaiting results.
func (s *Service) PendingAttempts() int {
	return s.correlator.Pending()
}

// Sweep runs one correlator maintenance pass.
func (s *Service) Sweep(ctx context.Context) int {
	return s.correlator.Sweep(ctx)
}

// Start launches background maintenance.
func (s *Service) Start(ctx context.Context) {
	s.correlator.Start(ctx)
	s.logger.Info().Msg("messaging service started")
}

// Close stops background maintenance.
func (s *Service) Close() error {
	return s.correlator.Close()
}
