// Package correlator matches asynchronous per-part radio results to the
// attempt that produced them and forwards exactly one OutcomeEvent per
// accepted attempt.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

const (
	defaultHandledTTL    = 10 * time.Minute
	defaultSweepInterval = 30 * time.Second
)

// ResultHandler consumes correlated outcomes.
type ResultHandler interface {
	OnResult(ctx context.Context, event models.OutcomeEvent)
}

// HandlerFunc adapts a function to ResultHandler.
type HandlerFunc func(ctx context.Context, event models.OutcomeEvent)

// OnResult implements ResultHandler.
func (f HandlerFunc) OnResult(ctx context.Context, event models.OutcomeEvent) { f(ctx, event) }

// Config tunes retention and timeouts.
type Config struct {
	// AttemptTimeout, when positive, turns attempts that never report into
	// a Timeout outcome.
	AttemptTimeout time.Duration
	// HandledTTL bounds how long a completed token keeps rejecting
	// duplicate reports.
	HandledTTL    time.Duration
	SweepInterval time.Duration
}

// Classify maps a platform result code to the outcome taxonomy.
func Classify(code int) (kind models.ResultKind, success bool, reason string) {
	switch code {
	case models.CodeOK:
		return models.ResultDelivered, true, ""
	case models.CodeGenericFailure:
		return models.ResultGenericFailure, false, "Generic failure"
	case models.CodeNoService:
		return models.ResultNoService, false, "No service"
	case models.CodeNullPDU:
		return models.ResultMalformedPayload, false, "Null PDU"
	case models.CodeRadioOff:
		return models.ResultRadioOff, false, "Radio off"
	default:
		return models.ResultUnknown, false, fmt.Sprintf("Unknown error code: %d", code)
	}
}

type pending struct {
	attempt   models.AttemptContext
	remaining int
	since     time.Time
}

// Correlator tracks in-flight tokens and completed-token markers.
type Correlator struct {
	cfg     Config
	handler ResultHandler
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pending
	handled map[string]time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Correlator forwarding to handler.
func New(cfg Config, handler ResultHandler, logger zerolog.Logger) (*Correlator, error) {
	if handler == nil {
		return nil, errors.New("correlator: result handler is required")
	}
	if cfg.AttemptTimeout < 0 {
		return nil, errors.New("correlator: attempt timeout cannot be negative")
	}
	if cfg.HandledTTL <= 0 {
		cfg.HandledTTL = defaultHandledTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Correlator{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]*pending),
		handled: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}, nil
}

// SetClock overrides the time source.
func (c *Correlator) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Register records an attempt that will report parts results under token.
func (c *Correlator) Register(token string, attempt models.AttemptContext, parts int) {
	if parts < 1 {
		parts = 1
	}
	c.mu.Lock()
	c.pending[token] = &pending{attempt: attempt, remaining: parts, since: c.now()}
	c.mu.Unlock()
}

// Withdraw forgets a registration whose transmit was rejected.
func (c *Correlator) Withdraw(token string) {
	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
}

// Pending returns the number of attempts still waiting for results.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OnRawEvent folds one raw part result into its attempt. It returns true
// when the call completed the attempt and an outcome was forwarded; repeated
// or unknown tokens are no-ops.
func (c *Correlator) OnRawEvent(token string, code int) bool {
	return c.HandleRaw(context.Background(), token, code)
}

// HandleRaw is OnRawEvent with a caller supplied context.
func (c *Correlator) HandleRaw(ctx context.Context, token string, code int) bool {
	kind, success, reason := Classify(code)

	c.mu.Lock()
	if _, done := c.handled[token]; done {
		c.mu.Unlock()
		c.logger.Debug().Str("token", token).Int("code", code).Msg("correlator: duplicate result ignored")
		return false
	}
	p, ok := c.pending[token]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn().Str("token", token).Int("code", code).Msg("correlator: result for unknown token dropped")
		return false
	}
	if success {
		p.remaining--
		if p.remaining > 0 {
			c.mu.Unlock()
			return false
		}
	}
	delete(c.pending, token)
	c.handled[token] = c.now().Add(c.cfg.HandledTTL)
	attempt := p.attempt
	c.mu.Unlock()

	event := models.OutcomeEvent{Context: attempt, Kind: kind, Success: success, Reason: reason}
	c.logger.Debug().
		Str("token", token).
		Str("send_id", attempt.SendID).
		Str("channel", attempt.Channel.String()).
		Str("result_kind", string(kind)).
		Msg("correlator: attempt completed")
	c.handler.OnResult(ctx, event)
	return true
}

// Sweep expires handled markers and, when a timeout is configured, completes
// overdue attempts with a Timeout outcome. It returns the number of attempts
// timed out.
func (c *Correlator) Sweep(ctx context.Context) int {
	c.mu.Lock()
	now := c.now()
	for token, expiry := range c.handled {
		if !now.Before(expiry) {
			delete(c.handled, token)
		}
	}

	var expired []models.AttemptContext
	if c.cfg.AttemptTimeout > 0 {
		for token, p := range c.pending {
			if now.Sub(p.since) >= c.cfg.AttemptTimeout {
				expired = append(expired, p.attempt)
				delete(c.pending, token)
				c.handled[token] = now.Add(c.cfg.HandledTTL)
			}
		}
	}
	c.mu.Unlock()

	for _, attempt := range expired {
		c.logger.Warn().
			Str("send_id", attempt.SendID).
			Str("channel", attempt.Channel.String()).
			Int("attempt", attempt.Attempt).
			Dur("timeout", c.cfg.AttemptTimeout).
			Msg("correlator: attempt timed out waiting for result")
		c.handler.OnResult(ctx, models.OutcomeEvent{
			Context: attempt,
			Kind:    models.ResultTimeout,
			Reason:  "Timed out",
		})
	}
	return len(expired)
}

// Start runs the periodic sweeper until Close or ctx cancellation.
func (c *Correlator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.janitor(ctx)
	})
}

// Close stops the sweeper and waits for it to exit.
func (c *Correlator) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return nil
}

func (c *Correlator) janitor(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
