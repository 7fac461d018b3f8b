package failover

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/example/sms-failover/internal/adapters/common"
	"github.com/example/sms-failover/internal/channels"
	"github.com/example/sms-failover/internal/models"
	"github.com/example/sms-failover/internal/notify"
)

// DefaultInterAttemptDelay separates the proactive sends on a dual-channel
// device so both submissions do not hit the network at once.
const DefaultInterAttemptDelay = 8 * time.Second

// Config contains the tunables of the coordinator.
type Config struct {
	// InterAttemptDelay is waited between the primary and secondary
	// proactive sends. Zero sends back to back.
	InterAttemptDelay time.Duration
}

// Dependencies collects the collaborators required by the coordinator.
type Dependencies struct {
	Enumerator  channels.Enumerator
	Transmitter common.Transmitter
	Notifier    notify.Notifier
	Logger      zerolog.Logger
	// Validate adds request checks beyond the mandatory presence check.
	Validate  func(destination, body string) error
	Now       func() time.Time
	NewSendID func() string
}

// sendState is the retry bookkeeping for one logical send.
type sendState struct {
	mu sync.Mutex
	// dispatching is true while Send is still issuing initial attempts.
	dispatching bool
	outstanding int
	// retrying is the per-send retry guard.
	retrying bool
}

// Coordinator dispatches a message across the available channels and
// decides, on every attempt outcome, whether a single failover retry is due.
type Coordinator struct {
	cfg         Config
	enumerator  channels.Enumerator
	transmitter common.Transmitter
	notifier    notify.Notifier
	logger      zerolog.Logger
	validate    func(destination, body string) error
	now         func() time.Time
	newSendID   func() string

	policies []policy

	mu    sync.Mutex
	sends map[string]*sendState
}

// New constructs a coordinator. Configuration and dependencies are
// validated up front.
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if cfg.InterAttemptDelay < 0 {
		return nil, errors.New("failover: inter-attempt delay cannot be negative")
	}
	if deps.Enumerator == nil {
		return nil, errors.New("failover: enumerator dependency is required")
	}
	if deps.Transmitter == nil {
		return nil, errors.New("failover: transmitter dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newSendID := deps.NewSendID
	if newSendID == nil {
		newSendID = uuid.NewString
	}

	c := &Coordinator{
		cfg:         cfg,
		enumerator:  deps.Enumerator,
		transmitter: deps.Transmitter,
		notifier:    notifier,
		logger:      logger,
		validate:    deps.Validate,
		now:         now,
		newSendID:   newSendID,
		sends:       make(map[string]*sendState),
	}
	c.policies = []policy{
		{name: "enumerated_channels", dispatch: c.tryEnumeratedChannels},
		{name: "default_channel", dispatch: c.tryDefaultChannel},
	}
	return c, nil
}

// Send dispatches one logical send and reports whether at least one channel
// accepted the command. Acceptance is not delivery; outcomes arrive later
// through the notifier.
func (c *Coordinator) Send(ctx context.Context, destination, body string) bool {
	_, ok := c.Dispatch(ctx, destination, body)
	return ok
}

// Dispatch is Send that also returns the id assigned to the logical send.
// The id is empty when the request was invalid.
func (c *Coordinator) Dispatch(ctx context.Context, destination, body string) (string, bool) {
	if err := c.checkRequest(destination, body); err != nil {
		c.logger.Warn().Err(err).Msg("failover: send request refused")
		return "", false
	}

	req := models.SendRequest{SendID: c.newSendID(), Destination: destination, Body: body}
	st := c.begin(req.SendID)
	defer c.endDispatch(req.SendID, st)

	log := c.logger.With().Str("send_id", req.SendID).Logger()

	for _, p := range c.policies {
		outcome := p.dispatch(ctx, req)
		log.Debug().Str("policy", p.name).Str("outcome", outcome.String()).Msg("failover: dispatch policy evaluated")
		if outcome == common.Accepted {
			return req.SendID, true
		}
	}

	log.Error().Msg("failover: every channel rejected the send command")
	return req.SendID, false
}

func (c *Coordinator) checkRequest(destination, body string) error {
	if strings.TrimSpace(destination) == "" || strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: destination and body are required", ErrInvalidRequest)
	}
	if c.validate != nil {
		if err := c.validate(destination, body); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return nil
}

// attempt hands one attempt to the transmitter, keeping the outstanding
// count of the send in step with what the transmitter accepted.
func (c *Coordinator) attempt(ctx context.Context, st *sendState, a models.AttemptContext) common.Outcome {
	st.mu.Lock()
	st.outstanding++
	st.mu.Unlock()

	outcome := c.transmitter.Send(ctx, a)

	level := zerolog.InfoLevel
	if outcome != common.Accepted {
		level = zerolog.WarnLevel
		st.mu.Lock()
		st.outstanding--
		st.mu.Unlock()
	}
	c.logger.WithLevel(level).
		Str("send_id", a.SendID).
		Str("channel", a.Channel.String()).
		Int("attempt", a.Attempt).
		Str("outcome", outcome.String()).
		Msg("failover: attempt dispatched")
	return outcome
}

// OnResult consumes the outcome of one accepted attempt. It may be called
// concurrently and in any order relative to the attempts of the same send.
func (c *Coordinator) OnResult(ctx context.Context, event models.OutcomeEvent) {
	a := event.Context
	st := c.lookup(a.SendID)
	defer c.finish(a.SendID, st)

	c.notify(ctx, event)

	log := c.logger.With().
		Str("send_id", a.SendID).
		Str("channel", a.Channel.String()).
		Int("attempt", a.Attempt).
		Str("result_kind", string(event.Kind)).
		Logger()

	st.mu.Lock()
	if st.outstanding > 0 {
		st.outstanding--
	}

	if event.Success {
		if a.IsRetry() {
			st.retrying = false
		}
		st.mu.Unlock()
		log.Info().Msg("failover: attempt delivered")
		return
	}

	if a.IsRetry() {
		st.retrying = false
		st.mu.Unlock()
		log.Error().Str("reason", event.Reason).Msg("failover: retry attempt failed; giving up")
		return
	}
	if a.Destination == "" || a.Body == "" {
		st.mu.Unlock()
		log.Error().Msg("failover: failed attempt carries no request; cannot retry")
		return
	}
	if st.retrying {
		st.mu.Unlock()
		log.Info().Msg("failover: retry already in flight for this send")
		return
	}
	// Claim the guard and reserve the retry attempt in one step so two
	// concurrent failures cannot both retry.
	st.retrying = true
	st.outstanding++
	st.mu.Unlock()

	alt, ok := c.alternate(ctx, a)
	if !ok {
		c.release(st)
		log.Error().Err(ErrNoAlternateChannel).Msg("failover: giving up")
		return
	}

	retry := models.AttemptContext{
		SendID:      a.SendID,
		Destination: a.Destination,
		Body:        a.Body,
		Channel:     alt,
		Attempt:     models.AttemptRetry,
		Origin:      a.Channel,
	}
	log.Info().Str("alternate", alt.String()).Msg("failover: retrying on alternate channel")

	if outcome := c.transmitter.Send(ctx, retry); outcome != common.Accepted {
		c.release(st)
		log.Error().Str("alternate", alt.String()).Msg("failover: retry command rejected; giving up")
	}
}

// alternate picks the first channel that is neither the failing channel nor
// the channel the failing attempt originated from.
func (c *Coordinator) alternate(ctx context.Context, failed models.AttemptContext) (models.ChannelID, bool) {
	for _, id := range c.enumerator.ListChannels(ctx) {
		if id != failed.Channel && id != failed.Origin {
			return id, true
		}
	}
	return models.DefaultChannel, false
}

// release undoes a retry claim whose attempt never got accepted.
func (c *Coordinator) release(st *sendState) {
	st.mu.Lock()
	st.retrying = false
	if st.outstanding > 0 {
		st.outstanding--
	}
	st.mu.Unlock()
}

func (c *Coordinator) notify(ctx context.Context, event models.OutcomeEvent) {
	status := models.StatusEvent{
		SendID:      event.Context.SendID,
		Success:     event.Success,
		Destination: event.Context.Destination,
		ChannelID:   event.Context.Channel.Ptr(),
		IsRetry:     event.Context.IsRetry(),
		Kind:        event.Kind,
		Timestamp:   c.now(),
	}
	if !event.Success {
		status.ErrorReason = event.Reason
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("send_id", status.SendID).Msg("failover: notifier panicked")
		}
	}()
	if err := c.notifier.Notify(ctx, status); err != nil {
		c.logger.Error().Err(err).Str("send_id", status.SendID).Msg("failover: failed to deliver status")
	}
}

func (c *Coordinator) begin(sendID string) *sendState {
	st := &sendState{dispatching: true}
	c.mu.Lock()
	c.sends[sendID] = st
	c.mu.Unlock()
	return st
}

func (c *Coordinator) endDispatch(sendID string, st *sendState) {
	st.mu.Lock()
	st.dispatching = false
	st.mu.Unlock()
	c.finish(sendID, st)
}

// lookup returns the state of a send, creating a clear one for sends this
// coordinator did not start.
func (c *Coordinator) lookup(sendID string) *sendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sends[sendID]
	if !ok {
		st = &sendState{}
		c.sends[sendID] = st
	}
	return st
}

// finish drops the state of a send that reached a terminal state.
func (c *Coordinator) finish(sendID string, st *sendState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.dispatching || st.outstanding > 0 || st.retrying {
		return
	}
	if c.sends[sendID] == st {
		delete(c.sends, sendID)
	}
}

// RetryPending reports whether a retry is in flight for the send.
func (c *Coordinator) RetryPending(sendID string) bool {
	c.mu.Lock()
	st, ok := c.sends[sendID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.retrying
}

// ActiveSends returns the number of sends that have not reached a terminal
// state.
func (c *Coordinator) ActiveSends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}
