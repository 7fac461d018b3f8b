package sms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	common "github.com/example/sms-failover/internal/adapters/common"
	"github.com/example/sms-failover/internal/models"
)

// Scenario enumerates the behaviours the mock radio can simulate per channel.
type Scenario string

const (
	ScenarioOK             Scenario = "ok"
	ScenarioGenericFailure Scenario = "generic_failure"
	ScenarioNoService      Scenario = "no_service"
	ScenarioNullPDU        Scenario = "null_pdu"
	ScenarioRadioOff       Scenario = "radio_off"
	ScenarioUnknown        Scenario = "unknown"
	// ScenarioSilent accepts the command but never reports a result.
	ScenarioSilent Scenario = "silent"
	// ScenarioReject fails synchronously, as an unavailable channel would.
	ScenarioReject Scenario = "reject"
)

// ParseScenario maps a config string to a Scenario.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	switch sc {
	case ScenarioOK, ScenarioGenericFailure, ScenarioNoService, ScenarioNullPDU,
		ScenarioRadioOff, ScenarioUnknown, ScenarioSilent, ScenarioReject:
		return sc, nil
	case "", "success", "delivered":
		return ScenarioOK, nil
	default:
		return "", fmt.Errorf("sms mock: unknown scenario %q", s)
	}
}

// Code returns the platform result code reported for the scenario.
func (s Scenario) Code() int {
	switch s {
	case ScenarioOK:
		return models.CodeOK
	case ScenarioGenericFailure:
		return models.CodeGenericFailure
	case ScenarioNoService:
		return models.CodeNoService
	case ScenarioNullPDU:
		return models.CodeNullPDU
	case ScenarioRadioOff:
		return models.CodeRadioOff
	default:
		return 99
	}
}

// Option customises the mock radio.
type Option func(*MockRadio)

// WithDefaultScenario sets the behaviour for channels without an explicit
// scenario.
func WithDefaultScenario(s Scenario) Option {
	return func(r *MockRadio) {
		r.defaultScenario = s
	}
}

// WithScenario scripts the behaviour of one channel. Several scenarios for
// the same channel are consumed in order; the last one repeats.
func WithScenario(channel models.ChannelID, s ...Scenario) Option {
	return func(r *MockRadio) {
		r.scripts[channel] = append(r.scripts[channel], s...)
	}
}

// WithLatency configures the delay before results are reported.
func WithLatency(d time.Duration) Option {
	return func(r *MockRadio) {
		if d < 0 {
			d = 0
		}
		r.latency = d
	}
}

// WithConcurrency bounds the number of submissions in flight at once.
func WithConcurrency(n int) Option {
	return func(r *MockRadio) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// WithDuplicateReports makes the radio report every part twice, mimicking
// the platform quirk of redelivering a completion.
func WithDuplicateReports() Option {
	return func(r *MockRadio) {
		r.duplicate = true
	}
}

// WithResultFunc sets the receiver for raw results.
func WithResultFunc(fn ResultFunc) Option {
	return func(r *MockRadio) {
		r.sink = fn
	}
}

// MockRadio is a deterministic, scriptable Radio. Results are reported from
// background goroutines so callers see the same asynchrony as a real
// platform.
type MockRadio struct {
	logger          zerolog.Logger
	defaultScenario Scenario
	latency         time.Duration
	concurrency     int64
	duplicate       bool
	sink            ResultFunc

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu          sync.Mutex
	scripts     map[models.ChannelID][]Scenario
	submissions []Submission
}

// NewMockRadio constructs a mock radio.
func NewMockRadio(logger zerolog.Logger, opts ...Option) *MockRadio {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	r := &MockRadio{
		logger:          logger,
		defaultScenario: ScenarioOK,
		latency:         25 * time.Millisecond,
		concurrency:     8,
		scripts:         make(map[models.ChannelID][]Scenario),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.sem = semaphore.NewWeighted(r.concurrency)
	return r
}

// SetResultFunc replaces the raw result receiver.
func (r *MockRadio) SetResultFunc(fn ResultFunc) {
	r.mu.Lock()
	r.sink = fn
	r.mu.Unlock()
}

// TransmitRaw implements Radio.
func (r *MockRadio) TransmitRaw(ctx context.Context, sub Submission) error {
	if strings.TrimSpace(sub.Token) == "" {
		return errors.New("sms mock: correlation token is required")
	}
	if len(sub.Parts) == 0 {
		return errors.New("sms mock: at least one part is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	scenario := r.nextScenarioLocked(sub.Channel)
	sink := r.sink
	r.submissions = append(r.submissions, cloneSubmission(sub))
	r.mu.Unlock()

	if scenario == ScenarioReject {
		return fmt.Errorf("sms mock: %w", common.Unavailable(sub.Channel))
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("sms mock: acquire delivery slot: %w", err)
	}

	r.logger.Debug().
		Str("token", sub.Token).
		Str("channel", sub.Channel.String()).
		Int("parts", len(sub.Parts)).
		Str("scenario", string(scenario)).
		Msg("sms mock: submission accepted")

	r.wg.Add(1)
	go r.report(sub, scenario, sink)
	return nil
}

func (r *MockRadio) report(sub Submission, scenario Scenario, sink ResultFunc) {
	defer r.wg.Done()

	if r.latency > 0 {
		time.Sleep(r.latency)
	}
	// The slot is freed before reporting: a report may trigger a retry
	// submission that needs a slot of its own.
	r.sem.Release(1)

	if scenario == ScenarioSilent || sink == nil {
		return
	}

	code := scenario.Code()
	for range sub.Parts {
		sink(sub.Token, code)
		if r.duplicate {
			sink(sub.Token, code)
		}
	}
}

func (r *MockRadio) nextScenarioLocked(channel models.ChannelID) Scenario {
	script := r.scripts[channel]
	switch len(script) {
	case 0:
		return r.defaultScenario
	case 1:
		return script[0]
	default:
		r.scripts[channel] = script[1:]
		return script[0]
	}
}

// Submissions returns a copy of every submission seen, accepted or not.
func (r *MockRadio) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, 0, len(r.submissions))
	for _, s := range r.submissions {
		out = append(out, cloneSubmission(s))
	}
	return out
}

// Wait blocks until all pending result reports have been delivered.
func (r *MockRadio) Wait() {
	r.wg.Wait()
}

func cloneSubmission(s Submission) Submission {
	s.Parts = append([]string(nil), s.Parts...)
	return s
}
