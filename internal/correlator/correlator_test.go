package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

type outcomeCollector struct {
	mu     sync.Mutex
	events []models.OutcomeEvent
}

func (c *outcomeCollector) OnResult(_ context.Context, event models.OutcomeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *outcomeCollector) all() []models.OutcomeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OutcomeEvent(nil), c.events...)
}

func newCorrelator(t *testing.T, cfg Config) (*Correlator, *outcomeCollector) {
	t.Helper()
	sink := &outcomeCollector{}
	c, err := New(cfg, sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected correlator error: %v", err)
	}
	return c, sink
}

var testAttempt = models.AttemptContext{
	SendID:      "send-1",
	Destination: "+15550100",
	Body:        "hello",
	Channel:     1,
	Attempt:     models.AttemptInitial,
	Origin:      models.DefaultChannel,
}

func TestClassify(t *testing.T) {
	cases := []struct {
		code    int
		kind    models.ResultKind
		success bool
		reason  string
	}{
		{models.CodeOK, models.ResultDelivered, true, ""},
		{models.CodeGenericFailure, models.ResultGenericFailure, false, "Generic failure"},
		{models.CodeNoService, models.ResultNoService, false, "No service"},
		{models.CodeNullPDU, models.ResultMalformedPayload, false, "Null PDU"},
		{models.CodeRadioOff, models.ResultRadioOff, false, "Radio off"},
		{42, models.ResultUnknown, false, "Unknown error code: 42"},
	}
	for _, tc := range cases {
		kind, success, reason := Classify(tc.code)
		if kind != tc.kind || success != tc.success || reason != tc.reason {
			t.Fatalf("Classify(%d) = %s/%v/%q, want %s/%v/%q", tc.code, kind, success, reason, tc.kind, tc.success, tc.reason)
		}
	}
}

func TestDuplicateReportsForwardOnce(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	c.Register("tok", testAttempt, 1)

	if !c.OnRawEvent("tok", models.CodeOK) {
		t.Fatalf("expected first report to complete the attempt")
	}
	if c.OnRawEvent("tok", models.CodeOK) {
		t.Fatalf("expected duplicate report to be ignored")
	}
	if c.OnRawEvent("tok", models.CodeNoService) {
		t.Fatalf("expected late failure report to be ignored")
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected one outcome, got %d", len(events))
	}
	if !events[0].Success || events[0].Context != testAttempt {
		t.Fatalf("unexpected outcome %+v", events[0])
	}
}

func TestConcurrentDuplicatesForwardOnce(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	c.Register("tok", testAttempt, 1)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnRawEvent("tok", models.CodeGenericFailure)
		}()
	}
	wg.Wait()

	if got := len(sink.all()); got != 1 {
		t.Fatalf("expected one outcome, got %d", got)
	}
}

func TestMultipartWaitsForEveryPart(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	c.Register("tok", testAttempt, 3)

	c.OnRawEvent("tok", models.CodeOK)
	c.OnRawEvent("tok", models.CodeOK)
	if len(sink.all()) != 0 {
		t.Fatalf("expected no outcome before the last part")
	}
	c.OnRawEvent("tok", models.CodeOK)

	events := sink.all()
	if len(events) != 1 || !events[0].Success {
		t.Fatalf("expected one delivered outcome, got %+v", events)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending attempts")
	}
}

func TestMultipartFirstFailureCompletes(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	c.Register("tok", testAttempt, 3)

	c.OnRawEvent("tok", models.CodeOK)
	c.OnRawEvent("tok", models.CodeRadioOff)
	c.OnRawEvent("tok", models.CodeOK)

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected one outcome, got %d", len(events))
	}
	if events[0].Success || events[0].Kind != models.ResultRadioOff || events[0].Reason != "Radio off" {
		t.Fatalf("unexpected outcome %+v", events[0])
	}
}

func TestUnknownTokenDropped(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	if c.OnRawEvent("nobody", models.CodeOK) {
		t.Fatalf("expected unknown token to be dropped")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("expected no outcome")
	}
}

func TestWithdrawForgetsRegistration(t *testing.T) {
	c, sink := newCorrelator(t, Config{})
	c.Register("tok", testAttempt, 1)
	c.Withdraw("tok")

	if c.Pending() != 0 {
		t.Fatalf("expected withdrawn attempt to be forgotten")
	}
	c.OnRawEvent("tok", models.CodeOK)
	if len(sink.all()) != 0 {
		t.Fatalf("expected no outcome for withdrawn attempt")
	}
}

func TestSweepTimesOutOverdueAttempts(t *testing.T) {
	now := time.Unix(1000, 0)
	c, sink := newCorrelator(t, Config{AttemptTimeout: time.Minute})
	c.SetClock(func() time.Time { return now })

	c.Register("old", testAttempt, 1)
	now = now.Add(30 * time.Second)
	fresh := testAttempt
	fresh.Channel = 2
	c.Register("fresh", fresh, 1)

	now = now.Add(45 * time.Second)
	if got := c.Sweep(context.Background()); got != 1 {
		t.Fatalf("expected one timeout, got %d", got)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected one timeout outcome, got %d", len(events))
	}
	if events[0].Kind != models.ResultTimeout || events[0].Success || events[0].Context.Channel != 1 {
		t.Fatalf("unexpected timeout outcome %+v", events[0])
	}
	if c.Pending() != 1 {
		t.Fatalf("expected fresh attempt to stay pending")
	}

	if c.OnRawEvent("old", models.CodeOK) {
		t.Fatalf("expected late result of timed out attempt to be ignored")
	}
}

func TestSweepWithoutTimeoutKeepsPending(t *testing.T) {
	now := time.Unix(1000, 0)
	c, sink := newCorrelator(t, Config{})
	c.SetClock(func() time.Time { return now })
	c.Register("tok", testAttempt, 1)

	now = now.Add(24 * time.Hour)
	if got := c.Sweep(context.Background()); got != 0 {
		t.Fatalf("expected no timeouts, got %d", got)
	}
	if len(sink.all()) != 0 || c.Pending() != 1 {
		t.Fatalf("expected attempt to stay pending")
	}
}

func TestSweepExpiresHandledMarkers(t *testing.T) {
	now := time.Unix(1000, 0)
	c, _ := newCorrelator(t, Config{HandledTTL: time.Minute})
	c.SetClock(func() time.Time { return now })

	c.Register("tok", testAttempt, 1)
	c.OnRawEvent("tok", models.CodeOK)

	c.mu.Lock()
	_, marked := c.handled["tok"]
	c.mu.Unlock()
	if !marked {
		t.Fatalf("expected handled marker")
	}

	now = now.Add(2 * time.Minute)
	c.Sweep(context.Background())

	c.mu.Lock()
	_, marked = c.handled["tok"]
	c.mu.Unlock()
	if marked {
		t.Fatalf("expected handled marker to expire")
	}
}

func TestStartRunsSweeper(t *testing.T) {
	c, sink := newCorrelator(t, Config{AttemptTimeout: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	c.Register("tok", testAttempt, 1)

	c.Start(context.Background())
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected sweeper to time out the attempt")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected handler error")
	}
	if _, err := New(Config{AttemptTimeout: -time.Second}, HandlerFunc(func(context.Context, models.OutcomeEvent) {}), zerolog.Nop()); err == nil {
		t.Fatalf("expected negative timeout error")
	}
}
