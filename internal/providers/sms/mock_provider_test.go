package sms_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/sms-failover/internal/adapters/common"
	"github.com/example/sms-failover/internal/models"
	smsprovider "github.com/example/sms-failover/internal/providers/sms"
)

type report struct {
	token string
	code  int
}

type reportCollector struct {
	mu      sync.Mutex
	reports []report
}

func (c *reportCollector) record(token string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report{token: token, code: code})
}

func (c *reportCollector) all() []report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]report(nil), c.reports...)
}

func submission(token string, channel models.ChannelID, parts ...string) smsprovider.Submission {
	if len(parts) == 0 {
		parts = []string{"hello"}
	}
	return smsprovider.Submission{Token: token, Channel: channel, Destination: "+15550100", Parts: parts}
}

func TestMockRadioReportsPerPart(t *testing.T) {
	sink := &reportCollector{}
	radio := smsprovider.NewMockRadio(zerolog.Nop(), smsprovider.WithLatency(0), smsprovider.WithResultFunc(sink.record))

	if err := radio.TransmitRaw(context.Background(), submission("tok", 1, "a", "b", "c")); err != nil {
		t.Fatalf("unexpected transmit error: %v", err)
	}
	radio.Wait()

	reports := sink.all()
	if len(reports) != 3 {
		t.Fatalf("expected one report per part, got %d", len(reports))
	}
	for _, r := range reports {
		if r.token != "tok" || r.code != models.CodeOK {
			t.Fatalf("unexpected report %+v", r)
		}
	}
}

func TestMockRadioScenarioScript(t *testing.T) {
	sink := &reportCollector{}
	radio := smsprovider.NewMockRadio(zerolog.Nop(),
		smsprovider.WithLatency(0),
		smsprovider.WithResultFunc(sink.record),
		smsprovider.WithScenario(1, smsprovider.ScenarioNoService, smsprovider.ScenarioOK),
		smsprovider.WithScenario(2, smsprovider.ScenarioRadioOff),
	)

	for _, sub := range []smsprovider.Submission{
		submission("t1", 1),
		submission("t2", 1),
		submission("t3", 1),
		submission("t4", 2),
		submission("t5", 3),
	} {
		if err := radio.TransmitRaw(context.Background(), sub); err != nil {
			t.Fatalf("unexpected transmit error: %v", err)
		}
		radio.Wait()
	}

	want := map[string]int{
		"t1": models.CodeNoService,
		"t2": models.CodeOK,
		"t3": models.CodeOK,
		"t4": models.CodeRadioOff,
		"t5": models.CodeOK,
	}
	for _, r := range sink.all() {
		if want[r.token] != r.code {
			t.Fatalf("token %s: expected code %d, got %d", r.token, want[r.token], r.code)
		}
	}
	if got := len(radio.Submissions()); got != 5 {
		t.Fatalf("expected 5 submissions recorded, got %d", got)
	}
}

func TestMockRadioReject(t *testing.T) {
	sink := &reportCollector{}
	radio := smsprovider.NewMockRadio(zerolog.Nop(),
		smsprovider.WithLatency(0),
		smsprovider.WithResultFunc(sink.record),
		smsprovider.WithDefaultScenario(smsprovider.ScenarioReject),
	)

	if err := radio.TransmitRaw(context.Background(), submission("tok", 1)); !errors.Is(err, common.ErrChannelUnavailable) {
		t.Fatalf("expected channel unavailable, got %v", err)
	}
	radio.Wait()
	if len(sink.all()) != 0 {
		t.Fatalf("expected no reports for rejected submission")
	}
}

func TestMockRadioSilentAndDuplicate(t *testing.T) {
	sink := &reportCollector{}
	radio := smsprovider.NewMockRadio(zerolog.Nop(),
		smsprovider.WithLatency(0),
		smsprovider.WithResultFunc(sink.record),
		smsprovider.WithDuplicateReports(),
		smsprovider.WithScenario(9, smsprovider.ScenarioSilent),
	)

	radio.TransmitRaw(context.Background(), submission("quiet", 9))
	radio.TransmitRaw(context.Background(), submission("loud", 1))
	radio.Wait()

	reports := sink.all()
	if len(reports) != 2 {
		t.Fatalf("expected duplicated report for one part only, got %+v", reports)
	}
	for _, r := range reports {
		if r.token != "loud" {
			t.Fatalf("silent channel reported: %+v", r)
		}
	}
}

func TestMockRadioValidatesSubmission(t *testing.T) {
	radio := smsprovider.NewMockRadio(zerolog.Nop())
	if err := radio.TransmitRaw(context.Background(), smsprovider.Submission{Parts: []string{"x"}}); err == nil {
		t.Fatalf("expected missing token error")
	}
	if err := radio.TransmitRaw(context.Background(), smsprovider.Submission{Token: "tok"}); err == nil {
		t.Fatalf("expected missing parts error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := radio.TransmitRaw(ctx, submission("tok", 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestMockRadioReportsAsynchronously(t *testing.T) {
	sink := &reportCollector{}
	radio := smsprovider.NewMockRadio(zerolog.Nop(), smsprovider.WithLatency(30*time.Millisecond), smsprovider.WithResultFunc(sink.record))

	radio.TransmitRaw(context.Background(), submission("tok", 1))
	if len(sink.all()) != 0 {
		t.Fatalf("expected report to arrive after TransmitRaw returns")
	}
	radio.Wait()
	if len(sink.all()) != 1 {
		t.Fatalf("expected one report after waiting")
	}
}

func TestParseScenario(t *testing.T) {
	cases := map[string]smsprovider.Scenario{
		"":            smsprovider.ScenarioOK,
		"delivered":   smsprovider.ScenarioOK,
		" No_Service": smsprovider.ScenarioNoService,
		"null_pdu":    smsprovider.ScenarioNullPDU,
		"silent":      smsprovider.ScenarioSilent,
	}
	for in, want := range cases {
		got, err := smsprovider.ParseScenario(in)
		if err != nil || got != want {
			t.Fatalf("ParseScenario(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := smsprovider.ParseScenario("meteor"); err == nil {
		t.Fatalf("expected unknown scenario error")
	}
	if smsprovider.ScenarioUnknown.Code() == models.CodeOK {
		t.Fatalf("expected unknown scenario to report a non-success code")
	}
}
