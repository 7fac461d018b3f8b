package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recordingCommitter struct {
	records []*Record
}

func (c *recordingCommitter) Commit(_ context.Context, record *Record) error {
	c.records = append(c.records, record)
	return nil
}

func TestDecodeResult(t *testing.T) {
	result, err := DecodeResult(&Record{Value: []byte(`{"token":"tok-1","code":-1}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "tok-1" || result.Code != -1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDecodeResultFallsBackToKey(t *testing.T) {
	result, err := DecodeResult(&Record{Key: []byte("tok-2"), Value: []byte(`{"code":4}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "tok-2" || result.Code != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDecodeResultRejectsMalformed(t *testing.T) {
	cases := map[string]*Record{
		"nil":      nil,
		"empty":    {},
		"not json": {Value: []byte("nope")},
		"no code":  {Value: []byte(`{"token":"tok"}`)},
		"no token": {Value: []byte(`{"code":1}`)},
	}
	for name, record := range cases {
		if _, err := DecodeResult(record); !errors.Is(err, ErrMalformedResult) {
			t.Fatalf("%s: expected ErrMalformedResult, got %v", name, err)
		}
	}
}

func TestResultHandlerForwardsAndCommits(t *testing.T) {
	committer := &recordingCommitter{}
	var gotToken string
	var gotCode int
	sink := func(_ context.Context, token string, code int) bool {
		gotToken, gotCode = token, code
		return true
	}

	handler := ResultHandler(sink, committer, zerolog.Nop())
	if err := handler(context.Background(), &Record{Value: []byte(`{"token":"tok","code":2}`)}); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if gotToken != "tok" || gotCode != 2 {
		t.Fatalf("expected sink to receive tok/2, got %s/%d", gotToken, gotCode)
	}
	if len(committer.records) != 1 {
		t.Fatalf("expected record to be committed")
	}
}

func TestResultHandlerCommitsMalformedWithoutForwarding(t *testing.T) {
	committer := &recordingCommitter{}
	called := false
	sink := func(context.Context, string, int) bool {
		called = true
		return true
	}

	handler := ResultHandler(sink, committer, zerolog.Nop())
	if err := handler(context.Background(), &Record{Value: []byte("garbage")}); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if called {
		t.Fatalf("did not expect malformed record to reach sink")
	}
	if len(committer.records) != 1 {
		t.Fatalf("expected malformed record to be committed")
	}
}
