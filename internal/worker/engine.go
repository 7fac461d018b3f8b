package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/sms-failover/internal/kafka/consumer"
)

// ErrMalformedRequest marks an intake record that cannot be turned into a
// send.
var ErrMalformedRequest = errors.New("malformed send request")

// Config contains the runtime settings of the intake engine.
type Config struct {
	MsgMaxBytes       int
	WorkerConcurrency int
}

// Record is an intake message, decoupled from the concrete consumer.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time

	source *consumer.Record
}

// Request is the intake payload.
type Request struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Sender dispatches one logical send.
type Sender interface {
	Dispatch(ctx context.Context, destination, body string) (string, bool)
}

// Committer commits intake offsets after processing.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error { return f(ctx, record) }

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Sender    Sender
	Committer Committer
	Logger    zerolog.Logger
}

// Engine turns intake records into sends. Dispatch blocks for the
// inter-attempt delay, so records are processed on a bounded pool of
// goroutines.
type Engine struct {
	cfg       Config
	sender    Sender
	committer Committer
	logger    zerolog.Logger

	semaphore *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewEngine validates the configuration and collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.WorkerConcurrency < 1 {
		return nil, errors.New("worker: worker concurrency must be >= 1")
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Sender == nil {
		return nil, errors.New("worker: sender dependency is required")
	}
	if deps.Committer == nil {
		return nil, errors.New("worker: committer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &Engine{
		cfg:       cfg,
		sender:    deps.Sender,
		committer: deps.Committer,
		logger:    logger.With().Str("component", "intake_engine").Logger(),
		semaphore: semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
	}, nil
}

// Decode parses an intake payload.
func Decode(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if strings.TrimSpace(req.Destination) == "" || strings.TrimSpace(req.Body) == "" {
		return Request{}, fmt.Errorf("%w: destination and body are required", ErrMalformedRequest)
	}
	return req, nil
}

// HandleRecord validates the record and starts its send on the pool.
// Records that cannot be sent are committed immediately.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	log := e.logger.With().
		Str("topic", record.Topic).
		Int32("partition", record.Partition).
		Int64("offset", record.Offset).
		Logger()

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		log.Warn().
			Int("bytes", len(record.Value)).
			Int("limit", e.cfg.MsgMaxBytes).
			Msg("worker: record discarded because it exceeds configured size limit")
		e.commitRecord(ctx, record)
		return
	}

	req, err := Decode(record.Value)
	if err != nil {
		log.Warn().Err(err).Msg("worker: record discarded")
		e.commitRecord(ctx, record)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("worker: failed to acquire concurrency semaphore")
		return
	}

	e.wg.Add(1)
	go e.process(ctx, record, req)
}

func (e *Engine) process(ctx context.Context, record *Record, req Request) {
	defer e.wg.Done()
	defer e.semaphore.Release(1)

	if ctx.Err() != nil {
		e.logger.Warn().Int64("offset", record.Offset).Msg("worker: context cancelled before processing began")
		return
	}

	sendID, ok := e.sender.Dispatch(ctx, req.Destination, req.Body)
	if ctx.Err() != nil && !ok {
		// Left uncommitted so the record is redelivered after restart.
		e.logger.Warn().Int64("offset", record.Offset).Msg("worker: context cancelled during dispatch")
		return
	}

	e.logger.WithLevel(levelFor(ok)).
		Str("send_id", sendID).
		Bool("accepted", ok).
		Int64("offset", record.Offset).
		Msg("worker: send dispatched")
	e.commitRecord(ctx, record)
}

// Wait blocks until every started send has been dispatched.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if err := e.committer.Commit(ctx, record); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record offset")
	}
}

func levelFor(accepted bool) zerolog.Level {
	if accepted {
		return zerolog.InfoLevel
	}
	return zerolog.WarnLevel
}
