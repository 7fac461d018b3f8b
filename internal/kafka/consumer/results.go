package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
)

// ErrMalformedResult marks a result record that cannot be decoded.
var ErrMalformedResult = errors.New("malformed result record")

// ResultSink receives one decoded part result.
type ResultSink func(ctx context.Context, token string, code int) bool

// DecodeResult parses a result record. The record key is used as the token
// when the payload omits it.
func DecodeResult(record *Record) (models.RawResult, error) {
	if record == nil || len(record.Value) == 0 {
		return models.RawResult{}, fmt.Errorf("%w: empty payload", ErrMalformedResult)
	}

	var raw struct {
		Token string `json:"token"`
		Code  *int   `json:"code"`
	}
	if err := json.Unmarshal(record.Value, &raw); err != nil {
		return models.RawResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if raw.Code == nil {
		return models.RawResult{}, fmt.Errorf("%w: code is required", ErrMalformedResult)
	}

	token := strings.TrimSpace(raw.Token)
	if token == "" {
		token = strings.TrimSpace(string(record.Key))
	}
	if token == "" {
		return models.RawResult{}, fmt.Errorf("%w: token is required", ErrMalformedResult)
	}
	return models.RawResult{Token: token, Code: *raw.Code}, nil
}

// ResultHandler decodes result records into sink. Malformed records are
// logged and committed so they do not block the partition.
func ResultHandler(sink ResultSink, committer Committer, logger zerolog.Logger) Handler {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return func(ctx context.Context, record *Record) error {
		result, err := DecodeResult(record)
		if err != nil {
			logger.Error().
				Err(err).
				Str("topic", record.Topic).
				Int64("offset", record.Offset).
				Msg("kafka consumer: dropping result record")
		} else {
			sink(ctx, result.Token, result.Code)
		}

		if committer == nil {
			return nil
		}
		return committer.Commit(ctx, record)
	}
}
