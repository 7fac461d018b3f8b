package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/models"
	"github.com/example/sms-failover/internal/notify"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour the publisher needs.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// StatusPublisher emits status events to a Kafka topic. It is a
// notify.Notifier so it can sit in the coordinator's fan-out.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

var _ notify.Notifier = (*StatusPublisher)(nil)

// NewStatusPublisher constructs a StatusPublisher instance.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// Notify implements notify.Notifier.
func (p *StatusPublisher) Notify(ctx context.Context, event models.StatusEvent) error {
	return p.PublishStatus(ctx, event)
}

// PublishStatus writes the status event synchronously, keyed by send id so
// the events of one send stay in order on a partition.
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal status event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	if event.IsRetry {
		headers["retry"] = []byte("true")
	}

	if err := p.producer.PublishSync(p.topic, []byte(event.SendID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish status event: %w", err)
	}
	p.logger.Debug().
		Str("send_id", event.SendID).
		Str("topic", p.topic).
		Bool("success", event.Success).
		Msg("kafka publisher: status event published")
	return nil
}
