package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

// Publisher captures the broker behaviour the gateway radio needs.
type Publisher interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// GatewayRadio hands submissions to an external SMS gateway over a broker
// topic. The gateway reports per-part results on a separate topic which the
// result consumer feeds back to the correlator.
type GatewayRadio struct {
	publisher Publisher
	topic     string
	logger    zerolog.Logger
}

// NewGatewayRadio constructs a gateway-backed Radio.
func NewGatewayRadio(pub Publisher, topic string, logger zerolog.Logger) (*GatewayRadio, error) {
	if pub == nil {
		return nil, errors.New("sms gateway: publisher dependency is required")
	}
	if topic == "" {
		return nil, errors.New("sms gateway: request topic is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &GatewayRadio{publisher: pub, topic: topic, logger: logger}, nil
}

// TransmitRaw publishes the submission synchronously. A publish failure is
// reported as a rejection.
func (g *GatewayRadio) TransmitRaw(ctx context.Context, sub Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub.Token == "" {
		return errors.New("sms gateway: correlation token is required")
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("sms gateway: marshal submission: %w", err)
	}
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"channel":      []byte(sub.Channel.String()),
	}
	if err := g.publisher.PublishSync(g.topic, []byte(sub.Token), headers, payload); err != nil {
		g.logger.Warn().
			Str("token", sub.Token).
			Str("channel", sub.Channel.String()).
			Err(err).
			Msg("sms gateway: publish failed")
		return fmt.Errorf("sms gateway: publish submission: %w", err)
	}
	return nil
}
