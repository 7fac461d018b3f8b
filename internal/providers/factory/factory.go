package factory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/config"
	"github.com/example/sms-failover/internal/models"
	smsprovider "github.com/example/sms-failover/internal/providers/sms"
)

// Radio constructs the configured transmit backend. The gateway backend
// needs a broker publisher; the mock backend reports results through fn.
func Radio(cfg config.Config, pub smsprovider.Publisher, fn smsprovider.ResultFunc, logger zerolog.Logger) (smsprovider.Radio, error) {
	switch normalize(cfg.Provider.Backend, "mock") {
	case "gateway":
		radio, err := smsprovider.NewGatewayRadio(pub, cfg.Kafka.RequestTopic, logger)
		if err != nil {
			return nil, fmt.Errorf("factory: gateway radio init: %w", err)
		}
		logger.Info().
			Str("backend", "gateway").
			Str("topic", cfg.Kafka.RequestTopic).
			Msg("sms radio initialised")
		return radio, nil
	case "mock":
		opts, err := mockOptions(cfg.Provider.Mock)
		if err != nil {
			return nil, fmt.Errorf("factory: mock radio init: %w", err)
		}
		opts = append(opts, smsprovider.WithResultFunc(fn))
		radio := smsprovider.NewMockRadio(logger, opts...)
		logger.Info().
			Str("backend", "mock").
			Ints("channels", cfg.Provider.Channels).
			Msg("sms radio initialised")
		return radio, nil
	default:
		return nil, fmt.Errorf("factory: unsupported sms backend %q", cfg.Provider.Backend)
	}
}

func mockOptions(cfg config.MockConfig) ([]smsprovider.Option, error) {
	opts := []smsprovider.Option{
		smsprovider.WithLatency(cfg.Latency),
		smsprovider.WithConcurrency(cfg.Concurrency),
	}
	for id, raw := range cfg.Scenarios {
		sc, err := smsprovider.ParseScenario(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, smsprovider.WithScenario(models.ChannelID(id), sc))
	}
	return opts, nil
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
