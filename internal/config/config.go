package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the failover service.
type Config struct {
	App        AppConfig
	Failover   FailoverConfig
	Correlator CorrelatorConfig
	Validation ValidationConfig
	Provider   ProviderConfig
	Kafka      KafkaConfig
	Intake     IntakeConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// FailoverConfig tunes the dispatch-and-failover coordinator.
type FailoverConfig struct {
	// InterAttemptDelay separates the proactive sends on a dual-channel
	// device.
	InterAttemptDelay time.Duration
}

// CorrelatorConfig controls how long correlation state is retained.
type CorrelatorConfig struct {
	// AttemptTimeout bounds the wait for a result event. Zero disables it.
	AttemptTimeout time.Duration
	HandledTTL     time.Duration
	SweepInterval  time.Duration
}

// ValidationConfig holds the limits applied to inbound send requests.
type ValidationConfig struct {
	BodyMax    int
	StrictE164 bool
}

// MockConfig describes the simulated radio used by the mock provider.
type MockConfig struct {
	Scenarios   map[int]string
	Latency     time.Duration
	Concurrency int
}

// ProviderConfig selects the transmit backend.
type ProviderConfig struct {
	Backend string
	// Channels lists the subscription ids in slot order.
	Channels []int
	Mock     MockConfig
}

// KafkaConfig is optional; when Brokers is empty the Kafka status sink and
// the result consumer are disabled.
type KafkaConfig struct {
	Brokers       []string
	StatusTopic   string
	ResultTopic   string
	RequestTopic  string
	ConsumerGroup string
}

// IntakeConfig controls the optional Kafka send-request worker.
type IntakeConfig struct {
	Topic         string
	ConsumerGroup string
	Concurrency   int
	MsgMaxBytes   int
}

// Enabled reports whether brokers were configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Load reads environment variables (after an optional .env file), applies
// defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Failover.InterAttemptDelay = ldr.getMillis("FAILOVER_INTER_ATTEMPT_DELAY_MS", 8000)

	cfg.Correlator.AttemptTimeout = ldr.getSeconds("FAILOVER_ATTEMPT_TIMEOUT_SECONDS", 0)
	cfg.Correlator.HandledTTL = ldr.getSeconds("CORRELATOR_HANDLED_TTL_SECONDS", 600)
	cfg.Correlator.SweepInterval = ldr.getSeconds("CORRELATOR_SWEEP_INTERVAL_SECONDS", 30)

	cfg.Validation.BodyMax = ldr.getInt("SMS_BODY_MAX", 1600, false)
	cfg.Validation.StrictE164 = ldr.getBool("SMS_STRICT_E164", false, false)

	cfg.Provider.Backend = strings.ToLower(ldr.getString("SMS_PROVIDER", "mock", false))
	cfg.Provider.Channels = ldr.getIntSlice("SMS_CHANNELS", []int{1, 2})
	cfg.Provider.Mock.Scenarios = ldr.getScenarioMap("MOCK_SCENARIOS")
	cfg.Provider.Mock.Latency = ldr.getMillis("MOCK_LATENCY_MS", 25)
	cfg.Provider.Mock.Concurrency = ldr.getInt("MOCK_DELIVERY_CONCURRENCY", 8, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	kafkaRequired := cfg.Kafka.Enabled()
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_SMS_STATUS_TOPIC", "", kafkaRequired)
	cfg.Kafka.ResultTopic = ldr.getString("KAFKA_SMS_RESULT_TOPIC", "", kafkaRequired)
	cfg.Kafka.ConsumerGroup = ldr.getString("SMS_RESULT_CONSUMER_GROUP", "", kafkaRequired)
	cfg.Kafka.RequestTopic = ldr.getString("KAFKA_SMS_REQUEST_TOPIC", "", cfg.Provider.Backend == "gateway")

	cfg.Intake.Topic = ldr.getString("KAFKA_SMS_INTAKE_TOPIC", "", false)
	intakeRequired := cfg.Intake.Topic != ""
	cfg.Intake.ConsumerGroup = ldr.getString("SMS_INTAKE_CONSUMER_GROUP", "", intakeRequired)
	cfg.Intake.Concurrency = ldr.getInt("INTAKE_CONCURRENCY", 4, false)
	cfg.Intake.MsgMaxBytes = ldr.getInt("INTAKE_MSG_MAX_BYTES", 65536, false)

	switch cfg.Provider.Backend {
	case "mock", "gateway":
	default:
		ldr.addError(fmt.Sprintf("SMS_PROVIDER %q is not supported", cfg.Provider.Backend))
	}
	if cfg.Provider.Backend == "gateway" && !kafkaRequired {
		ldr.addError("SMS_PROVIDER gateway requires KAFKA_BROKERS")
	}
	if intakeRequired && !kafkaRequired {
		ldr.addError("KAFKA_SMS_INTAKE_TOPIC requires KAFKA_BROKERS")
	}
	if cfg.Intake.Concurrency < 1 {
		ldr.addError("INTAKE_CONCURRENCY must be >= 1")
	}
	if cfg.Failover.InterAttemptDelay < 0 {
		ldr.addError("FAILOVER_INTER_ATTEMPT_DELAY_MS cannot be negative")
	}
	if cfg.Provider.Mock.Concurrency < 1 {
		ldr.addError("MOCK_DELIVERY_CONCURRENCY must be >= 1")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string, required bool) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		if val = strings.TrimSpace(val); val != "" {
			return val, true
		}
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return "", false
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key, required); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getMillis(key string, def int) time.Duration {
	return time.Duration(l.getInt(key, def, false)) * time.Millisecond
}

func (l *envLoader) getSeconds(key string, def int) time.Duration {
	return time.Duration(l.getInt(key, def, false)) * time.Second
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) getIntSlice(key string, def []int) []int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return append([]int(nil), def...)
	}
	out := []int{}
	for _, p := range strings.Split(val, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i, err := strconv.Atoi(p)
		if err != nil {
			l.addError(fmt.Sprintf("%s entry %q must be a valid integer", key, p))
			continue
		}
		out = append(out, i)
	}
	return out
}

// getScenarioMap parses "1=no_service,2=ok" into a channel -> scenario map.
func (l *envLoader) getScenarioMap(key string) map[int]string {
	raw := l.getString(key, "", false)
	if raw == "" {
		return nil
	}
	out := make(map[int]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found {
			l.addError(fmt.Sprintf("%s entry %q must be channel=scenario", key, pair))
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			l.addError(fmt.Sprintf("%s entry %q has an invalid channel id", key, pair))
			continue
		}
		out[id] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
