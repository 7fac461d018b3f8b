package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-failover/internal/channels"
	"github.com/example/sms-failover/internal/config"
	"github.com/example/sms-failover/internal/correlator"
	"github.com/example/sms-failover/internal/failover"
	"github.com/example/sms-failover/internal/kafka/consumer"
	"github.com/example/sms-failover/internal/kafka/producer"
	kafkapublisher "github.com/example/sms-failover/internal/kafka/publisher"
	"github.com/example/sms-failover/internal/logger"
	"github.com/example/sms-failover/internal/messaging"
	"github.com/example/sms-failover/internal/models"
	"github.com/example/sms-failover/internal/notify"
	"github.com/example/sms-failover/internal/providers/factory"
	smsprovider "github.com/example/sms-failover/internal/providers/sms"
	"github.com/example/sms-failover/internal/util"
	"github.com/example/sms-failover/internal/worker"
)

const drainPoll = 100 * time.Millisecond

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "sms-failover").Logger()

	destination, body := "", ""
	if args := os.Args[1:]; len(args) >= 2 {
		destination, body = args[0], strings.Join(args[1:], " ")
	} else if cfg.Intake.Topic == "" {
		fmt.Fprintln(os.Stderr, "usage: sms-failover <destination> <body...>")
		os.Exit(2)
	}

	var (
		prod     *producer.Producer
		pub      smsprovider.Publisher
		notifier = []notify.Notifier{notify.Log(logger.Component(log, "status"))}
	)
	if cfg.Kafka.Enabled() {
		prod, err = producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		pub = prod

		statusPublisher := kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, logger.Component(log, "status-publisher"))
		if statusPublisher == nil {
			log.Fatal().Msg("failed to create status publisher")
		}
		notifier = append(notifier, statusPublisher)
	}

	// Results may arrive only after a send, by which time svc is set.
	var svc *messaging.Service
	radio, err := factory.Radio(*cfg, pub, func(token string, code int) {
		svc.OnRawResult(token, code)
	}, logger.Component(log, "sms-radio"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sms radio")
	}

	ids := make([]models.ChannelID, 0, len(cfg.Provider.Channels))
	for _, id := range cfg.Provider.Channels {
		ids = append(ids, models.ChannelID(id))
	}
	directory := channels.IDs(ids...)

	svc, err = messaging.New(messaging.Config{
		Failover: failover.Config{InterAttemptDelay: cfg.Failover.InterAttemptDelay},
		Correlator: correlator.Config{
			AttemptTimeout: cfg.Correlator.AttemptTimeout,
			HandledTTL:     cfg.Correlator.HandledTTL,
			SweepInterval:  cfg.Correlator.SweepInterval,
		},
	}, messaging.Dependencies{
		Radio:    radio,
		Channels: directory,
		Notifier: notify.Multi(notifier...),
		Logger:   log,
		Validate: util.SMSValidator(cfg.Validation.BodyMax, cfg.Validation.StrictE164),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise messaging service")
	}
	svc.Start(ctx)
	defer svc.Close()

	for _, info := range directory.Subscriptions(ctx) {
		log.Info().
			Int("channel", int(info.ID)).
			Str("label", directory.Describe(ctx, info.ID)).
			Msg("channel available")
	}
	log.Info().
		Int("active_channels", directory.Count(ctx)).
		Bool("dual_channel", directory.HasMultiple(ctx)).
		Str("backend", cfg.Provider.Backend).
		Msg("sms failover ready")

	errCh := make(chan error, 2)
	if cfg.Kafka.Enabled() {
		results, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger.Component(log, "result-consumer"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create result consumer")
		}
		defer closeConsumer(log, results)
		go consume(ctx, results, cfg.Kafka.ResultTopic, consumer.ResultHandler(svc.HandleRawResult, results, log), errCh)
	}

	var intake *worker.Engine
	if cfg.Intake.Topic != "" {
		intakeConsumer, err := consumer.New(cfg.Kafka.Brokers, cfg.Intake.ConsumerGroup, logger.Component(log, "intake-consumer"), consumer.WithManualCommit())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create intake consumer")
		}
		defer closeConsumer(log, intakeConsumer)

		intake, err = worker.NewEngine(worker.Config{
			MsgMaxBytes:       cfg.Intake.MsgMaxBytes,
			WorkerConcurrency: cfg.Intake.Concurrency,
		}, worker.Dependencies{
			Sender:    svc,
			Committer: worker.KafkaCommitter(intakeConsumer),
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise intake engine")
		}
		go consume(ctx, intakeConsumer, cfg.Intake.Topic, worker.KafkaHandler(intake), errCh)
		log.Info().Str("intake_topic", cfg.Intake.Topic).Msg("intake worker started")
	}

	if destination != "" {
		sendID, ok := svc.Dispatch(ctx, destination, body)
		if !ok {
			log.Error().Str("send_id", sendID).Msg("send was not accepted by any channel")
			if intake == nil {
				os.Exit(1)
			}
		}
		if intake == nil {
			drain(ctx, svc, log)
			return
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}
	if intake != nil {
		intake.Wait()
	}
}

func consume(ctx context.Context, c *consumer.Consumer, topic string, handler consumer.Handler, errCh chan<- error) {
	if err := c.Consume(ctx, []string{topic}, handler); err != nil && !errors.Is(err, context.Canceled) {
		errCh <- err
	}
}

// drain waits until every send has reached a terminal outcome.
func drain(ctx context.Context, svc *messaging.Service, log zerolog.Logger) {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for svc.ActiveSends() > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("active_sends", svc.ActiveSends()).Msg("shutdown before every send completed")
			return
		case <-ticker.C:
		}
	}
	log.Info().Msg("all sends completed")
}

func closeConsumer(log zerolog.Logger, c *consumer.Consumer) {
	if err := c.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka consumer")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("sms failover init failed")
}
