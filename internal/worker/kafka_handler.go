package worker

import (
	"context"

	"github.com/example/sms-failover/internal/kafka/consumer"
)

// KafkaHandler returns a consumer.Handler that converts consumer records
// into intake records for engine.
func KafkaHandler(engine *Engine) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}
		engine.HandleRecord(ctx, fromConsumer(rec))
		return nil
	}
}

// KafkaCommitter commits intake records through the originating consumer
// record.
func KafkaCommitter(cons consumer.Committer) Committer {
	return CommitFunc(func(ctx context.Context, record *Record) error {
		if cons == nil || record == nil || record.source == nil {
			return nil
		}
		return cons.Commit(ctx, record.source)
	})
}

func fromConsumer(rec *consumer.Record) *Record {
	return &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
		source:    rec,
	}
}
