package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Relay drains pending entries to a Kafka topic consumed by the retry
// process. It runs on demand; there is no background loop.
type Relay struct {
	outbox   *Outbox
	producer sarama.SyncProducer
	topic    string
}

// NewRelay connects a synchronous, all-acks producer to brokers.
func NewRelay(ob *Outbox, brokers []string, topic string) (*Relay, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewSyncProducer: %w", err)
	}
	return NewRelayWithProducer(ob, producer, topic), nil
}

// NewRelayWithProducer uses an existing producer.
func NewRelayWithProducer(ob *Outbox, producer sarama.SyncProducer, topic string) *Relay {
	return &Relay{outbox: ob, producer: producer, topic: topic}
}

// RelayOnce publishes every pending entry and marks each one relayed after
// the broker acknowledges it. An entry that fails to publish stays pending
// for the next run.
func (r *Relay) RelayOnce(ctx context.Context) (relayed int, err error) {
	var pending []Entry
	if err := r.outbox.Scan(StatePending, func(e Entry) error {
		pending = append(pending, e)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("scan outbox: %w", err)
	}

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return relayed, err
		}
		msg := &sarama.ProducerMessage{
			Topic: r.topic,
			Key:   sarama.StringEncoder(e.EventKey + "/" + e.Channel),
			Value: sarama.ByteEncoder(e.Delivery),
			Headers: []sarama.RecordHeader{
				{Key: []byte("channel"), Value: []byte(e.Channel)},
				{Key: []byte("template"), Value: []byte(e.Template)},
				{Key: []byte("error"), Value: []byte(e.Error)},
			},
		}
		if _, _, err := r.producer.SendMessage(msg); err != nil {
			slog.Warn("outbox relay publish failed", "eventKey", e.EventKey, "channel", e.Channel, "err", err)
			continue
		}
		if err := r.outbox.MarkRelayed(e.EventKey, e.Channel); err != nil {
			return relayed, fmt.Errorf("mark relayed: %w", err)
		}
		relayed++
	}
	return relayed, nil
}

// Close closes the producer.
func (r *Relay) Close() error { return r.producer.Close() }
