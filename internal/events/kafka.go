package events

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

// KafkaSink forwards domain events to a Kafka topic as JSON envelopes.
// Delivery failures are logged, they never abort the operation that
// produced the event.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger zerolog.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaSink{producer: producer, topic: topic, logger: logger}, nil
}

type envelope struct {
	Type  string `json:"type"`
	Event any    `json:"event"`
}

func (s *KafkaSink) Attach(bus *ebus.Bus) {
	ebus.Subscribe(bus, func(ev UnitPriceUpdated) { s.send("UnitPriceUpdated", ev) })
	ebus.Subscribe(bus, func(ev BucketMinted) { s.send("BucketMinted", ev) })
	ebus.Subscribe(bus, func(ev PermanentURI) { s.send("PermanentURI", ev) })
	ebus.Subscribe(bus, func(ev BucketRenewed) { s.send("BucketRenewed", ev) })
	ebus.Subscribe(bus, func(ev Withdraw) { s.send("Withdraw", ev) })
}

func (s *KafkaSink) send(typ string, ev any) {
	data, err := json.Marshal(envelope{Type: typ, Event: ev})
	if err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("failed to encode event")
		return
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(typ),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("failed to publish event to kafka")
	}
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
