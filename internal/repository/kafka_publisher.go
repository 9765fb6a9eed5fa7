package repository

import (
	"context"

	"SignalGuard/internal/domain/models"
)

// MessageProducer is the slice of pkg/kafka.Producer the publishers need.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaPublisher broadcasts sealed signals and risk transitions. Signals are keyed by symbol
// so one symbol's stream stays ordered.
type KafkaPublisher struct {
	producer     MessageProducer
	signalsTopic string
	riskTopic    string
}

func NewKafkaPublisher(p MessageProducer, signalsTopic, riskTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, signalsTopic: signalsTopic, riskTopic: riskTopic}
}

func (k *KafkaPublisher) PublishSignal(ctx context.Context, s models.Signal) error {
	return k.producer.Publish(ctx, k.signalsTopic, []byte(s.Symbol), s)
}

func (k *KafkaPublisher) PublishRiskEvent(ctx context.Context, e models.RiskEvent) error {
	return k.producer.Publish(ctx, k.riskTopic, []byte("risk"), e)
}
