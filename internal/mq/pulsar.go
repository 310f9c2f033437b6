package mq

import (
	"context"
	"strings"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/renderiq/render-server/internal/config"
)

type PulsarMQ struct {
	client    pulsar.Client
	producers sync.Map
	consumers sync.Map
}

func NewPulsarMQ(config *config.PulsarConfig) (*PulsarMQ, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: config.URL})
	if err != nil {
		return nil, err
	}

	return &PulsarMQ{client: client}, nil
}

func (mq *PulsarMQ) Publish(ctx context.Context, topic string, message []byte) error {
	producer, err := mq.getProducer(topic)
	if err != nil {
		return err
	}

	_, err = (*producer).Send(ctx, &pulsar.ProducerMessage{Payload: message})
	return err
}

func (mq *PulsarMQ) Receive(ctx context.Context, topic string) (interface{}, error) {
	consumer, err := mq.getConsumer(topic)
	if err != nil {
		return nil, err
	}

	return (*consumer).Receive(ctx)
}

func (mq *PulsarMQ) GetMessageData(message interface{}) ([]byte, error) {
	msg, ok := message.(pulsar.Message)
	if !ok {
		return nil, ErrTopicNotExists
	}

	return msg.Payload(), nil
}

func (mq *PulsarMQ) Ack(topic string, message interface{}) error {
	consumer, err := mq.getConsumer(topic)
	if err != nil {
		return err
	}

	return (*consumer).Ack(message.(pulsar.Message))
}

func (mq *PulsarMQ) CloseTopic(topic string) error {
	if producer, ok := mq.producers.Load(topic); ok {
		(*producer.(*pulsar.Producer)).Close()
		mq.producers.Delete(topic)
	}

	if consumer, ok := mq.consumers.Load(topic); ok {
		(*consumer.(*pulsar.Consumer)).Close()
		mq.consumers.Delete(topic)
	}

	return nil
}

func (mq *PulsarMQ) Close() error {
	mq.client.Close()
	return nil
}

func (mq *PulsarMQ) getProducer(topic string) (*pulsar.Producer, error) {
	if value, ok := mq.producers.Load(topic); ok {
		return value.(*pulsar.Producer), nil
	}

	producer, err := mq.client.CreateProducer(pulsar.ProducerOptions{Topic: topic})
	if err != nil {
		return nil, err
	}

	mq.producers.Store(topic, &producer)
	return &producer, nil
}

func (mq *PulsarMQ) getConsumer(topic string) (*pulsar.Consumer, error) {
	if value, ok := mq.consumers.Load(topic); ok {
		return value.(*pulsar.Consumer), nil
	}

	consumer, err := mq.client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		Type:             pulsar.Exclusive,
		SubscriptionName: strings.ReplaceAll(topic, "/", "-"),
	})
	if err != nil {
		return nil, err
	}

	mq.consumers.Store(topic, &consumer)
	return &consumer, nil
}
