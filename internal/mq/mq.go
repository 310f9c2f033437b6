package mq

import (
	"context"
	"errors"

	"github.com/renderiq/render-server/internal/config"
)

var (
	ErrTopicNotExists = errors.New("topic does not exist")
	ErrQueueFull      = errors.New("queue is full")
	ErrQueueClosed    = errors.New("queue closed")
	ErrTopicClosed    = errors.New("topic closed")
)

const (
	MQTypeInMemory = "inmemory"
	MQTypePulsar   = "pulsar"
)

// MQ carries wakeup signals and stream payloads between the pipeline and its
// background workers. Durable state lives in the database; the queue only has
// to be prompt, not persistent.
type MQ interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Receive(ctx context.Context, topic string) (interface{}, error)
	GetMessageData(message interface{}) ([]byte, error)
	Ack(topic string, message interface{}) error
	CloseTopic(topic string) error
	Close() error
}

func NewMQ(cfg *config.Config) (MQ, error) {
	if cfg != nil && cfg.Pulsar != nil && cfg.Pulsar.URL != "" {
		return NewPulsarMQ(cfg.Pulsar)
	}

	return NewInMemoryMQ(64)
}
