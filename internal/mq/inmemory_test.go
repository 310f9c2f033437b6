package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishReceive(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), "topic-a", []byte("first")))
	require.NoError(t, q.Publish(context.Background(), "topic-a", []byte("second")))

	msg, err := q.Receive(context.Background(), "topic-a")
	require.NoError(t, err)
	data, err := q.GetMessageData(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
	require.NoError(t, q.Ack("topic-a", msg))

	msg, err = q.Receive(context.Background(), "topic-a")
	require.NoError(t, err)
	data, err = q.GetMessageData(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestInMemoryQueueFull(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), "topic-a", []byte("one")))
	assert.ErrorIs(t, q.Publish(context.Background(), "topic-a", []byte("two")), ErrQueueFull)
}

func TestInMemoryReceiveRespectsContext(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Receive(ctx, "empty-topic")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryCloseTopic(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), "topic-a", []byte("one")))
	require.NoError(t, q.CloseTopic("topic-a"))

	// Buffered message still drains, then the topic reports closed.
	msg, err := q.Receive(context.Background(), "topic-a")
	require.NoError(t, err)
	data, err := q.GetMessageData(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	_, err = q.Receive(context.Background(), "topic-a")
	assert.ErrorIs(t, err, ErrTopicClosed)
}

func TestInMemoryCloseUnknownTopic(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	assert.ErrorIs(t, q.CloseTopic("missing"), ErrTopicNotExists)
}
