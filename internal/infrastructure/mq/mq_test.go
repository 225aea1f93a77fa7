package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/infrastructure/mq"
)

func TestChannelProducer_SendThenSubscribe(t *testing.T) {
	producer := mq.NewChannelProducer[string](1)
	require.NoError(t, producer.SendObject(context.Background(), "hello", "greetings"))

	select {
	case env := <-producer.Subscribe():
		assert.Equal(t, "greetings", env.Topic)
		assert.Equal(t, "hello", env.Message)
	default:
		t.Fatal("expected a buffered envelope")
	}
}

func TestChannelProducer_SendRespectsContextCancellation(t *testing.T) {
	producer := mq.NewChannelProducer[string](0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := producer.SendObject(ctx, "blocked", "topic")
	assert.Error(t, err)
}
