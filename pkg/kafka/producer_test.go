package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafka_config "robopay/pkg/kafka/config"
	"robopay/pkg/logger"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func testMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewMessage().
		WithKey("robot-1").
		WithValue(map[string]string{"session_id": "s-1"}).
		WithEventType("payment.session_paid").
		WithCorrelationID("req-1").
		Build()
	require.NoError(t, err)
	return msg
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "robopay.events")

	require.NoError(t, p.Publish(context.Background(), testMessage(t)))

	require.Len(t, w.messages, 1)
	got := w.messages[0]
	assert.Equal(t, "robot-1", string(got.Key))
	assert.JSONEq(t, `{"session_id":"s-1"}`, string(got.Value))
	assert.Equal(t, "payment.session_paid", header(got, HeaderEventType))
	assert.Equal(t, "req-1", header(got, HeaderCorrelationID))
	assert.NotEmpty(t, header(got, HeaderEventID))
	assert.NotEmpty(t, header(got, HeaderTimestamp))
}

func TestProducer_RejectsInvalidMessages(t *testing.T) {
	p := newProducer(&fakeWriter{}, "robopay.events")

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("x")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)
}

func TestProducer_MiddlewareOrder(t *testing.T) {
	p := newProducer(&fakeWriter{}, "robopay.events")

	var order []string
	record := func(name string) ProducerMiddleware {
		return func(ctx context.Context, msg Message, next func(ctx context.Context, msg Message) error) error {
			order = append(order, name+":before")
			assert.Equal(t, "robopay.events", msg.Topic)
			err := next(ctx, msg)
			order = append(order, name+":after")
			return err
		}
	}
	p.Use(record("outer"))
	p.Use(record("inner"))

	require.NoError(t, p.Publish(context.Background(), testMessage(t)))
	assert.Equal(t, []string{"outer:before", "inner:before", "inner:after", "outer:after"}, order)
}

func TestProducer_DeadLetter(t *testing.T) {
	broken := errors.New("leader not available")
	w := &fakeWriter{err: broken}
	dlq := &fakeWriter{}

	p := newProducer(w, "robopay.events")
	p.dlqWriter = dlq
	p.dlqTopic = "robopay.events.dlq"

	msg := testMessage(t)
	err := p.Publish(context.Background(), msg)
	assert.ErrorIs(t, err, broken)

	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "robopay.events", header(dlq.messages[0], HeaderOriginalTopic))
	assert.Equal(t, broken.Error(), header(dlq.messages[0], headerDLQError))
	_, leaked := msg.Headers[HeaderOriginalTopic]
	assert.False(t, leaked, "caller's headers must not be mutated")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "robopay.events")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), testMessage(t)), ErrProducerClosed)
}

func TestNewProducer_Validation(t *testing.T) {
	log := logger.Discard()

	_, err := NewProducer(nil, "t", "", log)
	assert.Error(t, err)

	_, err = NewProducer(&kafka_config.Config{}, "t", "", log)
	assert.Error(t, err)

	_, err = NewProducer(&kafka_config.Config{Brokers: []string{"localhost:9092"}}, "", "", log)
	assert.Error(t, err)

	p, err := NewProducer(&kafka_config.Config{Brokers: []string{"localhost:9092"}, ProducerMaxAttempts: 1}, "t", "t.dlq", log)
	require.NoError(t, err)
	assert.Equal(t, "t", p.Topic())
	assert.NotNil(t, p.dlqWriter)
}

func TestMessageBuilder_EncodingError(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	assert.Error(t, err)
}
