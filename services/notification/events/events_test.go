package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ankaa/models"
)

var failed = models.DeliveryEvent{
	NotificationID: "n1",
	Type:           "task.created",
	Channel:        models.ChannelSMS,
	RecipientID:    "u1",
	Status:         models.DeliveryFailed,
	Attempts:       3,
	Class:          "network",
	Error:          "max retries exceeded (3): gateway timeout",
	OccurredAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
}

func TestKafkaSink_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "notification.deliveries", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "n1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var got models.DeliveryEvent
		require.NoError(t, json.Unmarshal(value, &got))
		assert.Equal(t, failed, got)
		return nil
	})

	sink := NewKafkaSink(producer, "notification.deliveries")
	require.NoError(t, sink.Publish(context.Background(), failed))
	require.NoError(t, sink.Close())
}

func TestKafkaSink_PublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSink(producer, "notification.deliveries")
	err := sink.Publish(context.Background(), failed)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPSink_Publish(t *testing.T) {
	ch := &fakeChannel{}
	sink := &AMQPSink{channel: ch, exchange: "notification.deliveries"}

	require.NoError(t, sink.Publish(context.Background(), failed))
	require.Len(t, ch.msgs, 1)
	got := ch.msgs[0]
	assert.Equal(t, "notification.deliveries", got.exchange)
	assert.Equal(t, "delivery.sms.failed", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "n1/SMS", got.msg.MessageId)
	assert.Equal(t, int32(3), got.msg.Headers["x-attempts"])
	require.NoError(t, sink.Close())
}

func TestRoutingKey(t *testing.T) {
	e := models.DeliveryEvent{Channel: models.ChannelInApp, Status: models.DeliveryDelivered}
	assert.Equal(t, "delivery.in_app.delivered", RoutingKey(e))
}

func TestObserver_LogsPublishFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &AMQPSink{channel: &fakeChannel{err: errors.New("channel closed")}}

	Observer(sink, time.Second, zap.New(core))(failed)

	entries := logs.FilterMessage("Failed to publish delivery event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "n1", entries[0].ContextMap()["notification_id"])
}
