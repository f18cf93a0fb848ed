package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

type mockBrokerMetrics struct {
	mu        sync.Mutex
	published map[string]int
	consumed  map[string]int
	pubErrs   map[string]int
	conErrs   map[string]int
}

func newMockBrokerMetrics() *mockBrokerMetrics {
	return &mockBrokerMetrics{
		published: map[string]int{},
		consumed:  map[string]int{},
		pubErrs:   map[string]int{},
		conErrs:   map[string]int{},
	}
}

func (m *mockBrokerMetrics) inc(counter map[string]int, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counter[topic]++
}

func (m *mockBrokerMetrics) IncMessagePublished(_ context.Context, topic string) { m.inc(m.published, topic) }
func (m *mockBrokerMetrics) IncMessageConsumed(_ context.Context, topic string)  { m.inc(m.consumed, topic) }
func (m *mockBrokerMetrics) IncPublishError(_ context.Context, topic string)     { m.inc(m.pubErrs, topic) }
func (m *mockBrokerMetrics) IncConsumeError(_ context.Context, topic string)     { m.inc(m.conErrs, topic) }

var testConfig = &Config{
	Brokers:           []string{"localhost:9092"},
	NotificationTopic: "flotilla.notifications",
	TelemetryTopic:    "isar.telemetry",
	GroupID:           "flotilla",
	ClientID:          "flotilla-test",
}

func newTestBus(t *testing.T, producer sarama.SyncProducer, metrics BrokerMetrics) *EventBus {
	t.Helper()
	return NewEventBus(producer, nil, testConfig, logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))
}

func TestPublishDomainEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	metrics := newMockBrokerMetrics()
	bus := newTestBus(t, producer, metrics)

	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	evt := events.NewDomainEvent(events.EventTypeAutoScheduleFail, "JSV", map[string]string{"mission": "m1"}, ts)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, testConfig.NotificationTopic, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "JSV", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(value, &env))
		assert.Equal(t, events.EventTypeAutoScheduleFail, env.Type)
		assert.True(t, ts.Equal(env.Timestamp))
		assert.JSONEq(t, `{"mission":"m1"}`, string(env.Payload))

		var sawHeader bool
		for _, h := range msg.Headers {
			if string(h.Key) == "source" {
				sawHeader = string(h.Value) == "scheduler"
			}
		}
		assert.True(t, sawHeader, "custom header missing")
		return nil
	})

	err := bus.PublishDomainEvent(context.Background(), evt, events.WithHeaders(map[string]string{"source": "scheduler"}))
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.published[testConfig.NotificationTopic])
	require.NoError(t, producer.Close())
}

func TestPublishDomainEvent_KeyOption(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	bus := newTestBus(t, producer, nil)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "override" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	evt := events.NewDomainEvent(events.EventTypeGeneralFail, "JSV", "boom", time.Now())
	require.NoError(t, bus.PublishDomainEvent(context.Background(), evt, events.WithKey("override")))
	require.NoError(t, producer.Close())
}

func TestPublishDomainEvent_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	metrics := newMockBrokerMetrics()
	bus := newTestBus(t, producer, metrics)

	sendErr := errors.New("broker down")
	producer.ExpectSendMessageAndFail(sendErr)

	evt := events.NewDomainEvent(events.EventTypeDockFailure, "JSV", nil, time.Now())
	err := bus.PublishDomainEvent(context.Background(), evt)
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, 1, metrics.pubErrs[testConfig.NotificationTopic])
	assert.Zero(t, metrics.published[testConfig.NotificationTopic])
	require.NoError(t, producer.Close())
}

func TestPublishDomainEvent_UnencodablePayload(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	bus := newTestBus(t, producer, nil)

	evt := events.NewDomainEvent(events.EventTypeGeneralFail, "JSV", make(chan int), time.Now())
	assert.Error(t, bus.PublishDomainEvent(context.Background(), evt))
	require.NoError(t, producer.Close())
}

func TestSubscribe_WithoutConsumerGroup(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	bus := newTestBus(t, producer, nil)

	err := bus.Subscribe(context.Background(), events.IsarEventTypes(), func(context.Context, events.DomainEvent) error { return nil })
	assert.Error(t, err)
	require.NoError(t, producer.Close())
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return testConfig.TelemetryTopic }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func telemetryMessage(t *testing.T, offset int64, typ events.EventType, payload string) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(envelope{Type: typ, Timestamp: time.Now(), Payload: json.RawMessage(payload)})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic:  testConfig.TelemetryTopic,
		Offset: offset,
		Key:    []byte("isar-1"),
		Value:  value,
	}
}

func TestConsumeClaim(t *testing.T) {
	metrics := newMockBrokerMetrics()
	var got []events.DomainEvent
	h := &consumerHandler{
		types: []events.EventType{events.EventTypeIsarBattery, events.EventTypeIsarMission},
		handler: func(_ context.Context, evt events.DomainEvent) error {
			if evt.Type == events.EventTypeIsarMission {
				return errors.New("store unavailable")
			}
			got = append(got, evt)
			return nil
		},
		logger:  logger.Noop(),
		tracer:  noop.NewTracerProvider().Tracer("test"),
		metrics: metrics,
	}

	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 5)}
	claim.msgs <- telemetryMessage(t, 1, events.EventTypeIsarBattery, `{"battery_level":55.5}`)
	claim.msgs <- telemetryMessage(t, 2, events.EventTypeIsarPose, `{}`)
	claim.msgs <- &sarama.ConsumerMessage{Topic: testConfig.TelemetryTopic, Offset: 3, Value: []byte("not json")}
	claim.msgs <- telemetryMessage(t, 4, events.EventTypeIsarMission, `{}`)
	close(claim.msgs)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	assert.Equal(t, []int64{1, 2, 3, 4}, sess.marked, "every message is marked")
	require.Len(t, got, 1)
	assert.Equal(t, events.EventTypeIsarBattery, got[0].Type)
	assert.Equal(t, "isar-1", got[0].Key, "message key fills an empty envelope key")
	assert.JSONEq(t, `{"battery_level":55.5}`, string(got[0].Payload.(json.RawMessage)))

	assert.Equal(t, 1, metrics.consumed[testConfig.TelemetryTopic])
	assert.Equal(t, 2, metrics.conErrs[testConfig.TelemetryTopic])
}
