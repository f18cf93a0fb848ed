package kafka

import (
	"context"
	"fmt"
	"slices"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/infra/eventbus/kafka/tracing"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

var (
	_ events.DomainEventPublisher  = (*EventBus)(nil)
	_ events.DomainEventSubscriber = (*EventBus)(nil)
)

// EventBus publishes notifications and delivers robot agent reports over
// Kafka. Every published event goes to the notification topic; every
// subscription reads the telemetry topic.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	notificationTopic string
	telemetryTopic    string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics BrokerMetrics
}

// NewEventBus wires an EventBus over an existing producer and consumer
// group. A nil consumerGroup yields a publish-only bus.
func NewEventBus(
	producer sarama.SyncProducer,
	consumerGroup sarama.ConsumerGroup,
	cfg *Config,
	logger *logger.Logger,
	metrics BrokerMetrics,
	tracer trace.Tracer,
) *EventBus {
	return &EventBus{
		producer:          producer,
		consumerGroup:     consumerGroup,
		notificationTopic: cfg.NotificationTopic,
		telemetryTopic:    cfg.TelemetryTopic,
		logger:            logger.With("component", "kafka_event_bus"),
		tracer:            tracer,
		metrics:           metrics,
	}
}

// NewEventBusFromConfig dials the brokers and creates the producer and the
// consumer group.
func NewEventBusFromConfig(cfg *Config, logger *logger.Logger, metrics BrokerMetrics, tracer trace.Tracer) (*EventBus, error) {
	client, err := sarama.NewClient(cfg.Brokers, newSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return NewEventBus(producer, consumerGroup, cfg, logger, metrics, tracer), nil
}

// PublishDomainEvent sends evt to the notification topic. The key from opts
// or the event routes the message so one installation's notifications stay
// ordered.
func (k *EventBus) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	topic := k.notificationTopic
	ctx, span := tracing.StartProducerSpan(ctx, topic, string(evt.Type), k.tracer)
	defer span.End()

	params := events.ApplyOptions(evt, opts)
	span.SetAttributes(attribute.String("event.key", params.Key))

	value, err := encodeEvent(evt, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode event")
		k.incPublishError(ctx, topic)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if params.Key != "" {
		msg.Key = sarama.StringEncoder(params.Key)
	}
	for hk, hv := range params.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(hk), Value: []byte(hv)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		k.incPublishError(ctx, topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	if k.metrics != nil {
		k.metrics.IncMessagePublished(ctx, topic)
	}
	k.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_type", evt.Type,
		"key", params.Key,
	)
	return nil
}

func (k *EventBus) incPublishError(ctx context.Context, topic string) {
	if k.metrics != nil {
		k.metrics.IncPublishError(ctx, topic)
	}
}

// Subscribe consumes the telemetry topic in the background until ctx is
// done, passing events of the requested types to handler. Other types are
// acknowledged and skipped.
func (k *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	ctx, span := k.tracer.Start(ctx, "kafka_event_bus.subscribe",
		trace.WithAttributes(attribute.String("topic", k.telemetryTopic)))
	defer span.End()

	if k.consumerGroup == nil {
		err := fmt.Errorf("event bus has no consumer group")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	cgHandler := &consumerHandler{
		types:   slices.Clone(eventTypes),
		handler: handler,
		logger:  k.logger,
		tracer:  k.tracer,
		metrics: k.metrics,
	}
	go k.consumeLoop(context.WithoutCancel(ctx), ctx.Done(), cgHandler)

	k.logger.Info(ctx, "Subscribed to robot agent reports", "topic", k.telemetryTopic, "event_types", eventTypes)
	return nil
}

// consumeLoop rejoins the group after every rebalance until stop closes.
func (k *EventBus) consumeLoop(ctx context.Context, stop <-chan struct{}, h *consumerHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	topics := []string{k.telemetryTopic}
	for {
		if err := k.consumerGroup.Consume(ctx, topics, h); err != nil {
			k.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close shuts down the producer and the consumer group.
func (k *EventBus) Close() error {
	if err := k.producer.Close(); err != nil {
		return err
	}
	if k.consumerGroup != nil {
		return k.consumerGroup.Close()
	}
	return nil
}

// consumerHandler implements sarama.ConsumerGroupHandler.
type consumerHandler struct {
	types   []events.EventType
	handler events.HandlerFunc

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics BrokerMetrics
}

func (h *consumerHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(), "Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *consumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(), "Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim hands each message of the claim to handleMessage and marks
// it consumed whatever the outcome; reports are not redelivered.
func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.logger.Info(sess.Context(), "Starting to consume from partition",
		"partition", claim.Partition(),
		"member_id", sess.MemberID(),
	)

	for msg := range claim.Messages() {
		h.handleMessage(sess.Context(), msg)
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (h *consumerHandler) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	ctx = tracing.ExtractTraceContext(ctx, msg)
	ctx, span := tracing.StartConsumerSpan(ctx, msg, h.tracer)
	defer span.End()

	evt, err := decodeEvent(msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable message")
		h.incConsumeError(ctx, msg.Topic)
		h.logger.Warn(ctx, "Dropping undecodable message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return
	}
	if evt.Key == "" {
		evt.Key = string(msg.Key)
	}
	span.SetAttributes(attribute.String("event_type", string(evt.Type)))

	if len(h.types) > 0 && !slices.Contains(h.types, evt.Type) {
		return
	}

	if err := h.handler(ctx, evt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		h.incConsumeError(ctx, msg.Topic)
		h.logger.Error(ctx, "Failed to handle message", "event_type", evt.Type, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncMessageConsumed(ctx, msg.Topic)
	}
}

func (h *consumerHandler) incConsumeError(ctx context.Context, topic string) {
	if h.metrics != nil {
		h.metrics.IncConsumeError(ctx, topic)
	}
}
