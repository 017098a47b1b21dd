package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
)

// KafkaProducer publishes descriptors keyed by job id.
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, unavailable(err, "queue.kafka")
	}
	return newKafkaProducer(p, topic), nil
}

func newKafkaProducer(p sarama.SyncProducer, topic string) *KafkaProducer {
	return &KafkaProducer{producer: p, topic: topic}
}

func (p *KafkaProducer) Enqueue(ctx context.Context, d models.Descriptor) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(d.ID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return unavailable(err, "queue.enqueue")
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

// KafkaConsumer joins a consumer group once per slot. Offsets are marked only
// after the handler succeeds or the descriptor has been republished for retry.
type KafkaConsumer struct {
	brokers     []string
	group       string
	topic       string
	maxAttempts int
	requeue     Producer
	log         *logger.Logger
}

type KafkaOptions struct {
	Brokers     []string
	Group       string
	Topic       string
	MaxAttempts int
}

// NewKafkaConsumer builds a consumer. Failed descriptors are republished
// through requeue.
func NewKafkaConsumer(opts KafkaOptions, requeue Producer, log *logger.Logger) *KafkaConsumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &KafkaConsumer{
		brokers:     opts.Brokers,
		group:       opts.Group,
		topic:       opts.Topic,
		maxAttempts: opts.MaxAttempts,
		requeue:     requeue,
		log:         log.WithComponent("queue"),
	}
}

func (c *KafkaConsumer) Consume(ctx context.Context, slot int, h Handler) error {
	config := sarama.NewConfig()
	config.ClientID = fmt.Sprintf("%s-%d", c.group, slot)
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(c.brokers, c.group, config)
	if err != nil {
		return unavailable(err, "queue.kafka")
	}
	defer group.Close()

	handler := &groupHandler{ctx: ctx, fn: h, consumer: c}
	for {
		if err := group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Warn("consumer group error, rejoining", "slot", slot, "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type groupHandler struct {
	ctx      context.Context
	fn       Handler
	consumer *KafkaConsumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if h.handle(msg) {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle runs the handler and reports whether the offset may be marked.
func (h *groupHandler) handle(msg *sarama.ConsumerMessage) bool {
	c := h.consumer
	d, err := decode(msg.Value)
	if err != nil {
		c.log.Error("dropping malformed descriptor", "offset", msg.Offset, "error", err.Error())
		return true
	}

	herr := h.fn(h.ctx, d)
	if herr == nil {
		return true
	}

	log := c.log.WithJobID(d.ID)
	if !retryable(d, c.maxAttempts) {
		log.Error("giving up on job", "attempt", d.Attempt+1, "error", herr.Error())
		return true
	}
	d.Attempt++
	if err := c.requeue.Enqueue(context.WithoutCancel(h.ctx), d); err != nil {
		log.Error("requeue failed, leaving offset unmarked", "error", err.Error())
		return false
	}
	log.Warn("job requeued", "attempt", d.Attempt, "error", herr.Error())
	return true
}
