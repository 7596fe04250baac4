package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const defaultWorkerNum = 10

// Producer publishes engine events through a small worker pool so slow
// brokers never block the spin path.
type Producer struct {
	writer    *kafka.Writer
	logger    zerolog.Logger
	topics    map[string]string
	jobs      chan kafka.Message
	workerNum int
	wg        sync.WaitGroup
}

// ProducerConfig holds configuration for the Kafka producer
type ProducerConfig struct {
	Brokers   []string
	Topics    map[string]string
	Logger    zerolog.Logger
	WorkerNum int
}

// NewProducer creates a producer and starts its workers. A nil producer is
// returned when no brokers are configured; all publish methods tolerate it.
func NewProducer(config ProducerConfig) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		Async:        false,
	}

	workerNum := config.WorkerNum
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}

	p := &Producer{
		writer:    writer,
		logger:    config.Logger.With().Str("component", "kafka-producer").Logger(),
		topics:    config.Topics,
		jobs:      make(chan kafka.Message, 100),
		workerNum: workerNum,
	}

	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p, nil
}

func (p *Producer) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		func() {
			defer p.recover()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Failed to send message to Kafka")
			} else {
				p.logger.Debug().
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Message sent to Kafka")
			}
		}()
	}
}

// PublishSpin enqueues a spin event keyed by user.
func (p *Producer) PublishSpin(event SpinEvent) error {
	return p.send(TopicSpins, event.UserID, event)
}

// PublishPrizeClaimed enqueues a claim event keyed by prize.
func (p *Producer) PublishPrizeClaimed(event PrizeClaimedEvent) error {
	return p.send(TopicPrizes, event.PrizeID, event)
}

// PublishPoolUpdate enqueues a pool change keyed by pool id.
func (p *Producer) PublishPoolUpdate(event PoolUpdateEvent) error {
	return p.send(TopicPoolUpdates, fmt.Sprintf("%d", event.PoolID), event)
}

// send enqueues one message for the worker pool (async).
func (p *Producer) send(topicKey, key string, value interface{}) error {
	if p == nil {
		return nil
	}
	topic, ok := p.topics[topicKey]
	if !ok || topic == "" {
		return nil
	}

	eventBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.jobs <- kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}
	return nil
}

// Close drains the workers and closes the writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	close(p.jobs)
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka producer")
		return err
	}
	return nil
}

func (p *Producer) recover() {
	if r := recover(); r != nil {
		stack := debug.Stack()
		p.logger.Error().
			Str("operation", "send_message_kafka").
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack_trace", string(stack)).
			Msg("Panic recovered")
	}
}
