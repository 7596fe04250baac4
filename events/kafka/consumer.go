package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// PoolUpdateHandler receives decoded pool updates from other nodes.
type PoolUpdateHandler func(event PoolUpdateEvent)

// Consumer reads pool updates published by sibling instances so every node
// can push fresh totals to its own stream listeners.
type Consumer struct {
	reader  *kafka.Reader
	handler PoolUpdateHandler
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Logger        zerolog.Logger
}

// NewConsumer creates a consumer. Returns nil when brokers or topic are not
// configured; Start and Stop tolerate a nil consumer.
func NewConsumer(config ConsumerConfig, handler PoolUpdateHandler) *Consumer {
	if len(config.Brokers) == 0 || config.Topic == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  config.Logger.With().Str("component", "kafka-consumer").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming messages
func (c *Consumer) Start() {
	if c == nil {
		return
	}
	c.wg.Add(1)
	go c.consume()
	c.logger.Info().Msg("Kafka consumer started")
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c == nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing Kafka reader")
		return err
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	for {
		msg, err := c.reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Msg("Failed to read Kafka message")
			continue
		}

		var event PoolUpdateEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn().
				Err(err).
				Str("key", string(msg.Key)).
				Msg("Skipping malformed pool update")
			continue
		}

		if c.handler != nil {
			c.handler(event)
		}
	}
}
