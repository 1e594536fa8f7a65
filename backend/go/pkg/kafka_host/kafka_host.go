// Package kafka_host 提供基于 kafka-go 的发布与消费循环。
package kafka_host

import (
	"context"
	"errors"
	"fmt"
	"io"

	"agentic_rag/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Writer 是 *kafka.Writer 的最小接口，便于在测试中替换。
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader 是 *kafka.Reader 的最小接口。
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 负责向一个主题写入消息。
type Publisher struct {
	writer Writer
	topic  string
	log    *logger.Logger
}

// NewPublisher 创建 Publisher。topic 仅用于日志。
func NewPublisher(w Writer, topic string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{writer: w, topic: topic, log: log}
}

// Publish 以 key 写入一条消息，同一个 key 的消息保持顺序。
func (p *Publisher) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.log.WithError(err).WithPayload(map[string]interface{}{"topic": p.topic, "key": key}).
			Error("Failed to write message to Kafka")
		return fmt.Errorf("writing to %s: %w", p.topic, err)
	}
	return nil
}

// Close 关闭底层 writer。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Handler 处理一条消息。返回的错误只记录日志，消息仍会被提交。
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer 从一个主题中循环读取消息。
type Consumer struct {
	reader Reader
	log    *logger.Logger
	commit bool
}

// configuredReader 由 *kafka.Reader 实现，用于判断是否属于消费者组。
type configuredReader interface {
	Config() kafka.ReaderConfig
}

// NewConsumer 创建 Consumer。未设置 GroupID 的 *kafka.Reader 不支持提交 offset，此时跳过提交。
func NewConsumer(r Reader, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	commit := true
	if cr, ok := r.(configuredReader); ok && cr.Config().GroupID == "" {
		commit = false
	}
	return &Consumer{reader: r, log: log, commit: commit}
}

// Run 阻塞运行直到 ctx 结束或 reader 被关闭，依次处理每条消息。属于消费者组时逐条提交。
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("Stopping Kafka consumer...")
				return nil
			}
			if errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.WithError(err).Error("Error fetching message from Kafka")
			return fmt.Errorf("fetching kafka message: %w", err)
		}

		if err := handle(ctx, msg); err != nil {
			c.log.WithError(err).WithPayload(map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Error handling Kafka message")
		}

		if !c.commit {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Error("Failed to commit Kafka message")
		}
	}
}

// Close 关闭底层 reader。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
