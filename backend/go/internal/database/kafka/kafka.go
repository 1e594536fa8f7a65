package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"agentic_rag/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
)

// EnsureTopics 连接第一个 broker 的控制器，创建缺失的主题。
func EnsureTopics(ctx context.Context, cfg config.KafkaTransportConfig, topics ...string) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial failed: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("cannot find kafka controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller dial failed: %w", err)
	}
	defer ctrl.Close()

	partitions, err := ctrl.ReadPartitions()
	if err != nil {
		return fmt.Errorf("cannot read kafka partitions: %w", err)
	}
	existing := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var missing []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := existing[topic]; !ok {
			missing = append(missing, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := ctrl.CreateTopics(missing...); err != nil {
		return fmt.Errorf("creating kafka topics: %w", err)
	}
	return nil
}

// NewWriter 创建写入指定主题的 writer。消息使用 Hash 均衡器，同一个 key 总是落在同一分区。
func NewWriter(cfg config.KafkaTransportConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewReader 创建消费指定主题的 reader。groupID 为空时直接读取分区 0 的最新消息。
func NewReader(cfg config.KafkaTransportConfig, topic, groupID string) *kafka.Reader {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
		MaxAttempts: 10,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second},
	}
	if groupID == "" {
		rc.StartOffset = kafka.LastOffset
	}
	return kafka.NewReader(rc)
}
