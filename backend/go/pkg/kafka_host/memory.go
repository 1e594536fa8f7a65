package kafka_host

import (
	"context"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MemoryTopic 是一个进程内的单分区主题，同时实现 Reader 和 Writer。
// 用于测试以及不部署 Kafka 的单机运行。
type MemoryTopic struct {
	name string

	mu     sync.Mutex
	queue  []kafka.Message
	offset int64
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

var (
	_ Reader = (*MemoryTopic)(nil)
	_ Writer = (*MemoryTopic)(nil)
)

func NewMemoryTopic(name string) *MemoryTopic {
	return &MemoryTopic{
		name:   name,
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (t *MemoryTopic) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	t.mu.Lock()
	for _, m := range msgs {
		m.Topic = t.name
		m.Offset = t.offset
		t.offset++
		t.queue = append(t.queue, m)
	}
	t.mu.Unlock()

	select {
	case t.ready <- struct{}{}:
	default:
	}
	return nil
}

func (t *MemoryTopic) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			m := t.queue[0]
			t.queue = t.queue[1:]
			more := len(t.queue) > 0
			t.mu.Unlock()
			if more {
				select {
				case t.ready <- struct{}{}:
				default:
				}
			}
			return m, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-t.closed:
			return kafka.Message{}, io.EOF
		case <-t.ready:
		}
	}
}

func (t *MemoryTopic) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (t *MemoryTopic) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
