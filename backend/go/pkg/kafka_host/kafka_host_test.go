package kafka_host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishConsumeInOrder(t *testing.T) {
	topic := NewMemoryTopic("requests")
	pub := NewPublisher(topic, "requests", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, pub.Publish(ctx, "k", []byte(v)))
	}

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(topic, nil).Run(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			got = append(got, string(m.Value))
			n := len(got)
			mu.Unlock()
			if n == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestConsumerKeepsGoingAfterHandlerError(t *testing.T) {
	topic := NewMemoryTopic("t")
	ctx := context.Background()
	require.NoError(t, topic.WriteMessages(ctx, kafka.Message{Value: []byte("bad")}, kafka.Message{Value: []byte("good")}))

	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(topic, nil).Run(ctx, func(_ context.Context, m kafka.Message) error {
			seen = append(seen, string(m.Value))
			if string(m.Value) == "bad" {
				return errors.New("cannot handle")
			}
			_ = topic.Close()
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err, "closing the reader ends the loop cleanly")
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []string{"bad", "good"}, seen)
}

func TestWriteAfterClose(t *testing.T) {
	topic := NewMemoryTopic("t")
	require.NoError(t, topic.Close())
	err := NewPublisher(topic, "t", nil).Publish(context.Background(), "k", []byte("v"))
	assert.Error(t, err)
}

// groupTopic reports a reader config like *kafka.Reader and counts commits.
type groupTopic struct {
	*MemoryTopic
	group   string
	commits int
}

func (g *groupTopic) Config() kafka.ReaderConfig { return kafka.ReaderConfig{GroupID: g.group} }

func (g *groupTopic) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if g.group == "" {
		return errors.New("unavailable when GroupID is not set")
	}
	g.commits += len(msgs)
	return nil
}

func TestConsumerCommitsOnlyInGroup(t *testing.T) {
	for _, group := range []string{"", "rag-agents"} {
		topic := &groupTopic{MemoryTopic: NewMemoryTopic("t"), group: group}
		ctx := context.Background()
		require.NoError(t, topic.WriteMessages(ctx, kafka.Message{Value: []byte("a")}, kafka.Message{Value: []byte("b")}))

		seen := 0
		err := NewConsumer(topic, nil).Run(ctx, func(context.Context, kafka.Message) error {
			seen++
			if seen == 2 {
				_ = topic.Close()
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, seen)
		if group == "" {
			assert.Zero(t, topic.commits)
		} else {
			assert.Equal(t, 2, topic.commits)
		}
	}
}

func TestConsumerSkipsCommitForReaderWithoutGroup(t *testing.T) {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: []string{"localhost:9092"}, Topic: "responses"})
	defer r.Close()
	assert.False(t, NewConsumer(r, nil).commit)
	assert.True(t, NewConsumer(NewMemoryTopic("t"), nil).commit)
}
