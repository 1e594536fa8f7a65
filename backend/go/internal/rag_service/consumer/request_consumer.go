package consumer

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/pkg/kafka_host"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// RequestConsumer serves agent requests arriving on a Kafka topic and publishes
// each response keyed by its trace id.
type RequestConsumer struct {
	requests   *kafka_host.Consumer
	responses  *kafka_host.Publisher
	dispatcher *protocol.Dispatcher
	log        *logger.Logger
}

// NewRequestConsumer creates a new RequestConsumer.
func NewRequestConsumer(requests *kafka_host.Consumer, responses *kafka_host.Publisher, d *protocol.Dispatcher, log *logger.Logger) *RequestConsumer {
	if log == nil {
		log = logger.Discard()
	}
	return &RequestConsumer{requests: requests, responses: responses, dispatcher: d, log: log}
}

// Run consumes requests until ctx ends. Requests are served one at a time.
func (c *RequestConsumer) Run(ctx context.Context) error {
	c.log.Info("Starting Kafka request consumer...")
	return c.requests.Run(ctx, c.handle)
}

func (c *RequestConsumer) handle(ctx context.Context, msg kafka.Message) error {
	req, err := protocol.Decode(msg.Value)
	if err != nil {
		// Without a valid envelope there is nobody to answer.
		return fmt.Errorf("dropping malformed request at offset %d: %w", msg.Offset, err)
	}
	resp, err := c.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	out, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	return c.responses.Publish(ctx, resp.TraceID, out)
}
