package transport

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/protocol"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/kafka_host"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes requests keyed by trace id and matches replies read from the
// response topic by (trace id, response type). Listen must be running for any
// call to complete.
type Kafka struct {
	requests   *kafka_host.Publisher
	responses  *kafka_host.Consumer
	correlator *protocol.Correlator
	log        *logger.Logger
}

var _ protocol.Transport = (*Kafka)(nil)

func NewKafka(requests *kafka_host.Publisher, responses *kafka_host.Consumer, log *logger.Logger) *Kafka {
	if log == nil {
		log = logger.Discard()
	}
	return &Kafka{
		requests:   requests,
		responses:  responses,
		correlator: protocol.NewCorrelator(),
		log:        log,
	}
}

// Listen reads the response topic until ctx ends.
func (t *Kafka) Listen(ctx context.Context) error {
	return t.responses.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		resp, err := protocol.Decode(msg.Value)
		if err != nil {
			return err
		}
		if !t.correlator.Deliver(resp) {
			t.log.WithTraceID(resp.TraceID).Warn(fmt.Sprintf("Dropping %s nobody is waiting for", resp.Type))
		}
		return nil
	})
}

func (t *Kafka) RoundTrip(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	data, err := protocol.Encode(req)
	if err != nil {
		return protocol.Message{}, err
	}
	ch, cancel, err := t.correlator.Register(req.TraceID, req.Type.ResponseType())
	if err != nil {
		return protocol.Message{}, err
	}
	defer cancel()

	if err := t.requests.Publish(ctx, req.TraceID, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Message{}, ctxErr
		}
		return protocol.Message{}, ragerr.Wrap(err, ragerr.CodeProtocolTransport, "publishing request",
			ragerr.FieldTraceID(req.TraceID))
	}

	select {
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case resp := <-ch:
		return resp, nil
	}
}
