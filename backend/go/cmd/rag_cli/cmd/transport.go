package cmd

import (
	"context"
	"fmt"
	"os"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/internal/database/kafka"
	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/internal/protocol/transport"
	rhttp "agentic_rag/backend/go/pkg/http"
	"agentic_rag/backend/go/pkg/kafka_host"
	"agentic_rag/backend/go/pkg/logger"
	"agentic_rag/backend/go/pkg/mcp_host"
)

var defaultURLs = map[string]string{
	"sse":        "http://localhost:8080/sse",
	"httpstream": "http://localhost:8080/mcp",
	"http":       "http://localhost:8090",
}

// dial opens the selected transport. The returned func releases it.
func dial(ctx context.Context, o *options, log *logger.Logger) (protocol.Transport, func(), error) {
	url := o.url
	if url == "" {
		url = defaultURLs[o.transport]
	}

	switch o.transport {
	case "stdio", "sse", "httpstream":
		host := mcp_host.NewHost()
		err := host.Connect(ctx, mcp_host.ConnectOptions{
			ServerName:    protocol.ServerName,
			TransportType: o.transport,
			Command:       o.serverCmd,
			Args:          o.serverArgs,
			URL:           url,
			Env:           os.Environ(),
		})
		if err != nil {
			return nil, nil, err
		}
		return transport.NewMCP(host), func() { _ = host.CloseAll() }, nil

	case "http":
		return transport.NewHTTP(url, rhttp.NewClient(nil)), func() {}, nil

	case "kafka":
		kc := config.KafkaTransportConfig{Brokers: o.brokers, RequestTopic: o.requestTopic, ResponseTopic: o.responseTopic}
		requests := kafka_host.NewPublisher(kafka.NewWriter(kc, kc.RequestTopic), kc.RequestTopic, log)
		responses := kafka_host.NewConsumer(kafka.NewReader(kc, kc.ResponseTopic, ""), log)
		t := transport.NewKafka(requests, responses, log)

		listenCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := t.Listen(listenCtx); err != nil {
				log.WithError(err).Error("Response listener stopped")
			}
		}()
		return t, func() {
			cancel()
			<-done
			_ = requests.Close()
			_ = responses.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q, use stdio, sse, httpstream, http, or kafka", o.transport)
	}
}
