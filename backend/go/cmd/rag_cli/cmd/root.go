package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"agentic_rag/backend/go/internal/orchestrator"
	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// errFailed marks a command whose failure was already reported to the user.
var errFailed = errors.New("request failed")

type options struct {
	transport     string
	serverCmd     string
	serverArgs    []string
	url           string
	brokers       []string
	requestTopic  string
	responseTopic string
	timeout       time.Duration
	topK          int
	sources       bool
	verbose       bool

	// dial is replaced in tests.
	dial func(ctx context.Context, o *options, log *logger.Logger) (protocol.Transport, func(), error)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{dial: dial})
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "rag_cli",
		Short:         "A CLI client for the RAG agents",
		Long:          `Ingest documents and ask questions about them through the ingestion and QA agents of rag_agent_server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&o.transport, "transport", "t", "stdio", "Transport: stdio, sse, httpstream, http, or kafka")
	f.StringVar(&o.serverCmd, "server-cmd", "rag_agent_server", "Server command started by the stdio transport")
	f.StringSliceVar(&o.serverArgs, "server-args", nil, "Arguments for --server-cmd")
	f.StringVar(&o.url, "url", "", "Server URL for the sse, httpstream and http transports")
	f.StringSliceVar(&o.brokers, "brokers", []string{"localhost:9092"}, "Kafka brokers")
	f.StringVar(&o.requestTopic, "request-topic", "rag.agent.requests", "Kafka request topic")
	f.StringVar(&o.responseTopic, "response-topic", "rag.agent.responses", "Kafka response topic")
	f.DurationVar(&o.timeout, "timeout", protocol.DefaultTimeout, "How long to wait for each agent response")
	f.IntVarP(&o.topK, "top-k", "k", 0, "Number of source chunks to retrieve (0 uses the server default)")
	f.BoolVar(&o.sources, "sources", false, "Print the source chunks used for an answer")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log protocol activity to stderr")

	root.AddCommand(newIngestCmd(o), newAskCmd(o), newChatCmd(o))
	return root
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		}
		os.Exit(1)
	}
}

// withSession connects, runs fn and disconnects.
func (o *options) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *orchestrator.Session) (orchestrator.Outcome, error)) error {
	level := logrus.WarnLevel
	if o.verbose {
		level = logrus.DebugLevel
	}
	logger.Init(level)
	log := logger.New("rag_cli", "", "")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	t, closeFn, err := o.dial(ctx, o, log)
	if err != nil {
		return err
	}
	defer closeFn()

	client := protocol.NewClient(t, "StreamlitUI",
		protocol.WithTimeout(o.timeout), protocol.WithClientLogger(log))
	session := orchestrator.NewSession(client, orchestrator.WithTopK(o.topK), orchestrator.WithLogger(log))

	out, err := fn(ctx, session)
	if err != nil {
		log.WithTraceID(out.TraceID).WithError(err).Error("Request failed")
	}
	o.print(cmd.OutOrStdout(), out, err)
	if err != nil || !out.OK() {
		return errFailed
	}
	return nil
}

func (o *options) print(w io.Writer, out orchestrator.Outcome, err error) {
	if err != nil {
		fmt.Fprintln(w, orchestrator.Apology)
		return
	}
	fmt.Fprintln(w, out.Reply())
	if o.sources && out.Asked && out.OK() && len(out.Answer.SourceChunks) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, chunk := range out.Answer.SourceChunks {
			fmt.Fprintf(w, "[%d] %s\n", i+1, strings.TrimSpace(chunk))
		}
	}
}
