package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"agentic_rag/backend/go/internal/orchestrator"

	"github.com/spf13/cobra"
)

func newIngestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file-path]",
		Short: "Index a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := absRef(args[0])
			return o.withSession(cmd, func(ctx context.Context, s *orchestrator.Session) (orchestrator.Outcome, error) {
				return s.Ingest(ctx, ref)
			})
		},
	}
}

func newAskCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return o.withSession(cmd, func(ctx context.Context, s *orchestrator.Session) (orchestrator.Outcome, error) {
				return s.Ask(ctx, query)
			})
		},
	}
}

func newChatCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [file-path] [question]",
		Short: "Index a document, then ask a question about it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := absRef(args[0])
			query := strings.Join(args[1:], " ")
			return o.withSession(cmd, func(ctx context.Context, s *orchestrator.Session) (orchestrator.Outcome, error) {
				return s.IngestAndAsk(ctx, ref, query)
			})
		},
	}
}

// absRef makes local paths absolute. URLs and object references pass through.
func absRef(ref string) string {
	if strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref
	}
	if abs, err := filepath.Abs(ref); err == nil {
		return abs
	}
	return ref
}
