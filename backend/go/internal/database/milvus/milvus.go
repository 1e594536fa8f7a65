package milvus

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
)

// NewClient 连接 Milvus。客户端由调用方持有并负责关闭。
func NewClient(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus address is not configured")
	}
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to milvus at %s: %w", cfg.Address, err)
	}
	return c, nil
}
