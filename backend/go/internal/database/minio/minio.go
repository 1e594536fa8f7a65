package minio

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient 创建 MinIO 客户端。cfg.Endpoint 为空时返回 (nil, nil)，表示未启用对象存储来源。
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create minio client: %w", err)
	}
	if err := HealthCheck(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// HealthCheck 通过列出存储桶验证连通性与认证。
func HealthCheck(ctx context.Context, c *minio.Client) error {
	if c == nil {
		return fmt.Errorf("minio client is not initialized")
	}
	if _, err := c.ListBuckets(ctx); err != nil {
		return fmt.Errorf("minio health check failed: %w", err)
	}
	return nil
}
