package redis

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewClient 创建 Redis 客户端并用 Ping 验证连接。
// 客户端由调用方持有并负责关闭。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := HealthCheck(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// HealthCheck 检查 Redis 连接的健康状况。
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cannot reach redis at %s: %w", rdb.Options().Addr, err)
	}
	return nil
}
