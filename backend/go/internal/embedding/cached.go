package embedding

import (
	"context"

	"agentic_rag/backend/go/pkg/util"
)

// CachedModel 为单条文本的 Embed 调用加一层 LRU 缓存，主要服务于重复的查询。
// EmbedBatch 直接透传，批量写入的文本通常不会重复。
type CachedModel struct {
	next  Embedding
	cache *util.LRUCache[string, []float32]
}

// NewCachedModel 用容量为 size 的 LRU 包装 next。
func NewCachedModel(next Embedding, size int) (*CachedModel, error) {
	cache, err := util.NewWithConfig[string, []float32](util.CacheConfig{Capacity: size})
	if err != nil {
		return nil, err
	}
	return &CachedModel{next: next, cache: cache}, nil
}

func (m *CachedModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := m.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := m.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.cache.Put(text, vec, 1)
	return vec, nil
}

func (m *CachedModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return m.next.EmbedBatch(ctx, texts)
}

var _ Embedding = (*CachedModel)(nil)
