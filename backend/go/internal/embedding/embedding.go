package embedding

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	ragerr "agentic_rag/backend/go/pkg/errors"
)

// NewEmdModel 根据提供商创建一个未经包装的 Embedding 模型实例。
//
// 参数:
//
//	provider: 提供商 ("gemini", "openai", "huggingface", "ollama", "hashing")。
//	model: 要使用的模型名称。
//	apiKey: 模型的 API 密钥。
//	baseURL: 服务基础 URL (可选)。
//	dims: hashing 提供商的向量维度，其余提供商忽略。
func NewEmdModel(ctx context.Context, provider, model, apiKey, baseURL string, dims int) (Embedding, error) {
	switch ModelType(provider) {
	case Gemini, "google":
		return NewGoogleModel(ctx, model, apiKey)
	case OpenAI:
		return NewOpenAIModel(model, apiKey, baseURL)
	case HuggingFace:
		return NewHuggingFaceModel(model, apiKey, baseURL)
	case Ollama:
		return NewOllamaModel(model, baseURL)
	case Hashing:
		return NewHashingModel(dims)
	default:
		return nil, ragerr.New(ragerr.CodeConfigInvalid, fmt.Sprintf("unsupported embedding provider: %s", provider))
	}
}

// FromConfig 按配置组装完整的 embedding 能力：
// 提供商模型，外加超时与熔断，再加查询缓存 (cacheSize > 0 时)。
func FromConfig(ctx context.Context, cfg config.EmbeddingConfig, cb config.CircuitBreakerConfig) (Embedding, error) {
	base, err := NewEmdModel(ctx, cfg.Provider, cfg.Model, cfg.APIKey, cfg.BaseURL, cfg.Dimensions)
	if err != nil {
		return nil, err
	}

	var breaker *circuitbreaker.Breaker
	if cb.Enabled {
		breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout.Std())
	}
	var model Embedding = NewGuardedModel(base, cfg.Provider, cfg.Timeout.Std(), breaker)

	if cfg.CacheSize > 0 {
		cached, err := NewCachedModel(model, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		model = cached
	}
	return model, nil
}

func errDims(dims int) error {
	return ragerr.New(ragerr.CodeConfigInvalid, fmt.Sprintf("embedding dimensions must be positive, got %d", dims))
}
