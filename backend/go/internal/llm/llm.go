package llm

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	ragerr "agentic_rag/backend/go/pkg/errors"
)

// LLM 定义了回答生成能力：输入一段完整的提示词，返回模型的文本回答。
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewClient 根据提供商创建一个未经包装的 LLM 客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini", "google":
		return NewGemini(ctx, cfg.Model, cfg.APIKey, cfg.Temperature)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL, cfg.Temperature)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL, cfg.Temperature)
	default:
		return nil, ragerr.New(ragerr.CodeConfigInvalid, fmt.Sprintf("unsupported LLM provider: %s", cfg.Provider))
	}
}

// FromConfig 创建客户端并加上超时与熔断保护。
func FromConfig(ctx context.Context, cfg config.LLMConfig, cb config.CircuitBreakerConfig) (LLM, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var breaker *circuitbreaker.Breaker
	if cb.Enabled {
		breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout.Std())
	}
	return NewGuarded(client, cfg.Provider, cfg.Timeout.Std(), breaker), nil
}
