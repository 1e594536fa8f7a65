package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentic_rag/backend/go/pkg/circuitbreaker"
	ragerr "agentic_rag/backend/go/pkg/errors"
)

// GuardedModel 为外部 embedding 调用加上超时、熔断和结果校验，
// 所有失败统一包装为 EMBEDDING_ERROR。
type GuardedModel struct {
	next    Embedding
	name    string
	timeout time.Duration
	breaker *circuitbreaker.Breaker // 为 nil 时不熔断
}

// NewGuardedModel 包装 next。timeout 为 0 表示只使用调用方的 ctx。
func NewGuardedModel(next Embedding, name string, timeout time.Duration, breaker *circuitbreaker.Breaker) *GuardedModel {
	return &GuardedModel{next: next, name: name, timeout: timeout, breaker: breaker}
}

func (m *GuardedModel) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.call(ctx, 1, func(ctx context.Context) ([][]float32, error) {
		vec, err := m.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *GuardedModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return m.call(ctx, len(texts), func(ctx context.Context) ([][]float32, error) {
		return m.next.EmbedBatch(ctx, texts)
	})
}

func (m *GuardedModel) call(ctx context.Context, want int, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	run := func() ([][]float32, error) {
		vecs, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return vecs, validate(vecs, want)
	}

	var (
		vecs [][]float32
		err  error
	)
	if m.breaker != nil {
		vecs, err = circuitbreaker.Do(m.breaker, run)
	} else {
		vecs, err = run()
	}
	if err == nil {
		return vecs, nil
	}

	if ragerr.CodeOf(err) != "" {
		return nil, err
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return nil, ragerr.Wrap(err, ragerr.CodeEmbedding, fmt.Sprintf("%s embedding unavailable", m.name), ragerr.Field("circuit", "open"))
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ragerr.Wrap(err, ragerr.CodeEmbedding, fmt.Sprintf("%s embedding timed out", m.name))
	default:
		return nil, ragerr.Wrap(err, ragerr.CodeEmbedding, fmt.Sprintf("%s embedding failed", m.name))
	}
}

// validate 检查返回数量以及批内维度是否一致。
func validate(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return ragerr.New(ragerr.CodeEmbedding, fmt.Sprintf("expected %d embeddings, got %d", want, len(vecs)))
	}
	dim := len(vecs[0])
	if dim == 0 {
		return ragerr.New(ragerr.CodeEmbedding, "empty embedding vector")
	}
	for i, v := range vecs {
		if len(v) != dim {
			return ragerr.New(ragerr.CodeDimensionMismatch,
				fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(v), dim))
		}
	}
	return nil
}

var _ Embedding = (*GuardedModel)(nil)
