package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingModel 是一个本地的特征哈希 embedding：每个词经 FNV-1a 映射到固定维度
// 的某一维并按哈希符号位累加，最后做 L2 归一化。结果只依赖输入文本，适用于
// 离线运行和测试，不具备语义能力。
type HashingModel struct {
	dims int
}

// NewHashingModel 创建一个 dims 维的 HashingModel。
func NewHashingModel(dims int) (*HashingModel, error) {
	if dims <= 0 {
		return nil, errDims(dims)
	}
	return &HashingModel{dims: dims}, nil
}

// Dimensions 返回向量维度。
func (m *HashingModel) Dimensions() int {
	return m.dims
}

func (m *HashingModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.vector(text), nil
}

func (m *HashingModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *HashingModel) vector(text string) []float32 {
	vec := make([]float32, m.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(m.dims))
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

var _ Embedding = (*HashingModel)(nil)
