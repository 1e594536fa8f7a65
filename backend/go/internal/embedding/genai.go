package embedding

import (
	"context"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiMaxBatch 是 BatchEmbedContents 单次请求允许的最大条数。
const geminiMaxBatch = 100

// GoogleModel 是一个用于 Google GenAI Embedding API 的客户端。
type GoogleModel struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewGoogleModel 创建并返回一个新的 GoogleModel 客户端实例。
//
// 参数:
//
//	ctx: 用于建立客户端连接的上下文。
//	modelName: 要使用的 Embedding 模型名称，例如 "models/text-embedding-004"。
//	apiKey: Google GenAI 的 API 密钥。
func NewGoogleModel(ctx context.Context, modelName, apiKey string) (*GoogleModel, error) {
	if apiKey == "" {
		return nil, ragerr.New(ragerr.CodeConfigInvalid, "gemini embedding needs an API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeEmbedding, "creating gemini client")
	}
	return &GoogleModel{client: client, model: client.EmbeddingModel(modelName)}, nil
}

// Embed 为单个文本生成嵌入向量。
func (m *GoogleModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, ragerr.New(ragerr.CodeEmbedding, "gemini returned no embedding")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch 按 geminiMaxBatch 拆分请求，保证输出顺序与输入一致。
func (m *GoogleModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := start + geminiMaxBatch
		if end > len(texts) {
			end = len(texts)
		}

		batch := m.model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		res, err := m.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, emb := range res.Embeddings {
			embeddings = append(embeddings, emb.Values)
		}
	}
	return embeddings, nil
}

// Close 释放底层 gRPC 连接。
func (m *GoogleModel) Close() error {
	return m.client.Close()
}

var _ Embedding = (*GoogleModel)(nil)
