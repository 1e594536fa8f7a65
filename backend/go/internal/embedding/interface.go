package embedding

import "context"

// Embedding 定义了所有 embedding 模型需要实现的接口。
// 同一个实例返回的向量维度必须一致。
type Embedding interface {
	// Embed 为单个文本生成嵌入向量。
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 为一批文本生成嵌入向量，返回结果与输入一一对应。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType 表示不同的模型厂商。
type ModelType string

const (
	Gemini      ModelType = "gemini"      // Google Gemini 模型。
	OpenAI      ModelType = "openai"      // OpenAI 及兼容接口。
	Ollama      ModelType = "ollama"      // 本地 Ollama 服务。
	HuggingFace ModelType = "huggingface" // HuggingFace Inference API。
	Hashing     ModelType = "hashing"     // 本地确定性特征哈希，无需网络。
)
