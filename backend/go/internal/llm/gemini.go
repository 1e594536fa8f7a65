package llm

import (
	"context"
	"strings"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 每次调用都是独立的单轮请求，不保留对话历史。
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于建立客户端连接。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//	temperature: 采样温度。
func NewGemini(ctx context.Context, model, apiKey string, temperature float32) (*Gemini, error) {
	if apiKey == "" {
		return nil, ragerr.New(ragerr.CodeConfigInvalid, "gemini LLM needs an API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	generativeModel := client.GenerativeModel(model)
	generativeModel.SetTemperature(temperature)
	return &Gemini{client: client, model: generativeModel}, nil
}

// Generate 发送提示词并拼接第一个候选回答中的所有文本部分。
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ragerr.New(ragerr.CodeGeneration, "gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close 释放底层连接。
func (g *Gemini) Close() error {
	return g.client.Close()
}

var _ LLM = (*Gemini)(nil)
