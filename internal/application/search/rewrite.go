package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	einoobs "needle-api/internal/observability/eino"
)

// ModelProvider LLM 客户端依赖（port），由 llm.EinoFactory 提供实现
type ModelProvider interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
	ModelName(name string) string
	DefaultProvider() string
}

const rewriteSystemPrompt = "You are a research assistant helping to search for academic papers. " +
	"Given a user's question, rewrite it as a concise keyword query that would " +
	"work well in a scientific search engine like arXiv, Semantic Scholar, or Google Scholar. " +
	"Don't answer the question, only output the search query."

// rewritePrompt 用 LLM 将自然语言问题改写为检索关键词
// 调用指标由全局 Eino callbacks 记录
func (s *Service) rewritePrompt(ctx context.Context, prompt string) (string, error) {
	if s.models == nil {
		return "", fmt.Errorf("llm factory not configured")
	}

	chatModel, err := s.models.Get(ctx, "")
	if err != nil {
		return "", err
	}
	ctx = einoobs.WithProvider(ctx, s.models.DefaultProvider())

	msgs := []*schema.Message{
		schema.SystemMessage(rewriteSystemPrompt),
		schema.UserMessage("User question: " + strings.TrimSpace(prompt) + "\n\nSearch query:"),
	}

	outMsg, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if outMsg == nil {
		return "", fmt.Errorf("empty llm response")
	}

	// 模型偶尔会带引号或多行返回，只取压平后的内容
	query := strings.TrimSpace(outMsg.Content)
	query = strings.Trim(query, "\"'")
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return "", fmt.Errorf("empty rewritten query")
	}
	return query, nil
}
