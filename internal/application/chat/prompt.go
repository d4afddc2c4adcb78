package chat

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"needle-api/internal/domain/entity"
)

const chunkTextMaxChars = 1200

const systemPrompt = "You are a research assistant. Answer the question using ONLY the provided context. " +
	"If the context is not sufficient, say you don't know. " +
	"Cite sources inline as [1], [2], etc. matching the numbered context chunks."

// Citation 助手回答引用的知识库分块
type Citation struct {
	Index   int     `json:"index"`
	Title   string  `json:"title"`
	Authors string  `json:"authors,omitempty"`
	Link    string  `json:"link,omitempty"`
	Score   float32 `json:"score"`
}

// buildContext 将召回分块编号拼装为上下文块，同时产出引用元数据
func buildContext(chunks []*entity.KBChunk, scores []float32) (string, []*Citation) {
	blocks := make([]string, 0, len(chunks))
	cites := make([]*Citation, 0, len(chunks))

	for i, c := range chunks {
		if c == nil {
			continue
		}
		text := c.Text
		if strings.TrimSpace(text) == "" {
			text = c.Summary
		}
		if len(text) > chunkTextMaxChars {
			text = text[:chunkTextMaxChars]
		}

		n := len(cites) + 1
		blocks = append(blocks, fmt.Sprintf("[%d] %s - %s\n%s", n, c.Title, c.Authors, text))

		cite := &Citation{
			Index:   n,
			Title:   c.Title,
			Authors: c.Authors,
			Link:    c.Link,
		}
		if i < len(scores) {
			cite.Score = scores[i]
		}
		cites = append(cites, cite)
	}

	return strings.Join(blocks, "\n\n"), cites
}

// buildMessages 组装发给模型的消息：系统指令、近期历史、新问题与召回上下文
func buildMessages(history []*entity.ConversationTurn, message, contextStr string) []*schema.Message {
	snippets := make([]string, 0, len(history))
	for _, t := range history {
		if t == nil {
			continue
		}
		prefix := "User"
		if t.Role == entity.RoleAssistant {
			prefix = "Assistant"
		}
		snippets = append(snippets, prefix+": "+t.Content)
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(strings.Join(snippets, "\n"))
	b.WriteString("\n\nNew user question: ")
	b.WriteString(message)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextStr)
	b.WriteString("\n\nAnswer:")

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(b.String()),
	}
}
