package chat

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/domain/entity"
)

func testChunk(title, text string) *entity.KBChunk {
	return &entity.KBChunk{
		ChunkID: "doc_0",
		DocID:   "doc",
		Title:   title,
		Authors: "Jane Doe",
		Link:    "https://arxiv.org/pdf/2104.08653",
		Text:    text,
	}
}

func TestBuildContextNumbering(t *testing.T) {
	chunks := []*entity.KBChunk{
		testChunk("First Paper", "alpha text"),
		nil,
		testChunk("Second Paper", "beta text"),
	}
	contextStr, cites := buildContext(chunks, []float32{0.9, 0.5, 0.3})

	// nil 分块被跳过，编号保持连续
	require.Len(t, cites, 2)
	assert.Equal(t, 1, cites[0].Index)
	assert.Equal(t, 2, cites[1].Index)
	assert.Contains(t, contextStr, "[1] First Paper - Jane Doe\nalpha text")
	assert.Contains(t, contextStr, "[2] Second Paper - Jane Doe\nbeta text")

	assert.InDelta(t, 0.9, cites[0].Score, 1e-6)
	assert.InDelta(t, 0.3, cites[1].Score, 1e-6)
	assert.Equal(t, "https://arxiv.org/pdf/2104.08653", cites[0].Link)
}

func TestBuildContextTruncatesLongChunks(t *testing.T) {
	long := strings.Repeat("x", 5000)
	contextStr, _ := buildContext([]*entity.KBChunk{testChunk("Long", long)}, nil)

	assert.LessOrEqual(t, len(contextStr), chunkTextMaxChars+200)
	assert.NotContains(t, contextStr, strings.Repeat("x", chunkTextMaxChars+1))
}

func TestBuildContextFallsBackToSummary(t *testing.T) {
	c := testChunk("Paper", "  ")
	c.Summary = "summary text"
	contextStr, _ := buildContext([]*entity.KBChunk{c}, nil)

	assert.Contains(t, contextStr, "summary text")
}

func TestBuildMessagesAssembly(t *testing.T) {
	history := []*entity.ConversationTurn{
		{Role: entity.RoleUser, Content: "hello"},
		{Role: entity.RoleAssistant, Content: "hi, how can I help?"},
	}

	msgs := buildMessages(history, "what is attention?", "[1] Paper - Doe\nsome text")
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ONLY the provided context")
	assert.Contains(t, msgs[0].Content, "[1], [2]")

	assert.Equal(t, schema.User, msgs[1].Role)
	body := msgs[1].Content
	assert.Contains(t, body, "User: hello")
	assert.Contains(t, body, "Assistant: hi, how can I help?")
	assert.Contains(t, body, "New user question: what is attention?")
	assert.Contains(t, body, "Context:\n[1] Paper - Doe")
	assert.True(t, strings.HasSuffix(body, "Answer:"))

	// 历史在前，新问题在后
	assert.Less(t, strings.Index(body, "User: hello"), strings.Index(body, "New user question"))
}

func TestBuildMessagesEmptyHistory(t *testing.T) {
	msgs := buildMessages(nil, "q", "ctx")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "New user question: q")
}
