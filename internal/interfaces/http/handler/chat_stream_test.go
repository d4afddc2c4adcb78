package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/application/chat"
	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/persistence/milvus"
	"needle-api/internal/interfaces/http/dto"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return []float32{0.5}, nil
}

type fakeVector struct{}

func (fakeVector) Search(context.Context, string, []float32, int) ([]*milvus.Hit, error) {
	return nil, nil
}

// fakeStreamModel 流式返回 chunks 条内容片段
type fakeStreamModel struct {
	chunks int
}

func (f *fakeStreamModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, errors.New("generate not supported in test")
}

func (f *fakeStreamModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, f.chunks)
	for i := 0; i < f.chunks; i++ {
		msgs = append(msgs, schema.AssistantMessage(fmt.Sprintf("chunk-%d ", i), nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type fakeModels struct {
	model model.BaseChatModel
}

func (f *fakeModels) Get(context.Context, string) (model.BaseChatModel, error) { return f.model, nil }

func (f *fakeModels) ModelName(string) string { return "test-model" }

func (f *fakeModels) DefaultProvider() string { return "openai" }

type fakeChunkRepo struct{}

func (fakeChunkRepo) UpsertBatch(context.Context, []*entity.KBChunk) error { return nil }

func (fakeChunkRepo) GetByIDs(context.Context, []string) ([]*entity.KBChunk, error) {
	return nil, nil
}

func (fakeChunkRepo) ListDocuments(context.Context) ([]*entity.KBDocument, error) { return nil, nil }

func (fakeChunkRepo) DeleteByDocID(context.Context, string) (int64, error) { return 0, nil }

func (fakeChunkRepo) DeleteAll(context.Context) error { return nil }

func (fakeChunkRepo) Count(context.Context) (int64, error) { return 0, nil }

type fakeSessionRepo struct {
	sessions map[string]*entity.ConversationSession
}

func (f *fakeSessionRepo) Create(_ context.Context, session *entity.ConversationSession) error {
	session.ID = fmt.Sprintf("session-%d", len(f.sessions)+1)
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (*entity.ConversationSession, error) {
	return f.sessions[id], nil
}

func (f *fakeSessionRepo) Update(_ context.Context, session *entity.ConversationSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) List(_ context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationSession], error) {
	return repository.NewPagedResult([]*entity.ConversationSession{}, 0, pagination), nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

type fakeTurnRepo struct {
	turns []*entity.ConversationTurn
}

func (f *fakeTurnRepo) Create(_ context.Context, turn *entity.ConversationTurn) error {
	turn.ID = fmt.Sprintf("turn-%d", len(f.turns)+1)
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeTurnRepo) ListBySession(_ context.Context, _ string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error) {
	return repository.NewPagedResult(f.turns, int64(len(f.turns)), pagination), nil
}

func (f *fakeTurnRepo) Recent(context.Context, string, int) ([]*entity.ConversationTurn, error) {
	return nil, nil
}

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type streamFixture struct {
	svc   *chat.Service
	turns *fakeTurnRepo
}

func newStreamFixture(chunks int) *streamFixture {
	f := &streamFixture{turns: &fakeTurnRepo{}}
	f.svc = chat.NewService(fakeEmbedder{}, fakeVector{},
		&fakeModels{model: &fakeStreamModel{chunks: chunks}}, fakeChunkRepo{},
		&fakeSessionRepo{sessions: map[string]*entity.ConversationSession{}}, f.turns,
		fakeTx{}, &config.ChatConfig{ContextTopK: 6, HistoryTurns: 6})
	return f
}

func (f *streamFixture) startTurn(t *testing.T, ctx context.Context) *chat.StreamTurn {
	t.Helper()
	session, err := f.svc.CreateSession(ctx, "test")
	require.NoError(t, err)
	turn, err := f.svc.StartStream(ctx, &chat.TurnInput{SessionID: session.ID, Message: "hello"})
	require.NoError(t, err)
	return turn
}

func TestPumpStreamDeliversChunksAndPersistsTurn(t *testing.T) {
	f := newStreamFixture(3)
	ctx := context.Background()
	turn := f.startTurn(t, ctx)

	contentCh := make(chan string, 16)
	doneCh := make(chan *dto.SendMessageResponse, 1)
	errCh := make(chan error, 1)
	go pumpStream(ctx, ctx, turn, contentCh, doneCh, errCh)

	var got []string
	for chunk := range contentCh {
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"chunk-0 ", "chunk-1 ", "chunk-2 "}, got)

	resp := <-doneCh
	require.NotNil(t, resp)
	assert.Equal(t, "chunk-0 chunk-1 chunk-2", resp.Answer)
	assert.Equal(t, "turn-2", resp.TurnID)

	require.Len(t, f.turns.turns, 2)
	assert.Equal(t, entity.RoleAssistant, f.turns.turns[1].Role)
	assert.Equal(t, "chunk-0 chunk-1 chunk-2", f.turns.turns[1].Content)
}

func TestPumpStreamStopsWhenClientGone(t *testing.T) {
	f := newStreamFixture(64)
	ctx, cancel := context.WithCancel(context.Background())
	turn := f.startTurn(t, ctx)

	// 客户端断开：没有任何消费者再读 contentCh
	cancel()
	contentCh := make(chan string, 2)
	doneCh := make(chan *dto.SendMessageResponse, 1)
	errCh := make(chan error, 1)

	finished := make(chan struct{})
	go func() {
		pumpStream(ctx, context.WithoutCancel(ctx), turn, contentCh, doneCh, errCh)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream producer did not exit after cancellation")
	}

	// 断开也要落一条错误占位消息，保证会话时间线完整
	require.Len(t, f.turns.turns, 2)
	assert.Equal(t, entity.RoleAssistant, f.turns.turns[1].Role)
	assert.Contains(t, string(f.turns.turns[1].Metadata), "context canceled")
}
