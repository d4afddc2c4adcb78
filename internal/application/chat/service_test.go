package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/persistence/milvus"
	apperrors "needle-api/pkg/errors"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.5}, nil
}

type fakeVector struct {
	hits []*milvus.Hit
}

func (f *fakeVector) Search(context.Context, string, []float32, int) ([]*milvus.Hit, error) {
	return f.hits, nil
}

type fakeChatModel struct {
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported in test")
}

type fakeModels struct {
	model *fakeChatModel
}

func (f *fakeModels) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.model, nil
}

func (f *fakeModels) ModelName(string) string { return "test-model" }

func (f *fakeModels) DefaultProvider() string { return "openai" }

type fakeChunkRepo struct {
	chunks map[string]*entity.KBChunk
}

func (f *fakeChunkRepo) UpsertBatch(context.Context, []*entity.KBChunk) error { return nil }

func (f *fakeChunkRepo) GetByIDs(_ context.Context, chunkIDs []string) ([]*entity.KBChunk, error) {
	out := make([]*entity.KBChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) ListDocuments(context.Context) ([]*entity.KBDocument, error) {
	return nil, nil
}

func (f *fakeChunkRepo) DeleteByDocID(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeChunkRepo) DeleteAll(context.Context) error { return nil }

func (f *fakeChunkRepo) Count(context.Context) (int64, error) { return int64(len(f.chunks)), nil }

type fakeSessionRepo struct {
	sessions map[string]*entity.ConversationSession
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*entity.ConversationSession{}}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *entity.ConversationSession) error {
	f.nextID++
	session.ID = fmt.Sprintf("session-%d", f.nextID)
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
	items := make([]*entity.ConversationSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		items = append(items, s)
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
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

func (f *fakeTurnRepo) ListBySession(_ context.Context, sessionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error) {
	items := make([]*entity.ConversationTurn, 0)
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			items = append(items, t)
		}
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

func (f *fakeTurnRepo) Recent(_ context.Context, sessionID string, n int) ([]*entity.ConversationTurn, error) {
	items := make([]*entity.ConversationTurn, 0)
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			items = append(items, t)
		}
	}
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return items, nil
}

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type chatFixture struct {
	svc      *Service
	sessions *fakeSessionRepo
	turns    *fakeTurnRepo
	vector   *fakeVector
	model    *fakeChatModel
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		sessions: newFakeSessionRepo(),
		turns:    &fakeTurnRepo{},
		vector:   &fakeVector{},
		model:    &fakeChatModel{reply: "Transformers use attention [1]."},
	}
	chunks := &fakeChunkRepo{chunks: map[string]*entity.KBChunk{
		"2104.08653_0": {
			ChunkID: "2104.08653_0",
			DocID:   "2104.08653",
			Title:   "Attention Networks",
			Authors: "Jane Doe",
			Link:    "https://arxiv.org/pdf/2104.08653",
			Text:    "attention is all you need",
		},
	}}
	f.svc = NewService(&fakeEmbedder{}, f.vector, &fakeModels{model: f.model}, chunks,
		f.sessions, f.turns, fakeTx{}, &config.ChatConfig{ContextTopK: 6, HistoryTurns: 6})
	return f
}

func (f *chatFixture) newSession(t *testing.T) string {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), "test")
	require.NoError(t, err)
	return session.ID
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	f := newChatFixture()
	f.vector.hits = []*milvus.Hit{{ID: "2104.08653_0", Score: 0.93}}
	sessionID := f.newSession(t)

	out, err := f.svc.SendMessage(context.Background(), &TurnInput{
		SessionID: sessionID,
		Message:   "how does attention work?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Transformers use attention [1].", out.Answer)
	require.Len(t, out.Citations, 1)
	assert.Equal(t, 1, out.Citations[0].Index)
	assert.Equal(t, "Attention Networks", out.Citations[0].Title)
	require.NotNil(t, out.Turn)

	require.Len(t, f.turns.turns, 2)
	assert.Equal(t, entity.RoleUser, f.turns.turns[0].Role)
	assert.Equal(t, "how does attention work?", f.turns.turns[0].Content)
	assert.Equal(t, entity.RoleAssistant, f.turns.turns[1].Role)
	assert.Contains(t, string(f.turns.turns[1].Metadata), "Attention Networks")
}

func TestSendMessageEmptyKB(t *testing.T) {
	f := newChatFixture()
	sessionID := f.newSession(t)

	out, err := f.svc.SendMessage(context.Background(), &TurnInput{
		SessionID: sessionID,
		Message:   "hello",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Citations)
}

func TestSendMessageUnknownSession(t *testing.T) {
	f := newChatFixture()

	_, err := f.svc.SendMessage(context.Background(), &TurnInput{
		SessionID: "missing",
		Message:   "hello",
	})
	assert.Equal(t, apperrors.CodeSessionNotFound, apperrors.AsAppError(err).Code)
}

func TestSendMessageRequiresMessage(t *testing.T) {
	f := newChatFixture()
	sessionID := f.newSession(t)

	_, err := f.svc.SendMessage(context.Background(), &TurnInput{SessionID: sessionID, Message: "  "})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestSendMessageGenerationFailureRecordsErrorTurn(t *testing.T) {
	f := newChatFixture()
	f.model.err = errors.New("llm unavailable")
	sessionID := f.newSession(t)

	_, err := f.svc.SendMessage(context.Background(), &TurnInput{SessionID: sessionID, Message: "hello"})
	assert.Equal(t, apperrors.CodeChatFailed, apperrors.AsAppError(err).Code)

	// 用户消息和错误占位消息都已落库，会话时间线完整
	require.Len(t, f.turns.turns, 2)
	assert.Equal(t, entity.RoleAssistant, f.turns.turns[1].Role)
	assert.Contains(t, string(f.turns.turns[1].Metadata), "llm unavailable")
}

func TestSendMessageUsesRecentHistory(t *testing.T) {
	f := newChatFixture()
	sessionID := f.newSession(t)

	for i := 0; i < 5; i++ {
		_, err := f.svc.SendMessage(context.Background(), &TurnInput{
			SessionID: sessionID,
			Message:   fmt.Sprintf("question %d", i),
		})
		require.NoError(t, err)
	}
	assert.Len(t, f.turns.turns, 10)
}

func TestDeleteSession(t *testing.T) {
	f := newChatFixture()
	sessionID := f.newSession(t)

	require.NoError(t, f.svc.DeleteSession(context.Background(), sessionID))
	err := f.svc.DeleteSession(context.Background(), sessionID)
	assert.Equal(t, apperrors.CodeSessionNotFound, apperrors.AsAppError(err).Code)
}

func TestListTurnsUnknownSession(t *testing.T) {
	f := newChatFixture()

	_, err := f.svc.ListTurns(context.Background(), "missing", repository.NewPagination(1, 20))
	assert.Equal(t, apperrors.CodeSessionNotFound, apperrors.AsAppError(err).Code)
}
