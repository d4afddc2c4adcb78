// Package chat 实现 RAG 对话：会话管理、知识库召回与生成
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/persistence/milvus"
	einoobs "needle-api/internal/observability/eino"
	apperrors "needle-api/pkg/errors"
	"needle-api/pkg/logger"
	"needle-api/pkg/metrics"
)

var tracer = otel.Tracer("chat")

// Embedder 查询向量化依赖（port）
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher 知识库向量检索依赖（port）
type VectorSearcher interface {
	Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]*milvus.Hit, error)
}

// ModelProvider LLM 客户端依赖（port）
type ModelProvider interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
	ModelName(name string) string
	DefaultProvider() string
}

// Service RAG 对话服务
type Service struct {
	embedder Embedder
	vector   VectorSearcher
	models   ModelProvider
	chunks   repository.KBChunkRepository
	sessions repository.ConversationSessionRepository
	turns    repository.ConversationTurnRepository
	tx       repository.Transactor

	contextTopK  int
	historyTurns int
}

func NewService(
	embedder Embedder,
	vector VectorSearcher,
	models ModelProvider,
	chunkRepo repository.KBChunkRepository,
	sessionRepo repository.ConversationSessionRepository,
	turnRepo repository.ConversationTurnRepository,
	tx repository.Transactor,
	cfg *config.ChatConfig,
) *Service {
	s := &Service{
		embedder:     embedder,
		vector:       vector,
		models:       models,
		chunks:       chunkRepo,
		sessions:     sessionRepo,
		turns:        turnRepo,
		tx:           tx,
		contextTopK:  cfg.ContextTopK,
		historyTurns: cfg.HistoryTurns,
	}
	if s.contextTopK <= 0 {
		s.contextTopK = 6
	}
	if s.historyTurns <= 0 {
		s.historyTurns = 6
	}
	return s
}

// CreateSession 新建会话
func (s *Service) CreateSession(ctx context.Context, title string) (*entity.ConversationSession, error) {
	session := entity.NewConversationSession(strings.TrimSpace(title))
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	return session, nil
}

// GetSession 查询会话，不存在时返回 ErrSessionNotFound
func (s *Service) GetSession(ctx context.Context, sessionID string) (*entity.ConversationSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

// ListSessions 分页列出会话
func (s *Service) ListSessions(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationSession], error) {
	result, err := s.sessions.List(ctx, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sessions")
	}
	return result, nil
}

// DeleteSession 删除会话及其全部消息，两者在同一事务中删除
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete session")
		}
		return nil
	})
}

// ListTurns 分页列出会话消息
func (s *Service) ListTurns(ctx context.Context, sessionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	result, err := s.turns.ListBySession(ctx, sessionID, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list turns")
	}
	return result, nil
}

// TurnInput 一轮对话输入
type TurnInput struct {
	SessionID string
	Message   string
	// Provider 为空时使用默认 LLM
	Provider string
}

// TurnOutput 一轮对话结果
type TurnOutput struct {
	Answer    string                   `json:"answer"`
	Citations []*Citation              `json:"citations"`
	Turn      *entity.ConversationTurn `json:"turn,omitempty"`
}

// SendMessage 处理一轮 RAG 对话：召回、生成并持久化两条消息
func (s *Service) SendMessage(ctx context.Context, in *TurnInput) (*TurnOutput, error) {
	ctx, span := tracer.Start(ctx, "chat.SendMessage",
		trace.WithAttributes(attribute.String("session_id", in.SessionID)))
	defer span.End()

	start := time.Now()
	prep, err := s.prepareTurn(ctx, in)
	if err != nil {
		span.RecordError(err)
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	chatModel, err := s.models.Get(ctx, in.Provider)
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "failed to get chat model")
	}
	ctx = einoobs.WithProvider(ctx, s.providerName(in.Provider))

	outMsg, err := chatModel.Generate(ctx, prep.messages)
	metrics.ChatTurnDuration.WithLabelValues("false").Observe(time.Since(start).Seconds())
	if err != nil || outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		s.recordErrorTurn(ctx, in.SessionID, err)
		span.RecordError(err)
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeChatFailed, "chat generation failed")
	}

	answer := strings.TrimSpace(outMsg.Content)
	turn := s.recordAssistantTurn(ctx, in.SessionID, answer, prep.citations)
	metrics.ChatTurnsTotal.WithLabelValues("success").Inc()

	return &TurnOutput{Answer: answer, Citations: prep.citations, Turn: turn}, nil
}

// StreamTurn 流式对话的中间状态，Reader 由调用方消费并 Close
type StreamTurn struct {
	SessionID string
	Provider  string
	Reader    *schema.StreamReader[*schema.Message]
	Citations []*Citation

	service *Service
	started time.Time
}

// StartStream 召回上下文并发起流式生成，用户消息此时已持久化
func (s *Service) StartStream(ctx context.Context, in *TurnInput) (*StreamTurn, error) {
	ctx, span := tracer.Start(ctx, "chat.StartStream",
		trace.WithAttributes(attribute.String("session_id", in.SessionID)))
	defer span.End()

	prep, err := s.prepareTurn(ctx, in)
	if err != nil {
		span.RecordError(err)
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	chatModel, err := s.models.Get(ctx, in.Provider)
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "failed to get chat model")
	}
	ctx = einoobs.WithProvider(ctx, s.providerName(in.Provider))

	reader, err := chatModel.Stream(ctx, prep.messages)
	if err != nil {
		s.recordErrorTurn(ctx, in.SessionID, err)
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeChatFailed, "chat generation failed")
	}

	return &StreamTurn{
		SessionID: in.SessionID,
		Provider:  in.Provider,
		Reader:    reader,
		Citations: prep.citations,
		service:   s,
		started:   time.Now(),
	}, nil
}

// Complete 流结束后持久化助手消息（或错误消息）并上报指标
func (st *StreamTurn) Complete(ctx context.Context, answer string, genErr error) *entity.ConversationTurn {
	s := st.service
	metrics.ChatTurnDuration.WithLabelValues("true").Observe(time.Since(st.started).Seconds())
	if genErr != nil || strings.TrimSpace(answer) == "" {
		s.recordErrorTurn(ctx, st.SessionID, genErr)
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		return nil
	}
	turn := s.recordAssistantTurn(ctx, st.SessionID, strings.TrimSpace(answer), st.Citations)
	metrics.ChatTurnsTotal.WithLabelValues("success").Inc()
	return turn
}

type preparedTurn struct {
	messages  []*schema.Message
	citations []*Citation
}

// prepareTurn 校验会话、召回上下文、组装消息并持久化用户消息
func (s *Service) prepareTurn(ctx context.Context, in *TurnInput) (*preparedTurn, error) {
	if in == nil || strings.TrimSpace(in.Message) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("message is required")
	}
	if _, err := s.GetSession(ctx, in.SessionID); err != nil {
		return nil, err
	}

	message := strings.TrimSpace(in.Message)

	contextStr, citations, err := s.retrieveContext(ctx, message)
	if err != nil {
		return nil, err
	}

	history, err := s.turns.Recent(ctx, in.SessionID, s.historyTurns)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load conversation history")
	}

	userTurn := entity.NewConversationTurn(in.SessionID, entity.RoleUser, message, nil)
	if err := s.turns.Create(ctx, userTurn); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to persist user message")
	}

	return &preparedTurn{
		messages:  buildMessages(history, message, contextStr),
		citations: citations,
	}, nil
}

// retrieveContext 向量召回知识库分块并拼装上下文
func (s *Service) retrieveContext(ctx context.Context, message string) (string, []*Citation, error) {
	vec, err := s.embedder.EmbedOne(ctx, message)
	if err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed message")
	}

	hits, err := s.vector.Search(ctx, milvus.CollectionKBChunks, vec, s.contextTopK)
	if err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "knowledge base search failed")
	}
	if len(hits) == 0 {
		return "", nil, nil
	}

	ids := make([]string, 0, len(hits))
	scores := make([]float32, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		scores = append(scores, h.Score)
	}

	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load chunk metadata")
	}

	contextStr, citations := buildContext(chunks, scores)
	return contextStr, citations, nil
}

func (s *Service) recordAssistantTurn(ctx context.Context, sessionID, answer string, citations []*Citation) *entity.ConversationTurn {
	var metadata json.RawMessage
	if len(citations) > 0 {
		if data, err := json.Marshal(map[string]any{"citations": citations}); err == nil {
			metadata = data
		}
	}
	turn := entity.NewConversationTurn(sessionID, entity.RoleAssistant, answer, metadata)
	if err := s.turns.Create(ctx, turn); err != nil {
		logger.Error(ctx, "failed to persist assistant message", err, "session_id", sessionID)
		return nil
	}
	return turn
}

// recordErrorTurn 生成失败时落一条错误消息，保证会话时间线完整
func (s *Service) recordErrorTurn(ctx context.Context, sessionID string, genErr error) {
	detail := "generation failed"
	if genErr != nil {
		detail = genErr.Error()
	}
	metadata, _ := json.Marshal(map[string]any{"error": detail})
	turn := entity.NewConversationTurn(sessionID, entity.RoleAssistant,
		"Sorry, I could not generate a response for this message.", metadata)
	if err := s.turns.Create(ctx, turn); err != nil {
		logger.Error(ctx, "failed to persist error turn", err, "session_id", sessionID)
	}
}

func (s *Service) providerName(provider string) string {
	if provider == "" {
		return s.models.DefaultProvider()
	}
	return provider
}
