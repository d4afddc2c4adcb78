package dto

import (
	"encoding/json"
	"time"

	"needle-api/internal/application/chat"
	"needle-api/internal/domain/entity"
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// SessionResponse 会话详情
type SessionResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SessionListResponse 会话列表
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

// TurnResponse 会话消息
type TurnResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// TurnListResponse 消息列表
type TurnListResponse struct {
	Turns []*TurnResponse `json:"turns"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Message  string `json:"message" binding:"required"`
	Provider string `json:"provider,omitempty"`
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	Answer    string           `json:"answer"`
	Citations []*chat.Citation `json:"citations"`
	TurnID    string           `json:"turn_id,omitempty"`
}

func ToSessionResponse(s *entity.ConversationSession) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

func ToTurnResponse(t *entity.ConversationTurn) *TurnResponse {
	if t == nil {
		return nil
	}
	return &TurnResponse{
		ID:        t.ID,
		Role:      string(t.Role),
		Content:   t.Content,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}
