// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"needle-api/internal/domain/entity"
)

type ConversationSessionRepository interface {
	Create(ctx context.Context, session *entity.ConversationSession) error
	GetByID(ctx context.Context, id string) (*entity.ConversationSession, error)
	Update(ctx context.Context, session *entity.ConversationSession) error
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.ConversationSession], error)
	Delete(ctx context.Context, id string) error
}

type ConversationTurnRepository interface {
	Create(ctx context.Context, turn *entity.ConversationTurn) error
	ListBySession(ctx context.Context, sessionID string, pagination Pagination) (*PagedResult[*entity.ConversationTurn], error)
	// Recent 返回会话最近 n 轮，按时间正序
	Recent(ctx context.Context, sessionID string, n int) ([]*entity.ConversationTurn, error)
}
