// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"needle-api/internal/domain/entity"
)

// KBChunkRepository 知识库分块元数据访问接口
type KBChunkRepository interface {
	// UpsertBatch 批量写入分块，主键冲突时覆盖
	UpsertBatch(ctx context.Context, chunks []*entity.KBChunk) error
	// GetByIDs 批量查询分块，结果保持入参顺序
	GetByIDs(ctx context.Context, chunkIDs []string) ([]*entity.KBChunk, error)
	// ListDocuments 按 doc_id 聚合出逻辑文档列表
	ListDocuments(ctx context.Context) ([]*entity.KBDocument, error)
	// DeleteByDocID 删除某文档的全部分块，返回删除数量
	DeleteByDocID(ctx context.Context, docID string) (int64, error)
	// DeleteAll 清空知识库分块
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// KBMetaRepository 知识库全局元信息访问接口
type KBMetaRepository interface {
	GetDescription(ctx context.Context) (string, error)
	SetDescription(ctx context.Context, description string) error
}
