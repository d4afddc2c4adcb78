// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"needle-api/internal/domain/entity"
)

// PaperRepository 论文元数据访问接口
type PaperRepository interface {
	// UpsertBatch 批量写入论文元数据，主键冲突时覆盖
	UpsertBatch(ctx context.Context, papers []*entity.Paper) error
	// GetByID 按 arXiv ID 查询，未找到返回 (nil, nil)
	GetByID(ctx context.Context, arxivID string) (*entity.Paper, error)
	// GetByIDs 批量查询，结果保持入参顺序，缺失的 ID 跳过
	GetByIDs(ctx context.Context, arxivIDs []string) ([]*entity.Paper, error)
	Count(ctx context.Context) (int64, error)
}
