// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"needle-api/internal/domain/entity"
)

type PaperRepository struct {
	client *Client
}

func NewPaperRepository(client *Client) *PaperRepository {
	return &PaperRepository{client: client}
}

func (r *PaperRepository) UpsertBatch(ctx context.Context, papers []*entity.Paper) error {
	ctx, span := tracer.Start(ctx, "postgres.PaperRepository.UpsertBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("papers.count", len(papers)))

	if len(papers) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "arxiv_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"doi", "title", "authors", "abstract", "categories",
			"latest_creation_date", "pdf_url", "updated_at",
		}),
	}).Create(papers).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert papers: %w", err)
	}
	return nil
}

func (r *PaperRepository) GetByID(ctx context.Context, arxivID string) (*entity.Paper, error) {
	ctx, span := tracer.Start(ctx, "postgres.PaperRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var paper entity.Paper
	if err := db.First(&paper, "arxiv_id = ?", arxivID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return &paper, nil
}

// GetByIDs 批量查询，结果保持入参顺序，库中缺失的 ID 跳过
func (r *PaperRepository) GetByIDs(ctx context.Context, arxivIDs []string) ([]*entity.Paper, error) {
	ctx, span := tracer.Start(ctx, "postgres.PaperRepository.GetByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("ids.count", len(arxivIDs)))

	if len(arxivIDs) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var papers []*entity.Paper
	if err := db.Where("arxiv_id IN ?", arxivIDs).Find(&papers).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get papers: %w", err)
	}

	byID := make(map[string]*entity.Paper, len(papers))
	for _, p := range papers {
		byID[p.ArxivID] = p
	}
	ordered := make([]*entity.Paper, 0, len(arxivIDs))
	for _, id := range arxivIDs {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (r *PaperRepository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.PaperRepository.Count")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var total int64
	if err := db.Model(&entity.Paper{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count papers: %w", err)
	}
	return total, nil
}
