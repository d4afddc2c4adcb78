// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm/clause"

	"needle-api/internal/domain/entity"
)

type KBChunkRepository struct {
	client *Client
}

func NewKBChunkRepository(client *Client) *KBChunkRepository {
	return &KBChunkRepository{client: client}
}

func (r *KBChunkRepository) UpsertBatch(ctx context.Context, chunks []*entity.KBChunk) error {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.UpsertBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("chunks.count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"doc_id", "arxiv_id", "title", "authors", "summary",
			"link", "source", "text", "position",
		}),
	}).Create(chunks).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert kb chunks: %w", err)
	}
	return nil
}

// GetByIDs 批量查询分块，结果保持入参顺序
func (r *KBChunkRepository) GetByIDs(ctx context.Context, chunkIDs []string) ([]*entity.KBChunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.GetByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("ids.count", len(chunkIDs)))

	if len(chunkIDs) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var chunks []*entity.KBChunk
	if err := db.Where("chunk_id IN ?", chunkIDs).Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get kb chunks: %w", err)
	}

	byID := make(map[string]*entity.KBChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	ordered := make([]*entity.KBChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// ListDocuments 按 doc_id 聚合出逻辑文档列表
func (r *KBChunkRepository) ListDocuments(ctx context.Context) ([]*entity.KBDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.ListDocuments")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var docs []*entity.KBDocument
	err := db.Model(&entity.KBChunk{}).
		Select("doc_id, MIN(title) AS title, MIN(source) AS source, COUNT(*) AS chunk_count").
		Group("doc_id").
		Order("doc_id").
		Scan(&docs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list kb documents: %w", err)
	}
	return docs, nil
}

func (r *KBChunkRepository) DeleteByDocID(ctx context.Context, docID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.DeleteByDocID")
	defer span.End()
	span.SetAttributes(attribute.String("doc_id", docID))

	db := getDB(ctx, r.client.db)
	result := db.Where("doc_id = ?", docID).Delete(&entity.KBChunk{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete kb chunks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *KBChunkRepository) DeleteAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.DeleteAll")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("1 = 1").Delete(&entity.KBChunk{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear kb chunks: %w", err)
	}
	return nil
}

func (r *KBChunkRepository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.KBChunkRepository.Count")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var total int64
	if err := db.Model(&entity.KBChunk{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count kb chunks: %w", err)
	}
	return total, nil
}
