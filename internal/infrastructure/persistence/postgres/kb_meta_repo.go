// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"needle-api/internal/domain/entity"
)

// kbMetaRowID 单行表固定主键
const kbMetaRowID = 1

type KBMetaRepository struct {
	client *Client
}

func NewKBMetaRepository(client *Client) *KBMetaRepository {
	return &KBMetaRepository{client: client}
}

func (r *KBMetaRepository) GetDescription(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "postgres.KBMetaRepository.GetDescription")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var meta entity.KBMeta
	if err := db.First(&meta, "id = ?", kbMetaRowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("failed to get kb description: %w", err)
	}
	return meta.Description, nil
}

func (r *KBMetaRepository) SetDescription(ctx context.Context, description string) error {
	ctx, span := tracer.Start(ctx, "postgres.KBMetaRepository.SetDescription")
	defer span.End()

	db := getDB(ctx, r.client.db)
	meta := entity.KBMeta{ID: kbMetaRowID, Description: description}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
	}).Create(&meta).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set kb description: %w", err)
	}
	return nil
}
