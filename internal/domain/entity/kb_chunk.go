// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// ChunkSource 知识库文档来源
type ChunkSource string

const (
	ChunkSourceArxiv       ChunkSource = "arxiv"
	ChunkSourceUploadedPDF ChunkSource = "uploaded_pdf"
)

// KBChunk 知识库文档分块
// 分块 ID 约定为 "<doc_id>_<position>"，向量库与元数据库共用该主键
type KBChunk struct {
	ChunkID   string      `json:"chunk_id" gorm:"type:varchar(128);primaryKey"`
	DocID     string      `json:"doc_id" gorm:"type:varchar(96);index;not null"`
	ArxivID   string      `json:"arxiv_id,omitempty" gorm:"type:varchar(32);index"`
	Title     string      `json:"title" gorm:"type:text;not null"`
	Authors   string      `json:"authors" gorm:"type:text"`
	Summary   string      `json:"summary" gorm:"type:text"`
	Link      string      `json:"link" gorm:"type:varchar(256)"`
	Source    ChunkSource `json:"source" gorm:"type:varchar(16);not null"`
	Text      string      `json:"text" gorm:"type:text;not null"`
	Position  int         `json:"position" gorm:"not null"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

func (KBChunk) TableName() string {
	return "kb_chunks"
}

// ChunkIDFor 构造分块主键
func ChunkIDFor(docID string, position int) string {
	return fmt.Sprintf("%s_%d", docID, position)
}

// DocIDOfChunk 从分块 ID 还原文档 ID（去掉最后一个下划线后缀）
func DocIDOfChunk(chunkID string) string {
	idx := strings.LastIndex(chunkID, "_")
	if idx <= 0 {
		return chunkID
	}
	return chunkID[:idx]
}

// KBDocument 知识库文档的聚合视图，由分块按 doc_id 聚合得出
type KBDocument struct {
	DocID      string      `json:"doc_id"`
	Title      string      `json:"title"`
	Source     ChunkSource `json:"source"`
	ChunkCount int         `json:"chunk_count"`
}

// KBMeta 知识库全局元信息，单行表
type KBMeta struct {
	ID          int       `json:"-" gorm:"primaryKey"`
	Description string    `json:"description" gorm:"type:text"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (KBMeta) TableName() string {
	return "kb_meta"
}
