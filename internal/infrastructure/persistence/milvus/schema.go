// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionPapers 论文语料集合
	CollectionPapers = "papers"
	// CollectionKBChunks 知识库分块集合
	CollectionKBChunks = "kb_chunks"
)

// PapersSchema 论文 Collection Schema
// 标量元数据存 Postgres，集合只保留主键与向量
func PapersSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionPapers,
		Description:    "arXiv paper abstracts for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
		},
	}
}

// KBChunksSchema 知识库分块 Collection Schema
// doc_id 冗余为标量字段，支持按文档删除
func KBChunksSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionKBChunks,
		Description:    "Knowledge base document chunks for RAG retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "doc_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "96",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
		},
	}
}

// PaperVector 论文向量记录
type PaperVector struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// ChunkVector 知识库分块向量记录
type ChunkVector struct {
	ID     string    `json:"id"`
	DocID  string    `json:"doc_id"`
	Vector []float32 `json:"vector"`
}
