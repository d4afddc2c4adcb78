package search

import (
	"context"

	"needle-api/internal/domain/entity"
	"needle-api/internal/infrastructure/citations"
	"needle-api/internal/infrastructure/persistence/milvus"
)

// Embedder 查询向量化依赖（port）
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher 向量检索依赖（port），由 milvus.Repository 提供实现
type VectorSearcher interface {
	Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]*milvus.Hit, error)
}

// CitationLookup 引用数查询依赖（port）
type CitationLookup interface {
	AllTime(ctx context.Context, doi string) citations.Count
}

// PromptSearchInput 自然语言检索输入
type PromptSearchInput struct {
	Prompt        string
	TopK          int
	RewriteQuery  bool
	WithCitations bool
	Filters       *Filters
}

// PDFSearchInput 以 PDF 全文为查询的检索输入
type PDFSearchInput struct {
	PDFData       []byte
	TopK          int
	WithCitations bool
	// AnnotateReferences 标注命中论文是否被上传 PDF 引用
	AnnotateReferences bool
	Filters            *Filters
}

// Result 单条检索结果，按相似度降序返回
type Result struct {
	Paper *entity.Paper    `json:"paper"`
	Score float32          `json:"score"`
	Cites *citations.Count `json:"citations,omitempty"`
	// CitedInPDF 命中论文是否出现在上传 PDF 的引用中，仅 PDF 检索且开启标注时有值
	CitedInPDF *bool `json:"cited_in_pdf,omitempty"`
}

// Output 检索结果
type Output struct {
	Results []*Result `json:"results"`
	// RewrittenQuery 改写后的检索词，未改写时为空
	RewrittenQuery string `json:"rewritten_query,omitempty"`
	// QueryText 实际参与向量化的文本（PDF 模式为截断后的开头）
	QueryText string `json:"-"`
}
