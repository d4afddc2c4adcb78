// Package kb 实现个人知识库：文档摄取、分块写入与文档管理
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/arxiv"
	"needle-api/internal/infrastructure/pdftext"
	"needle-api/internal/infrastructure/persistence/milvus"
	"needle-api/internal/infrastructure/persistence/redis"
	apperrors "needle-api/pkg/errors"
	"needle-api/pkg/logger"
	"needle-api/pkg/metrics"
)

var tracer = otel.Tracer("kb")

const (
	documentsCacheTTL = 5 * time.Minute
	summaryMaxChars   = 600
)

// Embedder 分块向量化依赖（port）
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore 知识库向量写入依赖（port），由 milvus.Repository 提供实现
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []*milvus.ChunkVector) error
	DeleteChunksByDoc(ctx context.Context, docID string) error
	DropChunks(ctx context.Context) error
}

// ArxivFetcher arXiv 元数据与 PDF 获取依赖（port）
type ArxivFetcher interface {
	GetMetadata(ctx context.Context, arxivID string) (*arxiv.Metadata, error)
	DownloadPDF(ctx context.Context, arxivID string) ([]byte, error)
}

// Service 知识库服务
type Service struct {
	embedder Embedder
	vector   VectorStore
	arxiv    ArxivFetcher
	chunks   repository.KBChunkRepository
	meta     repository.KBMetaRepository
	cache    *redis.Cache

	chunkWords   int
	overlapWords int
}

func NewService(
	embedder Embedder,
	vector VectorStore,
	arxivClient ArxivFetcher,
	chunkRepo repository.KBChunkRepository,
	metaRepo repository.KBMetaRepository,
	cache *redis.Cache,
	cfg *config.IngestConfig,
) *Service {
	s := &Service{
		embedder:     embedder,
		vector:       vector,
		arxiv:        arxivClient,
		chunks:       chunkRepo,
		meta:         metaRepo,
		cache:        cache,
		chunkWords:   cfg.ChunkWords,
		overlapWords: cfg.ChunkOverlapWords,
	}
	if s.chunkWords <= 0 {
		s.chunkWords = 256
	}
	if s.overlapWords < 0 || s.overlapWords >= s.chunkWords {
		s.overlapWords = 64
	}
	return s
}

// AddArxivPaper 按 arXiv ID 摄取论文全文到知识库
func (s *Service) AddArxivPaper(ctx context.Context, arxivID string) (*entity.KBDocument, error) {
	ctx, span := tracer.Start(ctx, "kb.AddArxivPaper",
		trace.WithAttributes(attribute.String("arxiv_id", arxivID)))
	defer span.End()

	arxivID = strings.TrimSpace(arxivID)
	if arxivID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("arxiv_id is required")
	}

	meta, err := s.arxiv.GetMetadata(ctx, arxivID)
	if err != nil {
		span.RecordError(err)
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceArxiv), "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeArxivAPIError, "failed to fetch arXiv metadata")
	}

	pdfData, err := s.arxiv.DownloadPDF(ctx, arxivID)
	if err != nil {
		span.RecordError(err)
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceArxiv), "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeArxivAPIError, "failed to download arXiv PDF")
	}

	text, err := pdftext.Extract(pdfData)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceArxiv), "error").Inc()
		return nil, err
	}

	doc := documentInput{
		DocID:   arxivID,
		ArxivID: arxivID,
		Title:   meta.Title,
		Authors: strings.Join(meta.Authors, ", "),
		Summary: meta.Summary,
		Link:    meta.PDFURL,
		Source:  entity.ChunkSourceArxiv,
		Text:    text,
	}
	out, err := s.ingestDocument(ctx, doc)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceArxiv), "error").Inc()
		return nil, err
	}
	metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceArxiv), "success").Inc()
	return out, nil
}

// AddUploadedPDF 摄取用户上传的 PDF 到知识库，返回生成的文档视图
func (s *Service) AddUploadedPDF(ctx context.Context, filename, title string, data []byte) (*entity.KBDocument, error) {
	ctx, span := tracer.Start(ctx, "kb.AddUploadedPDF",
		trace.WithAttributes(attribute.String("filename", filename)))
	defer span.End()

	if len(data) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("pdf file is required")
	}

	text, err := pdftext.Extract(data)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceUploadedPDF), "error").Inc()
		return nil, err
	}

	slug := slugify(filename)
	if slug == "" {
		slug = "document"
	}
	docID := "upload-" + slug
	if strings.TrimSpace(title) == "" {
		title = slug
	}

	summary := text
	if len(summary) > summaryMaxChars {
		summary = summary[:summaryMaxChars]
	}

	doc := documentInput{
		DocID:   docID,
		ArxivID: "",
		Title:   title,
		Authors: "",
		Summary: summary,
		Link:    "",
		Source:  entity.ChunkSourceUploadedPDF,
		Text:    text,
	}
	out, err := s.ingestDocument(ctx, doc)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceUploadedPDF), "error").Inc()
		return nil, err
	}
	metrics.IngestDocumentsTotal.WithLabelValues(string(entity.ChunkSourceUploadedPDF), "success").Inc()
	return out, nil
}

type documentInput struct {
	DocID   string
	ArxivID string
	Title   string
	Authors string
	Summary string
	Link    string
	Source  entity.ChunkSource
	Text    string
}

// ingestDocument 分块、向量化并写入两个存储。
// 先删后写保证重复摄取同一文档不产生残留分块（幂等）。
func (s *Service) ingestDocument(ctx context.Context, doc documentInput) (*entity.KBDocument, error) {
	chunks := SplitWords(doc.Text, s.chunkWords, s.overlapWords)
	if len(chunks) == 0 {
		return nil, apperrors.ErrIngestFailed.WithDetail("no text could be extracted from the document")
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed chunks")
	}
	if len(vectors) != len(chunks) {
		return nil, apperrors.ErrEmbeddingFailed.WithDetail(
			fmt.Sprintf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	if err := s.vector.DeleteChunksByDoc(ctx, doc.DocID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to delete stale chunk vectors")
	}
	if _, err := s.chunks.DeleteByDocID(ctx, doc.DocID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete stale chunk metadata")
	}

	records := make([]*entity.KBChunk, 0, len(chunks))
	chunkVectors := make([]*milvus.ChunkVector, 0, len(chunks))
	for i, text := range chunks {
		chunkID := entity.ChunkIDFor(doc.DocID, i)
		records = append(records, &entity.KBChunk{
			ChunkID:  chunkID,
			DocID:    doc.DocID,
			ArxivID:  doc.ArxivID,
			Title:    doc.Title,
			Authors:  doc.Authors,
			Summary:  doc.Summary,
			Link:     doc.Link,
			Source:   doc.Source,
			Text:     text,
			Position: i,
		})
		chunkVectors = append(chunkVectors, &milvus.ChunkVector{
			ID:     chunkID,
			DocID:  doc.DocID,
			Vector: vectors[i],
		})
	}

	// 两个存储的写入构成一个逻辑步骤；中间失败会留下孤儿记录，
	// 重新摄取同一文档即可收敛（先删后写）
	if err := s.vector.UpsertChunks(ctx, chunkVectors); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to upsert chunk vectors")
	}
	if err := s.chunks.UpsertBatch(ctx, records); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to upsert chunk metadata")
	}

	s.invalidateDocumentsCache(ctx)
	logger.Info(ctx, "document ingested into knowledge base",
		"doc_id", doc.DocID, "source", string(doc.Source), "chunks", len(chunks))

	return &entity.KBDocument{
		DocID:      doc.DocID,
		Title:      doc.Title,
		Source:     doc.Source,
		ChunkCount: len(chunks),
	}, nil
}

// ListDocuments 列出知识库中的逻辑文档，结果走缓存
func (s *Service) ListDocuments(ctx context.Context) ([]*entity.KBDocument, error) {
	ctx, span := tracer.Start(ctx, "kb.ListDocuments")
	defer span.End()

	if s.cache == nil {
		return s.chunks.ListDocuments(ctx)
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.KBDocumentsKey, documentsCacheTTL, func() (interface{}, error) {
		return s.chunks.ListDocuments(ctx)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list knowledge base documents")
	}

	var docs []*entity.KBDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to decode cached document list")
	}
	return docs, nil
}

// DeleteDocument 删除一个逻辑文档的全部分块与向量
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	ctx, span := tracer.Start(ctx, "kb.DeleteDocument",
		trace.WithAttributes(attribute.String("doc_id", docID)))
	defer span.End()

	docID = strings.TrimSpace(docID)
	if docID == "" {
		return apperrors.ErrInvalidParam.WithDetail("doc_id is required")
	}

	if err := s.vector.DeleteChunksByDoc(ctx, docID); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to delete chunk vectors")
	}
	deleted, err := s.chunks.DeleteByDocID(ctx, docID)
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete chunk metadata")
	}
	if deleted == 0 {
		return apperrors.ErrDocumentNotFound
	}

	s.invalidateDocumentsCache(ctx)
	logger.Info(ctx, "knowledge base document deleted", "doc_id", docID, "chunks", deleted)
	return nil
}

// Clear 清空整个知识库
func (s *Service) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "kb.Clear")
	defer span.End()

	if err := s.vector.DropChunks(ctx); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to drop chunk vectors")
	}
	if err := s.chunks.DeleteAll(ctx); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete chunk metadata")
	}

	s.invalidateDocumentsCache(ctx)
	logger.Info(ctx, "knowledge base cleared")
	return nil
}

// Description 读取知识库描述
func (s *Service) Description(ctx context.Context) (string, error) {
	return s.meta.GetDescription(ctx)
}

// SetDescription 更新知识库描述
func (s *Service) SetDescription(ctx context.Context, description string) error {
	return s.meta.SetDescription(ctx, strings.TrimSpace(description))
}

func (s *Service) invalidateDocumentsCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateKB(ctx); err != nil {
		logger.Warn(ctx, "failed to invalidate kb cache", "error", err)
	}
}

// slugify 由上传文件名生成文档 ID 片段
func slugify(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(strings.TrimSpace(base))

	var b strings.Builder
	lastDash := false
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
