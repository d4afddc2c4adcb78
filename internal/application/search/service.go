// Package search 实现论文检索管线：查询改写、向量召回、元数据拼装与过滤
package search

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"needle-api/internal/config"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/citations"
	"needle-api/internal/infrastructure/pdftext"
	"needle-api/internal/infrastructure/persistence/milvus"
	apperrors "needle-api/pkg/errors"
	"needle-api/pkg/logger"
	"needle-api/pkg/metrics"
)

var tracer = otel.Tracer("search")

// Service 论文检索服务
type Service struct {
	embedder  Embedder
	vector    VectorSearcher
	papers    repository.PaperRepository
	models    ModelProvider
	citations CitationLookup

	defaultTopK      int
	maxTopK          int
	pdfQueryMaxWords int
}

func NewService(
	embedder Embedder,
	vector VectorSearcher,
	papers repository.PaperRepository,
	models ModelProvider,
	citationClient CitationLookup,
	cfg *config.SearchConfig,
) *Service {
	s := &Service{
		embedder:         embedder,
		vector:           vector,
		papers:           papers,
		models:           models,
		citations:        citationClient,
		defaultTopK:      cfg.DefaultTopK,
		maxTopK:          cfg.MaxTopK,
		pdfQueryMaxWords: cfg.PDFQueryMaxWords,
	}
	if s.defaultTopK <= 0 {
		s.defaultTopK = 10
	}
	if s.maxTopK <= 0 {
		s.maxTopK = 50
	}
	if s.pdfQueryMaxWords <= 0 {
		s.pdfQueryMaxWords = 3000
	}
	return s
}

// SearchByPrompt 自然语言检索论文
func (s *Service) SearchByPrompt(ctx context.Context, in *PromptSearchInput) (*Output, error) {
	ctx, span := tracer.Start(ctx, "search.SearchByPrompt")
	defer span.End()

	if in == nil || strings.TrimSpace(in.Prompt) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("prompt is required")
	}

	timer := time.Now()
	out, err := s.searchPrompt(ctx, in)
	metrics.SearchDuration.WithLabelValues("prompt").Observe(time.Since(timer).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.SearchTotal.WithLabelValues("prompt", "error").Inc()
		return nil, err
	}
	metrics.SearchTotal.WithLabelValues("prompt", "success").Inc()
	span.SetAttributes(attribute.Int("result_count", len(out.Results)))
	return out, nil
}

func (s *Service) searchPrompt(ctx context.Context, in *PromptSearchInput) (*Output, error) {
	out := &Output{}

	query := strings.TrimSpace(in.Prompt)
	if in.RewriteQuery {
		rewritten, err := s.rewritePrompt(ctx, query)
		if err != nil {
			// 改写失败不阻断检索，降级为原始 prompt
			logger.Warn(ctx, "query rewrite failed, falling back to raw prompt", "error", err)
		} else {
			out.RewrittenQuery = rewritten
			query = rewritten
		}
	}
	out.QueryText = query

	results, err := s.vectorSearch(ctx, query, s.clampTopK(in.TopK), in.Filters)
	if err != nil {
		return nil, err
	}
	if in.WithCitations {
		s.enrichCitations(ctx, results)
	}
	out.Results = results
	return out, nil
}

// SearchByPDF 以上传 PDF 的正文为查询检索相似论文
func (s *Service) SearchByPDF(ctx context.Context, in *PDFSearchInput) (*Output, error) {
	ctx, span := tracer.Start(ctx, "search.SearchByPDF")
	defer span.End()

	if in == nil || len(in.PDFData) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("pdf file is required")
	}

	timer := time.Now()
	out, err := s.searchPDF(ctx, in)
	metrics.SearchDuration.WithLabelValues("pdf").Observe(time.Since(timer).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.SearchTotal.WithLabelValues("pdf", "error").Inc()
		return nil, err
	}
	metrics.SearchTotal.WithLabelValues("pdf", "success").Inc()
	span.SetAttributes(attribute.Int("result_count", len(out.Results)))
	return out, nil
}

func (s *Service) searchPDF(ctx context.Context, in *PDFSearchInput) (*Output, error) {
	text, err := pdftext.Extract(in.PDFData)
	if err != nil {
		return nil, err
	}

	query := pdftext.HeadWords(text, s.pdfQueryMaxWords)
	out := &Output{QueryText: query}

	results, err := s.vectorSearch(ctx, query, s.clampTopK(in.TopK), in.Filters)
	if err != nil {
		return nil, err
	}

	if in.AnnotateReferences {
		refs := pdftext.ExtractReferences(text)
		for _, r := range results {
			if r.Paper == nil {
				continue
			}
			cited := refs.Mentions(r.Paper.ArxivID, r.Paper.DOI)
			r.CitedInPDF = &cited
		}
	}
	if in.WithCitations {
		s.enrichCitations(ctx, results)
	}
	out.Results = results
	return out, nil
}

// vectorSearch 向量召回并拼装元数据，结果按相似度降序
func (s *Service) vectorSearch(ctx context.Context, query string, topK int, filters *Filters) ([]*Result, error) {
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed query")
	}

	hits, err := s.vector.Search(ctx, milvus.CollectionPapers, vec, topK)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "vector search failed")
	}
	if len(hits) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	papers, err := s.papers.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load paper metadata")
	}

	byID := make(map[string]int, len(papers))
	for i, p := range papers {
		if p != nil {
			byID[p.ArxivID] = i
		}
	}

	// 向量库与元数据库偶发不一致（孤儿向量）时丢弃命中并告警
	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		idx, ok := byID[h.ID]
		if !ok {
			logger.Warn(ctx, "vector hit has no metadata record", "id", h.ID)
			continue
		}
		results = append(results, &Result{Paper: papers[idx], Score: h.Score})
	}

	return filters.Apply(results), nil
}

// enrichCitations 为有 DOI 的结果补充引用数，失败降级为 unknown
func (s *Service) enrichCitations(ctx context.Context, results []*Result) {
	if s.citations == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Paper == nil {
			continue
		}
		doi := strings.TrimSpace(r.Paper.DOI)
		if doi == "" {
			c := citations.Unknown()
			r.Cites = &c
			continue
		}
		c := s.citations.AllTime(ctx, doi)
		r.Cites = &c
	}
}

func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		return s.defaultTopK
	}
	if topK > s.maxTopK {
		return s.maxTopK
	}
	return topK
}
