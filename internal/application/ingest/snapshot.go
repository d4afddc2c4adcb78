// Package ingest 实现 arXiv 元数据快照导入：流式读取 JSONL、批量向量化并写入双存储
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/domain/repository"
	"needle-api/internal/infrastructure/persistence/milvus"
	"needle-api/pkg/logger"
	"needle-api/pkg/metrics"
)

// 快照中单行 JSON 可能很长（完整摘要），给扫描器留足缓冲
const maxLineBytes = 4 << 20

// SnapshotRecord Kaggle arXiv 元数据快照的一行
type SnapshotRecord struct {
	ID         string `json:"id"`
	DOI        string `json:"doi"`
	Title      string `json:"title"`
	Authors    string `json:"authors"`
	Abstract   string `json:"abstract"`
	Categories string `json:"categories"`
	UpdateDate string `json:"update_date"`
}

// Embedder 批量向量化依赖（port）
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter 论文向量写入依赖（port），由 milvus.Repository 提供实现
type VectorWriter interface {
	UpsertPapers(ctx context.Context, papers []*milvus.PaperVector) error
}

// Options 单次导入的运行参数
type Options struct {
	// Offset 跳过文件开头的行数（断点续传/回填）
	Offset int
	// MaxRows 本次最多导入的记录数，0 表示不限
	MaxRows int
}

// Report 导入结果汇总
type Report struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// SnapshotIndexer 快照导入器
type SnapshotIndexer struct {
	embedder Embedder
	vector   VectorWriter
	papers   repository.PaperRepository
	pdfBase  string

	batchSize int
	maxChars  int
}

func NewSnapshotIndexer(
	embedder Embedder,
	vector VectorWriter,
	papers repository.PaperRepository,
	cfg *config.IngestConfig,
	arxivCfg *config.ArxivConfig,
) *SnapshotIndexer {
	idx := &SnapshotIndexer{
		embedder:  embedder,
		vector:    vector,
		papers:    papers,
		pdfBase:   strings.TrimRight(arxivCfg.PDFBaseURL, "/"),
		batchSize: cfg.SnapshotBatchSize,
		maxChars:  cfg.EmbedTextMaxChars,
	}
	if idx.batchSize <= 0 {
		idx.batchSize = 200
	}
	if idx.maxChars <= 0 {
		idx.maxChars = 8000
	}
	return idx
}

// Run 流式导入快照。单条坏记录只计入 Skipped，不中断整体导入。
func (x *SnapshotIndexer) Run(ctx context.Context, r io.Reader, opts Options) (*Report, error) {
	report := &Report{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	batch := make([]*SnapshotRecord, 0, x.batchSize)
	lineNo := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		lineNo++
		if lineNo <= opts.Offset {
			continue
		}
		if opts.MaxRows > 0 && report.Indexed+len(batch) >= opts.MaxRows {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec SnapshotRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			report.Skipped++
			metrics.IngestSkippedTotal.WithLabelValues("snapshot", "malformed").Inc()
			logger.Warn(ctx, "skipping malformed snapshot line", "line", lineNo, "error", err)
			continue
		}
		if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.Abstract) == "" {
			report.Skipped++
			metrics.IngestSkippedTotal.WithLabelValues("snapshot", "incomplete").Inc()
			continue
		}

		batch = append(batch, &rec)
		if len(batch) >= x.batchSize {
			x.flush(ctx, batch, report)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(batch) > 0 {
		x.flush(ctx, batch, report)
	}

	logger.Info(ctx, "snapshot ingestion finished",
		"indexed", report.Indexed, "skipped", report.Skipped)
	return report, nil
}

// flush 向量化一批记录并写入 Milvus 与 Postgres。
// 批次失败时整批计入 Skipped，导入继续处理后续行。
func (x *SnapshotIndexer) flush(ctx context.Context, batch []*SnapshotRecord, report *Report) {
	texts := make([]string, 0, len(batch))
	for _, rec := range batch {
		texts = append(texts, x.buildEmbedText(rec))
	}

	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(batch) {
		x.skipBatch(ctx, batch, report, "embed_failed", err)
		return
	}

	paperVectors := make([]*milvus.PaperVector, 0, len(batch))
	papers := make([]*entity.Paper, 0, len(batch))
	for i, rec := range batch {
		id := strings.TrimSpace(rec.ID)
		paperVectors = append(paperVectors, &milvus.PaperVector{
			ID:     id,
			Vector: vectors[i],
		})
		papers = append(papers, &entity.Paper{
			ArxivID:            id,
			DOI:                strings.TrimSpace(rec.DOI),
			Title:              strings.TrimSpace(rec.Title),
			Authors:            strings.TrimSpace(rec.Authors),
			Abstract:           strings.TrimSpace(rec.Abstract),
			Categories:         strings.TrimSpace(rec.Categories),
			LatestCreationDate: strings.TrimSpace(rec.UpdateDate),
			PDFURL:             x.pdfBase + "/" + id,
		})
	}

	// 向量与元数据作为一个逻辑步骤写入；若元数据写入失败，
	// 向量成为孤儿记录，重跑同一批次即可收敛（主键 upsert）
	if err := x.vector.UpsertPapers(ctx, paperVectors); err != nil {
		x.skipBatch(ctx, batch, report, "vector_upsert_failed", err)
		return
	}
	if err := x.papers.UpsertBatch(ctx, papers); err != nil {
		x.skipBatch(ctx, batch, report, "metadata_upsert_failed", err)
		return
	}

	report.Indexed += len(batch)
	metrics.IngestDocumentsTotal.WithLabelValues("snapshot", "success").Add(float64(len(batch)))
}

func (x *SnapshotIndexer) skipBatch(ctx context.Context, batch []*SnapshotRecord, report *Report, reason string, err error) {
	report.Skipped += len(batch)
	metrics.IngestSkippedTotal.WithLabelValues("snapshot", reason).Add(float64(len(batch)))
	logger.Warn(ctx, "skipping snapshot batch", "reason", reason, "count", len(batch), "error", err)
}

// buildEmbedText 拼装参与向量化的文本，按字符截断避免超出 token 上限
func (x *SnapshotIndexer) buildEmbedText(rec *SnapshotRecord) string {
	year := ""
	if len(rec.UpdateDate) >= 4 {
		year = rec.UpdateDate[:4]
	}
	text := strings.Join([]string{
		"Title: " + strings.TrimSpace(rec.Title),
		"Authors: " + strings.TrimSpace(rec.Authors),
		"Year: " + year,
		"Categories: " + strings.TrimSpace(rec.Categories),
		"Abstract: " + strings.TrimSpace(rec.Abstract),
	}, "\n")
	if len(text) > x.maxChars {
		text = text[:x.maxChars]
	}
	return text
}
