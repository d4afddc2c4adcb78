// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"regexp"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"needle-api/pkg/metrics"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
	dim    int
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client, dim int) *Repository {
	return &Repository{client: client, dim: dim}
}

// Hit 向量检索命中
type Hit struct {
	ID    string
	Score float32
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Search 向量检索，结果按相似度降序
func (r *Repository) Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]*Hit, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)

	timer := prometheus.NewTimer(metrics.MilvusSearchDuration.WithLabelValues(collection))
	defer timer.ObserveDuration()

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		"",
		[]string{"id"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(collection, "error").Inc()
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(collection, "success").Inc()

	var hits []*Hit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			hit := &Hit{Score: result.Scores[i]}
			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				hit.ID = idCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// UpsertPapers 写入论文向量，主键相同即覆盖
func (r *Repository) UpsertPapers(ctx context.Context, papers []*PaperVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.UpsertPapers",
		trace.WithAttributes(attribute.Int("count", len(papers))))
	defer span.End()

	if len(papers) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionPapers)

	ids := make([]string, len(papers))
	vectors := make([][]float32, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
		vectors[i] = p.Vector
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", r.dim, vectors)

	if _, err := r.client.milvus.Upsert(ctx, collName, "", idCol, vectorCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert papers: %w", err)
	}
	metrics.IngestChunksTotal.WithLabelValues(CollectionPapers).Add(float64(len(papers)))
	return nil
}

// UpsertChunks 写入知识库分块向量，主键相同即覆盖
func (r *Repository) UpsertChunks(ctx context.Context, chunks []*ChunkVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.UpsertChunks",
		trace.WithAttributes(attribute.Int("count", len(chunks))))
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionKBChunks)

	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = c.DocID
		vectors[i] = c.Vector
	}

	idCol := entity.NewColumnVarChar("id", ids)
	docCol := entity.NewColumnVarChar("doc_id", docIDs)
	vectorCol := entity.NewColumnFloatVector("vector", r.dim, vectors)

	if _, err := r.client.milvus.Upsert(ctx, collName, "", idCol, docCol, vectorCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert kb chunks: %w", err)
	}
	metrics.IngestChunksTotal.WithLabelValues(CollectionKBChunks).Add(float64(len(chunks)))
	return nil
}

// docIDPattern 合法文档 ID：arXiv 编号（含旧式 math/0211159 形式）或 upload-<slug>
// docID 会被拼进布尔表达式，引号等字符不允许出现
var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// DeleteChunksByDoc 删除某文档的全部分块向量
func (r *Repository) DeleteChunksByDoc(ctx context.Context, docID string) error {
	if !docIDPattern.MatchString(docID) {
		return fmt.Errorf("invalid doc id %q", docID)
	}
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteChunksByDoc",
		trace.WithAttributes(attribute.String("doc_id", docID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionKBChunks)
	filter := fmt.Sprintf(`doc_id == "%s"`, docID)

	if err := r.client.milvus.Delete(ctx, collName, "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete kb chunk vectors: %w", err)
	}
	return nil
}

// DropChunks 清空知识库分块集合并重建
func (r *Repository) DropChunks(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DropChunks")
	defer span.End()

	collName := r.client.CollectionName(CollectionKBChunks)
	if err := r.client.milvus.DropCollection(ctx, collName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop kb chunks collection: %w", err)
	}
	return r.EnsureCollections(ctx)
}

// EnsureCollections 确保集合与索引可用，不做破坏性操作
func (r *Repository) EnsureCollections(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	for _, spec := range []struct {
		name   string
		schema *entity.Schema
	}{
		{CollectionPapers, PapersSchema(r.dim)},
		{CollectionKBChunks, KBChunksSchema(r.dim)},
	} {
		exists, err := r.client.HasCollection(ctx, spec.name)
		if err != nil {
			return err
		}
		if !exists {
			if err := r.CreateCollection(ctx, spec.schema); err != nil {
				return err
			}
			if err := r.CreateIndex(ctx, spec.name); err != nil {
				return err
			}
		}
		if err := r.client.LoadCollection(ctx, spec.name); err != nil {
			return err
		}
	}
	return nil
}
