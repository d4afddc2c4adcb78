package kb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/infrastructure/persistence/milvus"
	apperrors "needle-api/pkg/errors"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.5}
	}
	return out, nil
}

type fakeVectorStore struct {
	upserted  []*milvus.ChunkVector
	deleted   []string
	dropped   bool
	upsertErr error
}

func (f *fakeVectorStore) UpsertChunks(_ context.Context, chunks []*milvus.ChunkVector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeVectorStore) DeleteChunksByDoc(_ context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

func (f *fakeVectorStore) DropChunks(context.Context) error {
	f.dropped = true
	return nil
}

type fakeChunkRepo struct {
	chunks map[string]*entity.KBChunk
	docs   []*entity.KBDocument
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: map[string]*entity.KBChunk{}}
}

func (f *fakeChunkRepo) UpsertBatch(_ context.Context, chunks []*entity.KBChunk) error {
	for _, c := range chunks {
		f.chunks[c.ChunkID] = c
	}
	return nil
}

func (f *fakeChunkRepo) GetByIDs(_ context.Context, chunkIDs []string) ([]*entity.KBChunk, error) {
	out := make([]*entity.KBChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) ListDocuments(context.Context) ([]*entity.KBDocument, error) {
	return f.docs, nil
}

func (f *fakeChunkRepo) DeleteByDocID(_ context.Context, docID string) (int64, error) {
	var deleted int64
	for id, c := range f.chunks {
		if c.DocID == docID {
			delete(f.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeChunkRepo) DeleteAll(context.Context) error {
	f.chunks = map[string]*entity.KBChunk{}
	return nil
}

func (f *fakeChunkRepo) Count(context.Context) (int64, error) {
	return int64(len(f.chunks)), nil
}

type fakeMetaRepo struct {
	description string
}

func (f *fakeMetaRepo) GetDescription(context.Context) (string, error) {
	return f.description, nil
}

func (f *fakeMetaRepo) SetDescription(_ context.Context, description string) error {
	f.description = description
	return nil
}

func newTestService(embedder *fakeEmbedder, vector *fakeVectorStore, chunks *fakeChunkRepo) *Service {
	return NewService(embedder, vector, nil, chunks, &fakeMetaRepo{}, nil,
		&config.IngestConfig{ChunkWords: 4, ChunkOverlapWords: 1})
}

func TestIngestDocumentWritesChunksToBothStores(t *testing.T) {
	embedder := &fakeEmbedder{}
	vector := &fakeVectorStore{}
	chunks := newFakeChunkRepo()
	s := newTestService(embedder, vector, chunks)

	words := make([]string, 10)
	for i := range words {
		words[i] = "w"
	}
	doc, err := s.ingestDocument(context.Background(), documentInput{
		DocID:   "2104.08653",
		ArxivID: "2104.08653",
		Title:   "Attention Networks",
		Source:  entity.ChunkSourceArxiv,
		Text:    strings.Join(words, " "),
	})
	require.NoError(t, err)

	assert.Equal(t, "2104.08653", doc.DocID)
	assert.Equal(t, 4, doc.ChunkCount)
	assert.Len(t, vector.upserted, 4)
	assert.Equal(t, "2104.08653_0", vector.upserted[0].ID)
	require.Contains(t, chunks.chunks, "2104.08653_3")
	assert.Equal(t, 3, chunks.chunks["2104.08653_3"].Position)

	// 重复摄取前先删除旧分块
	assert.Equal(t, []string{"2104.08653"}, vector.deleted)
}

func TestIngestDocumentEmptyText(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())

	_, err := s.ingestDocument(context.Background(), documentInput{DocID: "d1", Text: "   "})
	assert.Equal(t, apperrors.CodeIngestFailed, apperrors.AsAppError(err).Code)
}

func TestIngestDocumentEmbedFailure(t *testing.T) {
	vector := &fakeVectorStore{}
	s := newTestService(&fakeEmbedder{err: errors.New("embedding down")}, vector, newFakeChunkRepo())

	_, err := s.ingestDocument(context.Background(), documentInput{DocID: "d1", Text: "some words here"})
	assert.Equal(t, apperrors.CodeEmbeddingFailed, apperrors.AsAppError(err).Code)
	assert.Empty(t, vector.upserted)
}

func TestAddArxivPaperRequiresID(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())

	_, err := s.AddArxivPaper(context.Background(), "  ")
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestAddUploadedPDFRequiresData(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())

	_, err := s.AddUploadedPDF(context.Background(), "paper.pdf", "", nil)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestDeleteDocument(t *testing.T) {
	vector := &fakeVectorStore{}
	chunks := newFakeChunkRepo()
	chunks.chunks["d1_0"] = &entity.KBChunk{ChunkID: "d1_0", DocID: "d1"}
	chunks.chunks["d1_1"] = &entity.KBChunk{ChunkID: "d1_1", DocID: "d1"}
	s := newTestService(&fakeEmbedder{}, vector, chunks)

	require.NoError(t, s.DeleteDocument(context.Background(), "d1"))
	assert.Empty(t, chunks.chunks)
	assert.Equal(t, []string{"d1"}, vector.deleted)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())

	err := s.DeleteDocument(context.Background(), "missing")
	assert.Equal(t, apperrors.CodeDocumentNotFound, apperrors.AsAppError(err).Code)
}

func TestClear(t *testing.T) {
	vector := &fakeVectorStore{}
	chunks := newFakeChunkRepo()
	chunks.chunks["d1_0"] = &entity.KBChunk{ChunkID: "d1_0", DocID: "d1"}
	s := newTestService(&fakeEmbedder{}, vector, chunks)

	require.NoError(t, s.Clear(context.Background()))
	assert.True(t, vector.dropped)
	assert.Empty(t, chunks.chunks)
}

func TestListDocumentsWithoutCache(t *testing.T) {
	chunks := newFakeChunkRepo()
	chunks.docs = []*entity.KBDocument{{DocID: "d1", Title: "One"}}
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, chunks)

	docs, err := s.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].DocID)
}

func TestDescriptionRoundTrip(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeVectorStore{}, newFakeChunkRepo())

	require.NoError(t, s.SetDescription(context.Background(), "  my research corpus  "))
	desc, err := s.Description(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my research corpus", desc)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "my-paper-v2", slugify("My Paper (v2).pdf"))
	assert.Equal(t, "paper", slugify("/tmp/uploads/paper.pdf"))
	assert.Equal(t, "", slugify("....pdf"))
}
