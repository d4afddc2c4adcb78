package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/infrastructure/persistence/milvus"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type fakeVectorWriter struct {
	upserted []*milvus.PaperVector
	err      error
}

func (f *fakeVectorWriter) UpsertPapers(_ context.Context, papers []*milvus.PaperVector) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, papers...)
	return nil
}

type fakePaperStore struct {
	papers map[string]*entity.Paper
	err    error
}

func (f *fakePaperStore) UpsertBatch(_ context.Context, papers []*entity.Paper) error {
	if f.err != nil {
		return f.err
	}
	for _, p := range papers {
		f.papers[p.ArxivID] = p
	}
	return nil
}

func (f *fakePaperStore) GetByID(_ context.Context, id string) (*entity.Paper, error) {
	return f.papers[id], nil
}

func (f *fakePaperStore) GetByIDs(_ context.Context, ids []string) ([]*entity.Paper, error) {
	out := make([]*entity.Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.papers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePaperStore) Count(context.Context) (int64, error) {
	return int64(len(f.papers)), nil
}

func snapshotLine(id string) string {
	return fmt.Sprintf(`{"id":%q,"doi":"10.1000/%s","title":"Paper %s","authors":"Doe","abstract":"An abstract.","categories":"cs.CL","update_date":"2021-04-18"}`, id, id, id)
}

func newTestIndexer(vector *fakeVectorWriter, store *fakePaperStore, batchSize int) *SnapshotIndexer {
	return NewSnapshotIndexer(&fakeEmbedder{}, vector, store,
		&config.IngestConfig{SnapshotBatchSize: batchSize},
		&config.ArxivConfig{PDFBaseURL: "https://arxiv.org/pdf"})
}

func TestSnapshotRunIndexesValidRecords(t *testing.T) {
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, snapshotLine(fmt.Sprintf("2104.0000%d", i)))
	}

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}}
	idx := newTestIndexer(vector, store, 2)

	report, err := idx.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Indexed)
	assert.Equal(t, 0, report.Skipped)
	assert.Len(t, vector.upserted, 5)
	require.Contains(t, store.papers, "2104.00001")
	assert.Equal(t, "https://arxiv.org/pdf/2104.00001", store.papers["2104.00001"].PDFURL)
	assert.Equal(t, "2021-04-18", store.papers["2104.00001"].LatestCreationDate)
}

func TestSnapshotRunSkipsBadLines(t *testing.T) {
	lines := []string{
		snapshotLine("2104.00001"),
		"{not json",
		`{"id":"2104.00002","title":"no abstract","authors":"Doe"}`,
		"",
		snapshotLine("2104.00003"),
	}

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}}
	idx := newTestIndexer(vector, store, 10)

	report, err := idx.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 2, report.Skipped) // 空行不计数
}

func TestSnapshotRunOffsetAndMaxRows(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, snapshotLine(fmt.Sprintf("2104.0000%d", i)))
	}

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}}
	idx := newTestIndexer(vector, store, 2)

	report, err := idx.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), Options{Offset: 3, MaxRows: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Indexed)
	assert.NotContains(t, store.papers, "2104.00000")
	assert.NotContains(t, store.papers, "2104.00002")
	assert.Contains(t, store.papers, "2104.00003")
	assert.Contains(t, store.papers, "2104.00006")
	assert.NotContains(t, store.papers, "2104.00007")
}

func TestSnapshotRunEmbedFailureSkipsBatch(t *testing.T) {
	lines := []string{snapshotLine("2104.00001"), snapshotLine("2104.00002")}

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}}
	idx := NewSnapshotIndexer(&fakeEmbedder{err: errors.New("embedding down")}, vector, store,
		&config.IngestConfig{SnapshotBatchSize: 10},
		&config.ArxivConfig{PDFBaseURL: "https://arxiv.org/pdf"})

	report, err := idx.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, vector.upserted)
}

func TestSnapshotRunMetadataFailureSkipsBatch(t *testing.T) {
	lines := []string{snapshotLine("2104.00001")}

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}, err: errors.New("db down")}
	idx := newTestIndexer(vector, store, 10)

	report, err := idx.Run(context.Background(), strings.NewReader(lines[0]), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
}

func TestSnapshotRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vector := &fakeVectorWriter{}
	store := &fakePaperStore{papers: map[string]*entity.Paper{}}
	idx := newTestIndexer(vector, store, 10)

	_, err := idx.Run(ctx, strings.NewReader(snapshotLine("2104.00001")), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
