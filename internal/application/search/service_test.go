package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/config"
	"needle-api/internal/domain/entity"
	"needle-api/internal/infrastructure/citations"
	"needle-api/internal/infrastructure/persistence/milvus"
)

type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeVector struct {
	hits []*milvus.Hit
	err  error
	topK int
}

func (f *fakeVector) Search(_ context.Context, _ string, _ []float32, topK int) ([]*milvus.Hit, error) {
	f.topK = topK
	return f.hits, f.err
}

type fakePaperRepo struct {
	papers map[string]*entity.Paper
}

func (f *fakePaperRepo) UpsertBatch(_ context.Context, papers []*entity.Paper) error {
	for _, p := range papers {
		f.papers[p.ArxivID] = p
	}
	return nil
}

func (f *fakePaperRepo) GetByID(_ context.Context, id string) (*entity.Paper, error) {
	return f.papers[id], nil
}

func (f *fakePaperRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.Paper, error) {
	out := make([]*entity.Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.papers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePaperRepo) Count(context.Context) (int64, error) {
	return int64(len(f.papers)), nil
}

type fakeModels struct {
	rewritten string
	err       error
}

func (f *fakeModels) Get(context.Context, string) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeChatModel{content: f.rewritten}, nil
}

func (f *fakeModels) ModelName(string) string { return "test-model" }

func (f *fakeModels) DefaultProvider() string { return "test" }

type fakeChatModel struct {
	content string
}

func (f *fakeChatModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type fakeCitations struct {
	counts map[string]int
}

func (f *fakeCitations) AllTime(_ context.Context, doi string) citations.Count {
	if n, ok := f.counts[doi]; ok {
		return citations.Count{Count: n, Known: true, Provider: "opencitations"}
	}
	return citations.Unknown()
}

func newTestService(vector *fakeVector, repo *fakePaperRepo, models ModelProvider) *Service {
	return NewService(&fakeEmbedder{}, vector, repo, models, &fakeCitations{counts: map[string]int{}}, &config.SearchConfig{
		DefaultTopK: 10,
		MaxTopK:     50,
	})
}

func seedPapers(n int) (*fakeVector, *fakePaperRepo) {
	vector := &fakeVector{}
	repo := &fakePaperRepo{papers: map[string]*entity.Paper{}}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("2104.0%04d", i)
		repo.papers[id] = &entity.Paper{ArxivID: id, Title: fmt.Sprintf("paper %d", i)}
		vector.hits = append(vector.hits, &milvus.Hit{ID: id, Score: float32(n-i) / float32(n)})
	}
	return vector, repo
}

func TestSearchByPromptOrdering(t *testing.T) {
	vector, repo := seedPapers(3)
	svc := newTestService(vector, repo, &fakeModels{})

	out, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "transformers"})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	// 结果保持向量召回的相似度降序
	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Score, out.Results[i].Score)
	}
	assert.Empty(t, out.RewrittenQuery)
}

func TestSearchByPromptRequiresPrompt(t *testing.T) {
	vector, repo := seedPapers(1)
	svc := newTestService(vector, repo, &fakeModels{})

	_, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "   "})
	assert.Error(t, err)
}

func TestSearchByPromptRewrite(t *testing.T) {
	vector, repo := seedPapers(1)
	embedder := &fakeEmbedder{}
	svc := NewService(embedder, vector, repo, &fakeModels{rewritten: "transformer survey"}, nil, &config.SearchConfig{})

	out, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{
		Prompt:       "what are transformers?",
		RewriteQuery: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "transformer survey", out.RewrittenQuery)
	// 向量化的是改写后的查询
	require.NotEmpty(t, embedder.calls)
	assert.Equal(t, "transformer survey", embedder.calls[len(embedder.calls)-1])
}

func TestSearchByPromptRewriteFailureFallsBack(t *testing.T) {
	vector, repo := seedPapers(1)
	embedder := &fakeEmbedder{}
	svc := NewService(embedder, vector, repo, &fakeModels{err: errors.New("provider down")}, nil, &config.SearchConfig{})

	out, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{
		Prompt:       "what are transformers?",
		RewriteQuery: true,
	})
	require.NoError(t, err)
	assert.Empty(t, out.RewrittenQuery)
	assert.Equal(t, "what are transformers?", embedder.calls[len(embedder.calls)-1])
}

func TestSearchDropsOrphanHits(t *testing.T) {
	vector, repo := seedPapers(3)
	// 第二条命中没有元数据记录
	delete(repo.papers, vector.hits[1].ID)
	svc := newTestService(vector, repo, &fakeModels{})

	out, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q"})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, vector.hits[0].ID, out.Results[0].Paper.ArxivID)
	assert.Equal(t, vector.hits[2].ID, out.Results[1].Paper.ArxivID)
}

func TestSearchTopKClamping(t *testing.T) {
	vector, repo := seedPapers(1)
	svc := newTestService(vector, repo, &fakeModels{})

	_, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, 10, vector.topK) // 默认值

	_, err = svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q", TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, vector.topK) // 上限

	_, err = svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q", TopK: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, vector.topK)
}

func TestSearchCitationEnrichment(t *testing.T) {
	vector, repo := seedPapers(2)
	repo.papers[vector.hits[0].ID].DOI = "10.1000/xyz123"
	svc := NewService(&fakeEmbedder{}, vector, repo, &fakeModels{},
		&fakeCitations{counts: map[string]int{"10.1000/xyz123": 42}}, &config.SearchConfig{})

	out, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q", WithCitations: true})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	require.NotNil(t, out.Results[0].Cites)
	assert.True(t, out.Results[0].Cites.Known)
	assert.Equal(t, 42, out.Results[0].Cites.Count)

	// 无 DOI 的结果标记为 unknown 而非报错
	require.NotNil(t, out.Results[1].Cites)
	assert.False(t, out.Results[1].Cites.Known)
}

func TestSearchEmbeddingFailure(t *testing.T) {
	vector, repo := seedPapers(1)
	svc := NewService(&fakeEmbedder{err: errors.New("embedding api down")}, vector, repo, &fakeModels{}, nil, &config.SearchConfig{})

	_, err := svc.SearchByPrompt(context.Background(), &PromptSearchInput{Prompt: "q"})
	assert.Error(t, err)
}
