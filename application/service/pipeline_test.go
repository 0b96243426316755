package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/embedding"
	"github.com/toolcat/visimatch/domain/pipeline"
	"github.com/toolcat/visimatch/domain/retrieval"
	"github.com/toolcat/visimatch/infrastructure/ratelimit"
	"github.com/toolcat/visimatch/infrastructure/session"
)

type fakeEmbedder struct {
	vec embedding.Embedding
	err error
}

func (f *fakeEmbedder) EmbedImageURL(ctx context.Context, url string) (embedding.Embedding, error) {
	if f.err != nil {
		return embedding.Embedding{}, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Version() string { return "test" }

type fakeSource struct {
	inputs []retrieval.ScoredInput
	err    error
}

func (f *fakeSource) Candidates(ctx context.Context, department string) ([]retrieval.ScoredInput, error) {
	return f.inputs, f.err
}

func mustVec(t *testing.T, values ...float64) embedding.Embedding {
	t.Helper()
	v, err := embedding.Normalize(values)
	require.NoError(t, err)
	return v
}

func newTestPipeline(t *testing.T, embedder catalog.Embedder, source *fakeSource) (*RequestPipeline, *ratelimit.Limiter) {
	t.Helper()
	engine := retrieval.NewEngine(source, nil)
	limiter := ratelimit.New()
	t.Cleanup(limiter.Stop)
	pool := NewEmbedPool(2, 4)
	sessions := session.NewStore(session.DefaultTTL)

	p := NewRequestPipeline(embedder, engine, limiter, pool, sessions, PipelineConfig{TopK: 5}, nil)
	return p, limiter
}

func TestRequestPipeline_Search_Success(t *testing.T) {
	query := mustVec(t, 1, 0)
	source := &fakeSource{inputs: []retrieval.ScoredInput{
		{ItemID: "sku-1", ProductName: "drill", Department: "tools", Vector: mustVec(t, 1, 0)},
		{ItemID: "sku-2", ProductName: "hammer", Department: "tools", Vector: mustVec(t, 0, 1)},
	}}
	p, _ := newTestPipeline(t, &fakeEmbedder{vec: query}, source)

	resp, err := p.Search(context.Background(), SearchRequest{UserID: "u1", ImageHandle: "photo.jpg"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "sku-1", resp.Results[0].ItemID)
	assert.NotEmpty(t, resp.SessionShortID)
	assert.Equal(t, session.ShortID("photo.jpg"), resp.SessionShortID)
}

func TestRequestPipeline_Search_MissingUserID(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{vec: mustVec(t, 1, 0)}, &fakeSource{})

	_, err := p.Search(context.Background(), SearchRequest{ImageHandle: "photo.jpg"})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindInternal, pipeline.KindOf(err))
}

func TestRequestPipeline_Search_EmptyResult(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{vec: mustVec(t, 1, 0)}, &fakeSource{})

	_, err := p.Search(context.Background(), SearchRequest{UserID: "u1", ImageHandle: "photo.jpg"})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindEmptyResult, pipeline.KindOf(err))
}

func TestRequestPipeline_Search_EmbedderFailure(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{err: errors.New("boom")}, &fakeSource{})

	_, err := p.Search(context.Background(), SearchRequest{UserID: "u1", ImageHandle: "photo.jpg"})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindInferenceFailed, pipeline.KindOf(err))
}

func TestRequestPipeline_Search_RateLimited(t *testing.T) {
	source := &fakeSource{inputs: []retrieval.ScoredInput{
		{ItemID: "sku-1", Vector: mustVec(t, 1, 0)},
	}}
	p, limiter := newTestPipeline(t, &fakeEmbedder{vec: mustVec(t, 1, 0)}, source)
	_ = limiter

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = p.Search(context.Background(), SearchRequest{UserID: "heavy-user", ImageHandle: "photo.jpg"})
	}
	require.Error(t, lastErr)
	assert.Equal(t, pipeline.KindRateLimited, pipeline.KindOf(lastErr))
}

func TestRequestPipeline_Search_AdminBypassesPhotoBucket(t *testing.T) {
	source := &fakeSource{inputs: []retrieval.ScoredInput{
		{ItemID: "sku-1", Vector: mustVec(t, 1, 0)},
	}}
	p, _ := newTestPipeline(t, &fakeEmbedder{vec: mustVec(t, 1, 0)}, source)

	for i := 0; i < 5; i++ {
		_, err := p.Search(context.Background(), SearchRequest{UserID: "admin-1", ImageHandle: "photo.jpg", IsAdmin: true})
		require.NoError(t, err)
	}
}
