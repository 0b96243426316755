package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/embedding"
	"github.com/toolcat/visimatch/domain/pipeline"
	"github.com/toolcat/visimatch/domain/retrieval"
	"github.com/toolcat/visimatch/infrastructure/ratelimit"
	"github.com/toolcat/visimatch/infrastructure/session"
)

// SearchRequest is a single incoming visual search request, as handed to
// the Request Pipeline by the transport.
type SearchRequest struct {
	UserID      string
	ImageHandle string // local path or http(s) URL; also the session fingerprint
	Department  string
	IsAdmin     bool // bypasses the photo rate-limit bucket, not the general one
}

// SearchResult is one scored catalog item returned to the caller.
type SearchResult struct {
	ItemID      string
	Picture     string
	URL         string
	ProductName string
	Department  string
	Similarity  float64
}

// SearchResponse is the outcome of a successful search.
type SearchResponse struct {
	Results        []SearchResult
	SessionShortID string
}

// PipelineConfig carries the per-stage timeout budgets and retrieval
// options the Request Pipeline applies to every search.
type PipelineConfig struct {
	FetchTimeout    time.Duration // not applied by RequestPipeline: the image fetch runs inside the embed call and is bounded by EmbedTimeout
	EmbedTimeout    time.Duration
	RetrieveTimeout time.Duration
	TotalTimeout    time.Duration

	TopK            int
	StabilityPasses int
}

func (c PipelineConfig) embedTimeout() time.Duration {
	if c.EmbedTimeout > 0 {
		return c.EmbedTimeout
	}
	return 10 * time.Second
}

func (c PipelineConfig) retrieveTimeout() time.Duration {
	if c.RetrieveTimeout > 0 {
		return c.RetrieveTimeout
	}
	return 5 * time.Second
}

func (c PipelineConfig) totalTimeout() time.Duration {
	if c.TotalTimeout > 0 {
		return c.TotalTimeout
	}
	return 30 * time.Second
}

func (c PipelineConfig) topK() int {
	if c.TopK > 0 {
		return c.TopK
	}
	return 5
}

// RequestPipeline runs the per-request state machine described by C6:
//
//	Admitted → RateChecked → ImageFetched → Embedded → Retrieved → Rendered → Logged
//	           ↓ failure at any point → Errored (with a pipeline.ErrorKind)
//
// The Embedder is the scarce resource: every embedding call is serialized
// through an EmbedPool so that at most Width() requests run inference
// concurrently, with excess callers queued up to a hard ceiling before
// being refused with KindOverloaded.
type RequestPipeline struct {
	embedder catalog.Embedder
	engine   *retrieval.Engine
	limiter  *ratelimit.Limiter
	pool     *EmbedPool
	sessions *session.Store
	cfg      PipelineConfig
	logger   *slog.Logger
}

// NewRequestPipeline constructs a RequestPipeline from its collaborators.
// A nil logger defaults to slog.Default().
func NewRequestPipeline(
	embedder catalog.Embedder,
	engine *retrieval.Engine,
	limiter *ratelimit.Limiter,
	pool *EmbedPool,
	sessions *session.Store,
	cfg PipelineConfig,
	logger *slog.Logger,
) *RequestPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestPipeline{
		embedder: embedder,
		engine:   engine,
		limiter:  limiter,
		pool:     pool,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search admits req through the full request pipeline and returns a
// SearchResponse, or a *pipeline.Error describing which stage failed.
// Cancellation (client disconnect, caller-supplied deadline) propagates to
// whichever stage is in flight at the next suspension point; no partial
// result is ever returned.
func (p *RequestPipeline) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if req.UserID == "" {
		return SearchResponse{}, pipeline.New(pipeline.KindInternal, "search request missing user_id")
	}
	if req.ImageHandle == "" {
		return SearchResponse{}, pipeline.New(pipeline.KindSourceUnreadable, "search request missing image handle")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.totalTimeout())
	defer cancel()

	// RateChecked.
	if err := p.limiter.AllowGeneral(req.UserID); err != nil {
		return SearchResponse{}, err
	}
	if err := p.limiter.AllowPhoto(req.UserID, req.IsAdmin); err != nil {
		return SearchResponse{}, err
	}

	// ImageFetched + Embedded, serialized through the bounded worker pool.
	query, err := p.embed(ctx, req.ImageHandle)
	if err != nil {
		return SearchResponse{}, err
	}

	// Retrieved.
	candidates, err := p.retrieve(ctx, query, req.Department)
	if err != nil {
		return SearchResponse{}, err
	}
	if len(candidates) == 0 {
		return SearchResponse{}, pipeline.New(pipeline.KindEmptyResult, "no catalog items matched")
	}

	// Rendered + Logged.
	resp := p.render(req, candidates)
	p.logger.Info("search completed",
		slog.String("user_id", req.UserID),
		slog.String("session_short_id", resp.SessionShortID),
		slog.String("department", req.Department),
		slog.Int("results", len(resp.Results)),
	)
	return resp, nil
}

func (p *RequestPipeline) embed(ctx context.Context, imageHandle string) (embedding.Embedding, error) {
	var query embedding.Embedding
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		embedCtx, cancel := context.WithTimeout(ctx, p.cfg.embedTimeout())
		defer cancel()

		vec, err := p.embedder.EmbedImageURL(embedCtx, imageHandle)
		if err != nil {
			if embedCtx.Err() != nil {
				return pipeline.Wrap(pipeline.KindTimeout, "embedding timed out", err)
			}
			return pipeline.Wrap(pipeline.KindInferenceFailed, "embedding failed", err)
		}
		query = vec
		return nil
	})
	return query, err
}

func (p *RequestPipeline) retrieve(ctx context.Context, query embedding.Embedding, department string) ([]retrieval.Candidate, error) {
	retrieveCtx, cancel := context.WithTimeout(ctx, p.cfg.retrieveTimeout())
	defer cancel()

	candidates, err := p.engine.Search(retrieveCtx, query, retrieval.Options{
		TopK:            p.cfg.topK(),
		Department:      department,
		StabilityPasses: p.cfg.StabilityPasses,
	})
	if err != nil {
		if retrieveCtx.Err() != nil {
			return nil, pipeline.Wrap(pipeline.KindTimeout, "retrieval timed out", err)
		}
		return nil, pipeline.Wrap(pipeline.KindInternal, "retrieval failed", err)
	}
	return candidates, nil
}

// render builds the caller-facing SearchResponse and registers the Search
// Session feedback will later resolve against.
func (p *RequestPipeline) render(req SearchRequest, candidates []retrieval.Candidate) SearchResponse {
	results := make([]SearchResult, len(candidates))
	sessionResults := make([]session.Result, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{
			ItemID:      c.ItemID,
			Picture:     c.Picture,
			URL:         c.URL,
			ProductName: c.ProductName,
			Department:  c.Department,
			Similarity:  c.Similarity,
		}
		sessionResults[i] = session.Result{ItemID: c.ItemID, Similarity: c.Similarity}
	}

	shortID := session.ShortID(req.ImageHandle)
	p.sessions.Put(session.Session{
		ShortID:          shortID,
		UserID:           req.UserID,
		PhotoFingerprint: req.ImageHandle,
		Results:          sessionResults,
		SearchMethod:     "visual",
		Department:       req.Department,
		CreatedAt:        time.Now(),
	})

	return SearchResponse{Results: results, SessionShortID: shortID}
}
