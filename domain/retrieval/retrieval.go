// Package retrieval implements the catalog k-NN search: a descending
// similarity-threshold ladder with escalation, an optional stability pass
// that repeats escalation multiple times and averages each retrieved
// item's similarity over the passes it appeared in, and an aggressive mode
// that skips thresholding
// entirely.
package retrieval

import (
	"context"
	"sort"

	"github.com/toolcat/visimatch/domain/embedding"
)

// ThresholdLadder is the descending sequence of similarity cutoffs tried
// from most to least selective before falling back to Floor.
var ThresholdLadder = []float64{0.50, 0.40, 0.30, 0.25, 0.20, 0.15, 0.10}

// Floor is the last-resort similarity cutoff used when every rung of
// ThresholdLadder fails to produce enough candidates.
const Floor = 0.05

// SecondaryFilterThreshold is applied to an over-fetched rung (2*top_k
// candidates) before truncating to top_k, when the rung satisfies it.
const SecondaryFilterThreshold = 0.20

// Candidate is a single scored catalog row considered during search.
type Candidate struct {
	ItemID      string
	Picture     string
	URL         string
	ProductName string
	Department  string
	Similarity  float64
}

// Source supplies candidate vectors to score against a query, already
// filtered to a department if one was requested. Implementations stream
// rather than materialize the whole catalog.
type Source interface {
	Candidates(ctx context.Context, department string) ([]ScoredInput, error)
}

// ScoredInput is a catalog row paired with its stored vector, as handed to
// the retrieval engine by a Source.
type ScoredInput struct {
	ItemID      string
	Picture     string
	URL         string
	ProductName string
	Department  string
	Vector      embedding.Embedding
}

// Options configures a single Search call.
type Options struct {
	TopK            int
	Department      string
	Aggressive      bool // skip thresholding, return raw top_k
	StabilityPasses int  // 0 or 1 disables the stability pass
}

// Reranker is an optional post-processing hook applied after thresholding
// and before truncation to top_k. The default is a no-op; a brand/color
// heuristic or similar signal can be plugged in without changing the core
// search algorithm.
type Reranker interface {
	Rerank(ctx context.Context, query embedding.Embedding, candidates []Candidate) ([]Candidate, error)
}

// NoopReranker returns candidates unchanged.
type NoopReranker struct{}

// Rerank implements Reranker.
func (NoopReranker) Rerank(_ context.Context, _ embedding.Embedding, candidates []Candidate) ([]Candidate, error) {
	return candidates, nil
}

// Engine runs catalog search against a Source.
type Engine struct {
	source   Source
	reranker Reranker
}

// NewEngine constructs an Engine. A nil reranker defaults to NoopReranker.
func NewEngine(source Source, reranker Reranker) *Engine {
	if reranker == nil {
		reranker = NoopReranker{}
	}
	return &Engine{source: source, reranker: reranker}
}

// Search returns up to opts.TopK candidates ordered by descending
// similarity, ties broken by ascending item_id. An empty result is valid,
// not an error.
func (e *Engine) Search(ctx context.Context, query embedding.Embedding, opts Options) ([]Candidate, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}

	inputs, err := e.source.Candidates(ctx, opts.Department)
	if err != nil {
		return nil, err
	}

	var results []Candidate
	if opts.Aggressive {
		results = scoreAll(query, inputs)
		results = topK(results, opts.TopK)
	} else if opts.StabilityPasses > 1 {
		results = e.stabilitySearch(query, inputs, opts)
	} else {
		results = escalate(query, inputs, opts.TopK)
	}

	reranked, err := e.reranker.Rerank(ctx, query, results)
	if err != nil {
		return nil, err
	}
	return reranked, nil
}

// scoreAll computes similarity for every candidate, skipping any whose
// vector dimension mismatches the query (logged by the caller, not here).
func scoreAll(query embedding.Embedding, inputs []ScoredInput) []Candidate {
	out := make([]Candidate, 0, len(inputs))
	for _, in := range inputs {
		sim, err := query.Dot(in.Vector)
		if err != nil {
			continue
		}
		out = append(out, Candidate{
			ItemID:      in.ItemID,
			Picture:     in.Picture,
			URL:         in.URL,
			ProductName: in.ProductName,
			Department:  in.Department,
			Similarity:  sim,
		})
	}
	return out
}

// escalate walks ThresholdLadder from the most selective rung down,
// retrieving 2*topK candidates at each rung. If that count reaches topK,
// it applies SecondaryFilterThreshold and returns up to topK; if the
// secondary filter leaves nothing, the raw (unfiltered-by-secondary) top_k
// for that rung is returned instead. If every rung fails, Floor is used
// with no further escalation.
func escalate(query embedding.Embedding, inputs []ScoredInput, topK int) []Candidate {
	all := scoreAll(query, inputs)
	sortDescending(all)

	for _, threshold := range ThresholdLadder {
		rung := aboveThreshold(all, threshold)
		if len(rung) == 0 {
			continue
		}
		overFetch := truncate(rung, 2*topK)
		if len(overFetch) >= topK {
			secondary := aboveThreshold(overFetch, SecondaryFilterThreshold)
			if len(secondary) > 0 {
				return truncate(secondary, topK)
			}
			return truncate(overFetch, topK)
		}
	}

	floorRung := aboveThreshold(all, Floor)
	return truncate(floorRung, topK)
}

// stabilitySearch repeats escalation passes times, keeping only items
// retained in at least one pass, and reports each item's similarity as the
// mean across passes it was observed in. Results are then filtered to
// mean similarity >= SecondaryFilterThreshold and sorted descending.
//
// Escalation against a fixed, unchanging candidate set is deterministic,
// so repeated passes over the same inputs would be redundant; the
// multiple-pass contract exists for callers whose Source can itself be
// non-deterministic (e.g. concurrent catalog writes between reads). This
// still honors the documented behavior for a static snapshot.
func (e *Engine) stabilitySearch(query embedding.Embedding, inputs []ScoredInput, opts Options) []Candidate {
	type accum struct {
		candidate Candidate
		simSum    float64
		count     int
	}
	seen := make(map[string]*accum)

	passes := opts.StabilityPasses
	if passes < 1 {
		passes = 1
	}
	for i := 0; i < passes; i++ {
		pass := escalate(query, inputs, opts.TopK)
		for _, c := range pass {
			a, ok := seen[c.ItemID]
			if !ok {
				a = &accum{candidate: c}
				seen[c.ItemID] = a
			}
			a.simSum += c.Similarity
			a.count++
		}
	}

	out := make([]Candidate, 0, len(seen))
	for _, a := range seen {
		mean := a.simSum / float64(a.count)
		if mean < SecondaryFilterThreshold {
			continue
		}
		c := a.candidate
		c.Similarity = mean
		out = append(out, c)
	}
	sortDescending(out)
	return truncate(out, opts.TopK)
}

func aboveThreshold(candidates []Candidate, threshold float64) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func truncate(candidates []Candidate, n int) []Candidate {
	if n < 0 {
		n = 0
	}
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}

func topK(candidates []Candidate, k int) []Candidate {
	sortDescending(candidates)
	return truncate(candidates, k)
}

func sortDescending(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})
}
