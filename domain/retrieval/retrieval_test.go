package retrieval

import (
	"context"
	"testing"

	"github.com/toolcat/visimatch/domain/embedding"
)

type fakeSource struct {
	inputs []ScoredInput
}

func (f fakeSource) Candidates(_ context.Context, department string) ([]ScoredInput, error) {
	if department == "" || department == "ALL" {
		return f.inputs, nil
	}
	var out []ScoredInput
	for _, in := range f.inputs {
		if in.Department == department {
			out = append(out, in)
		}
	}
	return out, nil
}

func vec(t *testing.T, dims ...float64) embedding.Embedding {
	t.Helper()
	e, err := embedding.Normalize(dims)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return e
}

func TestSearch_TopKZero_NoIO(t *testing.T) {
	eng := NewEngine(fakeSource{}, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 0})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for TopK=0, got %v", results)
	}
}

func TestSearch_EmptyCatalog(t *testing.T) {
	eng := NewEngine(fakeSource{}, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestSearch_OrdersByDescendingSimilarity(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "b", Vector: vec(t, 0.9, 0.1)},
		{ItemID: "a", Vector: vec(t, 1, 0)},
		{ItemID: "c", Vector: vec(t, 0.5, 0.5)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Similarity < results[i].Similarity {
			t.Errorf("results not descending: %v", results)
		}
	}
	if results[0].ItemID != "a" {
		t.Errorf("expected exact match 'a' first, got %v", results[0].ItemID)
	}
}

func TestSearch_TiesBrokenByItemID(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "z", Vector: vec(t, 1, 0)},
		{ItemID: "a", Vector: vec(t, 1, 0)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ItemID != "a" {
		t.Errorf("expected tie broken by ascending item_id, got %v", results)
	}
}

func TestSearch_DepartmentFilter(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Department: "hand-tools", Vector: vec(t, 1, 0)},
		{ItemID: "b", Department: "power-tools", Vector: vec(t, 1, 0)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5, Department: "hand-tools"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ItemID != "a" {
		t.Errorf("expected only hand-tools result, got %v", results)
	}
}

func TestSearch_UnknownDepartment_EmptyNoError(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Department: "hand-tools", Vector: vec(t, 1, 0)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5, Department: "nonexistent"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results for unknown department, got %v", results)
	}
}

func TestSearch_FloorUsedWhenAllRungsFail(t *testing.T) {
	// Similarity ~0.08, below every ladder rung but above Floor (0.05).
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Vector: vec(t, 0.08, 0.9966)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the floor rung to retain the one weak match, got %v", results)
	}
}

func TestSearch_Aggressive_SkipsThresholding(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Vector: vec(t, 0.01, 0.99995)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5, Aggressive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("aggressive mode should return raw top_k regardless of threshold, got %v", results)
	}
}

func TestSearch_StabilityPass_MeansSimilarity(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Vector: vec(t, 1, 0)},
	}}
	eng := NewEngine(source, nil)
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5, StabilityPasses: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one stable match, got %v", results)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("expected near-1.0 mean similarity for an exact repeated match, got %v", results[0].Similarity)
	}
}

type refuteAllReranker struct{}

func (refuteAllReranker) Rerank(_ context.Context, _ embedding.Embedding, _ []Candidate) ([]Candidate, error) {
	return nil, nil
}

func TestSearch_RerankerApplied(t *testing.T) {
	source := fakeSource{inputs: []ScoredInput{
		{ItemID: "a", Vector: vec(t, 1, 0)},
	}}
	eng := NewEngine(source, refuteAllReranker{})
	results, err := eng.Search(context.Background(), vec(t, 1, 0), Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected reranker to clear results, got %v", results)
	}
}
