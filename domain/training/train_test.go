package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolcat/visimatch/domain/feedback"
)

func strPtr(s string) *string { return &s }

func TestBuildPairs_PositiveAndNegative(t *testing.T) {
	examples := []feedback.Example{
		{ID: 1, FeedbackKind: feedback.KindCorrect, TargetItemID: strPtr("sku-1")},
		{ID: 2, FeedbackKind: feedback.KindCorrect, TargetItemID: strPtr("sku-1")},
		{ID: 3, FeedbackKind: feedback.KindCorrect, TargetItemID: strPtr("sku-2")},
		{ID: 4, FeedbackKind: feedback.KindIncorrect, TargetItemID: strPtr("sku-3")},
	}
	vectors := map[uint64][]float64{
		1: {1, 0}, 2: {0.9, 0.1}, 3: {0, 1}, 4: {0.5, 0.5},
	}

	pairs := BuildPairs(examples, vectors)

	var positives, negatives int
	for _, p := range pairs {
		if p.Label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	assert.Equal(t, 1, positives, "only examples 1 and 2 share target_item_id")
	assert.Equal(t, 3, negatives, "every correct example pairs against the one incorrect example")
}

func TestBuildPairs_SkipsExamplesWithoutVector(t *testing.T) {
	examples := []feedback.Example{
		{ID: 1, FeedbackKind: feedback.KindCorrect, TargetItemID: strPtr("sku-1")},
		{ID: 2, FeedbackKind: feedback.KindIncorrect, TargetItemID: strPtr("sku-2")},
	}
	pairs := BuildPairs(examples, map[uint64][]float64{1: {1, 0}})
	assert.Empty(t, pairs, "example 2 has no embedded vector and must be skipped")
}

func TestSplitExamples_8020ByInsertionOrder(t *testing.T) {
	examples := make([]feedback.Example, 10)
	for i := range examples {
		examples[i] = feedback.Example{ID: uint64(i)}
	}
	train, val := SplitExamples(examples)
	require.Len(t, train, 8)
	require.Len(t, val, 2)
	assert.Equal(t, uint64(0), train[0].ID)
	assert.Equal(t, uint64(8), val[0].ID)
}

func TestSession_RunEpoch_ImprovesAccuracy(t *testing.T) {
	pairs := []Pair{
		{A: []float64{1, 0}, B: []float64{0.95, 0.05}, Label: 1},
		{A: []float64{1, 0}, B: []float64{0, 1}, Label: 0},
		{A: []float64{0, 1}, B: []float64{0.05, 0.95}, Label: 1},
		{A: []float64{0, 1}, B: []float64{1, 0}, Label: 0},
	}

	head := NewIdentityHead(2)
	before := Evaluate(pairs, head)

	sess := NewSession(&head, feedback.Hyperparameters{Epochs: 50, BatchSize: 4, LearningRate: 0.05, WeightDecay: 0.0})
	for i := 0; i < 50; i++ {
		sess.RunEpoch(pairs)
	}
	after := Evaluate(pairs, head)

	assert.Greater(t, after, before)
}

func TestHead_SerializeRoundTrip(t *testing.T) {
	head := NewIdentityHead(4)
	head.Temperature = 12.5
	head.Bias = -0.1

	data, err := head.MarshalJSON()
	require.NoError(t, err)

	got, err := UnmarshalHead(data)
	require.NoError(t, err)
	assert.Equal(t, head.Scale, got.Scale)
	assert.Equal(t, head.Temperature, got.Temperature)
	assert.Equal(t, head.Bias, got.Bias)
}
