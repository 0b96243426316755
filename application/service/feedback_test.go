package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/infrastructure/persistence"
	"github.com/toolcat/visimatch/infrastructure/session"
	"github.com/toolcat/visimatch/internal/database"
)

func newTestFeedbackStoreForAggregator(t *testing.T) feedback.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db))
	return persistence.NewFeedbackStore(db)
}

func TestAggregator_MarkCorrect_ResolvesAgainstSession(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 0, nil)

	sessions.Put(session.Session{
		ShortID:          "abc12345",
		UserID:           "user-1",
		PhotoFingerprint: "handle-1",
		Results: []session.Result{
			{ItemID: "sku-1", Similarity: 0.91},
			{ItemID: "sku-2", Similarity: 0.63},
		},
	})

	e, err := agg.MarkCorrect(context.Background(), FeedbackSignal{ShortID: "abc12345", UserID: "user-1"}, 1, "")
	require.NoError(t, err)
	require.NotNil(t, e.TargetItemID)
	assert.Equal(t, "sku-2", *e.TargetItemID)
	require.NotNil(t, e.SimilarityScore)
	assert.InDelta(t, 0.63, *e.SimilarityScore, 1e-9)
	assert.Equal(t, feedback.KindCorrect, e.FeedbackKind)
}

func TestAggregator_MarkIncorrect_OrphanedSessionStillRecorded(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 0, nil)

	e, err := agg.MarkIncorrect(context.Background(), FeedbackSignal{ShortID: "missing", UserID: "user-1"}, 0, "sku-9")
	require.NoError(t, err)
	require.NotNil(t, e.TargetItemID)
	assert.Equal(t, "sku-9", *e.TargetItemID)
	assert.Nil(t, e.SimilarityScore)
	assert.Equal(t, feedback.KindIncorrect, e.FeedbackKind)

	examples, err := store.ListExamples(context.Background(), feedback.Filter{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
}

func TestAggregator_ProposeNewItem(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 0, nil)

	e, err := agg.ProposeNewItem(context.Background(), FeedbackSignal{ShortID: "abc", UserID: "user-1"}, "cordless drill", "power tools", "18V")
	require.NoError(t, err)
	assert.Equal(t, feedback.KindNewItem, e.FeedbackKind)
	assert.Nil(t, e.TargetItemID)
	assert.Contains(t, e.UserComment, "cordless drill")
}

func TestAggregator_ProposeNewItem_RequiresName(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 0, nil)

	_, err := agg.ProposeNewItem(context.Background(), FeedbackSignal{ShortID: "abc"}, "", "", "")
	require.Error(t, err)
}

func TestAggregator_SpecifyCorrect_WithFreeText(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 0, nil)

	e, err := agg.SpecifyCorrect(context.Background(), FeedbackSignal{ShortID: "abc", UserID: "user-1"}, "", "it's the 18V impact driver")
	require.NoError(t, err)
	assert.Equal(t, feedback.KindCorrect, e.FeedbackKind)
	assert.Equal(t, "it's the 18V impact driver", e.UserComment)
}

func TestAggregator_ShouldRetrainHint(t *testing.T) {
	store := newTestFeedbackStoreForAggregator(t)
	sessions := session.NewStore(session.DefaultTTL)
	agg := NewAggregator(store, sessions, 1, nil)

	ctx := context.Background()
	_, err := store.AddExample(ctx, feedback.Example{UserID: "u1", FeedbackKind: feedback.KindCorrect})
	require.NoError(t, err)

	hint, stats, err := agg.ShouldRetrainHint(ctx)
	require.NoError(t, err)
	assert.False(t, hint, "no negative examples yet")
	assert.Equal(t, 1, stats.UnconsumedTotal)

	_, err = store.AddExample(ctx, feedback.Example{UserID: "u2", FeedbackKind: feedback.KindIncorrect})
	require.NoError(t, err)

	hint, _, err = agg.ShouldRetrainHint(ctx)
	require.NoError(t, err)
	assert.True(t, hint)
}
