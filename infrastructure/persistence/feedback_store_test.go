package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/stretchr/testify/require"
)

func newTestFeedbackStore(t *testing.T) FeedbackStore {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.GORM().AutoMigrate(
		&FeedbackExampleModel{},
		&NewProductAnnotationModel{},
		&TrainingSessionModel{},
		&ModelBackupModel{},
	))
	return NewFeedbackStore(db)
}

func strPtr(s string) *string { return &s }

func TestFeedbackStore_AddAndListExamples(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	_, err := store.AddExample(ctx, feedback.Example{
		UserID:       "user-1",
		FeedbackKind: feedback.KindCorrect,
		TargetItemID: strPtr("sku-1"),
	})
	require.NoError(t, err)

	_, err = store.AddExample(ctx, feedback.Example{
		UserID:       "user-2",
		FeedbackKind: feedback.KindIncorrect,
		TargetItemID: strPtr("sku-2"),
	})
	require.NoError(t, err)

	correct := feedback.KindCorrect
	examples, err := store.ListExamples(ctx, feedback.Filter{Kind: &correct})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	require.Equal(t, "user-1", examples[0].UserID)
}

func TestFeedbackStore_MarkConsumedIsIdempotent(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	e, err := store.AddExample(ctx, feedback.Example{UserID: "user-1", FeedbackKind: feedback.KindCorrect})
	require.NoError(t, err)

	require.NoError(t, store.MarkConsumed(ctx, []uint64{e.ID}, "session-1"))
	require.NoError(t, store.MarkConsumed(ctx, []uint64{e.ID}, "session-2"))

	examples, err := store.ListExamples(ctx, feedback.Filter{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	require.NotNil(t, examples[0].ConsumedByTrainingSession)
	require.Equal(t, "session-1", *examples[0].ConsumedByTrainingSession)
}

func TestFeedbackStore_Stats(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	_, err := store.AddExample(ctx, feedback.Example{UserID: "u1", FeedbackKind: feedback.KindCorrect})
	require.NoError(t, err)
	_, err = store.AddExample(ctx, feedback.Example{UserID: "u2", FeedbackKind: feedback.KindIncorrect})
	require.NoError(t, err)
	consumed, err := store.AddExample(ctx, feedback.Example{UserID: "u3", FeedbackKind: feedback.KindCorrect})
	require.NoError(t, err)
	require.NoError(t, store.MarkConsumed(ctx, []uint64{consumed.ID}, "session-1"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.UnconsumedTotal)
	require.Equal(t, 1, stats.UnconsumedPositive)
	require.Equal(t, 1, stats.UnconsumedNegative)
}

func TestFeedbackStore_ApproveNewProduct(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	a, err := store.AddNewProduct(ctx, feedback.NewProductAnnotation{Name: "cordless drill"})
	require.NoError(t, err)
	require.False(t, a.ApprovedByAdmin)

	approved, err := store.ApproveNewProduct(ctx, a.ID, "admin-1")
	require.NoError(t, err)
	require.True(t, approved.ApprovedByAdmin)
	require.Equal(t, "admin-1", approved.ApprovedBy)
}

func TestFeedbackStore_LogTrainingSessionClearsPriorActive(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	first := feedback.TrainingSession{
		ID:           "session-1",
		ModelVersion: "v1",
		StartedAt:    time.Now(),
		IsActive:     true,
	}
	require.NoError(t, store.LogTrainingSession(ctx, first))

	second := feedback.TrainingSession{
		ID:           "session-2",
		ModelVersion: "v2",
		StartedAt:    time.Now(),
		IsActive:     true,
	}
	require.NoError(t, store.LogTrainingSession(ctx, second))

	var count int64
	require.NoError(t, store.db.Session(ctx).Model(&TrainingSessionModel{}).
		Where("is_active = ?", true).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestFeedbackStore_LogAndListBackups(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	require.NoError(t, store.LogModelBackup(ctx, feedback.ModelBackupRecord{
		ModelVersion: "v1",
		Origin:       feedback.BackupOriginPreTraining,
		Path:         "/data/models/v1",
	}))

	backups, err := store.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, feedback.BackupOriginPreTraining, backups[0].Origin)
}
