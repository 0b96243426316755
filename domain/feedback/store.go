package feedback

import "context"

// Store is the append-only feedback log: training examples, new-product
// proposals, training session history, and backup events.
type Store interface {
	AddExample(ctx context.Context, e Example) (Example, error)
	ListExamples(ctx context.Context, filter Filter) ([]Example, error)

	// MarkConsumed sets consumed_by_training_session on every id in ids.
	// Idempotent: re-marking an already-consumed id is a no-op, not an
	// error.
	MarkConsumed(ctx context.Context, ids []uint64, sessionID string) error

	AddNewProduct(ctx context.Context, a NewProductAnnotation) (NewProductAnnotation, error)
	ApproveNewProduct(ctx context.Context, id uint64, adminID string) (NewProductAnnotation, error)

	// LogTrainingSession records a session. If s.IsActive is true, every
	// other session's IsActive flag is cleared in the same transaction.
	LogTrainingSession(ctx context.Context, s TrainingSession) error

	LogModelBackup(ctx context.Context, r ModelBackupRecord) error
	ListBackups(ctx context.Context) ([]ModelBackupRecord, error)

	// Stats summarizes the unconsumed example pool for the retraining
	// hint.
	Stats(ctx context.Context) (Stats, error)
}
