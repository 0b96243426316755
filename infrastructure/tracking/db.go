package tracking

import (
	"context"
	"log/slog"

	"github.com/toolcat/visimatch/domain/task"
)

// DBReporter implements Reporter by persisting status changes through a
// StatusStore, so progress survives process restarts and is queryable by
// the catalog/training admin surfaces.
type DBReporter struct {
	repo   task.StatusStore
	logger *slog.Logger
}

// NewDBReporter creates a new DBReporter.
func NewDBReporter(repo task.StatusStore, logger *slog.Logger) *DBReporter {
	return &DBReporter{repo: repo, logger: logger}
}

var _ Reporter = (*DBReporter)(nil)

// OnChange persists the task status.
func (r *DBReporter) OnChange(ctx context.Context, status task.Status) error {
	if _, err := r.repo.Save(ctx, status); err != nil {
		r.logger.Error("failed to save task status",
			slog.String("error", err.Error()),
			slog.String("operation", status.Operation().String()),
		)
		return err
	}
	return nil
}
