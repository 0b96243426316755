package tracking

import (
	"context"

	"github.com/toolcat/visimatch/domain/task"
)

// Reporter defines the interface for progress reporting modules.
// Implementations receive notifications when a task status changes.
type Reporter interface {
	OnChange(ctx context.Context, status task.Status) error
}
