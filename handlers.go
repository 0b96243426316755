package visimatch

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolcat/visimatch/application/service"
	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/task"
	"github.com/toolcat/visimatch/infrastructure/tracking"
)

// registerHandlers registers every task handler the client's prescribed
// operation sequences need: the training lifecycle, model-registry
// maintenance, and catalog import/reembed handlers.
func (c *Client) registerHandlers(catalogStore catalog.Store, backupRetention int) error {
	service.RegisterTrainerHandlers(c.registry, c.Trainer, backupRetention, c.logger)
	service.RegisterCatalogHandlers(c.registry, catalogStore, c.embedder, c.logger)

	c.logger.Info("registered task handlers", slog.Int("count", len(c.registry.Operations())))
	return nil
}

// validateHandlers checks that every operation named by any prescribed
// workflow has a registered handler, returning a descriptive error
// listing what's missing otherwise.
func (c *Client) validateHandlers() error {
	var missing []string
	for _, op := range c.prescribedOps.All() {
		if !c.registry.HasHandler(op) {
			missing = append(missing, op.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing handlers for operations: %s", strings.Join(missing, ", "))
	}
	return nil
}

// buildDatabaseURL constructs the database URL from configuration.
func buildDatabaseURL(cfg *clientConfig) (string, error) {
	switch cfg.database {
	case databaseSQLite:
		return "sqlite:///" + cfg.dbPath, nil
	case databasePostgres:
		return cfg.dbDSN, nil
	default:
		return "", ErrNoDatabase
	}
}

// trackerFactoryImpl implements service.WorkerTrackerFactory for progress
// reporting, fanning status changes out to every subscribed reporter.
type trackerFactoryImpl struct {
	reporters []tracking.Reporter
	logger    *slog.Logger
}

// forOperation creates a Tracker for the given operation.
func (f *trackerFactoryImpl) forOperation(operation task.Operation, trackableType task.TrackableType, trackableID int64) *tracking.Tracker {
	tracker := tracking.TrackerForOperation(operation, f.logger, trackableType, trackableID)
	for _, reporter := range f.reporters {
		tracker.Subscribe(reporter)
	}
	return tracker
}

// workerTrackerAdapter adapts trackerFactoryImpl to service.WorkerTrackerFactory,
// whose ForOperation signature returns the narrower service.WorkerTracker
// interface rather than the concrete *tracking.Tracker.
type workerTrackerAdapter struct {
	factory *trackerFactoryImpl
}

func (a *workerTrackerAdapter) ForOperation(operation task.Operation, trackableType task.TrackableType, trackableID int64) service.WorkerTracker {
	return a.factory.forOperation(operation, trackableType, trackableID)
}

var _ service.WorkerTrackerFactory = (*workerTrackerAdapter)(nil)
