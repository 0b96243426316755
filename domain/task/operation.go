package task

import "strings"

// Operation represents the type of task operation.
type Operation string

// Operation values for the task queue system.
const (
	OperationRoot Operation = "visimatch.root"

	// Catalog re-embedding: a sweep of products whose vectors are stale
	// against the current model version.
	OperationReembedSweep      Operation = "visimatch.catalog.reembed_sweep"
	OperationReembedBatch      Operation = "visimatch.catalog.reembed_batch"
	OperationImportCatalogRow  Operation = "visimatch.catalog.import_row"

	// Trainer lifecycle: data prep through artifact promotion.
	OperationTrainingSession      Operation = "visimatch.training.session"
	OperationPrepareTrainingData  Operation = "visimatch.training.prepare_data"
	OperationRunTrainingEpoch     Operation = "visimatch.training.run_epoch"
	OperationBackupActiveModel    Operation = "visimatch.training.backup_active_model"
	OperationPromoteModel         Operation = "visimatch.training.promote_model"
	OperationMarkExamplesConsumed Operation = "visimatch.training.mark_examples_consumed"

	// Model registry maintenance.
	OperationRestoreBackup  Operation = "visimatch.model.restore_backup"
	OperationCleanupBackups Operation = "visimatch.model.cleanup_backups"
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// IsCatalogOperation returns true if this is a catalog-level operation.
func (o Operation) IsCatalogOperation() bool {
	return strings.HasPrefix(string(o), "visimatch.catalog.")
}

// IsTrainingOperation returns true if this is a training-lifecycle operation.
func (o Operation) IsTrainingOperation() bool {
	return strings.HasPrefix(string(o), "visimatch.training.")
}

// IsModelOperation returns true if this is a model registry maintenance
// operation.
func (o Operation) IsModelOperation() bool {
	return strings.HasPrefix(string(o), "visimatch.model.")
}

// PrescribedOperations provides predefined operation sequences for common
// workflows.
type PrescribedOperations struct{}

// NewPrescribedOperations creates a PrescribedOperations.
func NewPrescribedOperations() PrescribedOperations {
	return PrescribedOperations{}
}

// All returns every operation that appears in any prescribed workflow.
// Used at startup to validate that all required handlers are registered.
func (p PrescribedOperations) All() []Operation {
	seen := make(map[Operation]struct{})
	var all []Operation

	for _, ops := range [][]Operation{
		p.ReembedCatalog(),
		p.RunTrainingSession(),
		p.RestoreBackup(),
	} {
		for _, op := range ops {
			if _, ok := seen[op]; !ok {
				seen[op] = struct{}{}
				all = append(all, op)
			}
		}
	}
	return all
}

// ReembedCatalog returns the operation sequence for a full catalog
// re-embedding sweep after a model promotion.
func (p PrescribedOperations) ReembedCatalog() []Operation {
	return []Operation{
		OperationReembedSweep,
		OperationReembedBatch,
	}
}

// RunTrainingSession returns the operation sequence for a complete
// fine-tuning run: backup, data prep, epochs, promotion, consumption.
func (p PrescribedOperations) RunTrainingSession() []Operation {
	return []Operation{
		OperationBackupActiveModel,
		OperationPrepareTrainingData,
		OperationRunTrainingEpoch,
		OperationPromoteModel,
		OperationMarkExamplesConsumed,
		OperationReembedSweep,
	}
}

// RestoreBackup returns the operation sequence for restoring a prior model
// artifact: snapshot the current one first, then swap and re-embed.
func (p PrescribedOperations) RestoreBackup() []Operation {
	return []Operation{
		OperationBackupActiveModel,
		OperationRestoreBackup,
		OperationReembedSweep,
	}
}
