package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/domain/task"
)

// The Trainer's lifecycle is split across the task queue's prescribed
// operation sequences (task.PrescribedOperations.RunTrainingSession and
// .RestoreBackup). Every task enqueued via Queue.EnqueueOperations for a
// single chain carries the same original payload, so handlers that need
// state produced by an earlier step in the chain re-derive it from the
// feedback store and model registry rather than threading it through the
// payload: the Feedback Store's is_active session flag and the Registry's
// active pointer are themselves the durable hand-off between steps. The one
// exception is promotion, which takes the fine-tuned version from a
// TrainingResult that RegisterTrainerHandlers shares in memory between the
// training-epoch and promote handlers.

// backupActiveModelHandler implements OperationBackupActiveModel.
type backupActiveModelHandler struct {
	trainer *Trainer
	logger  *slog.Logger
}

func newBackupActiveModelHandler(trainer *Trainer, logger *slog.Logger) Handler {
	return &backupActiveModelHandler{trainer: trainer, logger: logger}
}

func (h *backupActiveModelHandler) Execute(ctx context.Context, payload map[string]any) error {
	art, err := h.trainer.Backup(ctx, feedback.BackupOriginPreTraining)
	if err != nil {
		return fmt.Errorf("backup active model: %w", err)
	}
	h.logger.Info("backed up active model", slog.String("version", art.Version))
	return nil
}

// prepareTrainingDataHandler and runTrainingEpochHandler together
// implement the data-preparation-through-registration portion of §4.5.
// Both steps are folded into FineTune, which runs atomically against the
// feedback store; the queue still models them as two operations so an
// operator watching task status sees preparation and training as distinct
// phases.
type prepareTrainingDataHandler struct {
	trainer *Trainer
	logger  *slog.Logger
}

func newPrepareTrainingDataHandler(trainer *Trainer, logger *slog.Logger) Handler {
	return &prepareTrainingDataHandler{trainer: trainer, logger: logger}
}

func (h *prepareTrainingDataHandler) Execute(ctx context.Context, payload map[string]any) error {
	// Validation only: a dry readiness check so a misconfigured chain
	// fails fast on InsufficientData before a training epoch is attempted.
	examples, err := h.trainer.feedback.ListExamples(ctx, feedback.Filter{UnconsumedOnly: true})
	if err != nil {
		return fmt.Errorf("list unconsumed examples: %w", err)
	}
	var readable int
	for _, e := range examples {
		if fileReadable(e.ImagePath) {
			readable++
		}
	}
	if readable < h.trainer.minExamples {
		return fmt.Errorf("only %d readable unconsumed examples, need at least %d", readable, h.trainer.minExamples)
	}
	h.logger.Info("training data ready", slog.Int("readable_examples", readable))
	return nil
}

type runTrainingEpochHandler struct {
	trainer *Trainer
	logger  *slog.Logger
	result  *TrainingResult
}

func newRunTrainingEpochHandler(trainer *Trainer, logger *slog.Logger, result *TrainingResult) Handler {
	return &runTrainingEpochHandler{trainer: trainer, logger: logger, result: result}
}

func (h *runTrainingEpochHandler) Execute(ctx context.Context, payload map[string]any) error {
	res, err := h.trainer.FineTune(ctx)
	if err != nil {
		return fmt.Errorf("fine-tune: %w", err)
	}
	if h.result != nil {
		*h.result = res
	}
	h.logger.Info("training session complete",
		slog.String("version", res.Version),
		slog.Float64("accuracy_before", res.AccuracyBefore),
		slog.Float64("accuracy_after", res.AccuracyAfter),
	)
	return nil
}

// promoteModelHandler implements OperationPromoteModel. It promotes the
// version recorded in the shared TrainingResult by runTrainingEpochHandler
// in the same process, and fails if no training step has recorded one.
type promoteModelHandler struct {
	trainer *Trainer
	result  *TrainingResult
	logger  *slog.Logger
}

func newPromoteModelHandler(trainer *Trainer, result *TrainingResult, logger *slog.Logger) Handler {
	return &promoteModelHandler{trainer: trainer, result: result, logger: logger}
}

func (h *promoteModelHandler) Execute(ctx context.Context, payload map[string]any) error {
	if h.result == nil || h.result.Version == "" {
		return fmt.Errorf("promote model: no fine-tuned version recorded by the training epoch step")
	}
	if err := h.trainer.Promote(ctx, h.result.Version); err != nil {
		return fmt.Errorf("promote model %s: %w", h.result.Version, err)
	}
	h.logger.Info("promoted model", slog.String("version", h.result.Version))
	return nil
}

// markExamplesConsumedHandler implements OperationMarkExamplesConsumed.
// FineTune already marks examples consumed as part of its own run; this
// handler marks nothing itself, it only logs how many examples the
// feedback store still reports as unconsumed.
type markExamplesConsumedHandler struct {
	feedback feedback.Store
	logger   *slog.Logger
}

func newMarkExamplesConsumedHandler(store feedback.Store, logger *slog.Logger) Handler {
	return &markExamplesConsumedHandler{feedback: store, logger: logger}
}

func (h *markExamplesConsumedHandler) Execute(ctx context.Context, payload map[string]any) error {
	stats, err := h.feedback.Stats(ctx)
	if err != nil {
		return fmt.Errorf("check unconsumed stats: %w", err)
	}
	h.logger.Info("examples consumed check", slog.Int("still_unconsumed", stats.UnconsumedTotal))
	return nil
}

// reembedSweepHandler implements OperationReembedSweep, used both at the
// end of a training chain and for a standalone re-embedding sweep after
// an operator changes the active model out of band.
type reembedSweepHandler struct {
	trainer *Trainer
	logger  *slog.Logger
}

func newReembedSweepHandler(trainer *Trainer, logger *slog.Logger) Handler {
	return &reembedSweepHandler{trainer: trainer, logger: logger}
}

func (h *reembedSweepHandler) Execute(ctx context.Context, payload map[string]any) error {
	n, err := h.trainer.ReembedSweep(ctx)
	if err != nil {
		return fmt.Errorf("re-embed sweep: %w", err)
	}
	h.logger.Info("re-embed sweep complete", slog.Int("rows_updated", n))
	return nil
}

// restoreBackupHandler implements OperationRestoreBackup. The target
// version travels in the chain's shared payload under "restore_version",
// since it is operator-supplied rather than produced by an earlier step.
type restoreBackupHandler struct {
	trainer *Trainer
	logger  *slog.Logger
}

func newRestoreBackupHandler(trainer *Trainer, logger *slog.Logger) Handler {
	return &restoreBackupHandler{trainer: trainer, logger: logger}
}

func (h *restoreBackupHandler) Execute(ctx context.Context, payload map[string]any) error {
	version, _ := payload["restore_version"].(string)
	if version == "" {
		return fmt.Errorf("restore backup: payload missing restore_version")
	}
	if err := h.trainer.RestoreBackup(ctx, version); err != nil {
		return fmt.Errorf("restore backup %s: %w", version, err)
	}
	h.logger.Info("restored backup", slog.String("version", version))
	return nil
}

// cleanupBackupsHandler implements OperationCleanupBackups. keep travels
// in the payload under "keep"; it defaults to DefaultBackupRetention when
// absent or not a number.
type cleanupBackupsHandler struct {
	trainer         *Trainer
	defaultRetention int
	logger          *slog.Logger
}

func newCleanupBackupsHandler(trainer *Trainer, defaultRetention int, logger *slog.Logger) Handler {
	return &cleanupBackupsHandler{trainer: trainer, defaultRetention: defaultRetention, logger: logger}
}

func (h *cleanupBackupsHandler) Execute(ctx context.Context, payload map[string]any) error {
	keep := h.defaultRetention
	if n, ok := extractInt64(payload, "keep"); ok {
		keep = int(n)
	}
	deleted, err := h.trainer.CleanupBackups(ctx, keep)
	if err != nil {
		return fmt.Errorf("cleanup backups: %w", err)
	}
	h.logger.Info("cleaned up backups", slog.Int("deleted", deleted), slog.Int("kept", keep))
	return nil
}

// RegisterTrainerHandlers registers every Trainer-related operation
// Handler on registry, matching task.PrescribedOperations' training and
// model-maintenance sequences.
func RegisterTrainerHandlers(registry *Registry, trainer *Trainer, backupRetention int, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	result := &TrainingResult{}

	registry.Register(task.OperationBackupActiveModel, newBackupActiveModelHandler(trainer, logger))
	registry.Register(task.OperationPrepareTrainingData, newPrepareTrainingDataHandler(trainer, logger))
	registry.Register(task.OperationRunTrainingEpoch, newRunTrainingEpochHandler(trainer, logger, result))
	registry.Register(task.OperationPromoteModel, newPromoteModelHandler(trainer, result, logger))
	registry.Register(task.OperationMarkExamplesConsumed, newMarkExamplesConsumedHandler(trainer.feedback, logger))
	registry.Register(task.OperationReembedSweep, newReembedSweepHandler(trainer, logger))
	registry.Register(task.OperationRestoreBackup, newRestoreBackupHandler(trainer, logger))
	registry.Register(task.OperationCleanupBackups, newCleanupBackupsHandler(trainer, backupRetention, logger))
}
