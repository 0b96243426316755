package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/domain/modelreg"
	"github.com/toolcat/visimatch/domain/pipeline"
	"github.com/toolcat/visimatch/domain/training"
	"github.com/toolcat/visimatch/infrastructure/registry"
)

const headFileName = "head.json"

// TrainingResult is the outcome of a fine-tuning run, per the Trainer's
// fine_tune contract in §4.5.
type TrainingResult struct {
	Success         bool
	Version         string
	SessionID       string
	AccuracyBefore  float64
	AccuracyAfter   float64
	NumExamples     int
	NumPositive     int
	NumNegative     int
	Duration        time.Duration
}

// Trainer is the Trainer (C5): it builds contrastive pairs from unconsumed
// feedback, fine-tunes a similarity Head on top of the frozen embedder,
// versions and backs up model artifacts, and triggers catalog re-embedding
// after promotion.
type Trainer struct {
	feedback     feedback.Store
	catalogStore catalog.Store
	registry     modelreg.Registry
	baseEmbedder catalog.Embedder
	artifactRoot string
	embeddingDim int
	minExamples  int
	hp           feedback.Hyperparameters
	logger       *slog.Logger
}

// NewTrainer constructs a Trainer. artifactRoot must be the same directory
// root the configured modelreg.Registry was opened against, so artifact
// files the Trainer writes land where Registry.Register expects them.
func NewTrainer(store feedback.Store, catalogStore catalog.Store, reg modelreg.Registry, baseEmbedder catalog.Embedder, artifactRoot string, embeddingDim, minExamples int, hp feedback.Hyperparameters, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		feedback:     store,
		catalogStore: catalogStore,
		registry:     reg,
		baseEmbedder: baseEmbedder,
		artifactRoot: artifactRoot,
		embeddingDim: embeddingDim,
		minExamples:  minExamples,
		hp:           hp,
		logger:       logger,
	}
}

func fileReadable(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// FineTune runs the complete training lifecycle: data preparation,
// contrastive pair construction, the epoch loop, pre-training backup,
// fine-tuned artifact registration, session logging, and marking examples
// consumed. It does not promote the new artifact to active or trigger
// re-embedding — those are separate operator-driven steps (Promote,
// ReembedSweep), matching the queue's discrete operation sequence.
func (t *Trainer) FineTune(ctx context.Context) (TrainingResult, error) {
	start := time.Now()

	examples, err := t.feedback.ListExamples(ctx, feedback.Filter{UnconsumedOnly: true})
	if err != nil {
		return TrainingResult{}, fmt.Errorf("list unconsumed examples: %w", err)
	}

	var readable []feedback.Example
	for _, e := range examples {
		if fileReadable(e.ImagePath) {
			readable = append(readable, e)
		}
	}

	if len(readable) < t.minExamples {
		return TrainingResult{}, pipeline.New(pipeline.KindInsufficientData,
			fmt.Sprintf("%d readable unconsumed examples, need at least %d", len(readable), t.minExamples))
	}

	trainEx, valEx := training.SplitExamples(readable)

	vectors, numEmbedFailed := t.embedExamples(ctx, readable)
	if numEmbedFailed > 0 {
		t.logger.Warn("skipped examples the embedder could not read", slog.Int("count", numEmbedFailed))
	}

	trainPairs := training.BuildPairs(trainEx, vectors)
	valPairs := training.BuildPairs(valEx, vectors)
	if len(trainPairs) == 0 {
		return TrainingResult{}, pipeline.New(pipeline.KindInsufficientData, "no contrastive pairs could be constructed from the training split")
	}

	head := training.NewIdentityHead(t.embeddingDim)
	accuracyBefore := training.Evaluate(valPairs, head)

	if _, err := t.Backup(ctx, feedback.BackupOriginPreTraining); err != nil && !errors.Is(err, modelreg.ErrNoArtifacts) {
		return TrainingResult{}, fmt.Errorf("pre-training backup: %w", err)
	}

	sess := training.NewSession(&head, t.hp)
	epochs := t.hp.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	for epoch := 0; epoch < epochs; epoch++ {
		loss := sess.RunEpoch(trainPairs)
		t.logger.Info("training epoch complete", slog.Int("epoch", epoch+1), slog.Float64("loss", loss))
	}
	accuracyAfter := training.Evaluate(valPairs, head)

	version := newArtifactVersion()
	if err := t.writeFineTunedArtifact(ctx, version, head); err != nil {
		return TrainingResult{}, pipeline.Wrap(pipeline.KindPartialPromotion, "fine-tuned artifact registration failed; weights remain on disk unpromoted", err)
	}

	sessionID := uuid.NewString()
	var numPositive, numNegative int
	for _, p := range trainPairs {
		if p.Label == 1 {
			numPositive++
		} else {
			numNegative++
		}
	}

	duration := time.Since(start)
	session := feedback.TrainingSession{
		ID:             sessionID,
		ModelVersion:   version,
		StartedAt:      start,
		Duration:       duration,
		NumExamples:    len(readable),
		NumPositive:    numPositive,
		NumNegative:    numNegative,
		AccuracyBefore: accuracyBefore,
		AccuracyAfter:  accuracyAfter,
		Hyperparameters: feedback.Hyperparameters{
			Epochs:       epochs,
			BatchSize:    t.hp.BatchSize,
			LearningRate: t.hp.LearningRate,
			WeightDecay:  t.hp.WeightDecay,
		},
		IsActive: true,
	}
	if err := t.feedback.LogTrainingSession(ctx, session); err != nil {
		return TrainingResult{}, fmt.Errorf("log training session: %w", err)
	}

	ids := make([]uint64, len(examples))
	for i, e := range examples {
		ids[i] = e.ID
	}
	if err := t.feedback.MarkConsumed(ctx, ids, sessionID); err != nil {
		return TrainingResult{}, fmt.Errorf("mark examples consumed: %w", err)
	}

	return TrainingResult{
		Success:        true,
		Version:        version,
		SessionID:      sessionID,
		AccuracyBefore: accuracyBefore,
		AccuracyAfter:  accuracyAfter,
		NumExamples:    len(readable),
		NumPositive:    numPositive,
		NumNegative:    numNegative,
		Duration:       duration,
	}, nil
}

// embedExamples runs the frozen base embedder over each example's image,
// returning a vector keyed by example id. Examples whose image cannot be
// embedded are omitted, not treated as a fatal error.
func (t *Trainer) embedExamples(ctx context.Context, examples []feedback.Example) (map[uint64][]float64, int) {
	vectors := make(map[uint64][]float64, len(examples))
	var failed int
	for _, e := range examples {
		vec, err := t.baseEmbedder.EmbedImageURL(ctx, e.ImagePath)
		if err != nil {
			t.logger.Warn("embed training example failed", slog.Uint64("example_id", e.ID), slog.String("error", err.Error()))
			failed++
			continue
		}
		vectors[e.ID] = vec.Values()
	}
	return vectors, failed
}

func (t *Trainer) writeFineTunedArtifact(ctx context.Context, version string, head training.Head) error {
	dir := filepath.Join(t.artifactRoot, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := head.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize head: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, headFileName), data, 0o644); err != nil {
		return fmt.Errorf("write head: %w", err)
	}

	checksum, err := registry.ChecksumFile(dir)
	if err != nil {
		return fmt.Errorf("checksum artifact: %w", err)
	}

	art := modelreg.Artifact{
		Version:   version,
		Path:      dir,
		SizeBytes: int64(len(data)),
		CreatedAt: time.Now(),
		Origin:    modelreg.OriginFineTuned,
		Checksum:  checksum,
	}
	return t.registry.Register(ctx, art)
}

// Backup snapshots the currently active artifact into a new, unpromoted
// registry entry, and logs the event to the feedback store's append-only
// backup history. Returns modelreg.ErrNoArtifacts if there is no active
// artifact yet (a fresh install with nothing to snapshot).
func (t *Trainer) Backup(ctx context.Context, origin feedback.BackupOrigin) (modelreg.Artifact, error) {
	active, err := t.registry.Active(ctx)
	if err != nil {
		return modelreg.Artifact{}, err
	}

	version := newArtifactVersion()
	dst := filepath.Join(t.artifactRoot, version)
	if err := copyDir(active.Path, dst); err != nil {
		return modelreg.Artifact{}, fmt.Errorf("copy active artifact: %w", err)
	}

	checksum, err := registry.ChecksumFile(dst)
	if err != nil {
		return modelreg.Artifact{}, fmt.Errorf("checksum backup: %w", err)
	}
	size, err := dirSize(dst)
	if err != nil {
		return modelreg.Artifact{}, fmt.Errorf("size backup: %w", err)
	}

	art := modelreg.Artifact{
		Version:   version,
		Path:      dst,
		SizeBytes: size,
		CreatedAt: time.Now(),
		Origin:    modelreg.OriginBackup,
		Checksum:  checksum,
	}
	if err := t.registry.Register(ctx, art); err != nil {
		return modelreg.Artifact{}, fmt.Errorf("register backup: %w", err)
	}

	record := feedback.ModelBackupRecord{
		ModelVersion: version,
		Origin:       origin,
		Path:         dst,
		SizeBytes:    size,
		Checksum:     checksum,
	}
	if err := t.feedback.LogModelBackup(ctx, record); err != nil {
		return modelreg.Artifact{}, fmt.Errorf("log backup: %w", err)
	}

	return art, nil
}

// loadAdapter resolves the Embedder to use for version: the base frozen
// embedder alone if no head.json sidecar exists (a base or restored
// pre-adapter artifact), or the base wrapped in the version's Head.
func (t *Trainer) loadAdapter(version string) (catalog.Embedder, error) {
	headPath := filepath.Join(t.artifactRoot, version, headFileName)
	data, err := os.ReadFile(headPath)
	if err != nil {
		if os.IsNotExist(err) {
			return t.baseEmbedder, nil
		}
		return nil, fmt.Errorf("read head for %s: %w", version, err)
	}
	head, err := training.UnmarshalHead(data)
	if err != nil {
		return nil, fmt.Errorf("parse head for %s: %w", version, err)
	}
	return NewAdaptedEmbedder(t.baseEmbedder, head, version), nil
}

// Promote swaps the registry's active pointer to version. Catalog
// re-embedding is a separate, explicit step (ReembedSweep).
func (t *Trainer) Promote(ctx context.Context, version string) error {
	return t.registry.Promote(ctx, version)
}

// ReembedSweep re-embeds every stale catalog row using the currently
// active artifact's embedder, per §4.5 step 5: queries answer with the
// prior embedder's vectors until this completes.
func (t *Trainer) ReembedSweep(ctx context.Context) (int, error) {
	active, err := t.registry.Active(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve active artifact: %w", err)
	}
	embedder, err := t.loadAdapter(active.Version)
	if err != nil {
		return 0, err
	}
	return t.catalogStore.ReEmbedAll(ctx, embedder)
}

// RestoreBackup snapshots the current active model (so the restore is
// itself reversible), swaps the active pointer to version, and re-embeds
// the catalog with the restored embedder.
func (t *Trainer) RestoreBackup(ctx context.Context, version string) error {
	if _, err := t.Backup(ctx, feedback.BackupOriginManual); err != nil && !errors.Is(err, modelreg.ErrNoArtifacts) {
		return fmt.Errorf("pre-restore backup: %w", err)
	}
	if err := t.registry.Promote(ctx, version); err != nil {
		return fmt.Errorf("promote restored artifact: %w", err)
	}
	if _, err := t.ReembedSweep(ctx); err != nil {
		return fmt.Errorf("re-embed after restore: %w", err)
	}
	return nil
}

// ListBackups returns the backup history from the feedback store's
// append-only log.
func (t *Trainer) ListBackups(ctx context.Context) ([]feedback.ModelBackupRecord, error) {
	return t.feedback.ListBackups(ctx)
}

// CleanupBackups deletes the oldest backup artifacts from the registry,
// keeping the keep most recent. The currently active artifact is never
// deleted even if it happens to be a backup origin. Returns the number of
// artifacts actually deleted.
func (t *Trainer) CleanupBackups(ctx context.Context, keep int) (int, error) {
	origin := modelreg.OriginBackup
	backups, err := t.registry.List(ctx, &origin)
	if err != nil {
		return 0, fmt.Errorf("list backup artifacts: %w", err)
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return 0, nil
	}

	var deleted int
	for _, a := range backups[keep:] {
		if err := t.registry.Delete(ctx, a.Version); err != nil {
			if errors.Is(err, modelreg.ErrActiveArtifact) {
				continue
			}
			return deleted, fmt.Errorf("delete backup %s: %w", a.Version, err)
		}
		deleted++
	}
	return deleted, nil
}

func newArtifactVersion() string {
	return time.Now().UTC().Format("20060102T150405.000000000Z")
}
