// Package visimatch is the main entry point for the visual catalog
// retrieval library: embed a photo, find the closest catalog items, and
// learn from operator feedback.
//
// Access resources via struct fields:
//
//	client.Search.Search(ctx, req)
//	client.Feedback.MarkCorrect(ctx, signal, 0, "sku-123")
//	client.Trainer.FineTune(ctx)
package visimatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolcat/visimatch/application/service"
	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/modelreg"
	"github.com/toolcat/visimatch/domain/retrieval"
	"github.com/toolcat/visimatch/domain/task"
	"github.com/toolcat/visimatch/infrastructure/persistence"
	"github.com/toolcat/visimatch/infrastructure/provider"
	"github.com/toolcat/visimatch/infrastructure/ratelimit"
	"github.com/toolcat/visimatch/infrastructure/registry"
	"github.com/toolcat/visimatch/infrastructure/search"
	"github.com/toolcat/visimatch/infrastructure/session"
	"github.com/toolcat/visimatch/infrastructure/tracking"
	"github.com/toolcat/visimatch/internal/config"
	"github.com/toolcat/visimatch/internal/database"
)

// ErrNoDatabase indicates New was called without a database option
// (WithSQLite or WithPostgres).
var ErrNoDatabase = errors.New("visimatch: no database configured, call WithSQLite or WithPostgres")

// Client is the main entry point for the visimatch library. The
// background task worker starts automatically on creation.
type Client struct {
	// Public resource fields (direct service access).
	Search   *service.RequestPipeline
	Feedback *service.Aggregator
	Trainer  *service.Trainer
	Tasks    *service.Queue
	Catalog  catalog.Store

	db       database.Database
	registry *service.Registry
	worker   *service.Worker

	modelRegistry modelreg.Registry
	embedder      catalog.Embedder

	hugotEmbedding *provider.VisionEmbedding
	limiter        *ratelimit.Limiter
	sessions       *session.Store
	closers        []io.Closer

	logger        *slog.Logger
	dataDir       string
	apiKeys       []string
	prescribedOps task.PrescribedOperations
	closed        atomic.Bool
	mu            sync.Mutex
}

// New creates a new Client with the given options. The background task
// worker is started automatically.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	dataDir, err := prepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	modelDir := cfg.modelDir
	if modelDir == "" {
		modelDir = filepath.Join(dataDir, "models")
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare model dir: %w", err)
	}

	modelRegistry, err := registry.NewFilesystemRegistry(modelDir)
	if err != nil {
		return nil, fmt.Errorf("open model registry: %w", err)
	}

	embedder, hugotEmbedding, activeVersion, err := buildEmbedder(cfg, modelRegistry, modelDir, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	dbURL, err := buildDatabaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}

	db, err := database.NewDatabase(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.PreMigrate(db); err != nil {
		return nil, errors.Join(fmt.Errorf("pre migrate: %w", err), db.Close())
	}
	if err := persistence.AutoMigrate(db); err != nil {
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), db.Close())
	}
	if err := persistence.ValidateSchema(db); err != nil {
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), db.Close())
	}

	catalogStore := search.NewCatalogStore(db)
	feedbackStore := persistence.NewFeedbackStore(db)
	taskStore := persistence.NewTaskStore(db)
	statusStore := persistence.NewStatusStore(db)

	hp, err := config.LoadHyperparameters(cfg.hyperparamsFile, cfg.trainingHyperparameters)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("load hyperparameters: %w", err), db.Close())
	}

	artifactRoot := modelDir
	trainer := service.NewTrainer(feedbackStore, catalogStore, modelRegistry, embedder, artifactRoot,
		cfg.embeddingDim, cfg.trainingMinExamples, hp, logger)

	limiter := ratelimit.New(
		ratelimit.WithGeneralRate(generalRefill(cfg), cfg.generalRateLimit.Tokens()),
		ratelimit.WithPhotoRate(photoRefill(cfg), cfg.photoRateLimit.Tokens()),
	)

	sessions := session.NewStore(cfg.searchSessionTTL)

	engine := retrieval.NewEngine(catalogStore, nil)
	pool := service.NewEmbedPool(service.DefaultCPUWorkerWidth(), service.DefaultQueueCapacity)
	pipelineCfg := service.PipelineConfig{
		FetchTimeout:    cfg.fetchTimeout,
		EmbedTimeout:    cfg.embedTimeout,
		RetrieveTimeout: cfg.retrieveTimeout,
		TotalTimeout:    cfg.requestTimeout,
		TopK:            cfg.topNResults,
		StabilityPasses: cfg.stabilityPasses,
	}
	searchPipeline := service.NewRequestPipeline(embedder, engine, limiter, pool, sessions, pipelineCfg, logger)

	aggregator := service.NewAggregator(feedbackStore, sessions, cfg.shouldRetrainThreshold, logger)

	registryHandlers := service.NewRegistry()
	queue := service.NewQueue(taskStore, logger)
	prescribedOps := task.NewPrescribedOperations()

	dbCooldown := tracking.NewCooldown(tracking.NewDBReporter(statusStore, logger), time.Second)
	logCooldown := tracking.NewCooldown(tracking.NewLoggingReporter(logger), time.Second)
	trackerFactory := &trackerFactoryImpl{
		reporters: []tracking.Reporter{dbCooldown, logCooldown},
		logger:    logger,
	}
	worker := service.NewWorker(taskStore, registryHandlers, &workerTrackerAdapter{trackerFactory}, logger)
	if cfg.workerPollPeriod > 0 {
		worker.WithPollPeriod(cfg.workerPollPeriod)
	}

	closers := append([]io.Closer{dbCooldown, logCooldown}, cfg.closers...)

	client := &Client{
		Search:   searchPipeline,
		Feedback: aggregator,
		Trainer:  trainer,
		Tasks:    queue,
		Catalog:  catalogStore,

		db:       db,
		registry: registryHandlers,
		worker:   worker,

		modelRegistry: modelRegistry,
		embedder:      embedder,

		hugotEmbedding: hugotEmbedding,
		limiter:        limiter,
		sessions:       sessions,
		closers:        closers,

		logger:        logger,
		dataDir:       dataDir,
		apiKeys:       cfg.apiKeys,
		prescribedOps: prescribedOps,
	}

	if err := client.registerHandlers(catalogStore, cfg.backupRetention); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	if !cfg.skipProviderValidation {
		if err := client.validateHandlers(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if activeVersion == "" {
		logger.Warn("model registry has no active artifact yet; searches will fail until one is promoted")
	}

	worker.Start(ctx)

	return client, nil
}

// Close releases all resources and stops the background worker.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return service.ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.worker.Stop()
	c.limiter.Stop()

	if c.hugotEmbedding != nil {
		if err := c.hugotEmbedding.Close(); err != nil {
			c.logger.Error("failed to close vision encoder", slog.Any("error", err))
		}
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("visimatch client closed")
	return nil
}

// WorkerIdle reports whether the background task queue currently has no
// pending work.
func (c *Client) WorkerIdle() bool {
	n, err := c.Tasks.Count(context.Background())
	if err != nil {
		return false
	}
	return n == 0
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// prepareDataDir ensures dir (or a default) exists and returns its path.
func prepareDataDir(dir string) (string, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare data dir %s: %w", dir, err)
	}
	return dir, nil
}

// buildEmbedder resolves the image embedder: an explicitly configured one
// wins, otherwise the local ONNX vision encoder is used, versioned after
// whatever the model registry currently has promoted (or a fresh "base"
// artifact if the registry is empty).
func buildEmbedder(cfg *clientConfig, reg modelreg.Registry, modelDir string, logger *slog.Logger) (catalog.Embedder, *provider.VisionEmbedding, string, error) {
	if cfg.embeddingProvider != nil {
		return cfg.embeddingProvider, nil, cfg.embeddingProvider.Version(), nil
	}

	version := "base"
	active, err := reg.Active(context.Background())
	if err == nil {
		version = active.Version
	} else if !errors.Is(err, modelreg.ErrNoArtifacts) {
		return nil, nil, "", fmt.Errorf("read active model artifact: %w", err)
	}

	vision := provider.NewVisionEmbedding(modelDir, version)
	if !cfg.skipProviderValidation && !vision.Available() {
		return nil, nil, "", fmt.Errorf("no vision encoder model found in %s and no embedding provider configured", modelDir)
	}
	logger.Info("local vision encoder enabled", slog.String("model_dir", modelDir), slog.String("version", version))
	return vision, vision, version, nil
}

func generalRefill(cfg *clientConfig) time.Duration {
	return secondsToDuration(cfg.generalRateLimit.RefillSeconds())
}

func photoRefill(cfg *clientConfig) time.Duration {
	return secondsToDuration(cfg.photoRateLimit.RefillSeconds())
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
