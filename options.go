package visimatch

import (
	"io"
	"log/slog"
	"time"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/internal/config"
)

// databaseType identifies which database backend a Client is configured
// against.
type databaseType int

const (
	databaseUnset databaseType = iota
	databaseSQLite
	databasePostgres
)

// clientConfig holds configuration for Client construction. Use
// newClientConfig() to create one with defaults sourced from
// internal/config.AppConfig.
type clientConfig struct {
	database databaseType
	dbPath   string
	dbDSN    string

	dataDir  string
	modelDir string

	embeddingProvider catalog.Embedder

	similarityThreshold float64
	topNResults         int
	embeddingDim        int
	stabilityPasses     int

	generalRateLimit config.RateLimit
	photoRateLimit   config.RateLimit
	requestTimeout   time.Duration
	fetchTimeout     time.Duration
	embedTimeout     time.Duration
	retrieveTimeout  time.Duration

	searchSessionTTL time.Duration

	trainingHyperparameters feedback.Hyperparameters
	trainingMinExamples     int
	hyperparamsFile         string
	backupRetention         int
	shouldRetrainThreshold  int

	logger                 *slog.Logger
	apiKeys                []string
	workerCount            int
	workerPollPeriod       time.Duration
	skipProviderValidation bool

	reembedSweep config.ReembedSweepConfig
	closers      []io.Closer
}

// newClientConfig creates a clientConfig with defaults from
// internal/config.AppConfig, the single source of truth for every
// recognized option.
func newClientConfig() *clientConfig {
	cfg := config.NewAppConfig()
	return &clientConfig{
		dataDir:  cfg.DataDir(),
		modelDir: cfg.ModelDir(),

		similarityThreshold: cfg.SimilarityThreshold(),
		topNResults:         cfg.TopNResults(),
		embeddingDim:        cfg.EmbeddingDim(),
		stabilityPasses:     cfg.StabilityPasses(),

		generalRateLimit: cfg.GeneralRateLimit(),
		photoRateLimit:   cfg.PhotoRateLimit(),
		requestTimeout:   cfg.RequestTimeout(),
		fetchTimeout:     cfg.FetchTimeout(),
		embedTimeout:     cfg.EmbedTimeout(),
		retrieveTimeout:  cfg.RetrieveTimeout(),

		searchSessionTTL: cfg.SearchSessionTTL(),

		trainingHyperparameters: feedback.Hyperparameters{
			Epochs:       cfg.TrainingEpochs(),
			BatchSize:    cfg.TrainingBatchSize(),
			LearningRate: cfg.TrainingLearningRate(),
			WeightDecay:  cfg.TrainingWeightDecay(),
		},
		trainingMinExamples:    cfg.TrainingMinExamples(),
		backupRetention:        cfg.BackupRetention(),
		shouldRetrainThreshold: cfg.ShouldRetrainThreshold(),

		workerCount:      cfg.WorkerCount(),
		workerPollPeriod: time.Second,
		reembedSweep:     cfg.ReembedSweep(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite configures SQLite as the database backend.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.database = databaseSQLite
		c.dbPath = path
	}
}

// WithPostgres configures PostgreSQL as the database backend.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.database = databasePostgres
		c.dbDSN = dsn
	}
}

// WithEmbeddingProvider sets a custom image embedder, overriding the
// default local ONNX vision encoder.
func WithEmbeddingProvider(p catalog.Embedder) Option {
	return func(c *clientConfig) { c.embeddingProvider = p }
}

// WithDataDir sets the directory holding model artifacts, downloaded
// images, and other on-disk state.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) { c.dataDir = dir }
}

// WithModelDir overrides where the vision encoder's model files and the
// model registry's artifact tree live. Defaults to a subdirectory of
// dataDir.
func WithModelDir(dir string) Option {
	return func(c *clientConfig) { c.modelDir = dir }
}

// WithSimilarityThreshold sets the user-facing minimum similarity floor.
func WithSimilarityThreshold(threshold float64) Option {
	return func(c *clientConfig) { c.similarityThreshold = threshold }
}

// WithTopNResults sets how many results a search returns.
func WithTopNResults(n int) Option {
	return func(c *clientConfig) { c.topNResults = n }
}

// WithStabilityPasses sets how many times escalation repeats during the
// stability pass.
func WithStabilityPasses(n int) Option {
	return func(c *clientConfig) { c.stabilityPasses = n }
}

// WithGeneralRateLimit overrides the general per-user token bucket.
func WithGeneralRateLimit(r config.RateLimit) Option {
	return func(c *clientConfig) { c.generalRateLimit = r }
}

// WithPhotoRateLimit overrides the photo-upload per-user token bucket.
func WithPhotoRateLimit(r config.RateLimit) Option {
	return func(c *clientConfig) { c.photoRateLimit = r }
}

// WithRequestTimeout sets the total per-search timeout budget.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.requestTimeout = d }
}

// WithTrainingHyperparameters overrides the default fine-tuning
// hyperparameters.
func WithTrainingHyperparameters(hp feedback.Hyperparameters) Option {
	return func(c *clientConfig) { c.trainingHyperparameters = hp }
}

// WithHyperparametersFile points at a YAML file merged onto the default
// training hyperparameters at New() time (see internal/config.LoadHyperparameters).
func WithHyperparametersFile(path string) Option {
	return func(c *clientConfig) { c.hyperparamsFile = path }
}

// WithTrainingMinExamples sets the minimum unconsumed, readable example
// count FineTune requires before it will run.
func WithTrainingMinExamples(n int) Option {
	return func(c *clientConfig) { c.trainingMinExamples = n }
}

// WithBackupRetention sets how many model backups CleanupBackups keeps by
// default.
func WithBackupRetention(n int) Option {
	return func(c *clientConfig) { c.backupRetention = n }
}

// WithShouldRetrainThreshold sets the unconsumed-example count above which
// the Feedback Aggregator's ShouldRetrainHint reports true.
func WithShouldRetrainThreshold(n int) Option {
	return func(c *clientConfig) { c.shouldRetrainThreshold = n }
}

// WithSearchSessionTTL sets how long a Search Session remains resolvable
// by feedback after the search that created it.
func WithSearchSessionTTL(d time.Duration) Option {
	return func(c *clientConfig) { c.searchSessionTTL = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithAPIKeys sets the admin API/JWT bearer keys accepted by the HTTP
// admin surface.
func WithAPIKeys(keys []string) Option {
	return func(c *clientConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithWorkerCount sets the background task queue's worker-pool size hint.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithWorkerPollPeriod sets how often the queue worker polls for new tasks.
func WithWorkerPollPeriod(d time.Duration) Option {
	return func(c *clientConfig) { c.workerPollPeriod = d }
}

// WithSkipProviderValidation skips the embedding provider availability
// check during New(), useful for tests that inject a fake embedder.
func WithSkipProviderValidation(skip bool) Option {
	return func(c *clientConfig) { c.skipProviderValidation = skip }
}

// WithReembedSweepConfig configures the background re-embedding sweep
// that runs after a model promotion.
func WithReembedSweepConfig(cfg config.ReembedSweepConfig) Option {
	return func(c *clientConfig) { c.reembedSweep = cfg }
}

// WithCloser registers an additional io.Closer to be closed by
// Client.Close(), in registration order, after the worker and database
// are stopped.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) { c.closers = append(c.closers, closer) }
}
