// Package config provides application configuration.
package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values, per the recognized-options table.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8080

	DefaultLogLevel    = "INFO"
	DefaultWorkerCount = 4

	DefaultSimilarityThreshold = 0.20
	DefaultTopNResults         = 5
	DefaultEmbeddingDim        = 512
	DefaultStabilityPasses     = 3

	DefaultGeneralRateTokens  = 5
	DefaultGeneralRateSeconds = 1.0
	DefaultPhotoRateTokens    = 3
	DefaultPhotoRateSeconds   = 10.0

	DefaultRequestTimeout  = 30 * time.Second
	DefaultFetchTimeout    = 15 * time.Second
	DefaultEmbedTimeout    = 10 * time.Second
	DefaultRetrieveTimeout = 5 * time.Second

	DefaultTrainingMinExamples       = 50
	DefaultTrainingMinExamplesManual = 10
	DefaultTrainingEpochs            = 3
	DefaultTrainingBatchSize         = 8
	DefaultTrainingLearningRate      = 1e-5
	DefaultTrainingWeightDecay       = 0.01

	DefaultBackupRetention = 10

	DefaultSearchSessionTTL       = 30 * time.Minute
	DefaultShouldRetrainThreshold = 50

	DefaultEndpointTimeout      = 60 * time.Second
	DefaultEndpointMaxRetries   = 5
	DefaultEndpointInitialDelay = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0

	DefaultReembedSweepEnabled  = true
	DefaultReembedInterval      = 1800 * time.Second
	DefaultReembedCheckInterval = 10 * time.Second
	DefaultReembedRetries       = 3
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// RateLimit describes a token-bucket shape: capacity tokens, one refilling
// every refillSeconds.
type RateLimit struct {
	tokens        int
	refillSeconds float64
}

// NewRateLimit creates a RateLimit.
func NewRateLimit(tokens int, refillSeconds float64) RateLimit {
	return RateLimit{tokens: tokens, refillSeconds: refillSeconds}
}

// Tokens returns the bucket capacity.
func (r RateLimit) Tokens() int { return r.tokens }

// RefillSeconds returns the per-token refill interval in seconds.
func (r RateLimit) RefillSeconds() float64 { return r.refillSeconds }

// ReportingConfig configures progress reporting for long-running operations
// (training epochs, catalog re-embedding sweeps).
type ReportingConfig struct {
	logTimeInterval time.Duration
}

// NewReportingConfig creates a new ReportingConfig with defaults.
func NewReportingConfig() ReportingConfig {
	return ReportingConfig{logTimeInterval: 5 * time.Second}
}

// LogTimeInterval returns the time interval for logging progress.
func (r ReportingConfig) LogTimeInterval() time.Duration { return r.logTimeInterval }

// WithLogTimeInterval returns a new config with the specified interval.
func (r ReportingConfig) WithLogTimeInterval(d time.Duration) ReportingConfig {
	r.logTimeInterval = d
	return r
}

// Endpoint holds the settings of an OpenAI-compatible embedding endpoint.
// No embedder in this module reads it; when no local ONNX model is
// configured, client construction fails rather than falling back to it.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
	}
}

// BaseURL returns the endpoint base URL.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the max retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the backoff initial delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model identifier.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the max retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// ReembedSweepConfig configures the background sweep that re-embeds catalog
// rows whose model_version has fallen behind the active model.
type ReembedSweepConfig struct {
	enabled       bool
	interval      time.Duration
	checkInterval time.Duration
	retryAttempts int
}

// NewReembedSweepConfig creates a new ReembedSweepConfig with defaults.
func NewReembedSweepConfig() ReembedSweepConfig {
	return ReembedSweepConfig{
		enabled:       DefaultReembedSweepEnabled,
		interval:      DefaultReembedInterval,
		checkInterval: DefaultReembedCheckInterval,
		retryAttempts: DefaultReembedRetries,
	}
}

// Enabled returns whether the sweep is enabled.
func (r ReembedSweepConfig) Enabled() bool { return r.enabled }

// Interval returns how often the sweep runs when stale rows exist.
func (r ReembedSweepConfig) Interval() time.Duration { return r.interval }

// CheckInterval returns how often the sweep checks for stale rows.
func (r ReembedSweepConfig) CheckInterval() time.Duration { return r.checkInterval }

// RetryAttempts returns the retry count for a failed sweep batch.
func (r ReembedSweepConfig) RetryAttempts() int { return r.retryAttempts }

// WithSweepEnabled returns a new config with the given enabled state.
func (r ReembedSweepConfig) WithSweepEnabled(enabled bool) ReembedSweepConfig {
	r.enabled = enabled
	return r
}

// WithSweepInterval returns a new config with the given interval.
func (r ReembedSweepConfig) WithSweepInterval(d time.Duration) ReembedSweepConfig {
	r.interval = d
	return r
}

// AppConfig holds the main application configuration, matching the
// recognized-options table: similarity thresholds, rate limits, timeouts,
// training hyperparameters, and backup retention.
type AppConfig struct {
	host string
	port int

	dataDir  string
	dbURL    string
	modelDir string

	logLevel  string
	logFormat LogFormat

	similarityThreshold float64
	topNResults         int
	embeddingDim        int
	stabilityPasses     int

	generalRateLimit RateLimit
	photoRateLimit   RateLimit

	requestTimeout  time.Duration
	fetchTimeout    time.Duration
	embedTimeout    time.Duration
	retrieveTimeout time.Duration

	trainingMinExamples  int
	trainingEpochs       int
	trainingBatchSize    int
	trainingLearningRate float64
	trainingWeightDecay  float64

	backupRetention int

	searchSessionTTL       time.Duration
	shouldRetrainThreshold int

	apiKeys []string

	workerCount int

	cloudEmbeddingEndpoint *Endpoint
	reembedSweep           ReembedSweepConfig
	reporting              ReportingConfig
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host: DefaultHost,
		port: DefaultPort,

		logLevel:  DefaultLogLevel,
		logFormat: LogFormatPretty,

		similarityThreshold: DefaultSimilarityThreshold,
		topNResults:         DefaultTopNResults,
		embeddingDim:        DefaultEmbeddingDim,
		stabilityPasses:     DefaultStabilityPasses,

		generalRateLimit: NewRateLimit(DefaultGeneralRateTokens, DefaultGeneralRateSeconds),
		photoRateLimit:   NewRateLimit(DefaultPhotoRateTokens, DefaultPhotoRateSeconds),

		requestTimeout:  DefaultRequestTimeout,
		fetchTimeout:    DefaultFetchTimeout,
		embedTimeout:    DefaultEmbedTimeout,
		retrieveTimeout: DefaultRetrieveTimeout,

		trainingMinExamples:  DefaultTrainingMinExamples,
		trainingEpochs:       DefaultTrainingEpochs,
		trainingBatchSize:    DefaultTrainingBatchSize,
		trainingLearningRate: DefaultTrainingLearningRate,
		trainingWeightDecay:  DefaultTrainingWeightDecay,

		backupRetention: DefaultBackupRetention,

		searchSessionTTL:       DefaultSearchSessionTTL,
		shouldRetrainThreshold: DefaultShouldRetrainThreshold,

		workerCount: DefaultWorkerCount,

		reembedSweep: NewReembedSweepConfig(),
		reporting:    NewReportingConfig(),
	}
}

// Host returns the admin HTTP bind host.
func (c AppConfig) Host() string { return c.host }

// Port returns the admin HTTP bind port.
func (c AppConfig) Port() int { return c.port }

// Addr returns host:port.
func (c AppConfig) Addr() string {
	return c.host + ":" + itoa(c.port)
}

// DataDir returns the data directory.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// ModelDir returns the local ONNX model cache directory.
func (c AppConfig) ModelDir() string {
	if c.modelDir != "" {
		return c.modelDir
	}
	return filepath.Join(c.dataDir, "models")
}

// LogLevel returns the configured log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the configured log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// SimilarityThreshold returns the user-facing similarity floor.
func (c AppConfig) SimilarityThreshold() float64 { return c.similarityThreshold }

// TopNResults returns the max results per search.
func (c AppConfig) TopNResults() int { return c.topNResults }

// EmbeddingDim returns D, the embedding dimension.
func (c AppConfig) EmbeddingDim() int { return c.embeddingDim }

// StabilityPasses returns the number of stability-check repeats.
func (c AppConfig) StabilityPasses() int { return c.stabilityPasses }

// GeneralRateLimit returns the general per-user token bucket shape.
func (c AppConfig) GeneralRateLimit() RateLimit { return c.generalRateLimit }

// PhotoRateLimit returns the photo per-user token bucket shape.
func (c AppConfig) PhotoRateLimit() RateLimit { return c.photoRateLimit }

// RequestTimeout returns the total wall-clock budget per search.
func (c AppConfig) RequestTimeout() time.Duration { return c.requestTimeout }

// FetchTimeout returns the image-fetch stage budget.
func (c AppConfig) FetchTimeout() time.Duration { return c.fetchTimeout }

// EmbedTimeout returns the embedding stage budget.
func (c AppConfig) EmbedTimeout() time.Duration { return c.embedTimeout }

// RetrieveTimeout returns the retrieval stage budget.
func (c AppConfig) RetrieveTimeout() time.Duration { return c.retrieveTimeout }

// TrainingMinExamples returns the minimum unconsumed examples to retrain.
func (c AppConfig) TrainingMinExamples() int { return c.trainingMinExamples }

// TrainingEpochs returns the default epoch count.
func (c AppConfig) TrainingEpochs() int { return c.trainingEpochs }

// TrainingBatchSize returns the default mini-batch size.
func (c AppConfig) TrainingBatchSize() int { return c.trainingBatchSize }

// TrainingLearningRate returns the default AdamW learning rate.
func (c AppConfig) TrainingLearningRate() float64 { return c.trainingLearningRate }

// TrainingWeightDecay returns the default AdamW weight decay.
func (c AppConfig) TrainingWeightDecay() float64 { return c.trainingWeightDecay }

// BackupRetention returns how many most-recent backups to keep.
func (c AppConfig) BackupRetention() int { return c.backupRetention }

// SearchSessionTTL returns the Search Session eviction TTL.
func (c AppConfig) SearchSessionTTL() time.Duration { return c.searchSessionTTL }

// ShouldRetrainThreshold returns the unconsumed-example count above which
// should_retrain_hint reports true.
func (c AppConfig) ShouldRetrainThreshold() int { return c.shouldRetrainThreshold }

// APIKeys returns the configured admin API keys.
func (c AppConfig) APIKeys() []string {
	cp := make([]string, len(c.apiKeys))
	copy(cp, c.apiKeys)
	return cp
}

// WorkerCount returns the configured worker-pool size hint. A value of 0
// means the pipeline should derive it from runtime.NumCPU.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// CloudEmbeddingEndpoint returns the configured OpenAI-compatible endpoint,
// or nil if none is configured. Client construction does not read it.
func (c AppConfig) CloudEmbeddingEndpoint() *Endpoint { return c.cloudEmbeddingEndpoint }

// ReembedSweep returns the background re-embedding sweep configuration.
func (c AppConfig) ReembedSweep() ReembedSweepConfig { return c.reembedSweep }

// Reporting returns the progress-reporting configuration.
func (c AppConfig) Reporting() ReportingConfig { return c.reporting }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the admin HTTP bind host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the admin HTTP bind port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithDBURL sets the database connection URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithModelDir sets the local ONNX model cache directory.
func WithModelDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.modelDir = dir }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithSimilarityThreshold sets the user-facing similarity floor.
func WithSimilarityThreshold(threshold float64) AppConfigOption {
	return func(c *AppConfig) { c.similarityThreshold = threshold }
}

// WithTopNResults sets the max results per search.
func WithTopNResults(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.topNResults = n
		}
	}
}

// WithEmbeddingDim sets D, the embedding dimension.
func WithEmbeddingDim(d int) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.embeddingDim = d
		}
	}
}

// WithStabilityPasses sets the number of stability-check repeats.
func WithStabilityPasses(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.stabilityPasses = n
		}
	}
}

// WithGeneralRateLimit sets the general per-user token bucket shape.
func WithGeneralRateLimit(tokens int, seconds float64) AppConfigOption {
	return func(c *AppConfig) { c.generalRateLimit = NewRateLimit(tokens, seconds) }
}

// WithPhotoRateLimit sets the photo per-user token bucket shape.
func WithPhotoRateLimit(tokens int, seconds float64) AppConfigOption {
	return func(c *AppConfig) { c.photoRateLimit = NewRateLimit(tokens, seconds) }
}

// WithRequestTimeout sets the total wall-clock budget per search.
func WithRequestTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.requestTimeout = d }
}

// WithTrainingMinExamples sets the minimum unconsumed examples to retrain.
func WithTrainingMinExamples(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.trainingMinExamples = n
		}
	}
}

// WithTrainingEpochs sets the default epoch count.
func WithTrainingEpochs(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.trainingEpochs = n
		}
	}
}

// WithTrainingBatchSize sets the default mini-batch size.
func WithTrainingBatchSize(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.trainingBatchSize = n
		}
	}
}

// WithTrainingLearningRate sets the default AdamW learning rate.
func WithTrainingLearningRate(lr float64) AppConfigOption {
	return func(c *AppConfig) { c.trainingLearningRate = lr }
}

// WithBackupRetention sets how many most-recent backups to keep.
func WithBackupRetention(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.backupRetention = n
		}
	}
}

// WithAPIKeys sets the admin API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithWorkerCount sets the worker-pool size hint.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithCloudEmbeddingEndpoint sets the OpenAI-compatible fallback endpoint.
func WithCloudEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.cloudEmbeddingEndpoint = &e }
}

// WithReembedSweep sets the background re-embedding sweep configuration.
func WithReembedSweep(r ReembedSweepConfig) AppConfigOption {
	return func(c *AppConfig) { c.reembedSweep = r }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied. This copies
// all fields from the receiver and then applies the options, making it safe
// to use when adding new fields to AppConfig.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration. Sensitive
// values like API keys are shown as counts, never the values themselves.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("model_dir", c.ModelDir()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.Float64("similarity_threshold", c.similarityThreshold),
		slog.Int("top_n_results", c.topNResults),
		slog.Int("embedding_dim", c.embeddingDim),
		slog.Int("stability_passes", c.stabilityPasses),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Bool("cloud_embedding_configured", c.cloudEmbeddingEndpoint != nil),
		slog.Bool("reembed_sweep_enabled", c.reembedSweep.Enabled()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
