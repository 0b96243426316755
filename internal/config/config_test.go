package config

import (
	"testing"
	"time"
)

func TestDefaultConstants(t *testing.T) {
	if DefaultWorkerCount != 4 {
		t.Errorf("DefaultWorkerCount = %v, want 4", DefaultWorkerCount)
	}
	if DefaultHost != "0.0.0.0" {
		t.Errorf("DefaultHost = %v, want '0.0.0.0'", DefaultHost)
	}
	if DefaultPort != 8080 {
		t.Errorf("DefaultPort = %v, want 8080", DefaultPort)
	}
	if DefaultLogLevel != "INFO" {
		t.Errorf("DefaultLogLevel = %v, want 'INFO'", DefaultLogLevel)
	}
	if DefaultSimilarityThreshold != 0.20 {
		t.Errorf("DefaultSimilarityThreshold = %v, want 0.20", DefaultSimilarityThreshold)
	}
	if DefaultTopNResults != 5 {
		t.Errorf("DefaultTopNResults = %v, want 5", DefaultTopNResults)
	}
	if DefaultEmbeddingDim != 512 {
		t.Errorf("DefaultEmbeddingDim = %v, want 512", DefaultEmbeddingDim)
	}
	if DefaultStabilityPasses != 3 {
		t.Errorf("DefaultStabilityPasses = %v, want 3", DefaultStabilityPasses)
	}
	if DefaultTrainingEpochs != 3 {
		t.Errorf("DefaultTrainingEpochs = %v, want 3", DefaultTrainingEpochs)
	}
	if DefaultTrainingBatchSize != 8 {
		t.Errorf("DefaultTrainingBatchSize = %v, want 8", DefaultTrainingBatchSize)
	}
	if DefaultTrainingLearningRate != 1e-5 {
		t.Errorf("DefaultTrainingLearningRate = %v, want 1e-5", DefaultTrainingLearningRate)
	}
	if DefaultBackupRetention != 10 {
		t.Errorf("DefaultBackupRetention = %v, want 10", DefaultBackupRetention)
	}
}

func TestReportingConfig(t *testing.T) {
	cfg := NewReportingConfig()

	if cfg.LogTimeInterval() != 5*time.Second {
		t.Errorf("LogTimeInterval() = %v, want 5s", cfg.LogTimeInterval())
	}

	cfg = cfg.WithLogTimeInterval(10 * time.Second)
	if cfg.LogTimeInterval() != 10*time.Second {
		t.Errorf("LogTimeInterval() = %v, want 10s", cfg.LogTimeInterval())
	}
}

func TestEndpoint_Defaults(t *testing.T) {
	e := NewEndpoint()

	if e.Timeout() != DefaultEndpointTimeout {
		t.Errorf("Timeout() = %v, want %v", e.Timeout(), DefaultEndpointTimeout)
	}
	if e.MaxRetries() != DefaultEndpointMaxRetries {
		t.Errorf("MaxRetries() = %v, want %v", e.MaxRetries(), DefaultEndpointMaxRetries)
	}
}

func TestEndpoint_WithOptions(t *testing.T) {
	e := NewEndpointWithOptions(
		WithBaseURL("https://api.example.com"),
		WithModel("clip-vit-b32"),
		WithAPIKey("test-key"),
		WithTimeout(30*time.Second),
		WithMaxRetries(3),
	)

	if e.BaseURL() != "https://api.example.com" {
		t.Errorf("BaseURL() = %v, want 'https://api.example.com'", e.BaseURL())
	}
	if e.Model() != "clip-vit-b32" {
		t.Errorf("Model() = %v, want 'clip-vit-b32'", e.Model())
	}
	if e.APIKey() != "test-key" {
		t.Errorf("APIKey() = %v, want 'test-key'", e.APIKey())
	}
	if e.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s", e.Timeout())
	}
	if e.MaxRetries() != 3 {
		t.Errorf("MaxRetries() = %v, want 3", e.MaxRetries())
	}
}

func TestReembedSweepConfig(t *testing.T) {
	cfg := NewReembedSweepConfig()

	if !cfg.Enabled() {
		t.Error("Enabled() should be true by default")
	}
	if cfg.Interval() != DefaultReembedInterval {
		t.Errorf("Interval() = %v, want %v", cfg.Interval(), DefaultReembedInterval)
	}

	cfg = cfg.WithSweepEnabled(false).WithSweepInterval(1 * time.Hour)
	if cfg.Enabled() {
		t.Error("Enabled() should be false")
	}
	if cfg.Interval() != 1*time.Hour {
		t.Errorf("Interval() = %v, want 1h", cfg.Interval())
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := NewAppConfig()

	if cfg.Host() != DefaultHost {
		t.Errorf("Host() = %v, want '%v'", cfg.Host(), DefaultHost)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %v, want %v", cfg.Port(), DefaultPort)
	}
	if cfg.LogFormat() != LogFormatPretty {
		t.Errorf("LogFormat() = %v, want 'pretty'", cfg.LogFormat())
	}
	if cfg.CloudEmbeddingEndpoint() != nil {
		t.Error("CloudEmbeddingEndpoint() should be nil by default")
	}
	if cfg.WorkerCount() != DefaultWorkerCount {
		t.Errorf("WorkerCount() = %v, want %v", cfg.WorkerCount(), DefaultWorkerCount)
	}
	if cfg.SimilarityThreshold() != DefaultSimilarityThreshold {
		t.Errorf("SimilarityThreshold() = %v, want %v", cfg.SimilarityThreshold(), DefaultSimilarityThreshold)
	}
	if cfg.TopNResults() != DefaultTopNResults {
		t.Errorf("TopNResults() = %v, want %v", cfg.TopNResults(), DefaultTopNResults)
	}
	general := cfg.GeneralRateLimit()
	if general.Tokens() != DefaultGeneralRateTokens || general.RefillSeconds() != DefaultGeneralRateSeconds {
		t.Errorf("GeneralRateLimit() = %v/%v, want %v/%v", general.Tokens(), general.RefillSeconds(),
			DefaultGeneralRateTokens, DefaultGeneralRateSeconds)
	}
	photo := cfg.PhotoRateLimit()
	if photo.Tokens() != DefaultPhotoRateTokens || photo.RefillSeconds() != DefaultPhotoRateSeconds {
		t.Errorf("PhotoRateLimit() = %v/%v, want %v/%v", photo.Tokens(), photo.RefillSeconds(),
			DefaultPhotoRateTokens, DefaultPhotoRateSeconds)
	}
}

func TestAppConfig_WithOptions(t *testing.T) {
	cloudEndpoint := NewEndpointWithOptions(WithModel("clip-cloud"))

	cfg := NewAppConfigWithOptions(
		WithDataDir("/custom/data"),
		WithDBURL("sqlite:///custom/catalog.db"),
		WithLogLevel("DEBUG"),
		WithLogFormat(LogFormatJSON),
		WithCloudEmbeddingEndpoint(cloudEndpoint),
		WithAPIKeys([]string{"key1", "key2"}),
		WithSimilarityThreshold(0.3),
		WithTopNResults(10),
		WithEmbeddingDim(768),
		WithStabilityPasses(1),
		WithGeneralRateLimit(5, 1),
		WithPhotoRateLimit(3, 10),
		WithTrainingMinExamples(100),
		WithTrainingEpochs(5),
		WithTrainingBatchSize(16),
		WithTrainingLearningRate(2e-5),
		WithBackupRetention(20),
	)

	if cfg.DataDir() != "/custom/data" {
		t.Errorf("DataDir() = %v, want '/custom/data'", cfg.DataDir())
	}
	if cfg.DBURL() != "sqlite:///custom/catalog.db" {
		t.Errorf("DBURL() = %v, want 'sqlite:///custom/catalog.db'", cfg.DBURL())
	}
	if cfg.LogLevel() != "DEBUG" {
		t.Errorf("LogLevel() = %v, want 'DEBUG'", cfg.LogLevel())
	}
	if cfg.LogFormat() != LogFormatJSON {
		t.Errorf("LogFormat() = %v, want 'json'", cfg.LogFormat())
	}
	if cfg.CloudEmbeddingEndpoint() == nil {
		t.Error("CloudEmbeddingEndpoint() should not be nil")
	}
	if len(cfg.APIKeys()) != 2 {
		t.Errorf("APIKeys() length = %v, want 2", len(cfg.APIKeys()))
	}
	if cfg.SimilarityThreshold() != 0.3 {
		t.Errorf("SimilarityThreshold() = %v, want 0.3", cfg.SimilarityThreshold())
	}
	if cfg.TopNResults() != 10 {
		t.Errorf("TopNResults() = %v, want 10", cfg.TopNResults())
	}
	if cfg.EmbeddingDim() != 768 {
		t.Errorf("EmbeddingDim() = %v, want 768", cfg.EmbeddingDim())
	}
	if cfg.TrainingEpochs() != 5 {
		t.Errorf("TrainingEpochs() = %v, want 5", cfg.TrainingEpochs())
	}
	if cfg.BackupRetention() != 20 {
		t.Errorf("BackupRetention() = %v, want 20", cfg.BackupRetention())
	}
}

func TestAppConfig_APIKeys_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithAPIKeys([]string{"key1"}))

	keys := cfg.APIKeys()
	keys[0] = "modified"

	if cfg.APIKeys()[0] == "modified" {
		t.Error("APIKeys() should return a copy")
	}
}

func TestAppConfig_ModelDir(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDataDir("/data"))

	if cfg.ModelDir() != "/data/models" {
		t.Errorf("ModelDir() = %v, want '/data/models'", cfg.ModelDir())
	}

	cfg = cfg.Apply(WithModelDir("/custom/models"))
	if cfg.ModelDir() != "/custom/models" {
		t.Errorf("ModelDir() = %v, want '/custom/models'", cfg.ModelDir())
	}
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: []string{}},
		{name: "single key", input: "key1", expected: []string{"key1"}},
		{name: "multiple keys", input: "key1,key2,key3", expected: []string{"key1", "key2", "key3"}},
		{name: "with whitespace", input: "key1 , key2 , key3", expected: []string{"key1", "key2", "key3"}},
		{name: "with empty entries", input: "key1,,key2", expected: []string{"key1", "key2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseAPIKeys(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("ParseAPIKeys(%q) length = %v, want %v", tt.input, len(result), len(tt.expected))
				return
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("ParseAPIKeys(%q)[%d] = %v, want %v", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
