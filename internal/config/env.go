package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadConfig builds an AppConfig from an optional .env file followed by
// environment variables, matching the recognized-options table: later
// sources (env vars) override earlier ones (.env file), and anything
// left unset keeps NewAppConfig's default.
func LoadConfig(envPath string) (AppConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}

	var opts []AppConfigOption

	if v := os.Getenv("HOST"); v != "" {
		opts = append(opts, WithHost(v))
	}
	if v, ok, err := getInt("PORT"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithPort(v))
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		opts = append(opts, WithDataDir(v))
	}
	if v := os.Getenv("DB_URL"); v != "" {
		opts = append(opts, WithDBURL(v))
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		opts = append(opts, WithModelDir(v))
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		opts = append(opts, WithLogLevel(v))
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		opts = append(opts, WithLogFormat(LogFormat(v)))
	}

	if v, ok, err := getFloat("SIMILARITY_THRESHOLD"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithSimilarityThreshold(v))
	}
	if v, ok, err := getInt("TOP_N_RESULTS"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithTopNResults(v))
	}
	if v, ok, err := getInt("EMBEDDING_DIM"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithEmbeddingDim(v))
	}
	if v, ok, err := getInt("STABILITY_PASSES"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithStabilityPasses(v))
	}

	generalTokens, hasGeneralTokens, err := getInt("GENERAL_RATE_LIMIT_TOKENS")
	if err != nil {
		return AppConfig{}, err
	}
	generalSeconds, hasGeneralSeconds, err := getFloat("GENERAL_RATE_LIMIT_SECONDS")
	if err != nil {
		return AppConfig{}, err
	}
	if hasGeneralTokens || hasGeneralSeconds {
		if !hasGeneralTokens {
			generalTokens = DefaultGeneralRateTokens
		}
		if !hasGeneralSeconds {
			generalSeconds = DefaultGeneralRateSeconds
		}
		opts = append(opts, WithGeneralRateLimit(generalTokens, generalSeconds))
	}

	photoTokens, hasPhotoTokens, err := getInt("PHOTO_RATE_LIMIT_TOKENS")
	if err != nil {
		return AppConfig{}, err
	}
	photoSeconds, hasPhotoSeconds, err := getFloat("PHOTO_RATE_LIMIT_SECONDS")
	if err != nil {
		return AppConfig{}, err
	}
	if hasPhotoTokens || hasPhotoSeconds {
		if !hasPhotoTokens {
			photoTokens = DefaultPhotoRateTokens
		}
		if !hasPhotoSeconds {
			photoSeconds = DefaultPhotoRateSeconds
		}
		opts = append(opts, WithPhotoRateLimit(photoTokens, photoSeconds))
	}

	if v, ok, err := getSeconds("REQUEST_TIMEOUT_SECONDS"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithRequestTimeout(v))
	}
	if v, ok, err := getInt("TRAINING_MIN_EXAMPLES"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithTrainingMinExamples(v))
	}
	if v, ok, err := getInt("TRAINING_EPOCHS"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithTrainingEpochs(v))
	}
	if v, ok, err := getInt("TRAINING_BATCH_SIZE"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithTrainingBatchSize(v))
	}
	if v, ok, err := getFloat("TRAINING_LEARNING_RATE"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithTrainingLearningRate(v))
	}
	if v, ok, err := getInt("BACKUP_RETENTION"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithBackupRetention(v))
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		opts = append(opts, WithAPIKeys(ParseAPIKeys(v)))
	}
	if v, ok, err := getInt("WORKER_COUNT"); err != nil {
		return AppConfig{}, err
	} else if ok {
		opts = append(opts, WithWorkerCount(v))
	}

	return NewAppConfigWithOptions(opts...), nil
}

func getInt(name string) (int, bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s=%q: %w", name, raw, err)
	}
	return v, true, nil
}

func getFloat(name string) (float64, bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s=%q: %w", name, raw, err)
	}
	return v, true, nil
}

func getSeconds(name string) (time.Duration, bool, error) {
	v, ok, err := getFloat(name)
	if !ok || err != nil {
		return 0, ok, err
	}
	return time.Duration(v * float64(time.Second)), true, nil
}
