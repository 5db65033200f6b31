package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// Artifact roots on the shared filesystem
	CheckpointsRoot string
	OutputRoot      string
	QuantsDir       string

	// Node-local scratch
	ComputeDataDir   string
	ComputeOutputDir string
	LocalDataDir     string

	// Batch scheduler
	SbatchBinary string
	WorkerBinary string
	LogsFolder   string

	// Training entrypoints
	Python        string
	TrainScript   string
	GradsScript   string
	MeasureScript string

	// Submission ledger, optional
	DatabaseURL string

	// Status API
	ServerPort string

	// Logging
	LogLevel string

	// Default per-job wall clock limit in minutes
	TimeoutMin int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		CheckpointsRoot:  getEnv("CHECKPOINTS_ROOT", "checkpoints"),
		OutputRoot:       getEnv("OUTPUT_ROOT", "output"),
		QuantsDir:        getEnv("QUANTS_DIR", "quants"),
		ComputeDataDir:   getEnv("COMPUTE_DATA_DIR", "/scratch-node/data"),
		ComputeOutputDir: getEnv("COMPUTE_OUTPUT_DIR", "/scratch-node/output"),
		LocalDataDir:     getEnv("LOCAL_DATA_DIR", "/tmp/data"),
		SbatchBinary:     getEnv("SBATCH_BINARY", "sbatch"),
		WorkerBinary:     getEnv("WORKER_BINARY", os.Args[0]),
		LogsFolder:       getEnv("LOGS_FOLDER", "logs"),
		Python:           getEnv("PYTHON_BINARY", "python"),
		TrainScript:      getEnv("TRAIN_SCRIPT", "scripts/train.py"),
		GradsScript:      getEnv("GRADS_SCRIPT", "scripts/grads.py"),
		MeasureScript:    getEnv("MEASURE_SCRIPT", "scripts/measure.py"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TimeoutMin:       getEnvInt("TIMEOUT_MIN", 600),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
