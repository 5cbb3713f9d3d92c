// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the databases (always absolute)
	ReportsDir string // Where tuning reports are written; defaults to DataDir/reports
	LogLevel   string
	Port       int
	DevMode    bool
	Optimizer  OptimizerConfig
	Tuning     TuningConfig
	Backtest   BacktestConfig
	Backup     BackupConfig
	R2         R2Config
}

// OptimizerConfig holds the default evolution parameters.
type OptimizerConfig struct {
	PopulationSize int
	Generations    int
	Seed           uint64
	Workers        int
	CrossoverRate  float64
	CrossoverEta   float64
	MutationRate   float64
	MutationEta    float64
	CVaRConfidence float64
}

// TuningConfig holds grid-search and scheduled retune settings.
type TuningConfig struct {
	Runs             int
	PopulationSizes  []int
	GenerationCounts []int
	CellTimeLimit    time.Duration // zero disables the per-cell limit
	Parallelism      int
	Schedule         string // cron expression; empty disables the retune job
}

// BacktestConfig holds rolling backtest settings.
type BacktestConfig struct {
	WindowMonths    int
	RebalanceMonths int
}

// BackupConfig holds database backup and maintenance settings.
type BackupConfig struct {
	Dir                 string // local archive directory; defaults to DataDir/backups
	Schedule            string // cron expression; empty disables scheduled backups
	RetentionDays       int    // zero keeps every archive
	MaintenanceSchedule string // cron expression for VACUUM; empty disables it
}

// R2Config holds Cloudflare R2 credentials for report uploads.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

// Enabled reports whether all R2 credentials are present.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:    absDataDir,
		ReportsDir: getEnv("REPORTS_DIR", filepath.Join(absDataDir, "reports")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Port:       getEnvAsInt("PORT", 8001),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		Optimizer: OptimizerConfig{
			PopulationSize: getEnvAsInt("OPTIMIZER_POPULATION", 100),
			Generations:    getEnvAsInt("OPTIMIZER_GENERATIONS", 50),
			Seed:           uint64(getEnvAsInt("OPTIMIZER_SEED", 42)),
			Workers:        getEnvAsInt("OPTIMIZER_WORKERS", runtime.NumCPU()),
			CrossoverRate:  getEnvAsFloat("OPTIMIZER_CROSSOVER_RATE", 0.9),
			CrossoverEta:   getEnvAsFloat("OPTIMIZER_CROSSOVER_ETA", 15),
			MutationRate:   getEnvAsFloat("OPTIMIZER_MUTATION_RATE", 0.1),
			MutationEta:    getEnvAsFloat("OPTIMIZER_MUTATION_ETA", 20),
			CVaRConfidence: getEnvAsFloat("OPTIMIZER_CVAR_CONFIDENCE", 0.95),
		},
		Tuning: TuningConfig{
			Runs:             getEnvAsInt("TUNING_RUNS", 3),
			PopulationSizes:  getEnvAsIntList("TUNING_POPULATION_SIZES", []int{50, 100, 200, 300}),
			GenerationCounts: getEnvAsIntList("TUNING_GENERATION_COUNTS", []int{30, 50, 100, 150}),
			CellTimeLimit:    getEnvAsDuration("TUNING_CELL_TIME_LIMIT", 0),
			Parallelism:      getEnvAsInt("TUNING_PARALLELISM", runtime.NumCPU()),
			Schedule:         getEnv("TUNING_SCHEDULE", ""),
		},
		Backtest: BacktestConfig{
			WindowMonths:    getEnvAsInt("BACKTEST_WINDOW_MONTHS", 36),
			RebalanceMonths: getEnvAsInt("BACKTEST_REBALANCE_MONTHS", 6),
		},
		Backup: BackupConfig{
			Dir:                 getEnv("BACKUP_DIR", filepath.Join(absDataDir, "backups")),
			Schedule:            getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:       getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 4 * * 0"),
		},
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are within their meaningful ranges
func (c *Config) Validate() error {
	o := c.Optimizer
	switch {
	case o.PopulationSize < 4:
		return fmt.Errorf("OPTIMIZER_POPULATION must be at least 4, got %d", o.PopulationSize)
	case o.Generations < 1:
		return fmt.Errorf("OPTIMIZER_GENERATIONS must be positive, got %d", o.Generations)
	case o.Workers < 1:
		return fmt.Errorf("OPTIMIZER_WORKERS must be positive, got %d", o.Workers)
	case o.CrossoverRate < 0 || o.CrossoverRate > 1:
		return fmt.Errorf("OPTIMIZER_CROSSOVER_RATE must be in [0,1], got %g", o.CrossoverRate)
	case o.MutationRate < 0 || o.MutationRate > 1:
		return fmt.Errorf("OPTIMIZER_MUTATION_RATE must be in [0,1], got %g", o.MutationRate)
	case o.CrossoverEta <= 0 || o.MutationEta <= 0:
		return fmt.Errorf("distribution indices must be positive")
	case o.CVaRConfidence <= 0 || o.CVaRConfidence >= 1:
		return fmt.Errorf("OPTIMIZER_CVAR_CONFIDENCE must be in (0,1), got %g", o.CVaRConfidence)
	}

	t := c.Tuning
	if t.Runs < 1 {
		return fmt.Errorf("TUNING_RUNS must be positive, got %d", t.Runs)
	}
	if len(t.PopulationSizes) == 0 || len(t.GenerationCounts) == 0 {
		return fmt.Errorf("tuning grid must not be empty")
	}
	if t.Parallelism < 1 {
		return fmt.Errorf("TUNING_PARALLELISM must be positive, got %d", t.Parallelism)
	}

	if c.Backtest.WindowMonths < 12 {
		return fmt.Errorf("BACKTEST_WINDOW_MONTHS must be at least 12, got %d", c.Backtest.WindowMonths)
	}
	if c.Backtest.RebalanceMonths < 1 {
		return fmt.Errorf("BACKTEST_REBALANCE_MONTHS must be positive, got %d", c.Backtest.RebalanceMonths)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative, got %d", c.Backup.RetentionDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsIntList parses a comma-separated list; any bad element falls back to the default.
func getEnvAsIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
