package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment override, e.g. EPI_ANALYSIS_TOP_N
const EnvPrefix = "EPI"

// Config represents the complete application configuration
type Config struct {
	Ingest   IngestConfig   `yaml:"ingest" envconfig:"INGEST"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Metrics  MetricsConfig  `yaml:"metrics" envconfig:"METRICS"`
	Export   ExportConfig   `yaml:"export" envconfig:"EXPORT"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// IngestConfig controls raw input parsing
type IngestConfig struct {
	// SkipInvalidRows logs and drops rows that fail type coercion instead of
	// aborting the run. This changes reported totals.
	SkipInvalidRows bool `yaml:"skip_invalid_rows" envconfig:"SKIP_INVALID_ROWS"`
}

// PipelineConfig controls the row-wise stages
type PipelineConfig struct {
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
}

// AnalysisConfig controls the aggregate report
type AnalysisConfig struct {
	TopN          int `yaml:"top_n" envconfig:"TOP_N" validate:"min=1"`
	RollingWindow int `yaml:"rolling_window" envconfig:"ROLLING_WINDOW" validate:"min=1"`
}

// StoreConfig locates the run ledger. An empty path disables it.
type StoreConfig struct {
	DBPath string `yaml:"db_path" envconfig:"DB_PATH"`
}

// MetricsConfig locates the Prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" envconfig:"TEXTFILE"`
}

// ExportConfig lists optional report exports
type ExportConfig struct {
	ReportXLSX string `yaml:"report_xlsx" envconfig:"REPORT_XLSX"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=panic fatal error warn warning info debug trace"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{Workers: 4},
		Analysis: AnalysisConfig{TopN: 5, RollingWindow: 7},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and EPI_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// envconfig only touches fields whose variable is set
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile overlays the YAML file on cfg. Keys absent from the file keep
// their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
