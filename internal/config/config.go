// Package config loads service settings from the environment, with
// command-line flags taking priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/kartoza/somnia/internal/artifacts"
	"github.com/kartoza/somnia/internal/schema"
)

// Config holds the application configuration
type Config struct {
	Port          int      `env:"PORT" envDefault:"8001"`
	GRPCPort      int      `env:"GRPC_PORT" envDefault:"0"`
	SeqLen        int      `env:"SEQ_LEN" envDefault:"21"`
	FeatureNames  []string `env:"FEATURE_NAMES" envSeparator:","`
	ServiceName   string   `env:"SERVICE_NAME" envDefault:"SOMNiA AI"`
	ArtifactsDir  string   `env:"ARTIFACTS_DIR" envDefault:"./artifacts"`
	ModelPath     string   `env:"MODEL_PATH"`
	ScalerPath    string   `env:"SCALER_PATH"`
	HistoryDBPath string   `env:"HISTORY_DB_PATH"`
	LogLevel      string   `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint  string   `env:"OTEL_ENDPOINT"`
	OTelEnabled   bool     `env:"OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// ParseConfig parses environment and then flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg, err := ParseEnv()
	if err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC health port (0 disables)")
	fs.IntVar(&cfg.SeqLen, "seq-len", cfg.SeqLen, "Number of days per request")
	fs.Func("features", "Comma separated feature names in model column order", func(v string) error {
		cfg.FeatureNames = splitList(v)
		return nil
	})
	fs.StringVar(&cfg.ServiceName, "service-name", cfg.ServiceName, "Service name reported by /health")
	fs.StringVar(&cfg.ArtifactsDir, "artifacts-dir", cfg.ArtifactsDir, "Directory containing model artifacts")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Model weights file (default <artifacts-dir>/"+artifacts.DefaultModelFile+")")
	fs.StringVar(&cfg.ScalerPath, "scaler", cfg.ScalerPath, "Scaler file (default <artifacts-dir>/"+artifacts.DefaultScalerFile+")")
	fs.StringVar(&cfg.HistoryDBPath, "history-db", cfg.HistoryDBPath, "SQLite file for prediction history (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.FeatureNames = splitList(strings.Join(c.FeatureNames, ","))
	if len(c.FeatureNames) == 0 {
		c.FeatureNames = append([]string(nil), schema.DefaultFeatureNames...)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("grpc port %d out of range", c.GRPCPort))
	}
	if c.GRPCPort != 0 && c.GRPCPort == c.Port {
		errs = append(errs, fmt.Errorf("grpc port and http port are both %d", c.Port))
	}
	if c.SeqLen < 1 {
		errs = append(errs, fmt.Errorf("seq len must be positive, got %d", c.SeqLen))
	}
	if len(c.FeatureNames) == 0 {
		errs = append(errs, errors.New("no feature names configured"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name is empty"))
	}
	return errors.Join(errs...)
}

// Schema builds the feature schema from the configured names and length.
func (c Config) Schema() (*schema.Schema, error) {
	return schema.New(c.FeatureNames, c.SeqLen)
}

// ArtifactPaths resolves model, scaler and manifest locations.
func (c Config) ArtifactPaths() artifacts.Paths {
	return artifacts.Paths{
		Dir:    c.ArtifactsDir,
		Model:  c.ModelPath,
		Scaler: c.ScalerPath,
	}.Resolve()
}

// HistoryEnabled reports whether predictions are persisted.
func (c Config) HistoryEnabled() bool {
	return c.HistoryDBPath != ""
}
