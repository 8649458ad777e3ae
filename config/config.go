// Package config loads the prover server configuration: compiled-in
// defaults, then an optional toml file, then environment variable
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
)

// Duration is a wrapper type that parses time duration from text
type Duration struct {
	time.Duration `validate:"required"`
}

// UnmarshalText unmarshal time duration from text
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// Config is the prover server configuration
type Config struct {
	Prover struct {
		// PoolLimit is the look-ahead limit of the witness pool
		PoolLimit int64 `env:"PROVER_POOL_LIMIT"`
		// RoundsInterval is the sleep between maintainer cycles
		RoundsInterval Duration `env:"PROVER_ROUNDS_INTERVAL"`
		// ChunksPerBlock is the fallback block chunk capacity for
		// commit records that carry none
		ChunksPerBlock int `env:"PROVER_CHUNKS_PER_BLOCK"`
		// TreeDepth is the depth of the account tree
		TreeDepth int `env:"PROVER_TREE_DEPTH"`
	}
	PostgreSQL struct {
		PortWrite     int    `env:"POSTGRES_PORT_WRITE"`
		HostWrite     string `env:"POSTGRES_HOST_WRITE"`
		UserWrite     string `env:"POSTGRES_USER_WRITE"`
		PasswordWrite string `env:"POSTGRES_PASSWORD_WRITE"`
		NameWrite     string `env:"POSTGRES_NAME_WRITE"`
		// read replica connection; when empty the write connection
		// is shared
		PortRead     int    `env:"POSTGRES_PORT_READ"`
		HostRead     string `env:"POSTGRES_HOST_READ"`
		UserRead     string `env:"POSTGRES_USER_READ"`
		PasswordRead string `env:"POSTGRES_PASSWORD_READ"`
		NameRead     string `env:"POSTGRES_NAME_READ"`
	}
	API struct {
		Address string `env:"API_ADDRESS"`
	}
	Metrics struct {
		Address string `env:"METRICS_ADDRESS"`
	}
	Log struct {
		Level string   `env:"LOG_LEVEL"`
		Out   []string `env:"LOG_OUT" envSeparator:","`
	}
}

// DefaultValues is the default configuration
const DefaultValues = `
[Prover]
PoolLimit = 10
RoundsInterval = "5s"
ChunksPerBlock = 32
TreeDepth = 24

[PostgreSQL]
PortWrite = 5432
HostWrite = "localhost"
UserWrite = "prover"
PasswordWrite = "prover"
NameWrite = "prover"

[API]
Address = "localhost:8080"

[Metrics]
Address = "localhost:9090"

[Log]
Level = "info"
Out = ["stdout"]
`

func loadDefault(defaultValues string, cfg interface{}) error {
	if _, err := toml.Decode(defaultValues, cfg); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	cfgToml := string(bs)
	if _, err := toml.Decode(cfgToml, cfg); err != nil {
		return err
	}
	return nil
}

func loadEnv(cfg interface{}) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is the function that loads the configuration
func LoadConfig(filePath string, defaultValues string, cfg interface{}) error {
	// Get default configuration
	if err := loadDefault(defaultValues, cfg); err != nil {
		return fmt.Errorf("error loading default configuration: %w", err)
	}
	// Get file configuration
	var errLoadFile error
	if filePath != "" {
		errLoadFile = loadFile(filePath, cfg)
	}
	// Overwrite file configuration with the env configuration
	errLoadEnv := loadEnv(cfg)
	if errLoadFile != nil {
		return fmt.Errorf("error loading configuration file: %w", errLoadFile)
	}
	if errLoadEnv != nil {
		return fmt.Errorf("error loading environment variables: %w", errLoadEnv)
	}
	return nil
}

// Load loads the full Config from an optional file path plus the
// environment
func Load(filePath string) (*Config, error) {
	var cfg Config
	if err := LoadConfig(filePath, DefaultValues, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
