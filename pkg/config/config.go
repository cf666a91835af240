package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/retailpipe/pkg/pipeline"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// DefaultSalt is the placeholder salt shipped with the sample environment.
const DefaultSalt = "change_me"

// ErrMisconfiguredSalt reports an empty or placeholder PII salt.
var ErrMisconfiguredSalt = errors.New("misconfigured PII salt")

// Config holds application-wide configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Publisher peer.Config     `mapstructure:"publisher"`
	Pipeline  pipeline.Config `mapstructure:"pipeline"`
	PII       PIIConfig       `mapstructure:"pii"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	// DataDir holds generated JSON documents, one sub-directory per collection.
	DataDir string `mapstructure:"dataDir"`

	file string
}

type SourceConfig struct {
	// URI selects the store by scheme: mongodb://, postgres:// or file://
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type PIIConfig struct {
	Salt string `mapstructure:"salt"`
	// Strict turns a misconfigured salt into a validation error.
	Strict bool `mapstructure:"strict"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// env maps configuration keys to the plain environment variables of the
// deployment. Every other key is read from RETAILPIPE_<KEY>.
var env = map[string]string{
	"source.uri":        "MONGO_URI",
	"source.database":   "MONGO_DB",
	"publisher.address": "KAFKA_BROKER",
	"pii.salt":          "PII_SALT",
	"dataDir":           "DATA_DIR",
}

func setDefaults(v *viper.Viper) {
	pub := peer.DefaultConfig()
	pl := pipeline.DefaultConfig()

	v.SetDefault("source.uri", "mongodb://localhost:27017")
	v.SetDefault("source.database", "piccha")
	v.SetDefault("publisher.address", pub.Address)
	v.SetDefault("publisher.retries", pub.Retries)
	v.SetDefault("publisher.retryBackoff", pub.RetryBackoff)
	v.SetDefault("publisher.requestTimeout", pub.RequestTimeout)
	v.SetDefault("publisher.maxBlock", pub.MaxBlock)
	v.SetDefault("publisher.deliveryTimeout", pub.DeliveryTimeout)
	v.SetDefault("publisher.linger", pub.Linger)
	v.SetDefault("publisher.clientID", pub.ClientID)
	v.SetDefault("pipeline.window", pl.Window)
	v.SetDefault("pipeline.progressEvery", pl.ProgressEvery)
	v.SetDefault("pii.salt", DefaultSalt)
	v.SetDefault("pii.strict", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("dataDir", "scripts/data")
}

// Load reads config from the environment, the env files (default .env) and
// an optional yaml file. Variables already set in the environment win over
// env files.
func Load(cfgFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("retailpipe")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RETAILPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()

	return &cfg, nil
}

// File returns the config file that was read, if any.
func (c *Config) File() string {
	return c.file
}

// SaltMisconfigured reports an empty or placeholder salt.
func (c *Config) SaltMisconfigured() bool {
	return c.PII.Salt == "" || c.PII.Salt == DefaultSalt
}

// Validate checks the settings a run depends on. A misconfigured salt is an
// error only in strict mode.
func (c *Config) Validate() error {
	var errs []error
	if c.Source.URI == "" {
		errs = append(errs, errors.New("source uri is required"))
	}
	if c.Publisher.Address == "" {
		errs = append(errs, errors.New("publisher address is required"))
	}
	if c.Pipeline.Window < 1 {
		errs = append(errs, fmt.Errorf("pipeline window must be at least 1, got %d", c.Pipeline.Window))
	}
	if c.Publisher.Retries < 0 {
		errs = append(errs, fmt.Errorf("publisher retries must not be negative, got %d", c.Publisher.Retries))
	}
	for name, d := range map[string]time.Duration{
		"requestTimeout":  c.Publisher.RequestTimeout,
		"maxBlock":        c.Publisher.MaxBlock,
		"deliveryTimeout": c.Publisher.DeliveryTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("publisher %s must be positive", name))
		}
	}
	if c.PII.Strict && c.SaltMisconfigured() {
		errs = append(errs, fmt.Errorf("%w: set PII_SALT to a secret value", ErrMisconfiguredSalt))
	}
	return errors.Join(errs...)
}
