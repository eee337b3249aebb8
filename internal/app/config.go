package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Catalog sources.
const (
	CatalogEmbedded = "embedded"
	CatalogPostgres = "postgres"
)

// Config holds the application configuration, loadable from environment
// variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     StorageConfig
	Catalog     CatalogConfig
	Persist     PersistConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// StorageConfig selects where the cart and favorites are persisted.
type StorageConfig struct {
	Driver string `default:"file" usage:"Durable storage driver: memory, file or postgres"`
	Dir    string `default:"data" usage:"Directory for the file driver"`
	// Compress gzips files written by the file driver.
	Compress bool `default:"false" usage:"Gzip files written by the file driver"`
	// Quota caps the bytes held by the memory driver; zero is unlimited.
	Quota int `default:"0" usage:"Byte quota for the memory driver"`
}

// CatalogConfig selects the product catalog source.
type CatalogConfig struct {
	Source string `default:"embedded" usage:"Product catalog source: embedded or postgres"`
}

// PersistConfig tunes write-through persistence.
type PersistConfig struct {
	RetryDelay time.Duration `default:"50ms" usage:"Delay before retrying a failed storage write" flag:"retry-delay"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// RateLimitConfig caps mutating requests per client; Max of zero disables it.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max cart and favorites mutations per client per window" flag:"rate-limit-max"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration" flag:"rate-limit-window"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and the settings they depend on.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Dir == "" {
			return errors.New("storage dir is required for the file driver")
		}
	case StoragePostgres:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Catalog.Source {
	case CatalogEmbedded, CatalogPostgres:
	default:
		return errors.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}

	if c.needsDatabase() && c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	return nil
}

func (c *Config) needsDatabase() bool {
	return c.Storage.Driver == StoragePostgres || c.Catalog.Source == CatalogPostgres
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT
// variables onto the STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
