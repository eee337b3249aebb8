package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:      "0.0.0.0:8080",
		Storage:   StorageConfig{Driver: StorageFile, Dir: "data"},
		Catalog:   CatalogConfig{Source: CatalogEmbedded},
		RateLimit: RateLimitConfig{Max: 120, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory", mutate: func(c *Config) { c.Storage.Driver = StorageMemory }},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "redis" },
			wantErr: `unknown storage driver "redis"`,
		},
		{
			name:    "file without dir",
			mutate:  func(c *Config) { c.Storage.Dir = "" },
			wantErr: "storage dir is required",
		},
		{
			name:    "unknown catalog",
			mutate:  func(c *Config) { c.Catalog.Source = "csv" },
			wantErr: `unknown catalog source "csv"`,
		},
		{
			name:    "postgres storage without url",
			mutate:  func(c *Config) { c.Storage.Driver = StoragePostgres },
			wantErr: "database URL is required",
		},
		{
			name:    "postgres catalog without url",
			mutate:  func(c *Config) { c.Catalog.Source = CatalogPostgres },
			wantErr: "database URL is required",
		},
		{
			name:   "rate limit disabled",
			mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} },
		},
		{
			name:    "rate limit without window",
			mutate:  func(c *Config) { c.RateLimit.Window = 0 },
			wantErr: "rate limit window must be positive",
		},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.Storage.Driver = StoragePostgres
				c.DatabaseURL = "postgres://localhost/storefront"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}
