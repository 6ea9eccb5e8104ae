package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/idsync/internal/flagx"
	"github.com/dmitrijs2005/idsync/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

// Config holds runtime settings for an idsync client.
type Config struct {
	IdentityURL     string        `validate:"required,url"`
	APIKey          string
	DevelopmentMode bool
	MaxProducts     int           `validate:"gte=1"`
	StoreDriver     string        `validate:"oneof=memory sqlite redis"`
	StoreDSN        string        `validate:"required_if=StoreDriver sqlite"`
	RedisURL        string        `validate:"required_if=StoreDriver redis"`
	RedisPrefix     string
	CacheSize       int           `validate:"gte=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	OptOut          bool
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.IdentityURL = "http://127.0.0.1:8089/v1"
	c.APIKey = ""
	c.DevelopmentMode = true
	c.MaxProducts = 20
	c.StoreDriver = store.BackendSQLite
	c.StoreDSN = "idsync.db"
	c.RedisURL = ""
	c.RedisPrefix = "idsync"
	c.CacheSize = 128
	c.RequestTimeout = 10 * time.Second
	c.OptOut = false
}

// LoadConfig applies defaults, the JSON file named on args (without the
// program name) and the environment. Flags are applied by the caller through
// BindFlags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, flagx.ConfigPath(args)); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags registers one flag per setting on fs, defaulting to the values
// already loaded.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to JSON config file")
	fs.StringVarP(&c.IdentityURL, "url", "u", c.IdentityURL, "identity service base URL")
	fs.StringVarP(&c.APIKey, "key", "k", c.APIKey, "workspace API key")
	fs.BoolVar(&c.DevelopmentMode, "dev", c.DevelopmentMode, "send requests to the development environment")
	fs.IntVar(&c.MaxProducts, "max-products", c.MaxProducts, "cart capacity per user")
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, "store backend: memory, sqlite or redis")
	fs.StringVar(&c.StoreDSN, "store-dsn", c.StoreDSN, "sqlite database path")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "redis URL")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", c.RedisPrefix, "redis key prefix")
	fs.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "records kept in the in-process cache, 0 disables")
	fs.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "identity request timeout")
	fs.BoolVar(&c.OptOut, "opt-out", c.OptOut, "disable all identity calls and events")
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StoreOptions translates the store settings for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.StoreDriver,
		SQLitePath:  c.StoreDSN,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
		CacheSize:   c.CacheSize,
	}
}
