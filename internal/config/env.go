package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "IDSYNC_"

// parseEnv loads ./.env when present, without overriding variables already
// set, then overlays cfg with IDSYNC_* variables.
func parseEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	envString("IDENTITY_URL", &cfg.IdentityURL)
	envString("API_KEY", &cfg.APIKey)
	envString("STORE_DRIVER", &cfg.StoreDriver)
	envString("STORE_DSN", &cfg.StoreDSN)
	envString("REDIS_URL", &cfg.RedisURL)
	envString("REDIS_PREFIX", &cfg.RedisPrefix)

	if err := envBool("DEVELOPMENT_MODE", &cfg.DevelopmentMode); err != nil {
		return err
	}
	if err := envBool("OPT_OUT", &cfg.OptOut); err != nil {
		return err
	}
	if err := envInt("MAX_PRODUCTS", &cfg.MaxProducts); err != nil {
		return err
	}
	if err := envInt("CACHE_SIZE", &cfg.CacheSize); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(envPrefix + "REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = v
	}
}

func envBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = b
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = n
	return nil
}
