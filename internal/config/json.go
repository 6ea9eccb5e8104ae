package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/idsync/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Pointer fields distinguish an
// absent key from a zero value so partial files only override what they set.
type JsonConfig struct {
	IdentityURL     *string         `json:"identity_url"`
	APIKey          *string         `json:"api_key"`
	DevelopmentMode *bool           `json:"development_mode"`
	MaxProducts     *int            `json:"max_products"`
	StoreDriver     *string         `json:"store_driver"`
	StoreDSN        *string         `json:"store_dsn"`
	RedisURL        *string         `json:"redis_url"`
	RedisPrefix     *string         `json:"redis_prefix"`
	CacheSize       *int            `json:"cache_size"`
	RequestTimeout  *timex.Duration `json:"request_timeout"`
	OptOut          *bool           `json:"opt_out"`
}

// parseJson overlays cfg with the file at path. An empty path is a no-op.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.IdentityURL, jc.IdentityURL)
	setString(&cfg.APIKey, jc.APIKey)
	setBool(&cfg.DevelopmentMode, jc.DevelopmentMode)
	setInt(&cfg.MaxProducts, jc.MaxProducts)
	setString(&cfg.StoreDriver, jc.StoreDriver)
	setString(&cfg.StoreDSN, jc.StoreDSN)
	setString(&cfg.RedisURL, jc.RedisURL)
	setString(&cfg.RedisPrefix, jc.RedisPrefix)
	setInt(&cfg.CacheSize, jc.CacheSize)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	setBool(&cfg.OptOut, jc.OptOut)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
