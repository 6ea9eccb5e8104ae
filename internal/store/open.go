package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a Store.
type Options struct {
	Backend     string
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
	// CacheSize > 0 puts an LRU of that many records in front of the backend.
	CacheSize int
}

// Open builds the Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendMemory, "":
		s = NewMemory()
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		s, err = OpenSQLite(ctx, opts.SQLitePath)
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires a url")
		}
		s, err = NewRedisWithURL(opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.CacheSize > 0 {
		c, err := NewCached(s, opts.CacheSize)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		return c, nil
	}
	return s, nil
}
