// Package config loads runtime configuration for idsync clients.
//
// Sources and precedence, later wins:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c, -config or --config.
//  3. A .env file in the working directory, then IDSYNC_* environment
//     variables.
//  4. Command-line flags registered with (*Config).BindFlags.
//
// # JSON schema
//
// Durations accept strings like "5s" or integer nanoseconds:
//
//	{
//	  "identity_url": "https://identity.example.com/v1",
//	  "api_key": "workspace-key",
//	  "development_mode": false,
//	  "max_products": 20,
//	  "store_driver": "sqlite",
//	  "store_dsn": "idsync.db",
//	  "redis_url": "redis://127.0.0.1:6379/0",
//	  "redis_prefix": "idsync",
//	  "cache_size": 128,
//	  "request_timeout": "10s",
//	  "opt_out": false
//	}
package config
