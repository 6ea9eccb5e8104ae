package stubserver

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/idsync/internal/flagx"
	"github.com/go-playground/validator/v10"
)

// Config holds settings for the stub identity service.
type Config struct {
	ListenAddr string `json:"listen_addr" validate:"required"`
	APIKey     string `json:"api_key" validate:"required"`
	// FirstMPID is the first MPID handed out; later ones count up from it.
	FirstMPID int64 `json:"first_mpid" validate:"gte=1"`
	LogLevel  string `json:"log_level" validate:"oneof=debug info warn error"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8089"
	c.APIKey = "dev-key"
	c.FirstMPID = 1000
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, the JSON file named by -c,
// IDSYNC_STUB_* variables and finally the -a/-k/-m/-l flags on args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path := flagx.ConfigPath(args); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v, ok := os.LookupEnv("IDSYNC_STUB_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("IDSYNC_STUB_API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := os.LookupEnv("IDSYNC_STUB_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parseFlags applies the flags this package owns:
//
//	-a string   listen address
//	-k string   API key expected in x-mp-key
//	-m int      first MPID handed out
//	-l string   log level (debug, info, warn, error)
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("identity-stub", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "address and port to listen on")
	fs.StringVar(&cfg.APIKey, "k", cfg.APIKey, "API key expected in x-mp-key")
	fs.Int64Var(&cfg.FirstMPID, "m", cfg.FirstMPID, "first MPID handed out")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-a", "-k", "-m", "-l"})); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
