package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the terminal's environment-driven configuration. All variables
// carry the POS_ prefix; a .env file next to the binary is honored when
// present but never required.
type Config struct {
	BackendURL           string        `envconfig:"BACKEND_URL" default:"http://localhost:4000/api"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	TerminalID           string        `envconfig:"TERMINAL_ID" default:"caja-1"`
	StatePath            string        `envconfig:"STATE_PATH" default:"terminal-state.db"`
	RedisAddr            string        `envconfig:"REDIS_ADDR"`
	RedisPassword        string        `envconfig:"REDIS_PASSWORD"`
	RedisDB              int           `envconfig:"REDIS_DB" default:"0"`
	DraftTTLMinutes      int           `envconfig:"DRAFT_TTL_MINUTES" default:"240"`
	DebounceMilliseconds int           `envconfig:"DEBOUNCE_MILLISECONDS" default:"500"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat            string        `envconfig:"LOG_FORMAT" default:"console"`
	Username             string        `envconfig:"USERNAME"`
	Password             string        `envconfig:"PASSWORD"`
}

func Load() (Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("pos", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("POS_BACKEND_URL must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.DebounceMilliseconds < 1 {
		cfg.DebounceMilliseconds = 500
	}
	if cfg.DraftTTLMinutes < 1 {
		cfg.DraftTTLMinutes = 240
	}

	return cfg, nil
}

func (c Config) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceMilliseconds) * time.Millisecond
}

func (c Config) DraftTTL() time.Duration {
	return time.Duration(c.DraftTTLMinutes) * time.Minute
}
