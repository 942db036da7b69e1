package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string   `env:"DISCORD_TOKEN,required,notEmpty"`
	GuildIDs     []string `env:"DISCORD_GUILD_IDS" envSeparator:","`

	BindingTTL          time.Duration `env:"BINDING_TTL" envDefault:"15m"`
	BindingReapInterval time.Duration `env:"BINDING_REAP_INTERVAL" envDefault:"1m"`
	MaxChainDepth       int           `env:"MAX_CHAIN_DEPTH" envDefault:"16"`
	MaxConcurrent       int           `env:"MAX_CONCURRENT_DISPATCH" envDefault:"0"`

	CommandCachePath string `env:"COMMAND_CACHE_PATH" envDefault:"data/commands.json"`
	MetricsAddr      string `env:"METRICS_ADDR"`
}

// New loads .env when present and reads the configuration from the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.BindingTTL <= 0 {
		return nil, fmt.Errorf("BINDING_TTL must be positive, got %s", cfg.BindingTTL)
	}
	if cfg.MaxChainDepth < 0 || cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("MAX_CHAIN_DEPTH and MAX_CONCURRENT_DISPATCH must not be negative")
	}
	return &cfg, nil
}
