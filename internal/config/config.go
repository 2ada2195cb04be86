// Package config loads SketchBoard settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	// Port is where the host serves websocket peers.
	Port int `env:"SKETCHBOARD_PORT" envDefault:"8888"`
	// DBPath is the host's SQLite board file; ":memory:" keeps nothing.
	DBPath string `env:"SKETCHBOARD_DB" envDefault:"sketchboard.db"`
	// Width and Height are the canvas size in pixels.
	Width  int `env:"SKETCHBOARD_WIDTH" envDefault:"1024"`
	Height int `env:"SKETCHBOARD_HEIGHT" envDefault:"768"`
	// Advertise publishes the host over mDNS.
	Advertise       bool          `env:"SKETCHBOARD_MDNS" envDefault:"true"`
	DiscoverTimeout time.Duration `env:"SKETCHBOARD_DISCOVER_TIMEOUT" envDefault:"5s"`
	// Author identifies this participant on its records.
	Author string `env:"SKETCHBOARD_AUTHOR"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Author == "" {
		cfg.Author = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SKETCHBOARD_PORT %d out of range", c.Port)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("canvas size %dx%d must be positive", c.Width, c.Height)
	}
	if c.DiscoverTimeout <= 0 {
		return fmt.Errorf("SKETCHBOARD_DISCOVER_TIMEOUT must be positive")
	}
	return nil
}
