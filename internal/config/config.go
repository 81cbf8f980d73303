// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Terminology carries the display labels for the two entity kinds. Only the
// presentation boundary consumes these; uniqueness and comparison logic
// never see them, so relabeling "item" to "pizza" changes messages and
// nothing else.
type Terminology struct {
	ItemSingular    string `env:"TERM_ITEM_SINGULAR" envDefault:"item"`
	ItemPlural      string `env:"TERM_ITEM_PLURAL" envDefault:"items"`
	FeatureSingular string `env:"TERM_FEATURE_SINGULAR" envDefault:"feature"`
	FeaturePlural   string `env:"TERM_FEATURE_PLURAL" envDefault:"features"`
}

// Config is the full server configuration.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `env:"ADDR" envDefault:":8080"`

	// DBPath is the SQLite database file path.
	DBPath string `env:"DB_PATH" envDefault:"./data/savt.db"`

	// MaxNameLength caps item and feature names.
	MaxNameLength int `env:"MAX_NAME_LENGTH" envDefault:"100"`

	// UndoWindow bounds how long a soft removal stays restorable.
	// Zero disables the limit.
	UndoWindow time.Duration `env:"UNDO_WINDOW" envDefault:"30s"`

	Terminology Terminology
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
