package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "TOPS_"
	envConfigFile = "TOPS_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New, DefaultBoard)
//  2. file (YAML) if TOPS_CONFIG is set
//  3. env (prefix TOPS_, "__" separates nesting levels)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TOPS_STORAGE__DRIVER -> storage.driver, TOPS_BOARDS__KILLS__SIZE -> boards.kills.size
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	for _, id := range k.MapKeys("boards") {
		b := DefaultBoard()
		if err := k.UnmarshalWithConf("boards."+id, &b, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, fmt.Errorf("%w: board %s: %w", ErrLoadConfig, id, err)
		}
		cfg.Boards[id] = b
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.IOWorkers <= 0:
		return fmt.Errorf("%w: io_workers must be positive", ErrInvalidConfig)
	case c.Storage.Driver != DriverMemory && c.Storage.Driver != DriverSQLite:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	case c.Storage.Driver == DriverSQLite && c.Storage.Path == "":
		return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
