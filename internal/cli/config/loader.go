package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yndnr/autosave-go/internal/cli/output"
	"github.com/yndnr/autosave-go/internal/infra/confloader"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOSAVE_CLI_SERVER.
const EnvPrefix = "AUTOSAVE_CLI_"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autosave", "cli.yaml")
}

// Load reads the CLI configuration. Environment variables override the
// file, which overrides the defaults. A missing file at the default path
// is not an error; a missing explicit path is.
func Load(path string) (*CLIConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				path = ""
			} else {
				return nil, fmt.Errorf("config file: %w", err)
			}
		}
	}

	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithConfigFile(path),
		confloader.WithAliases(nil),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if _, err := output.ParseFormat(cfg.Output); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	return cfg, nil
}
