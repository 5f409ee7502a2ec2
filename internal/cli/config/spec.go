package config

import "time"

// CLIConfig is the configuration for autosave-cli.
type CLIConfig struct {
	// Server is the autosave-server address, with or without scheme.
	Server string `koanf:"server" yaml:"server"`

	// CAFile is an extra PEM bundle trusted for https servers.
	CAFile string `koanf:"ca_file" yaml:"ca_file"`

	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" yaml:"output"`

	// Timeout bounds each API call.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  "http://127.0.0.1:5080",
		Output:  "table",
		Timeout: 30 * time.Second,
	}
}
