// Package config loads the autosave-cli configuration from an optional
// YAML file and AUTOSAVE_CLI_* environment variables.
package config
