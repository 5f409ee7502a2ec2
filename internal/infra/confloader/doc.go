// Package confloader provides configuration loading mechanism.
//
// This package implements the configuration loader used by
// autosave-server, with koanf as the underlying library.
//
// Features:
//
//   - Sources: a YAML file, AUTOSAVE_* environment variables, maps
//   - Aliases: unprefixed variables such as PREVIEW_URL
//   - Watch Support: callbacks when the config file changes
//   - Type Safety: Unmarshaling into typed structs
//
// Priority (highest to lowest):
//
//  1. Prefixed environment variables
//  2. Alias environment variables
//  3. Configuration file
//  4. Values already present in the target struct
package confloader
