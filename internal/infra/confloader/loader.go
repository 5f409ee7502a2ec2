// Package confloader provides configuration loading mechanism.
//
// It uses Koanf for configuration loading from multiple sources with
// priority: Env > Alias env > File > Defaults held by the target struct.
package confloader

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "AUTOSAVE_"

// DefaultAliases maps unprefixed environment variables to config keys.
var DefaultAliases = map[string]string{
	"PREVIEW_URL": "preview.url",
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	aliases   map[string]string

	// known maps "server_http_addr" style names to "server.http.addr".
	known map[string]string
	// lists holds the keys whose env values are comma separated.
	lists  map[string]bool
	loaded bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithAliases replaces the unprefixed environment aliases.
func WithAliases(aliases map[string]string) Option {
	return func(l *Loader) {
		l.aliases = aliases
	}
}

// WithKnownKeys registers the config keys used to resolve environment
// names whose segments contain underscores, such as data_dir.
func WithKnownKeys(keys []string) Option {
	return func(l *Loader) {
		l.addKnown(keys)
	}
}

// WithListKeys registers config keys whose environment values are split
// on commas.
func WithListKeys(keys []string) Option {
	return func(l *Loader) {
		l.addLists(keys)
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
		aliases:   DefaultAliases,
		known:     make(map[string]string),
		lists:     make(map[string]bool),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load loads configuration from all sources and unmarshals into target.
// Fields of target that no source sets keep their current value, so a
// target pre-filled with defaults acts as the lowest priority source.
//
// Loading order (later sources override earlier):
//  1. Configuration file (YAML)
//  2. Alias environment variables (PREVIEW_URL)
//  3. Prefixed environment variables
func (l *Loader) Load(target any) error {
	l.addKnown(KeysOf(target))
	l.addLists(ListKeysOf(target))

	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.LoadAliases(); err != nil {
		return fmt.Errorf("load env aliases: %w", err)
	}

	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	provider := file.Provider(path)
	if err := l.k.Load(provider, yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads configuration from prefixed environment variables.
// AUTOSAVE_STORAGE_DATA_DIR resolves to storage.data_dir when that key is
// known; otherwise every underscore becomes a dot. Values of list keys are
// split on commas.
func (l *Loader) LoadEnv() error {
	provider := env.ProviderWithValue(l.envPrefix, ".", l.envValue)
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadAliases loads the unprefixed alias variables that are set.
func (l *Loader) LoadAliases() error {
	data := make(map[string]any)
	for name, key := range l.aliases {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			data[key] = v
		}
	}
	if len(data) == 0 {
		return nil
	}
	return l.LoadMap(data)
}

func (l *Loader) envValue(name, value string) (string, any) {
	key := l.envKey(name)
	if !l.lists[key] {
		return key, value
	}
	items := make([]string, 0, strings.Count(value, ",")+1)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	if key, ok := l.known[s]; ok {
		return key
	}
	return strings.ReplaceAll(s, "_", ".")
}

func (l *Loader) addKnown(keys []string) {
	for _, k := range keys {
		l.known[strings.ReplaceAll(k, ".", "_")] = k
	}
}

func (l *Loader) addLists(keys []string) {
	for _, k := range keys {
		l.lists[k] = true
	}
}

// LoadMap loads configuration from a map (useful for flags or testing).
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct.
// Uses koanf tags for struct field mapping.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// Get returns a value from the configuration by key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt returns an int value from the configuration.
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool returns a bool value from the configuration.
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// All returns all configuration as a map.
func (l *Loader) All() map[string]any {
	return l.k.All()
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// KeysOf lists the dotted leaf keys declared by koanf tags on v, which
// must be a struct or a pointer to one.
func KeysOf(v any) []string {
	return leafKeys(v, func(reflect.Type) bool { return true })
}

// ListKeysOf lists the leaf keys of v whose fields are string slices.
func ListKeysOf(v any) []string {
	return leafKeys(v, func(t reflect.Type) bool {
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String
	})
}

func leafKeys(v any, keep func(reflect.Type) bool) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var keys []string
	collectKeys(t, "", keep, &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keep func(reflect.Type) bool, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		ft := f.Type
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectKeys(ft, key, keep, keys)
			continue
		}
		if keep(ft) {
			*keys = append(*keys, key)
		}
	}
}
