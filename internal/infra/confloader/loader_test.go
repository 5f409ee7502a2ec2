package confloader

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Addr      string   `koanf:"addr"`
			AllowList []string `koanf:"admin_allow_cidrs"`
		} `koanf:"http"`
	} `koanf:"server"`
	Storage struct {
		DataDir    string        `koanf:"data_dir"`
		GCInterval time.Duration `koanf:"gc_interval"`
	} `koanf:"storage"`
	Preview struct {
		Enabled bool   `koanf:"enabled"`
		URL     string `koanf:"url"`
	} `koanf:"preview"`
	internal string
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix || DefaultEnvPrefix != "AUTOSAVE_" {
		t.Errorf("envPrefix = %q, want AUTOSAVE_", l.envPrefix)
	}
	if l.aliases["PREVIEW_URL"] != "preview.url" {
		t.Errorf("aliases = %v", l.aliases)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/config.yaml"),
		WithAliases(nil),
		WithKnownKeys([]string{"storage.data_dir"}),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/config.yaml" {
		t.Errorf("filePath = %q", l.filePath)
	}
	if len(l.aliases) != 0 {
		t.Errorf("aliases = %v, want none", l.aliases)
	}
	if l.known["storage_data_dir"] != "storage.data_dir" {
		t.Errorf("known = %v", l.known)
	}
}

func TestKeysOf(t *testing.T) {
	got := KeysOf(&testConfig{})
	sort.Strings(got)
	want := []string{
		"preview.enabled",
		"preview.url",
		"server.http.addr",
		"server.http.admin_allow_cidrs",
		"storage.data_dir",
		"storage.gc_interval",
	}
	if len(got) != len(want) {
		t.Fatalf("KeysOf() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("KeysOf()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if KeysOf("not a struct") != nil {
		t.Error("KeysOf(string) should be nil")
	}
}

func TestListKeysOf(t *testing.T) {
	got := ListKeysOf(&testConfig{})
	if len(got) != 1 || got[0] != "server.http.admin_allow_cidrs" {
		t.Errorf("ListKeysOf() = %v", got)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: "0.0.0.0:5080"
preview:
  enabled: true
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if addr := l.GetString("server.http.addr"); addr != "0.0.0.0:5080" {
		t.Errorf("server.http.addr = %q", addr)
	}
	if !l.GetBool("preview.enabled") {
		t.Error("preview.enabled should be true")
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv_UnderscoreKeys(t *testing.T) {
	t.Setenv("AUTOSAVE_STORAGE_DATA_DIR", "/data")
	t.Setenv("AUTOSAVE_SERVER_HTTP_ADDR", "127.0.0.1:8080")

	l := NewLoader(WithKnownKeys(KeysOf(&testConfig{})))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if got := l.GetString("storage.data_dir"); got != "/data" {
		t.Errorf("storage.data_dir = %q, want /data", got)
	}
	if got := l.GetString("server.http.addr"); got != "127.0.0.1:8080" {
		t.Errorf("server.http.addr = %q", got)
	}
}

func TestLoader_LoadEnv_ListValues(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"single", "10.0.0.0/8", []string{"10.0.0.0/8"}},
		{"comma separated", "10.0.0.0/8,127.0.0.1", []string{"10.0.0.0/8", "127.0.0.1"}},
		{"spaces and blanks", " 10.0.0.0/8 , ,::1,", []string{"10.0.0.0/8", "::1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTOSAVE_SERVER_HTTP_ADMIN_ALLOW_CIDRS", tt.value)
			t.Setenv("AUTOSAVE_SERVER_HTTP_ADDR", "a,b")

			var cfg testConfig
			l := NewLoader()
			if err := l.Load(&cfg); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !slices.Equal(cfg.Server.HTTP.AllowList, tt.want) {
				t.Errorf("AllowList = %q, want %q", cfg.Server.HTTP.AllowList, tt.want)
			}
			if cfg.Server.HTTP.Addr != "a,b" {
				t.Errorf("Addr = %q, scalar values must not be split", cfg.Server.HTTP.Addr)
			}
		})
	}
}

func TestLoader_LoadEnv_WithListKeys(t *testing.T) {
	t.Setenv("MYAPP_PEERS", "a,b,c")

	l := NewLoader(WithEnvPrefix("MYAPP_"), WithListKeys([]string{"peers"}))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	got, _ := l.Get("peers").([]string)
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("peers = %v", l.Get("peers"))
	}
}

func TestLoader_LoadEnv_UnknownKeyFallsBack(t *testing.T) {
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if port := l.GetString("server.port"); port != "9090" {
		t.Errorf("server.port = %q, want %q", port, "9090")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	data := map[string]any{
		"server.http.addr": "localhost:3000",
		"debug":            true,
	}
	if err := l.LoadMap(data); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if addr := l.GetString("server.http.addr"); addr != "localhost:3000" {
		t.Errorf("server.http.addr = %q", addr)
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: "from-file:5080"
preview:
  url: "http://from-file:8001"
storage:
  gc_interval: 5m
`)

	tests := []struct {
		name     string
		env      map[string]string
		wantURL  string
		wantAddr string
	}{
		{"file only", nil, "http://from-file:8001", "from-file:5080"},
		{"alias overrides file", map[string]string{"PREVIEW_URL": "http://alias:8001"}, "http://alias:8001", "from-file:5080"},
		{"prefixed overrides alias", map[string]string{
			"PREVIEW_URL":          "http://alias:8001",
			"AUTOSAVE_PREVIEW_URL": "http://prefixed:8001",
		}, "http://prefixed:8001", "from-file:5080"},
		{"env overrides file", map[string]string{"AUTOSAVE_SERVER_HTTP_ADDR": "from-env:8080"}, "http://from-file:8001", "from-env:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var cfg testConfig
			if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Preview.URL != tt.wantURL {
				t.Errorf("Preview.URL = %q, want %q", cfg.Preview.URL, tt.wantURL)
			}
			if cfg.Server.HTTP.Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", cfg.Server.HTTP.Addr, tt.wantAddr)
			}
		})
	}
}

func TestLoader_Load_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  gc_interval: 5m\n")
	t.Setenv("AUTOSAVE_SERVER_HTTP_ADMIN_ALLOW_CIDRS", "10.0.0.0/8,127.0.0.1")

	var cfg testConfig
	cfg.Storage.DataDir = "/default"
	cfg.Preview.Enabled = true

	l := NewLoader(WithConfigFile(path))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DataDir != "/default" || !cfg.Preview.Enabled {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Storage.GCInterval != 5*time.Minute {
		t.Errorf("GCInterval = %v, want 5m", cfg.Storage.GCInterval)
	}
	if len(cfg.Server.HTTP.AllowList) != 2 {
		t.Errorf("AllowList = %v, want two entries", cfg.Server.HTTP.AllowList)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load")
	}
}
