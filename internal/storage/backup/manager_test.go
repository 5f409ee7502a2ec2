package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/autosave-go/internal/telemetry/logger"
)

type sourceFunc func(ctx context.Context, w io.Writer) (uint64, error)

func (f sourceFunc) Backup(ctx context.Context, w io.Writer) (uint64, error) { return f(ctx, w) }

func payloadSource(payload []byte) Source {
	return sourceFunc(func(_ context.Context, w io.Writer) (uint64, error) {
		_, err := w.Write(payload)
		return 42, err
	})
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	cfg.Logger = logger.Discard()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManager_CreateOpen(t *testing.T) {
	m := newManager(t, Config{Backend: "sqlite"})
	payload := bytes.Repeat([]byte("snapshot-row;"), 1000)

	info, err := m.Create(context.Background(), payloadSource(payload))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info.Since != 42 || info.Backend != "sqlite" || info.Checksum == "" {
		t.Errorf("Create() info = %+v", info)
	}

	st, err := os.Stat(info.Path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", st.Mode().Perm())
	}

	opened, rc, err := m.Open(info.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, payload) {
		t.Errorf("payload length = %d, want %d", len(got), len(payload))
	}
	if opened.Backend != "sqlite" || opened.CreatedAt != info.CreatedAt || opened.Checksum != info.Checksum {
		t.Errorf("Open() info = %+v, want %+v", opened, info)
	}
}

func TestManager_EmptyPayload(t *testing.T) {
	m := newManager(t, Config{})
	info, err := m.Create(context.Background(), payloadSource(nil))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, rc, err := m.Open(info.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	if got, _ := io.ReadAll(rc); len(got) != 0 {
		t.Errorf("payload = %q, want empty", got)
	}
}

func TestManager_SourceErrorLeavesNoFile(t *testing.T) {
	m := newManager(t, Config{})
	boom := errors.New("disk gone")
	_, err := m.Create(context.Background(), sourceFunc(func(_ context.Context, w io.Writer) (uint64, error) {
		w.Write([]byte("partial"))
		return 0, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}

	entries, _ := os.ReadDir(m.cfg.Dir)
	if len(entries) != 0 {
		t.Errorf("dir has %d entries after failed backup", len(entries))
	}
}

func TestManager_Verify_Corruption(t *testing.T) {
	m := newManager(t, Config{})
	info, err := m.Create(context.Background(), payloadSource([]byte("payload")))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	data, _ := os.ReadFile(info.Path)

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"flipped payload", func(b []byte) []byte { b[len(b)-checksumSize-1] ^= 0xFF; return b }, ErrChecksumMismatch},
		{"truncated", func(b []byte) []byte { return b[:10] }, ErrChecksumMismatch},
		{"bad magic with valid checksum", func(b []byte) []byte {
			body := append([]byte("XXBACKUP"), b[len(magicBytes):len(b)-checksumSize]...)
			return rehash(body)
		}, ErrInvalidMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "backup-x.bak")
			os.WriteFile(path, tt.mutate(append([]byte(nil), data...)), 0o600)
			if _, err := m.Verify(path); !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_LatestSkipsCorrupt(t *testing.T) {
	m := newManager(t, Config{RetentionCount: 10})
	ctx := context.Background()

	first, _ := m.Create(ctx, payloadSource([]byte("one")))
	second, _ := m.Create(ctx, payloadSource([]byte("two")))

	latest, err := m.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest() = %s, want %s", latest.ID, second.ID)
	}

	data, _ := os.ReadFile(second.Path)
	data[len(magicBytes)+8] ^= 0xFF
	os.WriteFile(second.Path, data, 0o600)

	latest, err = m.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != first.ID {
		t.Errorf("Latest() = %s, want fallback to %s", latest.ID, first.ID)
	}
}

func TestManager_LatestEmpty(t *testing.T) {
	m := newManager(t, Config{})
	if _, err := m.Latest(); !errors.Is(err, ErrNoBackups) {
		t.Errorf("Latest() error = %v, want ErrNoBackups", err)
	}
}

func TestManager_Prune(t *testing.T) {
	m := newManager(t, Config{RetentionCount: 2, RetentionDays: 1})
	ctx := context.Background()

	var infos []*Info
	for range 4 {
		info, err := m.Create(ctx, payloadSource([]byte("x")))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		infos = append(infos, info)
	}

	// Everything is younger than a day, so nothing is pruned yet.
	if list, _ := m.List(); len(list) != 4 {
		t.Fatalf("List() = %d files, want 4", len(list))
	}

	old := time.Now().Add(-72 * time.Hour)
	for _, info := range infos[:3] {
		os.Chtimes(info.Path, old, old)
	}
	if err := m.Prune(); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	list, _ := m.List()
	if len(list) != 2 {
		t.Fatalf("List() after prune = %d files, want 2", len(list))
	}
	if list[0].ID != infos[2].ID || list[1].ID != infos[3].ID {
		t.Errorf("kept %s and %s, want the newest two", list[0].ID, list[1].ID)
	}
}

func TestManager_Run(t *testing.T) {
	m := newManager(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond, payloadSource([]byte("tick")))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if list, _ := m.List(); len(list) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run() created no backup")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestNewManager_RequiresDir(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("NewManager() without dir should fail")
	}
}

func rehash(body []byte) []byte {
	sum := sha256Sum(body)
	return append(body, sum...)
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}
