package tlsroots

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func keyPairPaths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
}

func TestNewWatcher(t *testing.T) {
	certFile, keyFile := keyPairPaths(t)
	notAfter := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	writeKeyPair(t, certFile, keyFile, notAfter)

	w, err := NewWatcher(certFile, keyFile, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if w.debounce != 10*time.Millisecond {
		t.Errorf("debounce = %v", w.debounce)
	}

	cert, err := w.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	if !w.NotAfter().Equal(notAfter) {
		t.Errorf("NotAfter() = %v, want %v", w.NotAfter(), notAfter)
	}
	if w.ServerConfig().GetCertificate == nil {
		t.Error("ServerConfig() should use GetCertificate")
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	certFile, keyFile := keyPairPaths(t)

	if _, err := NewWatcher(certFile, keyFile); err == nil {
		t.Error("NewWatcher() should fail for missing files")
	}

	os.WriteFile(certFile, []byte("not a cert"), 0644)
	os.WriteFile(keyFile, []byte("not a key"), 0600)
	if _, err := NewWatcher(certFile, keyFile); err == nil {
		t.Error("NewWatcher() should fail for invalid PEM")
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	certFile, keyFile := keyPairPaths(t)
	writeKeyPair(t, certFile, keyFile, time.Now().Add(time.Hour))

	w, err := NewWatcher(certFile, keyFile, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	before := w.NotAfter()
	renewed := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	writeKeyPair(t, certFile, keyFile, renewed)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && w.NotAfter().Equal(before) {
		time.Sleep(50 * time.Millisecond)
	}
	if !w.NotAfter().Equal(renewed) {
		t.Errorf("NotAfter() = %v, want reloaded %v", w.NotAfter(), renewed)
	}
}

func TestWatcher_BadReloadKeepsCertificate(t *testing.T) {
	certFile, keyFile := keyPairPaths(t)
	writeKeyPair(t, certFile, keyFile, time.Now().Add(time.Hour))

	w, err := NewWatcher(certFile, keyFile, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	before, _ := w.GetCertificate(nil)
	os.WriteFile(certFile, []byte("truncated"), 0644)
	time.Sleep(300 * time.Millisecond)

	after, _ := w.GetCertificate(nil)
	if after != before {
		t.Error("a failed reload should keep the previous certificate")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	certFile, keyFile := keyPairPaths(t)
	writeKeyPair(t, certFile, keyFile, time.Now().Add(time.Hour))

	w, err := NewWatcher(certFile, keyFile)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	w.Stop()
}
