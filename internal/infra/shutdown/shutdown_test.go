package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func waitAsync(h *Handler) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Wait()
	}()
	return errCh
}

func await(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
		return nil
	}
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(5*time.Second, nil)
	if h.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", h.timeout)
	}
	if h.logger == nil || h.hooks == nil || h.done == nil {
		t.Error("NewHandler left fields nil")
	}

	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func TestHandler_Trigger_ReverseOrder(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	var (
		mu        sync.Mutex
		callOrder []string
	)
	for _, name := range []string{"storage", "notifier", "http"} {
		h.OnShutdown(name, func(ctx context.Context) error {
			mu.Lock()
			callOrder = append(callOrder, name)
			mu.Unlock()
			return nil
		})
	}

	errCh := waitAsync(h)
	h.Trigger("server failed")
	h.Trigger("ignored")

	if err := await(t, errCh); err != nil {
		t.Errorf("Wait() returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(callOrder, ",") != "http,notifier,storage" {
		t.Errorf("hooks called in wrong order: %v", callOrder)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Wait completes")
	}
}

func TestHandler_Wait_WithSignal(t *testing.T) {
	h := NewHandler(5*time.Second, nil)
	called := false
	h.OnShutdown("flag", func(ctx context.Context) error {
		called = true
		return nil
	})

	errCh := waitAsync(h)
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	if err := await(t, errCh); err != nil {
		t.Errorf("Wait() returned error: %v", err)
	}
	if !called {
		t.Error("hook was not called")
	}
}

func TestHandler_HookErrorsJoined(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ranLast := false

	h.OnShutdown("last", func(ctx context.Context) error {
		ranLast = true
		return nil
	})
	h.OnShutdown("a", func(ctx context.Context) error { return errA })
	h.OnShutdown("b", func(ctx context.Context) error { return errB })

	errCh := waitAsync(h)
	h.Trigger("test")
	err := await(t, errCh)

	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Wait() = %v, want both hook errors", err)
	}
	if !strings.Contains(err.Error(), "a: a failed") {
		t.Errorf("error should name the hook, got %v", err)
	}
	if !ranLast {
		t.Error("a failing hook should not stop the rest")
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(50*time.Millisecond, nil)
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errCh := waitAsync(h)
	h.Trigger("test")
	if err := await(t, errCh); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestHandler_WaitContext(t *testing.T) {
	h := NewHandler(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.WaitContext(ctx) }()
	cancel()

	if err := await(t, errCh); err != nil {
		t.Errorf("WaitContext() = %v", err)
	}
}

func TestHandler_ReloadOnSIGHUP(t *testing.T) {
	h := NewHandler(time.Second, nil)

	reloaded := make(chan struct{}, 1)
	h.OnReload(func() { reloaded <- struct{}{} })

	errCh := waitAsync(h)
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGHUP)

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback was not called")
	}

	select {
	case <-h.Done():
		t.Error("SIGHUP should not shut down")
	default:
	}

	h.Trigger("done")
	await(t, errCh)
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hooks) != 10 {
		t.Errorf("expected 10 hooks, got %d", len(h.hooks))
	}
}
