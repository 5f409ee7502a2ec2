package command

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/server/httpserver"
	"github.com/yndnr/autosave-go/internal/server/httpserver/handler"
	"github.com/yndnr/autosave-go/internal/storage"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
)

// newTestServer runs the real router over a memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := storage.New(storage.Config{Backend: storage.BackendMemory, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	svc := service.NewAutosaveService(engine.Snapshots(), engine.Pending(), codec.New(codec.Options{}),
		service.WithLogger(logger.Discard()))
	srv := httptest.NewServer(httpserver.NewRouter(&httpserver.RouterConfig{
		Service:  svc,
		Admin:    engine,
		Settings: handler.Settings{Interval: 20, Notification: handler.NotificationSettings{Active: true, Message: "saved"}},
		Logger:   logger.Discard(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

// postTick submits one tick for node/42 in session S1.
func postTick(t *testing.T, srv *httptest.Server, title string) {
	t.Helper()
	body := `{"form_session_id":"S1","form_id":"node_article_edit_form","uid":"7",` +
		`"entity":{"entity_type_id":"node","entity_id":"42","langcode":"en"},` +
		`"input":{"title":"` + title + `"}}`
	resp, err := http.Post(srv.URL+"/v1/autosave/ticks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST ticks error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST ticks status = %d", resp.StatusCode)
	}
}

// runApp runs autosave-cli against server and returns stdout and stderr.
func runApp(t *testing.T, server string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"autosave-cli", "--server", server}, args...)
	err := app.Run(full)
	return stdout.String(), stderr.String(), err
}
