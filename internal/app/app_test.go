package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
)

// newBareApplication builds an application without touching the global
// config or logger state. Callers own the teardown.
func newBareApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.Security.RateLimit.Enabled = false

	paths, err := config.NewPaths(t.TempDir(), cfg.Paths)
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		OTelProviders: &infrastructure.OTelProviders{},
	}

	require.NoError(t, app.initializeServices())
	app.setupRouter()
	app.createServer()

	return app
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()

	app := newBareApplication(t)
	t.Cleanup(func() {
		_ = app.JobQueue.Stop(2 * time.Second)
		app.WebSocketHub.Stop()
		_ = app.Store.Close()
	})
	return app
}

func TestInitializeServices(t *testing.T) {
	app := newTestApplication(t)

	assert.NotNil(t, app.Store)
	assert.NotNil(t, app.Registry)
	assert.NotNil(t, app.Runner)
	assert.NotNil(t, app.JobQueue)
	assert.NotNil(t, app.WebSocketHub)
	require.NotNil(t, app.Services)
	assert.NotNil(t, app.Services.Run)
	assert.NotNil(t, app.Services.Results)
	assert.NotNil(t, app.Services.Health)

	// extract, transform, load, report
	assert.Equal(t, 4, app.Registry.Count())
}

func TestRouterHealthEndpoints(t *testing.T) {
	app := newTestApplication(t)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Contains(t, health, "status")
	assert.Contains(t, health, "services")

	resp2, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), VERSION)
}

func TestRouterResultsEndpoint(t *testing.T) {
	app := newTestApplication(t)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results/classes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.EqualValues(t, 0, payload["count"])
}

func TestRouterRejectsUnknownTask(t *testing.T) {
	app := newTestApplication(t)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/runs", "application/json",
		strings.NewReader(`{"task":"bogus"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouterSecurityHeaders(t *testing.T) {
	app := newTestApplication(t)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestGetCORSConfig(t *testing.T) {
	app := newTestApplication(t)

	corsCfg := app.getCORSConfig()
	assert.Equal(t, app.Config.Security.AllowedOrigins, corsCfg.AllowedOrigins)
	assert.Contains(t, corsCfg.AllowedMethods, "POST")
	assert.False(t, corsCfg.AllowCredentials)
}

func TestCreateServer(t *testing.T) {
	app := newTestApplication(t)

	require.NotNil(t, app.Server)
	assert.Equal(t, ":8080", app.Server.Addr)
	assert.Equal(t, app.Config.Server.ReadTimeout, app.Server.ReadTimeout)
	assert.Equal(t, app.Config.Server.WriteTimeout, app.Server.WriteTimeout)
	assert.Equal(t, app.Config.Server.IdleTimeout, app.Server.IdleTimeout)
}

func TestStartAndStop(t *testing.T) {
	app := newBareApplication(t)
	app.Config.Server.Port = 0
	app.createServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Start(ctx, cancel))

	// Give ListenAndServe a moment before shutting down.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, app.Stop(context.Background()))
	assert.NoError(t, ctx.Err())
}

func TestStopWithoutStart(t *testing.T) {
	app := newBareApplication(t)

	require.NoError(t, app.Stop(context.Background()))
}
