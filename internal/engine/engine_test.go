package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nkkko/verse/internal/api/models"
	"github.com/nkkko/verse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(p *platform) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = p.URL()
	cfg.API.Token = goodToken
	cfg.Realtime.ReconnectDelayMs = 10
	cfg.Storage.InMemory = true
	cfg.Storage.GCIntervalMinutes = 0
	cfg.Storage.SnapshotIntervalSeconds = 1
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func TestCreateEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = ""

	_, err := CreateEngine(cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.API.BaseURL = "ftp://example.com"
	_, err = CreateEngine(cfg)
	assert.Error(t, err)
}

func TestEngineStartAndShutdown(t *testing.T) {
	p := newPlatform(t)

	e, err := CreateEngine(testConfig(p))
	require.NoError(t, err)
	require.NotNil(t, e.api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return e.Session().Status().Realtime.Connected
	}, 3*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool          `json:"success"`
		Data    models.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	status := env.Data
	assert.True(t, status.SignedIn)
	assert.Equal(t, int64(testUserID), status.UserID)
	assert.Equal(t, 2, status.LikedPoems)

	rec = httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/poems/5/like", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, e.Session().Store().Liked.Has(5))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	assert.NoError(t, e.Shutdown(shutdownCtx))
}

func TestEngineStartFailsOnRejectedToken(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(p)
	cfg.API.Token = "stale"

	e, err := CreateEngine(cfg)
	require.NoError(t, err)

	err = e.Start(context.Background())
	assert.Error(t, err)
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestEngineRunsSignedOutWithoutToken(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(p)
	cfg.API.Token = ""
	cfg.Server.Enabled = false

	e, err := CreateEngine(cfg)
	require.NoError(t, err)
	assert.Nil(t, e.api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Start(ctx))

	assert.False(t, e.Session().Status().SignedIn)
	assert.Zero(t, p.hitCount("/user"))
	assert.NoError(t, e.Shutdown(context.Background()))
}
