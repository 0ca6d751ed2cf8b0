package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tee-time-reservation/internal/config"
	"github.com/iliyamo/tee-time-reservation/internal/utils"
)

func testConfig(t *testing.T, redisAddr string) config.Config {
	t.Helper()
	return config.Config{
		Env:          "local",
		Port:         "0",
		JWTSecret:    "app-secret",
		AccessTTLMin: 60,
		DB: config.DBConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "teetime.db"),
			Migrate:    true,
		},
		Redis:       config.RedisConfig{Addr: redisAddr, Prefix: "tt"},
		Cache:       config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "cache"},
		RateLimit:   config.RateLimitConfig{Enabled: true, Capacity: 100, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"},
		Invitations: config.InvitationConfig{TTL: time.Hour, SweepInterval: time.Minute, SweepBatch: 10},
	}
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := utils.NewAccessToken("app-secret", "owner", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(slog.New(slog.DiscardHandler), testConfig(t, mr.Addr()))
	require.NoError(t, err)
	require.NotNil(t, a.rdb)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	rec := request(t, a.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"capacity":4,"scheduled_at":"` + time.Now().Add(24*time.Hour).UTC().Format(time.RFC3339) + `","location":"Royal Troon"}`
	rec = request(t, a.Handler(), http.MethodPost, "/v1/reservations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	a.coord.Wait()

	rec = request(t, a.Handler(), http.MethodGet, "/v1/my-reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Royal Troon")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestAppDegradesWithoutRedis(t *testing.T) {
	a, err := New(slog.New(slog.DiscardHandler), testConfig(t, "127.0.0.1:1"))
	require.NoError(t, err)
	assert.Nil(t, a.rdb)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	body := `{"capacity":2,"scheduled_at":"` + time.Now().Add(24*time.Hour).UTC().Format(time.RFC3339) + `","location":"Muirfield"}`
	rec := request(t, a.Handler(), http.MethodPost, "/v1/reservations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a.coord.Wait()

	rec = request(t, a.Handler(), http.MethodGet, "/v1/my-reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Muirfield")
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
