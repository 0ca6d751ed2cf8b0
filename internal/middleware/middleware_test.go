package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tee-time-reservation/internal/cache"
	"github.com/iliyamo/tee-time-reservation/internal/config"
	"github.com/iliyamo/tee-time-reservation/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, JWTAuth(secret))

	rec := do(e, http.MethodGet, "/me", bearer(t, "alice"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "Bearer garbage").Code)

	other, err := utils.NewAccessToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "Bearer "+other.Token).Code)

	expired, err := utils.NewAccessToken(secret, "alice", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "Bearer "+expired.Token).Code)
}

func TestRedisCacheHonoursGenerations(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "tc"}

	calls := 0
	e := echo.New()
	e.GET("/reservations/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, JWTAuth(secret), NewRedisCache(nil, cfg, rdb))

	auth := bearer(t, "alice")
	first := do(e, http.MethodGet, "/reservations/r1", auth)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/reservations/r1", auth)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	inv := cache.NewInvalidator(nil, rdb, "tc")
	require.NoError(t, inv.Invalidate(context.Background(), "r1", []string{"alice"}))

	third := do(e, http.MethodGet, "/reservations/r1", auth)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRedisCacheKeysUserRoutesPerUser(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "tc"}

	e := echo.New()
	e.GET("/my-reservations", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, JWTAuth(secret), NewRedisCache(nil, cfg, rdb))

	assert.Equal(t, "alice", do(e, http.MethodGet, "/my-reservations", bearer(t, "alice")).Body.String())
	rec := do(e, http.MethodGet, "/my-reservations", bearer(t, "bob"))
	assert.Equal(t, "bob", rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "tc"}

	e := echo.New()
	e.GET("/reservations/:id", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}, NewRedisCache(nil, cfg, rdb))

	do(e, http.MethodGet, "/reservations/r1", "")
	rec := do(e, http.MethodGet, "/reservations/r1", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestTokenBucket(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "user", Prefix: "rl",
	}

	e := echo.New()
	e.POST("/join", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(secret), NewTokenBucket(nil, cfg, rdb))

	alice := bearer(t, "alice")
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/join", alice).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/join", alice).Code)
	blocked := do(e, http.MethodPost, "/join", alice)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/join", bearer(t, "bob")).Code)
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewRedisCache(nil, config.CacheConfig{}, nil), NewTokenBucket(nil, config.RateLimitConfig{}, nil))

	rec := do(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
