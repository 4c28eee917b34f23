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

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func asUser(id uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(CtxUserID, id)
			return next(c)
		}
	}
}

func do(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyGuard_RejectsConcurrentDuplicate(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.IdempotencyConfig{Enabled: true, TTL: time.Minute, Prefix: "idem"}
	e := echo.New()

	inside := make(chan struct{})
	release := make(chan struct{})
	e.POST("/v1/reservations", func(c echo.Context) error {
		close(inside)
		<-release
		return c.NoContent(http.StatusCreated)
	}, asUser(7), IdempotencyGuard(cfg, rdb, nil))

	first := make(chan int)
	go func() {
		first <- do(e, http.MethodPost, "/v1/reservations", map[string]string{HeaderIdempotencyKey: "k1"}).Code
	}()
	<-inside
	assert.True(t, mr.Exists("idem:7:k1"))

	rec := do(e, http.MethodPost, "/v1/reservations", map[string]string{HeaderIdempotencyKey: "k1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	assert.Equal(t, http.StatusCreated, <-first)
	assert.False(t, mr.Exists("idem:7:k1"), "claim is released after the request")
}

func TestIdempotencyGuard_PassThroughAndValidation(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.IdempotencyConfig{Enabled: true, TTL: time.Minute, Prefix: "idem"}
	e := echo.New()
	calls := 0
	e.POST("/r", func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusCreated)
	}, IdempotencyGuard(cfg, rdb, nil))

	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/r", nil).Code)
	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/r", map[string]string{HeaderIdempotencyKey: "a"}).Code)
	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/r", map[string]string{HeaderIdempotencyKey: "a"}).Code,
		"a finished request does not block a retry")

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/r", map[string]string{HeaderIdempotencyKey: string(long)}).Code)
	assert.Equal(t, 3, calls)
}

func TestIdempotencyGuard_RedisDownPassesThrough(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	e := echo.New()
	e.POST("/r", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		IdempotencyGuard(config.IdempotencyConfig{Enabled: true, TTL: time.Minute, Prefix: "idem"}, rdb, nil))

	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/r", map[string]string{HeaderIdempotencyKey: "a"}).Code)
}

func TestResponseCache_HitMissAndInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}, rdb, nil)
	e := echo.New()
	calls := 0
	e.GET("/v1/rooms/:id/seat-plan", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"configured": true, "n": calls})
	}, rc.Middleware())

	first := do(e, http.MethodGet, "/v1/rooms/3/seat-plan", nil)
	second := do(e, http.MethodGet, "/v1/rooms/3/seat-plan", nil)

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.Equal(t, 1, calls)

	rc.Invalidate(context.Background(), "/v1/rooms/3/seat-plan")
	third := do(e, http.MethodGet, "/v1/rooms/3/seat-plan", nil)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestResponseCache_SkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache"}, rdb, nil)
	e := echo.New()
	calls := 0
	e.GET("/x", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room 1 not found"})
	}, rc.Middleware())

	do(e, http.MethodGet, "/x", nil)
	do(e, http.MethodGet, "/x", nil)

	assert.Equal(t, 2, calls)
}

func TestTokenBucket_Blocks(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, KeyStrategy: "user", Prefix: "rl"}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, asUser(1), NewTokenBucket(cfg, rdb, nil))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/x", nil).Code)
	rec := do(e, http.MethodGet, "/x", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"id": UserID(c), "role": Role(c)})
	}, JWTAuth("k"), RequireRole("ADMIN"))

	admin, err := utils.NewAccessToken("k", utils.Claims{UserID: 9, Role: "ADMIN"}, 5)
	require.NoError(t, err)
	customer, err := utils.NewAccessToken("k", utils.Claims{UserID: 10, Role: "CUSTOMER"}, 5)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + admin.Token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"role":"ADMIN"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + customer.Token}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer nope"}).Code)
}
