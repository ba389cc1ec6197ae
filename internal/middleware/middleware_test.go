package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/config"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/utils"
)

const secret = "middleware-secret"

func whoami(c echo.Context) error {
	a, ok := Actor(c)
	if !ok {
		return c.String(http.StatusOK, "anonymous")
	}
	return c.JSON(http.StatusOK, echo.Map{"id": a.ID, "role": a.Role})
}

func serve(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id uint64, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, role, 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"missing bearer token"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid token"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", token(t, 9, model.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"role":"ADMIN"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	t.Parallel()
	e := echo.New()
	g := e.Group("/ledger", JWTAuth(secret), RequireRole(model.RoleStaff, model.RoleSuperAdmin))
	g.POST("", whoami)

	tests := []struct {
		role model.Role
		want int
	}{
		{model.RoleStaff, http.StatusOK},
		{model.RoleSuperAdmin, http.StatusOK},
		{model.RoleAdmin, http.StatusForbidden},
		{model.RoleRequestor, http.StatusForbidden},
	}
	for _, tt := range tests {
		rec := serve(e, http.MethodPost, "/ledger", token(t, 1, tt.role))
		assert.Equal(t, tt.want, rec.Code, tt.role)
	}

	// Without JWTAuth there is no actor at all.
	bare := echo.New()
	bare.GET("/x", whoami, RequireRole(model.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, serve(bare, http.MethodGet, "/x", "").Code)
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "user_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/v1/events", whoami, JWTAuth(secret), NewTokenBucket(cfg, rdb, zerolog.Nop()))
	alice := token(t, 1, model.RoleRequestor)
	bob := token(t, 2, model.RoleRequestor)

	rec := serve(e, http.MethodGet, "/v1/events", alice)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/v1/events", alice).Code)

	rec = serve(e, http.MethodGet, "/v1/events", alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// Buckets are per user.
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/v1/events", bob).Code)
	assert.True(t, mr.Exists("rl:user:1:route:GET /v1/events"))
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.GET("/x", whoami, NewTokenBucket(cfg, rdb, zerolog.Nop()))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "").Code)
	}

	disabled := echo.New()
	disabled.GET("/x", whoami, NewTokenBucket(config.RateLimitConfig{}, nil, zerolog.Nop()))
	assert.Equal(t, http.StatusOK, serve(disabled, http.MethodGet, "/x", "").Code)
}

func TestBuildRateKey(t *testing.T) {
	t.Parallel()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/events")
	SetActor(c, model.Actor{ID: 5, Role: model.RoleAdmin})

	tests := map[string]string{
		"ip":         "rl:ip:10.0.0.7",
		"user":       "rl:user:5",
		"route":      "rl:route:POST /v1/events",
		"ip_user":    "rl:ip:10.0.0.7:user:5",
		"ip_route":   "rl:ip:10.0.0.7:route:POST /v1/events",
		"user_route": "rl:user:5:route:POST /v1/events",
		"":           "rl:ip:10.0.0.7:user:5:route:POST /v1/events",
	}
	for strategy, want := range tests {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(zerolog.New(&buf)))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	e.GET("/ok", func(c echo.Context) error {
		SetActor(c, model.Actor{ID: 3, Role: model.RoleStaff})
		return c.NoContent(http.StatusNoContent)
	})

	rec := serve(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status":418`)

	buf.Reset()
	serve(e, http.MethodGet, "/ok", "")
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), `"user_id":3`)
	assert.Contains(t, buf.String(), `"path":"/ok"`)
}
