package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
	"github.com/iliyamo/cafeteria-procurement/internal/config"
	"github.com/iliyamo/cafeteria-procurement/internal/handler"
	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
	"github.com/iliyamo/cafeteria-procurement/internal/service"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

type okSessions struct{}

func (okSessions) Register(context.Context, service.RegisterInput, audit.Meta) (service.AuthResult, error) {
	return service.AuthResult{}, nil
}
func (okSessions) Login(context.Context, string, string, audit.Meta) (service.AuthResult, error) {
	return service.AuthResult{}, nil
}
func (okSessions) Refresh(context.Context, string, audit.Meta) (utils.TokenPair, error) {
	return utils.TokenPair{}, nil
}
func (okSessions) Logout(context.Context, uint64, audit.Meta) error { return nil }
func (okSessions) Me(context.Context, uint64) (model.PublicUser, error) {
	return model.PublicUser{}, nil
}
func (okSessions) RequestReset(context.Context, string, audit.Meta) error         { return nil }
func (okSessions) ConsumeReset(context.Context, string, string, audit.Meta) error { return nil }

type emptyAudit struct{}

func (emptyAudit) List(context.Context, repository.AuditFilter) ([]model.AuditLogEntry, error) {
	return nil, nil
}

func setup(t *testing.T, rl echo.MiddlewareFunc) (*echo.Echo, *utils.TokenIssuer) {
	t.Helper()
	iss := utils.NewTokenIssuer(config.AuthConfig{
		AccessSecret:  "router-access",
		RefreshSecret: "router-refresh",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	e := echo.New()
	e.IPExtractor = middleware.IPExtractor(nil)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(zap.NewNop())
	e.Use(middleware.RequestID())
	Register(e, Deps{
		Auth:      handler.NewAuthHandler(okSessions{}),
		Audit:     handler.NewAuditHandler(emptyAudit{}),
		Verifier:  iss,
		RateLimit: rl,
	})
	return e, iss
}

func call(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestRoutes(t *testing.T) {
	e, iss := setup(t, nil)

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "", "").Code)

	rec := call(e, http.MethodGet, "/api/v1/auth/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(e, http.MethodGet, "/api/v1/auth/login", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, handler.CodeMethodNotAllowed, errorCode(t, rec))

	rec = call(e, http.MethodGet, "/api/v1/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pair, err := iss.IssuePair(model.Principal{ID: 3, Role: model.RoleEmployee})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/api/v1/auth/me", "", pair.AccessToken).Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/api/v1/auth/logout", "", pair.AccessToken).Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/api/v1/auth/activity", "", pair.AccessToken).Code)

	rec = call(e, http.MethodGet, "/api/v1/audit-logs", "", pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := iss.IssuePair(model.Principal{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/api/v1/audit-logs", "", admin.AccessToken).Code)
}

func TestCredentialRoutesAreRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            5 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}, rdb, zap.NewNop())
	e, _ := setup(t, rl)

	login := `{"email":"alice@example.com","password":"Secure1!"}`
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/api/v1/auth/login", login, "").Code)
	rec := call(e, http.MethodPost, "/api/v1/auth/login", login, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, handler.CodeRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A forged X-Forwarded-For does not open a new bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(login))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "198.51.100.77")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Buckets are per route.
	forgot := `{"email":"alice@example.com"}`
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/api/v1/auth/forgot-password", forgot, "").Code)

	// Registration is not throttled.
	reg := `{"name":"A","email":"a@example.com","password":"Secure1!"}`
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, call(e, http.MethodPost, "/api/v1/auth/register", reg, "").Code)
	}
}
