package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	e := echo.New()
	check := func(h Health) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
		require.NoError(t, h.Check(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, check(Health{DB: pingFunc(func(context.Context) error { return nil })}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, check(Health{DB: pingFunc(func(context.Context) error { return errors.New("down") })}).Code)
}
