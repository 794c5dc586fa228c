package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"shelf/internal/handler"
)

func TestHealthHandler_Liveness(t *testing.T) {
	h := handler.NewHealthHandler(nil)

	c, w := newContext(http.MethodGet, "/healthz", nil, nil)
	h.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	h := handler.NewHealthHandler(map[string]handler.ReadinessCheck{"database": ok})
	c, w := newContext(http.MethodGet, "/readyz", nil, nil)
	h.Readiness(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = handler.NewHealthHandler(map[string]handler.ReadinessCheck{"database": ok, "cache": down})
	c, w = newContext(http.MethodGet, "/readyz", nil, nil)
	h.Readiness(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "cache")
	assert.NotContains(t, w.Body.String(), "database")
}
