package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_WithEndpoint(t *testing.T) {
	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318"} {
		shutdown, err := Init(context.Background(), endpoint, "test")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, shutdown(ctx))
		cancel()
	}
}

func TestMiddleware_PassesThrough(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
