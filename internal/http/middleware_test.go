package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	logger, buf := newBufferLogger()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/tasks/stats", nil)
	w := httptest.NewRecorder()
	Logging(logger)(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/tasks/stats"`)
	assert.Contains(t, buf.String(), `"method":"GET"`)
}

func TestLoggingMiddleware_DefaultsTo200(t *testing.T) {
	logger, buf := newBufferLogger()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Implicit 200 via the first Write.
		_, _ = w.Write([]byte("ok"))
	})

	r := httptest.NewRequest(http.MethodGet, "/api/workers", nil)
	w := httptest.NewRecorder()
	Logging(logger)(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), `"bytes":2`)
}

func TestLoggingMiddleware_SkipsHealthProbes(t *testing.T) {
	logger, buf := newBufferLogger()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	Logging(logger)(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())
}

func TestRecoverMiddleware_Returns500(t *testing.T) {
	logger, buf := newBufferLogger()

	inner := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("handler blew up")
	})

	r := httptest.NewRequest(http.MethodPost, "/api/tasks/", nil)
	w := httptest.NewRecorder()
	Recover(logger)(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
	assert.Contains(t, buf.String(), "handler blew up")
}

func TestRecoverMiddleware_PassesThroughWithoutPanic(t *testing.T) {
	logger, buf := newBufferLogger()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r := httptest.NewRequest(http.MethodDelete, "/api/tasks/abc", nil)
	w := httptest.NewRecorder()
	Recover(logger)(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, buf.String())
}
