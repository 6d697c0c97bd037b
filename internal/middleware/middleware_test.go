package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labware-service/internal/utils"
)

func newEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	engine := gin.New()
	engine.Use(RecoveryMiddleware(logger))
	engine.Use(RequestIDMiddleware())
	engine.Use(LoggingMiddleware(utils.NewServiceLogger(logger, "http-server"), "/live"))

	engine.GET("/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/devices/:name", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	engine.GET("/devices/:name/boom", func(c *gin.Context) {
		panic("driver exploded")
	})
	return engine, logs
}

func serve(engine *gin.Engine, path, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	engine, _ := newEngine(t)

	w := serve(engine, "/live", "abc")
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = serve(engine, "/live", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware(t *testing.T) {
	engine, logs := newEngine(t)

	serve(engine, "/live", "")
	assert.Zero(t, logs.FilterMessage("API request").Len())

	serve(engine, "/devices/pump", "req-7")
	entries := logs.FilterMessage("API request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "/devices/:name", fields["path"])
	assert.Equal(t, "pump", fields["device"])
	assert.Equal(t, "req-7", fields["request_id"])
	assert.EqualValues(t, http.StatusNotFound, fields["status_code"])
}

func TestRecoveryMiddleware(t *testing.T) {
	engine, logs := newEngine(t)

	w := serve(engine, "/devices/pump/boom", "req-9")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", resp.Error.Code)
	assert.Equal(t, "req-9", resp.RequestID)

	panics := logs.FilterMessage("Panic recovered").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "pump", panics[0].ContextMap()["device"])
}
