package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"labware-service/internal/config"
	"labware-service/internal/driver"
	"labware-service/internal/drivers"
	"labware-service/internal/model"
	"labware-service/internal/protocol"
	"labware-service/internal/repository"
	"labware-service/internal/service"
	"labware-service/internal/task"
	"labware-service/internal/utils"
	pkgdriver "labware-service/pkg/driver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine   *gin.Engine
	devices  *service.DeviceService
	eventBus *EventBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry := driver.NewRegistry(logger)
	drivers.RegisterDefaultDrivers(registry, logger)

	journal := repository.NewMemoryJournal(100)
	recorder := repository.NewRecorder(journal, logger)
	t.Cleanup(func() { recorder.Close(time.Second) })

	bus := NewEventBus(logger)
	env := driver.Environment{
		Observers: []driver.Observer{recorder},
		TaskSink:  service.NewResultFanout(bus),
		Logger:    logger,
	}
	devices := service.NewDeviceService(registry, env, journal, bus, nil, logger)
	t.Cleanup(func() { _ = devices.Close() })

	max := 100.0
	min := 0.0
	require.NoError(t, devices.AddDevice(config.DeviceConfig{
		Name:       "pump",
		Driver:     "generic",
		Simulation: true,
		Connection: config.ConnectionConfig{Mode: "serial"},
		Commands: map[string]pkgdriver.Command{
			"get_flow": {Name: "FLOW?", Reply: &pkgdriver.ReplySpec{Type: pkgdriver.KindFloat}},
			"set_flow": {Name: "FLOW", Type: pkgdriver.KindFloat, Check: &pkgdriver.Check{Min: &min, Max: &max}},
		},
		SimulatedReplies: map[string]string{"get_flow": "12.5"},
	}))

	tasks := service.NewTaskService(devices, bus, logger)
	deviceHandler := NewDeviceHandler(devices, logger)
	taskHandler := NewTaskHandler(tasks, logger)
	journalHandler := NewJournalHandler(devices, logger)
	healthHandler := NewHealthHandler(nil, devices, &config.Config{App: config.AppConfig{Name: "labware-service", Version: "test"}}, logger)

	engine := gin.New()
	engine.GET("/health", healthHandler.HealthCheck)
	api := engine.Group("/api/v1")
	api.GET("/devices", deviceHandler.ListDevices)
	api.GET("/devices/:name", deviceHandler.GetDevice)
	api.POST("/devices/:name/connect", deviceHandler.ConnectDevice)
	api.POST("/devices/:name/disconnect", deviceHandler.DisconnectDevice)
	api.PUT("/devices/:name/simulation", deviceHandler.SetSimulation)
	api.GET("/devices/:name/commands", deviceHandler.ListCommands)
	api.POST("/devices/:name/commands/:command", deviceHandler.ExecuteCommand)
	api.GET("/devices/:name/tasks", taskHandler.ListTasks)
	api.POST("/devices/:name/tasks", taskHandler.StartTask)
	api.DELETE("/devices/:name/tasks/:id", taskHandler.StopTask)
	api.GET("/devices/:name/tasks/:id/results", taskHandler.TaskResults)
	api.GET("/journal", journalHandler.ListJournal)

	return &testServer{engine: engine, devices: devices, eventBus: bus}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, utils.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func dataMap(t *testing.T, resp utils.APIResponse) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown device", fmt.Errorf("%w: ghost", service.ErrDeviceNotFound), http.StatusNotFound},
		{"unknown command", fmt.Errorf("pump: %w", pkgdriver.ErrUnknownCommand), http.StatusNotFound},
		{"unknown task", task.ErrTaskNotFound, http.StatusNotFound},
		{"journal miss", repository.ErrNotFound, http.StatusNotFound},
		{"bad request", service.ErrInvalidRequest, http.StatusBadRequest},
		{"rejected value", fmt.Errorf("FLOW: %w", pkgdriver.ErrDeviceCommand), http.StatusBadRequest},
		{"bad descriptor", pkgdriver.ErrInvalidCommand, http.StatusBadRequest},
		{"duplicate device", service.ErrDeviceExists, http.StatusConflict},
		{"several tasks", task.ErrAmbiguousTask, http.StatusConflict},
		{"no reply", fmt.Errorf("read: %w", protocol.ErrConnectionTimeout), http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"port gone", protocol.ErrConnection, http.StatusBadGateway},
		{"device fault", fmt.Errorf("E05: %w", pkgdriver.ErrDeviceInternal), http.StatusBadGateway},
		{"bad reply", pkgdriver.ErrDeviceReply, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestDeviceEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, code)
	devices, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, devices, 1)

	code, resp = s.do(t, http.MethodGet, "/api/v1/devices/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	code, resp = s.do(t, http.MethodPost, "/api/v1/devices/pump/connect", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, "pump", dataMap(t, resp)["name"])

	code, resp = s.do(t, http.MethodGet, "/api/v1/devices/pump/commands", nil)
	require.Equal(t, http.StatusOK, code)
	commands, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, commands, 2)

	code, resp = s.do(t, http.MethodPost, "/api/v1/devices/pump/commands/get_flow", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	data := dataMap(t, resp)
	assert.Equal(t, "GET_FLOW", data["command"])
	assert.Equal(t, 12.5, data["result"])
	assert.Equal(t, true, data["simulated"])

	code, resp = s.do(t, http.MethodPost, "/api/v1/devices/pump/commands/set_flow", CommandRequest{Value: 150})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/devices/pump/commands/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/devices/pump/simulation", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	enabled := true
	code, resp = s.do(t, http.MethodPut, "/api/v1/devices/pump/simulation", SimulationRequest{Enabled: &enabled})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataMap(t, resp)["simulation"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/devices/pump/disconnect", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestTaskEndpoints(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/devices/pump/connect", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/devices/pump/tasks", service.StartTaskRequest{Command: "get_flow", Interval: "-1s"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/devices/pump/tasks", gin.H{"interval": "1s"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := s.do(t, http.MethodPost, "/api/v1/devices/pump/tasks", service.StartTaskRequest{Command: "get_flow", Interval: "10ms"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	id, _ := dataMap(t, resp)["id"].(string)
	require.NotEmpty(t, id)

	code, resp = s.do(t, http.MethodGet, "/api/v1/devices/pump/tasks", nil)
	require.Equal(t, http.StatusOK, code)
	listed, _ := resp.Data.([]interface{})
	assert.Len(t, listed, 1)

	require.Eventually(t, func() bool {
		code, resp := s.do(t, http.MethodGet, "/api/v1/devices/pump/tasks/"+id+"/results", nil)
		results, _ := resp.Data.([]interface{})
		return code == http.StatusOK && len(results) > 0
	}, time.Second, 10*time.Millisecond)

	code, _ = s.do(t, http.MethodGet, "/api/v1/devices/pump/tasks/not-a-uuid/results", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/devices/pump/tasks/"+id, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/devices/pump/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListJournal(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/devices/pump/connect", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/devices/pump/commands/get_flow", nil)
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		code, resp := s.do(t, http.MethodGet, "/api/v1/journal?device=pump", nil)
		if code != http.StatusOK {
			return false
		}
		return resp.Page != nil && resp.Page.Total == 1
	}, time.Second, 10*time.Millisecond)

	code, resp := s.do(t, http.MethodGet, "/api/v1/journal?limit=5000&start_date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	errs, _ := dataMap(t, resp)["validation_errors"].(map[string]interface{})
	assert.Contains(t, errs, "limit")
	assert.Contains(t, errs, "start_date")
}

func TestParseJournalFilter(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet,
		"/api/v1/journal?device=pump&command=FLOW&status=REJECTED&start_date=2026-01-02T15:04:05Z&limit=10&offset=20", nil)

	filter, errs := parseJournalFilter(c)
	require.Empty(t, errs)
	assert.Equal(t, "pump", *filter.Device)
	assert.Equal(t, "FLOW", *filter.Command)
	assert.Equal(t, model.CommandStatusRejected, *filter.Status)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), *filter.StartDate)
	assert.Nil(t, filter.EndDate)
	assert.Equal(t, 10, filter.Limit)
	assert.Equal(t, 20, filter.Offset)

	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/journal?offset=-1", nil)
	_, errs = parseJournalFilter(c)
	assert.Contains(t, errs, "offset")
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.NotContains(t, health.Checks, "database")
	assert.Equal(t, "healthy", health.Checks["devices"].Status)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Start(ctx)
		close(done)
	}()

	id, events := bus.Subscribe()
	_, other := bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(model.NewDeviceEvent(model.EventDeviceConnected, "pump", nil))
	for _, ch := range []<-chan model.DeviceEvent{events, other} {
		select {
		case event := <-ch:
			assert.Equal(t, model.EventDeviceConnected, event.EventType)
			assert.Equal(t, "pump", event.Device)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	<-done
	_, open = <-other
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
}
