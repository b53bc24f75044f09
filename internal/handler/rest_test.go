package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/service"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// MockRouteService для тестирования
type MockRouteService struct {
	mock.Mock
}

func (m *MockRouteService) Routes() []*models.Route {
	args := m.Called()
	return args.Get(0).([]*models.Route)
}

func (m *MockRouteService) Route(id uuid.UUID) (*models.Route, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *MockRouteService) DeleteRoute(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRouteService) UpdateRoute(ctx context.Context, edited *models.Route) (*models.Route, error) {
	args := m.Called(ctx, edited)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *MockRouteService) ImportGPX(ctx context.Context, r io.Reader, name string) (*models.Route, error) {
	args := m.Called(ctx, r, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *MockRouteService) LastFivePoints() []models.RoutePoint {
	args := m.Called()
	return args.Get(0).([]models.RoutePoint)
}

func (m *MockRouteService) Odometer() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}

// MockRecorder для тестирования
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) StartRoute(ctx context.Context, name, description string) (*models.Route, error) {
	args := m.Called(ctx, name, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *MockRecorder) EndRoute(ctx context.Context) (*models.Route, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *MockRecorder) Status(ctx context.Context) (engine.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(engine.Status), args.Error(1)
}

func (m *MockRecorder) RecomputeFilters(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

type testEnv struct {
	routes   *MockRouteService
	recorder *MockRecorder
	settings *config.SettingsStore
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		routes:   &MockRouteService{},
		recorder: &MockRecorder{},
		settings: config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml")),
		router:   setupTestRouter(),
	}

	h := NewRESTHandler(env.routes, env.recorder, env.settings, utils.NewNopLogger())
	env.router.GET("/api/v1/routes", h.ListRoutes)
	env.router.POST("/api/v1/routes/import", h.ImportGPX)
	env.router.GET("/api/v1/routes/:id", h.GetRoute)
	env.router.PATCH("/api/v1/routes/:id", h.UpdateRoute)
	env.router.DELETE("/api/v1/routes/:id", h.DeleteRoute)
	env.router.GET("/api/v1/routes/:id/gpx", h.ExportGPX)
	env.router.POST("/api/v1/recording/start", h.StartRecording)
	env.router.POST("/api/v1/recording/end", h.EndRecording)
	env.router.GET("/api/v1/recording/last-points", h.LastPoints)
	env.router.GET("/api/v1/status", h.GetStatus)
	env.router.GET("/api/v1/odometer", h.GetOdometer)
	env.router.GET("/api/v1/settings", h.GetSettings)
	env.router.PUT("/api/v1/settings", h.UpdateSettings)

	t.Cleanup(func() {
		env.routes.AssertExpectations(t)
		env.recorder.AssertExpectations(t)
	})
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// sampleRoute маршрут из двух точек ~11 м, 18 км/ч
func sampleRoute(name string, lat float64) *models.Route {
	route := models.NewRoute(name, "", t0)
	route.Points = []models.RoutePoint{
		models.NewRoutePoint(18, 0, 100, 7.0, lat, t0),
		models.NewRoutePoint(18, 0, 100, 7.0, lat+0.0001, t0.Add(2*time.Second)),
	}
	route.Distance = models.TotalDistance(route.Points)
	end := t0.Add(2 * time.Second)
	route.EndDate = &end
	route.ActivityType = models.ActivityCycling
	return route
}

func TestRESTHandler_ListRoutes(t *testing.T) {
	env := newTestEnv(t)

	near := sampleRoute("Near", 45.0)
	far := sampleRoute("Far", -33.0)
	env.routes.On("Routes").Return([]*models.Route{near, far})

	w := env.do("GET", "/api/v1/routes", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, 2.0, response["count"])

	routes := response["routes"].([]interface{})
	first := routes[0].(map[string]interface{})
	assert.Equal(t, "Near", first["name"])
	assert.Equal(t, "Cycling", first["activity"])
	assert.InDelta(t, near.Distance/1000, first["distance"], 1e-9)
	assert.Equal(t, 2.0, first["points"])
}

func TestRESTHandler_ListRoutes_CellFilter(t *testing.T) {
	env := newTestEnv(t)

	near := sampleRoute("Near", 45.0)
	far := sampleRoute("Far", -33.0)
	env.routes.On("Routes").Return([]*models.Route{near, far})

	cell := near.Points[0].Position().Geohash(4)
	w := env.do("GET", "/api/v1/routes?cell="+cell, "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, 1.0, response["count"])
	routes := response["routes"].([]interface{})
	assert.Equal(t, "Near", routes[0].(map[string]interface{})["name"])
}

func TestRESTHandler_ListRoutes_InvalidCell(t *testing.T) {
	env := newTestEnv(t)

	tests := []string{"abc!", "ailo", "0123456789bcd"}
	for _, cell := range tests {
		t.Run(cell, func(t *testing.T) {
			w := env.do("GET", "/api/v1/routes?cell="+cell, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_cell", decode(t, w)["code"])
		})
	}
}

func TestRESTHandler_GetRoute(t *testing.T) {
	env := newTestEnv(t)

	route := sampleRoute("Ride", 45.0)
	env.routes.On("Route", route.ID).Return(route, nil)

	w := env.do("GET", "/api/v1/routes/"+route.ID.String()+"?units=imperial", "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "Ride", response["name"])
	assert.Len(t, response["points"], 2)

	summary := response["summary"].(map[string]interface{})
	assert.Equal(t, "imperial", summary["units"])
	assert.Equal(t, 2.0, summary["point_count"])
	assert.InDelta(t, route.Distance/1609.344, summary["distance"], 1e-9)
	assert.InDelta(t, 18/1.609344, summary["max_speed"], 1e-6)
	assert.Equal(t, 2.0, summary["elapsed_seconds"])
}

func TestRESTHandler_GetRoute_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/v1/routes/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_route_id", decode(t, w)["code"])

	id := uuid.New()
	env.routes.On("Route", id).Return(nil, fmt.Errorf("%w: %s", service.ErrRouteNotFound, id))

	w = env.do("GET", "/api/v1/routes/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route_not_found", decode(t, w)["code"])
}

func TestRESTHandler_UpdateRoute(t *testing.T) {
	env := newTestEnv(t)

	route := sampleRoute("Ride", 45.0)
	env.routes.On("Route", route.ID).Return(route, nil)
	env.routes.On("UpdateRoute", mock.Anything, mock.MatchedBy(func(r *models.Route) bool {
		return r.Name == "Evening ride" && r.ActivityType == models.ActivityRunning && r.Description == ""
	})).Return(func() *models.Route {
		updated := route.Clone()
		updated.Name = "Evening ride"
		updated.ActivityType = models.ActivityRunning
		return updated
	}(), nil)

	w := env.do("PATCH", "/api/v1/routes/"+route.ID.String(), `{"name":" Evening ride ","activity_type":37}`)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "Evening ride", response["name"])
	assert.Equal(t, "Running", response["activity"])
}

func TestRESTHandler_UpdateRoute_Invalid(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New().String()

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "Not JSON", body: `name=x`, code: "invalid_body"},
		{name: "Empty update", body: `{}`, code: "invalid_update"},
		{name: "Blank name", body: `{"name":"  "}`, code: "invalid_update"},
		{name: "Unknown activity", body: `{"activity_type":12345}`, code: "invalid_update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("PATCH", "/api/v1/routes/"+id, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestRESTHandler_DeleteRoute(t *testing.T) {
	env := newTestEnv(t)

	id := uuid.New()
	env.routes.On("DeleteRoute", mock.Anything, id).Return(nil).Once()

	w := env.do("DELETE", "/api/v1/routes/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	failing := uuid.New()
	env.routes.On("DeleteRoute", mock.Anything, failing).Return(errors.New("disk full")).Once()

	w = env.do("DELETE", "/api/v1/routes/"+failing.String(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode(t, w)["code"])
}

func TestRESTHandler_ExportGPX(t *testing.T) {
	env := newTestEnv(t)

	route := sampleRoute("Ride", 45.0)
	env.routes.On("Route", route.ID).Return(route, nil)

	w := env.do("GET", "/api/v1/routes/"+route.ID.String()+"/gpx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gpx+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), route.ID.String()+".gpx")
	assert.Contains(t, w.Body.String(), "<gpx")
	assert.Contains(t, w.Body.String(), "Ride")
}

func TestRESTHandler_ImportGPX(t *testing.T) {
	env := newTestEnv(t)

	imported := sampleRoute("Imported", 45.0)
	env.routes.On("ImportGPX", mock.Anything, mock.Anything, "Alps").Return(imported, nil).Once()
	env.routes.On("ImportGPX", mock.Anything, mock.Anything, "").Return(nil, errors.New("no points")).Once()

	w := env.do("POST", "/api/v1/routes/import?name=Alps", "<gpx/>")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Imported", decode(t, w)["name"])

	w = env.do("POST", "/api/v1/routes/import", "<gpx/>")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_gpx", decode(t, w)["code"])
}

func TestRESTHandler_Recording(t *testing.T) {
	env := newTestEnv(t)

	active := models.NewRoute("Morning", "", t0)
	env.recorder.On("StartRoute", mock.Anything, "Morning", "").Return(active, nil).Once()
	env.recorder.On("StartRoute", mock.Anything, "", "").Return(nil, fmt.Errorf("%w: %s", service.ErrRouteActive, active.ID)).Once()

	w := env.do("POST", "/api/v1/recording/start", `{"name":"Morning"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, active.ID.String(), decode(t, w)["id"])

	w = env.do("POST", "/api/v1/recording/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "route_active", decode(t, w)["code"])

	saved := sampleRoute("Morning", 45.0)
	env.recorder.On("EndRoute", mock.Anything).Return(saved, nil).Once()
	env.recorder.On("EndRoute", mock.Anything).Return(nil, service.ErrNoActiveRoute).Once()

	w = env.do("POST", "/api/v1/recording/end", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, saved.ID.String(), decode(t, w)["id"])

	w = env.do("POST", "/api/v1/recording/end", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_recording", decode(t, w)["code"])
}

func TestRESTHandler_EndRecording_Discarded(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.On("EndRoute", mock.Anything).Return(nil, service.ErrNoPointsToSave)

	w := env.do("POST", "/api/v1/recording/end", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["discarded"])
}

func TestRESTHandler_StatusAndOdometer(t *testing.T) {
	env := newTestEnv(t)

	env.recorder.On("Status", mock.Anything).Return(engine.Status{Recording: true, Regime: "walking", PowerMode: "normal"}, nil).Once()
	env.recorder.On("Status", mock.Anything).Return(engine.Status{}, engine.ErrStopped).Once()
	env.routes.On("Odometer").Return(12345.0)
	env.routes.On("LastFivePoints").Return([]models.RoutePoint{})

	w := env.do("GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, true, response["recording"])
	assert.Equal(t, "walking", response["regime"])

	w = env.do("GET", "/api/v1/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do("GET", "/api/v1/odometer", "")
	require.Equal(t, http.StatusOK, w.Code)
	response = decode(t, w)
	assert.Equal(t, 12345.0, response["meters"])
	assert.InDelta(t, 12.345, response["distance"], 1e-9)
	assert.Equal(t, "metric", response["units"])

	w = env.do("GET", "/api/v1/recording/last-points", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["count"])
}

func TestRESTHandler_Settings(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.On("RecomputeFilters", mock.Anything).Return(nil).Once()

	w := env.do("GET", "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, 100.0, response["battery_threshold"])
	assert.Equal(t, "metric", response["units"])

	w = env.do("PUT", "/api/v1/settings", `{"battery_threshold":40,"units":"imperial"}`)
	require.Equal(t, http.StatusOK, w.Code)
	response = decode(t, w)
	assert.Equal(t, 40.0, response["battery_threshold"])
	assert.Equal(t, "imperial", response["units"])

	reloaded := config.NewSettingsStore(env.settings.Path())
	settings, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 40, settings.BatteryThreshold)

	for _, body := range []string{`{}`, `{"battery_threshold":101}`, `{"units":"parsecs"}`} {
		w = env.do("PUT", "/api/v1/settings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

type stubPoints struct{}

func (stubPoints) Subscribe() (<-chan models.RoutePoint, func()) {
	ch := make(chan models.RoutePoint)
	close(ch)
	return ch, func() {}
}

func TestServer_Routes(t *testing.T) {
	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Address: "127.0.0.1", Port: "0"},
		Performance: config.PerformanceConfig{
			RateLimitRPS:          1,
			RateLimitBurst:        3,
			WebSocketPingInterval: time.Second,
			WebSocketPongTimeout:  2 * time.Second,
		},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true},
	}

	routes := &MockRouteService{}
	routes.On("Odometer").Return(0.0)
	settings := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"))

	server := NewServer(cfg, Dependencies{
		Routes:   routes,
		Recorder: &MockRecorder{},
		Settings: settings,
		Points:   stubPoints{},
	}, utils.NewNopLogger())

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		return w
	}

	w := serve("/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = serve("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recorder_http_requests_total")

	w = serve("/api/v1/odometer")
	assert.Equal(t, http.StatusOK, w.Code)

	// burst исчерпан
	w = serve("/api/v1/odometer")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
