package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/repository"
	"github.com/flybeeper/track-recorder/internal/service"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// maxGPXUpload ограничение размера загружаемого GPX
const maxGPXUpload = 32 << 20

// RouteService операции над сохраненными маршрутами
type RouteService interface {
	Routes() []*models.Route
	Route(id uuid.UUID) (*models.Route, error)
	DeleteRoute(ctx context.Context, id uuid.UUID) error
	UpdateRoute(ctx context.Context, edited *models.Route) (*models.Route, error)
	ImportGPX(ctx context.Context, r io.Reader, name string) (*models.Route, error)
	LastFivePoints() []models.RoutePoint
	Odometer() float64
}

// Recorder управление записью через движок
type Recorder interface {
	StartRoute(ctx context.Context, name, description string) (*models.Route, error)
	EndRoute(ctx context.Context) (*models.Route, error)
	Status(ctx context.Context) (engine.Status, error)
	RecomputeFilters(ctx context.Context) error
}

// SettingsService хранилище пользовательских настроек
type SettingsService interface {
	Current() config.UserSettings
	Save(settings config.UserSettings) error
}

var (
	_ RouteService    = (*service.RouteManager)(nil)
	_ Recorder        = (*engine.Engine)(nil)
	_ SettingsService = (*config.SettingsStore)(nil)
)

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	routes   RouteService
	recorder Recorder
	settings SettingsService
	logger   *utils.Logger
	timeout  time.Duration
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(routes RouteService, recorder Recorder, settings SettingsService, logger *utils.Logger) *RESTHandler {
	return &RESTHandler{
		routes:   routes,
		recorder: recorder,
		settings: settings,
		logger:   logger,
		timeout:  30 * time.Second,
	}
}

// units единицы из ?units= или из настроек пользователя
func (h *RESTHandler) units(c *gin.Context) models.Units {
	if raw := c.Query("units"); raw != "" {
		return models.ParseUnits(raw)
	}
	return h.settings.Current().Units
}

// ListRoutes список маршрутов, новые первыми
// GET /api/v1/routes?cell=u0nd&units=imperial
func (h *RESTHandler) ListRoutes(c *gin.Context) {
	cell, err := parseCell(c.Query("cell"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_cell", err.Error())
		return
	}

	routes := h.routes.Routes()
	if cell != "" {
		filtered := routes[:0]
		for _, route := range routes {
			if route.PassesThrough(cell) {
				filtered = append(filtered, route)
			}
		}
		routes = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"routes": convertRoutesToList(routes, h.units(c)),
		"count":  len(routes),
	})
}

// GetRoute маршрут с точками и сводкой
// GET /api/v1/routes/:id
func (h *RESTHandler) GetRoute(c *gin.Context) {
	id, ok := parseRouteID(c)
	if !ok {
		return
	}

	route, err := h.routes.Route(id)
	if err != nil {
		h.respondRouteError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, convertRouteToDetail(route, h.units(c)))
}

// UpdateRoute редактирование имени, описания и типа активности
// PATCH /api/v1/routes/:id
func (h *RESTHandler) UpdateRoute(c *gin.Context) {
	id, ok := parseRouteID(c)
	if !ok {
		return
	}

	var req UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_update", err.Error())
		return
	}

	route, err := h.routes.Route(id)
	if err != nil {
		h.respondRouteError(c, id, err)
		return
	}
	req.apply(route)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	updated, err := h.routes.UpdateRoute(ctx, route)
	if err != nil {
		h.respondRouteError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, convertRouteToListItem(updated, h.units(c)))
}

// DeleteRoute удаление маршрута
// DELETE /api/v1/routes/:id
func (h *RESTHandler) DeleteRoute(c *gin.Context) {
	id, ok := parseRouteID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.routes.DeleteRoute(ctx, id); err != nil {
		h.respondRouteError(c, id, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ExportGPX выгрузка маршрута в GPX
// GET /api/v1/routes/:id/gpx
func (h *RESTHandler) ExportGPX(c *gin.Context) {
	id, ok := parseRouteID(c)
	if !ok {
		return
	}

	route, err := h.routes.Route(id)
	if err != nil {
		h.respondRouteError(c, id, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.gpx"`, route.ID))
	c.Status(http.StatusOK)
	c.Writer.Header().Set("Content-Type", "application/gpx+xml")
	if err := repository.ExportGPX(c.Writer, route); err != nil {
		h.logger.WithError(err).WithField("route_id", id.String()).Error("Failed to export GPX")
	}
}

// ImportGPX загрузка GPX как нового маршрута
// POST /api/v1/routes/import?name=...
func (h *RESTHandler) ImportGPX(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxGPXUpload)
	route, err := h.routes.ImportGPX(ctx, body, c.Query("name"))
	if err != nil {
		h.logger.WithError(err).Warn("GPX import failed")
		respondError(c, http.StatusBadRequest, "invalid_gpx", err.Error())
		return
	}

	c.JSON(http.StatusCreated, convertRouteToListItem(route, h.units(c)))
}

// StartRecording начинает запись маршрута
// POST /api/v1/recording/start
func (h *RESTHandler) StartRecording(c *gin.Context) {
	var req StartRouteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	route, err := h.recorder.StartRoute(ctx, req.Name, req.Description)
	switch {
	case errors.Is(err, service.ErrRouteActive):
		respondError(c, http.StatusConflict, "route_active", "A route is already being recorded")
		return
	case err != nil:
		h.respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, convertRouteToListItem(route, h.units(c)))
}

// EndRecording завершает и сохраняет маршрут
// POST /api/v1/recording/end
func (h *RESTHandler) EndRecording(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	route, err := h.recorder.EndRoute(ctx)
	switch {
	case errors.Is(err, service.ErrNoActiveRoute):
		respondError(c, http.StatusConflict, "not_recording", "No route is being recorded")
		return
	case errors.Is(err, service.ErrNoPointsToSave):
		c.JSON(http.StatusOK, gin.H{
			"discarded": true,
			"message":   "Route had no points and was discarded",
		})
		return
	case err != nil:
		h.respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertRouteToDetail(route, h.units(c)))
}

// LastPoints последние точки завершенного маршрута
// GET /api/v1/recording/last-points
func (h *RESTHandler) LastPoints(c *gin.Context) {
	points := h.routes.LastFivePoints()
	c.JSON(http.StatusOK, gin.H{
		"points": points,
		"count":  len(points),
	})
}

// GetStatus состояние движка записи
// GET /api/v1/status
func (h *RESTHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status, err := h.recorder.Status(ctx)
	if err != nil {
		h.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetOdometer суммарный пробег
// GET /api/v1/odometer
func (h *RESTHandler) GetOdometer(c *gin.Context) {
	c.JSON(http.StatusOK, convertOdometer(h.routes.Odometer(), h.units(c)))
}

// GetSettings пользовательские настройки
// GET /api/v1/settings
func (h *RESTHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, convertSettings(h.settings.Current()))
}

// UpdateSettings изменение настроек; фильтры пересчитываются сразу
// PUT /api/v1/settings
func (h *RESTHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}

	settings := h.settings.Current()
	if req.BatteryThreshold != nil {
		settings.BatteryThreshold = *req.BatteryThreshold
	}
	if req.Units != nil {
		settings.Units = models.Units(*req.Units)
	}

	if err := h.settings.Save(settings); err != nil {
		h.logger.WithError(err).Error("Failed to save settings")
		respondError(c, http.StatusInternalServerError, "internal_error", "Failed to save settings")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.recorder.RecomputeFilters(ctx); err != nil {
		h.logger.WithError(err).Warn("Failed to recompute filters after settings change")
	}

	c.JSON(http.StatusOK, convertSettings(h.settings.Current()))
}

func (h *RESTHandler) respondRouteError(c *gin.Context, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, service.ErrRouteNotFound), errors.Is(err, repository.ErrRouteNotFound):
		respondError(c, http.StatusNotFound, "route_not_found", fmt.Sprintf("Route %s not found", id))
	default:
		h.logger.WithError(err).WithField("route_id", id.String()).Error("Route operation failed")
		respondError(c, http.StatusInternalServerError, "internal_error", "Route operation failed")
	}
}

func (h *RESTHandler) respondEngineError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrStopped) {
		respondError(c, http.StatusServiceUnavailable, "engine_stopped", "Recording engine is not running")
		return
	}
	h.logger.WithError(err).Error("Recording operation failed")
	respondError(c, http.StatusInternalServerError, "internal_error", "Recording operation failed")
}
