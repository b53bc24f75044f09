package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"github.com/flybeeper/track-recorder/internal/models"
)

// maxCellLength максимальная длина geohash ячейки в фильтре
const maxCellLength = 12

// UpdateRouteRequest тело PATCH /api/v1/routes/:id. Отсутствующие поля не меняются.
type UpdateRouteRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ActivityType *uint   `json:"activity_type"`
}

// StartRouteRequest тело POST /api/v1/recording/start
type StartRouteRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SettingsRequest тело PUT /api/v1/settings
type SettingsRequest struct {
	BatteryThreshold *int    `json:"battery_threshold"`
	Units            *string `json:"units"`
}

// parseRouteID разбирает :id, при ошибке отвечает 400
func parseRouteID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_route_id", "Route id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseCell проверяет geohash ячейку фильтра
func parseCell(raw string) (string, error) {
	cell := strings.ToLower(strings.TrimSpace(raw))
	if cell == "" {
		return "", nil
	}
	if len(cell) > maxCellLength {
		return "", fmt.Errorf("cell must be at most %d characters", maxCellLength)
	}
	if err := geohash.Validate(cell); err != nil {
		return "", fmt.Errorf("invalid geohash cell: %w", err)
	}
	return cell, nil
}

// validate проверяет запрос на редактирование маршрута
func (r UpdateRouteRequest) validate() error {
	if r.Name == nil && r.Description == nil && r.ActivityType == nil {
		return fmt.Errorf("nothing to update")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if r.ActivityType != nil && !models.ActivityType(*r.ActivityType).IsValid() {
		return fmt.Errorf("unknown activity type %d", *r.ActivityType)
	}
	return nil
}

// apply переносит поля запроса в копию маршрута
func (r UpdateRouteRequest) apply(route *models.Route) {
	if r.Name != nil {
		route.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		route.Description = *r.Description
	}
	if r.ActivityType != nil {
		route.ActivityType = models.ActivityType(*r.ActivityType)
	}
}

func (r SettingsRequest) validate() error {
	if r.BatteryThreshold == nil && r.Units == nil {
		return fmt.Errorf("nothing to update")
	}
	if r.BatteryThreshold != nil && (*r.BatteryThreshold < 0 || *r.BatteryThreshold > 100) {
		return fmt.Errorf("battery_threshold must be between 0 and 100")
	}
	if r.Units != nil {
		switch models.Units(*r.Units) {
		case models.UnitsMetric, models.UnitsImperial:
		default:
			return fmt.Errorf("units must be %q or %q", models.UnitsMetric, models.UnitsImperial)
		}
	}
	return nil
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
