package handler

import (
	"time"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/models"
)

// RouteListItem элемент списка маршрутов без точек
type RouteListItem struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Points       int        `json:"points"`
	Distance     float64    `json:"distance"` // км или мили
	ActivityType uint       `json:"activity_type"`
	Activity     string     `json:"activity"`
}

// RouteDetail маршрут с точками и сводкой
type RouteDetail struct {
	*models.Route
	Activity string          `json:"activity"`
	Summary  SummaryResponse `json:"summary"`
}

// SummaryResponse сводка маршрута в единицах пользователя
type SummaryResponse struct {
	Units          models.Units   `json:"units"`
	PointCount     int            `json:"point_count"`
	Distance       float64        `json:"distance"` // км или мили
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	AverageSpeed   float64        `json:"average_speed"` // км/ч или mph
	MaxSpeed       float64        `json:"max_speed"`
	StartCell      string         `json:"start_cell,omitempty"`
	EndCell        string         `json:"end_cell,omitempty"`
	Bounds         *models.Bounds `json:"bounds,omitempty"`
	StoredDistance float64        `json:"stored_distance"` // м, как записано в маршруте
	MeasuredMeters float64        `json:"measured_meters"` // м, по точкам
}

// OdometerResponse пробег
type OdometerResponse struct {
	Meters   float64      `json:"meters"`
	Distance float64      `json:"distance"` // км или мили
	Units    models.Units `json:"units"`
}

func convertRouteToListItem(route *models.Route, units models.Units) RouteListItem {
	return RouteListItem{
		ID:           route.ID.String(),
		Name:         route.Name,
		Description:  route.Description,
		StartDate:    route.StartDate,
		EndDate:      route.EndDate,
		Points:       len(route.Points),
		Distance:     units.LongDistance(route.Distance),
		ActivityType: uint(route.ActivityType),
		Activity:     route.ActivityType.String(),
	}
}

func convertRoutesToList(routes []*models.Route, units models.Units) []RouteListItem {
	result := make([]RouteListItem, 0, len(routes))
	for _, route := range routes {
		result = append(result, convertRouteToListItem(route, units))
	}
	return result
}

func convertSummary(route *models.Route, units models.Units) SummaryResponse {
	summary := route.Summary()
	return SummaryResponse{
		Units:          units,
		PointCount:     summary.PointCount,
		Distance:       units.LongDistance(route.Distance),
		ElapsedSeconds: summary.Elapsed.Seconds(),
		AverageSpeed:   speedIn(units, summary.AverageSpeedKmh),
		MaxSpeed:       speedIn(units, summary.MaxSpeedKmh),
		StartCell:      summary.StartCell,
		EndCell:        summary.EndCell,
		Bounds:         summary.Bounds,
		StoredDistance: route.Distance,
		MeasuredMeters: summary.TotalDistance,
	}
}

func convertRouteToDetail(route *models.Route, units models.Units) RouteDetail {
	return RouteDetail{
		Route:    route,
		Activity: route.ActivityType.String(),
		Summary:  convertSummary(route, units),
	}
}

func convertOdometer(meters float64, units models.Units) OdometerResponse {
	return OdometerResponse{
		Meters:   meters,
		Distance: units.LongDistance(meters),
		Units:    units,
	}
}

// speedIn переводит км/ч в единицы пользователя
func speedIn(units models.Units, kmh float64) float64 {
	return units.LongDistance(kmh * 1000)
}

func convertSettings(settings config.UserSettings) map[string]interface{} {
	return map[string]interface{}{
		"battery_threshold": settings.BatteryThreshold,
		"units":             settings.Units,
	}
}
