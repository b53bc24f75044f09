package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultRouteName имя-маркер: при старте маршрута с этим именем генерируется "Route <дата>"
const DefaultRouteName = "Default Route"

// RoutePoint неизменяемая точка маршрута.
// Значения округляются при создании: скорость 0.1 км/ч, курс 0.01°, высота 0.1м, координаты 1e-5°.
type RoutePoint struct {
	ID        uuid.UUID `json:"id"`
	Speed     float64   `json:"speed"`     // км/ч
	Heading   float64   `json:"heading"`   // градусы
	Altitude  float64   `json:"altitude"`  // м
	Longitude float64   `json:"longitude"` // градусы
	Latitude  float64   `json:"latitude"`  // градусы
	Timestamp time.Time `json:"timestamp"` // UTC
}

// NewRoutePoint создает точку маршрута с округлением значений
func NewRoutePoint(speed, heading, altitude, longitude, latitude float64, timestamp time.Time) RoutePoint {
	return RoutePoint{
		ID:        uuid.New(),
		Speed:     RoundTo(speed, 10),
		Heading:   RoundTo(heading, 100),
		Altitude:  RoundTo(altitude, 10),
		Longitude: RoundTo(longitude, 100000),
		Latitude:  RoundTo(latitude, 100000),
		Timestamp: timestamp.UTC(),
	}
}

// RoundTo округляет значение до 1/scale
func RoundTo(value, scale float64) float64 {
	return math.Round(value*scale) / scale
}

// Position возвращает координаты точки
func (p RoutePoint) Position() GeoPoint {
	return GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
}

// Distance расстояние между двумя точками маршрута в метрах
func Distance(from, to RoutePoint) float64 {
	return from.Position().DistanceTo(to.Position())
}

// Route записанный маршрут
type Route struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	StartDate    time.Time    `json:"startDate"`
	EndDate      *time.Time   `json:"endDate,omitempty"`
	Points       []RoutePoint `json:"points"`
	Distance     float64      `json:"distance"`           // м
	Calories     *float64     `json:"calories,omitempty"` // ккал
	ActivityType ActivityType `json:"activityType"`
}

// NewRoute создает пустой активный маршрут
func NewRoute(name, description string, startDate time.Time) *Route {
	return &Route{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		StartDate:    startDate.UTC(),
		Points:       []RoutePoint{},
		ActivityType: ActivityOther,
	}
}

// IsSealed завершен ли маршрут
func (r *Route) IsSealed() bool {
	return r.EndDate != nil
}

// LastPoint возвращает последнюю точку маршрута
func (r *Route) LastPoint() (RoutePoint, bool) {
	if len(r.Points) == 0 {
		return RoutePoint{}, false
	}
	return r.Points[len(r.Points)-1], true
}

// Clone глубокая копия маршрута
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Points = make([]RoutePoint, len(r.Points))
	copy(clone.Points, r.Points)
	if r.EndDate != nil {
		end := *r.EndDate
		clone.EndDate = &end
	}
	if r.Calories != nil {
		calories := *r.Calories
		clone.Calories = &calories
	}
	return &clone
}

// TotalDistance сумма расстояний между последовательными точками (м)
func TotalDistance(points []RoutePoint) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// MaxSpeed максимальная скорость среди точек (км/ч)
func MaxSpeed(points []RoutePoint) float64 {
	maxSpeed := 0.0
	for _, p := range points {
		if p.Speed > maxSpeed {
			maxSpeed = p.Speed
		}
	}
	return maxSpeed
}

// Elapsed время от начала до конца маршрута; 0 для активного маршрута
func (r *Route) Elapsed() time.Duration {
	if r.EndDate == nil {
		return 0
	}
	return r.EndDate.Sub(r.StartDate)
}

// AverageSpeed средняя скорость в км/ч: расстояние / время
func (r *Route) AverageSpeed() float64 {
	elapsed := r.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return TotalDistance(r.Points) / elapsed * 3.6
}
