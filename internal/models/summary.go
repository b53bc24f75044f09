package models

import "time"

// Units предпочтение единиц измерения пользователя
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

const (
	feetPerMeter  = 3.2808
	metersPerMile = 1609.344
)

// ParseUnits разбирает строку единиц, по умолчанию metric
func ParseUnits(s string) Units {
	if Units(s) == UnitsImperial {
		return UnitsImperial
	}
	return UnitsMetric
}

// ShortDistance переводит метры в единицы пользователя (м или футы)
func (u Units) ShortDistance(meters float64) float64 {
	if u == UnitsImperial {
		return meters * feetPerMeter
	}
	return meters
}

// LongDistance переводит метры в км или мили
func (u Units) LongDistance(meters float64) float64 {
	if u == UnitsImperial {
		return meters / metersPerMile
	}
	return meters / 1000
}

// RouteSummary производные показатели маршрута, вычисляются по точкам и не хранятся
type RouteSummary struct {
	RouteID         string        `json:"route_id"`
	PointCount      int           `json:"point_count"`
	TotalDistance   float64       `json:"total_distance"` // м
	Elapsed         time.Duration `json:"elapsed"`
	AverageSpeedKmh float64       `json:"average_speed_kmh"`
	MaxSpeedKmh     float64       `json:"max_speed_kmh"`
	StartCell       string        `json:"start_cell,omitempty"`
	EndCell         string        `json:"end_cell,omitempty"`
	Bounds          *Bounds       `json:"bounds,omitempty"`
}

// Summary вычисляет сводку маршрута
func (r *Route) Summary() RouteSummary {
	summary := RouteSummary{
		RouteID:         r.ID.String(),
		PointCount:      len(r.Points),
		TotalDistance:   TotalDistance(r.Points),
		Elapsed:         r.Elapsed(),
		AverageSpeedKmh: r.AverageSpeed(),
		MaxSpeedKmh:     MaxSpeed(r.Points),
	}

	if len(r.Points) == 0 {
		return summary
	}

	first := r.Points[0].Position()
	last := r.Points[len(r.Points)-1].Position()
	summary.StartCell = first.Geohash(DefaultGeohashPrecision)
	summary.EndCell = last.Geohash(DefaultGeohashPrecision)

	bounds := Bounds{Southwest: first, Northeast: first}
	for _, p := range r.Points[1:] {
		bounds = bounds.Extend(p.Position())
	}
	summary.Bounds = &bounds

	return summary
}

// PassesThrough проходит ли маршрут через geohash ячейку (префикс любой длины)
func (r *Route) PassesThrough(cell string) bool {
	if cell == "" {
		return true
	}
	if len(cell) > 12 {
		return false
	}
	for _, p := range r.Points {
		hash := p.Position().Geohash(len(cell))
		if hash == cell {
			return true
		}
	}
	return false
}
