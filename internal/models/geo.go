package models

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// DefaultGeohashPrecision точность geohash для ячеек маршрута (~150м)
const DefaultGeohashPrecision = 7

// GeoPoint представляет географическую точку
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return fmt.Errorf("coordinates contain NaN values")
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// orbPoint порядок в orb: [lon, lat]
func (p GeoPoint) orbPoint() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// DistanceTo вычисляет расстояние до другой точки в метрах.
// Единственная формула расстояния в проекте: haversine на сфере радиуса orb.EarthRadius.
func (p GeoPoint) DistanceTo(other GeoPoint) float64 {
	return geo.Distance(p.orbPoint(), other.orbPoint())
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// Bounds представляет географические границы
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(point GeoPoint) bool {
	return point.Latitude >= b.Southwest.Latitude && point.Latitude <= b.Northeast.Latitude &&
		point.Longitude >= b.Southwest.Longitude && point.Longitude <= b.Northeast.Longitude
}

// Center возвращает центральную точку границ
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Latitude:  (b.Southwest.Latitude + b.Northeast.Latitude) / 2,
		Longitude: (b.Southwest.Longitude + b.Northeast.Longitude) / 2,
	}
}

// Extend расширяет границы так, чтобы они включали точку
func (b Bounds) Extend(point GeoPoint) Bounds {
	b.Southwest.Latitude = math.Min(b.Southwest.Latitude, point.Latitude)
	b.Southwest.Longitude = math.Min(b.Southwest.Longitude, point.Longitude)
	b.Northeast.Latitude = math.Max(b.Northeast.Latitude, point.Latitude)
	b.Northeast.Longitude = math.Max(b.Northeast.Longitude, point.Longitude)
	return b
}

// DiagonalMeters возвращает диагональ границ в метрах
func (b Bounds) DiagonalMeters() float64 {
	return b.Southwest.DistanceTo(b.Northeast)
}
