package filter

import (
	"fmt"

	"github.com/flybeeper/track-recorder/internal/motion"
)

// PowerMode уровень энергосбережения, определяемый состоянием батареи
type PowerMode int

const (
	PowerModeOff PowerMode = iota
	PowerModeNormal
	PowerModeMax
)

func (m PowerMode) String() string {
	switch m {
	case PowerModeOff:
		return "off"
	case PowerModeNormal:
		return "normal"
	case PowerModeMax:
		return "max"
	default:
		return "unknown"
	}
}

// DesiredAccuracy класс точности, запрашиваемый у провайдера местоположения.
// Чем больше значение, тем грубее точность.
type DesiredAccuracy int

const (
	AccuracyBestForNavigation DesiredAccuracy = iota
	AccuracyBest
	AccuracyNearestTenMeters
	AccuracyHundredMeters
)

// AccuracyCoarsest самый грубый класс
const AccuracyCoarsest = AccuracyHundredMeters

func (a DesiredAccuracy) String() string {
	switch a {
	case AccuracyBestForNavigation:
		return "best_for_navigation"
	case AccuracyBest:
		return "best"
	case AccuracyNearestTenMeters:
		return "nearest_ten_meters"
	case AccuracyHundredMeters:
		return "hundred_meters"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

// Coarser возвращает класс на tiers ступеней грубее, не дальше AccuracyCoarsest
func (a DesiredAccuracy) Coarser(tiers int) DesiredAccuracy {
	next := a + DesiredAccuracy(tiers)
	if next > AccuracyCoarsest {
		return AccuracyCoarsest
	}
	return next
}

// AcquisitionConfig параметры получения координат, передаваемые провайдеру
type AcquisitionConfig struct {
	DistanceFilter      float64         `json:"distance_filter"` // м
	HeadingFilter       float64         `json:"heading_filter"`  // градусы
	DesiredAccuracy     DesiredAccuracy `json:"desired_accuracy"`
	PausesAutomatically bool            `json:"pauses_automatically"`
}

// RegimeFilter базовые фильтры для режима движения
type RegimeFilter struct {
	DistanceFilter float64 `json:"distance_filter"` // м
	HeadingFilter  float64 `json:"heading_filter"`  // градусы
}

// FilterConfig конфигурация адаптивного контроллера
type FilterConfig struct {
	// Фильтры по режимам движения для режима энергосбережения normal
	Regimes map[motion.Regime]RegimeFilter `json:"regimes"`

	// Фильтры при выключенном энергосбережении
	Precise RegimeFilter `json:"precise"`

	// Множитель фильтров в режиме max
	MaxModeFactor float64 `json:"max_mode_factor"`

	// Уровень батареи, ниже которого включается режим max (независимо от порога пользователя)
	CriticalBatteryLevel float64 `json:"critical_battery_level"`

	// Скорость (км/ч), ниже которой в режиме max разрешается автопауза
	AutoPauseSpeedKmh float64 `json:"auto_pause_speed_kmh"`
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		Regimes: map[motion.Regime]RegimeFilter{
			motion.Stationary: {DistanceFilter: 10, HeadingFilter: 5},
			motion.Walking:    {DistanceFilter: 17, HeadingFilter: 25},
			motion.Running:    {DistanceFilter: 28, HeadingFilter: 15},
			motion.Cycling:    {DistanceFilter: 42, HeadingFilter: 10},
			motion.Riding:     {DistanceFilter: 250, HeadingFilter: 5},
			motion.Flying:     {DistanceFilter: 2500, HeadingFilter: 2},
		},
		Precise:              RegimeFilter{DistanceFilter: 0, HeadingFilter: 3},
		MaxModeFactor:        1.5,
		CriticalBatteryLevel: 0.25,
		AutoPauseSpeedKmh:    6,
	}
}

// GetRegimeFilter возвращает базовые фильтры режима
func (c *FilterConfig) GetRegimeFilter(regime motion.Regime) RegimeFilter {
	if f, ok := c.Regimes[regime]; ok {
		return f
	}
	// Fallback для неизвестных режимов
	return c.Regimes[motion.Stationary]
}

// Validate проверяет конфигурацию
func (c *FilterConfig) Validate() error {
	for _, regime := range motion.Regimes {
		f, ok := c.Regimes[regime]
		if !ok {
			return fmt.Errorf("no filter for regime %s", regime)
		}
		if f.DistanceFilter < 0 || f.HeadingFilter < 0 {
			return fmt.Errorf("negative filter for regime %s", regime)
		}
	}
	if c.MaxModeFactor < 1 {
		return fmt.Errorf("max mode factor must be >= 1, got %f", c.MaxModeFactor)
	}
	if c.CriticalBatteryLevel < 0 || c.CriticalBatteryLevel > 1 {
		return fmt.Errorf("critical battery level must be within [0,1], got %f", c.CriticalBatteryLevel)
	}
	return nil
}
