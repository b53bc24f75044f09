package engine

import (
	"time"

	"github.com/flybeeper/track-recorder/internal/filter"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/motion"
)

// Fix один отсчет местоположения от провайдера
type Fix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	Speed              float64   `json:"speed"` // м/с, может быть отрицательной
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Course             float64   `json:"course"` // градусы, <0 если неизвестен
	Timestamp          time.Time `json:"timestamp"`
}

// SpeedKmh скорость в км/ч, отрицательная приводится к нулю
func (f Fix) SpeedKmh() float64 {
	if !(f.Speed > 0) {
		return 0
	}
	return f.Speed * 3.6
}

// Position координаты фикса
func (f Fix) Position() models.GeoPoint {
	return models.GeoPoint{Latitude: f.Latitude, Longitude: f.Longitude, Altitude: f.Altitude}
}

// BatteryState состояние батареи
type BatteryState struct {
	Level    float64 `json:"level"` // [0,1], <0 если неизвестен
	Charging bool    `json:"charging"`
}

// KeepAwake можно ли не давать устройству засыпать: на зарядке и уровень выше 15%
func (b BatteryState) KeepAwake() bool {
	return b.Charging && b.Level > 0.15
}

// AuthorizationStatus статус разрешения на геолокацию
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationAuthorized
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationAuthorized:
		return "authorized"
	default:
		return "not_determined"
	}
}

// ParseAuthorizationStatus разбирает статус; неизвестные значения дают NotDetermined
func ParseAuthorizationStatus(s string) AuthorizationStatus {
	switch s {
	case "restricted":
		return AuthorizationRestricted
	case "denied":
		return AuthorizationDenied
	case "authorized", "authorized_always", "authorized_when_in_use":
		return AuthorizationAuthorized
	default:
		return AuthorizationNotDetermined
	}
}

// Event событие от провайдеров сенсоров
type Event interface {
	kind() string
}

// FixEvent новый фикс
type FixEvent struct{ Fix Fix }

// HeadingEvent новый курс
type HeadingEvent struct {
	TrueHeading float64
	Timestamp   time.Time
}

// AccelerationEvent образец линейного ускорения
type AccelerationEvent struct{ Vector motion.Vector }

// BatteryEvent изменение состояния батареи
type BatteryEvent struct{ State BatteryState }

// AuthorizationEvent изменение разрешения на геолокацию
type AuthorizationEvent struct{ Status AuthorizationStatus }

// SensorErrorEvent временная ошибка сенсора
type SensorErrorEvent struct {
	Source string
	Err    error
}

func (FixEvent) kind() string           { return "fix" }
func (HeadingEvent) kind() string       { return "heading" }
func (AccelerationEvent) kind() string  { return "acceleration" }
func (BatteryEvent) kind() string       { return "battery" }
func (AuthorizationEvent) kind() string { return "authorization" }
func (SensorErrorEvent) kind() string   { return "sensor_error" }

// Sink принимает события от провайдеров
type Sink interface {
	Publish(ev Event)
}

// LocationProvider источник местоположения, настраиваемый движком
type LocationProvider interface {
	StartUpdates() error
	StopUpdates() error
	Configure(cfg filter.AcquisitionConfig) error
	// LastFix последний известный фикс, в том числе не доставленный из-за фильтра расстояния
	LastFix() (Fix, bool)
}

// MotionProvider источник линейного ускорения
type MotionProvider interface {
	StartAccelerometer(interval time.Duration) error
	StopAccelerometer() error
}

// BatteryProvider текущее состояние батареи
type BatteryProvider interface {
	Battery() BatteryState
}
