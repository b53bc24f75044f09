package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/motion"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// Виды сообщений сенсоров, последний сегмент топика <prefix>/<kind>
const (
	KindLocation      = "location"
	KindHeading       = "heading"
	KindMotion        = "motion"
	KindBattery       = "battery"
	KindAuthorization = "authorization"
	KindError         = "error"
)

// Исходящие топики
const (
	TopicConfig  = "config"
	TopicCommand = "command"
)

// ErrUnknownTopic топик не относится к мосту сенсоров
var ErrUnknownTopic = errors.New("unknown sensor topic")

// LocationPayload сообщение о местоположении
type LocationPayload struct {
	Latitude  *float64   `json:"lat"`
	Longitude *float64   `json:"lon"`
	Altitude  float64    `json:"alt"`
	Speed     float64    `json:"speed"` // м/с, <0 если неизвестна
	Accuracy  *float64   `json:"accuracy"`
	Course    *float64   `json:"course"`
	Timestamp *time.Time `json:"timestamp"`
}

// HeadingPayload сообщение о курсе
type HeadingPayload struct {
	TrueHeading *float64   `json:"true_heading"`
	Timestamp   *time.Time `json:"timestamp"`
}

// MotionPayload линейное ускорение без гравитации, g
type MotionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BatteryPayload состояние батареи
type BatteryPayload struct {
	Level    *float64 `json:"level"` // [0,1]
	Charging bool     `json:"charging"`
}

// AuthorizationPayload статус разрешения на геолокацию
type AuthorizationPayload struct {
	Status string `json:"status"`
}

// ErrorPayload ошибка сенсора на устройстве
type ErrorPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Parser преобразует MQTT сообщения в события движка
type Parser struct {
	prefix string
	logger *utils.Logger
	now    func() time.Time
}

// NewParser создает парсер для топиков с префиксом prefix
func NewParser(prefix string, logger *utils.Logger) *Parser {
	return &Parser{
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

// Kind извлекает вид сообщения из топика
func (p *Parser) Kind(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, p.prefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	switch rest {
	case KindLocation, KindHeading, KindMotion, KindBattery, KindAuthorization, KindError:
		return rest, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

// Parse разбирает сообщение
func (p *Parser) Parse(topic string, payload []byte) (engine.Event, error) {
	kind, err := p.Kind(topic)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty %s payload", kind)
	}

	switch kind {
	case KindLocation:
		return p.parseLocation(payload)
	case KindHeading:
		return p.parseHeading(payload)
	case KindMotion:
		var m MotionPayload
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("invalid motion payload: %w", err)
		}
		return engine.AccelerationEvent{Vector: motion.Vector{X: m.X, Y: m.Y, Z: m.Z}}, nil
	case KindBattery:
		return p.parseBattery(payload)
	case KindAuthorization:
		var a AuthorizationPayload
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("invalid authorization payload: %w", err)
		}
		return engine.AuthorizationEvent{Status: engine.ParseAuthorizationStatus(a.Status)}, nil
	default:
		var e ErrorPayload
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("invalid error payload: %w", err)
		}
		if e.Source == "" {
			e.Source = "device"
		}
		return engine.SensorErrorEvent{Source: e.Source, Err: errors.New(e.Message)}, nil
	}
}

func (p *Parser) parseLocation(payload []byte) (engine.Event, error) {
	var l LocationPayload
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, fmt.Errorf("invalid location payload: %w", err)
	}
	if l.Latitude == nil || l.Longitude == nil {
		return nil, fmt.Errorf("location payload requires lat and lon")
	}
	if math.Abs(*l.Latitude) > 90 || math.Abs(*l.Longitude) > 180 {
		return nil, fmt.Errorf("coordinates out of range: %f, %f", *l.Latitude, *l.Longitude)
	}

	fix := engine.Fix{
		Latitude:           *l.Latitude,
		Longitude:          *l.Longitude,
		Altitude:           l.Altitude,
		Speed:              l.Speed,
		HorizontalAccuracy: -1,
		Course:             -1,
		Timestamp:          p.now().UTC(),
	}
	// Отсутствующая точность считается недостоверной
	if l.Accuracy != nil {
		fix.HorizontalAccuracy = *l.Accuracy
	}
	if l.Course != nil {
		fix.Course = *l.Course
	}
	if l.Timestamp != nil {
		fix.Timestamp = l.Timestamp.UTC()
	}

	return engine.FixEvent{Fix: fix}, nil
}

func (p *Parser) parseHeading(payload []byte) (engine.Event, error) {
	var h HeadingPayload
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, fmt.Errorf("invalid heading payload: %w", err)
	}
	if h.TrueHeading == nil || *h.TrueHeading < 0 {
		return nil, fmt.Errorf("heading payload requires a non-negative true_heading")
	}

	ev := engine.HeadingEvent{TrueHeading: *h.TrueHeading, Timestamp: p.now().UTC()}
	if h.Timestamp != nil {
		ev.Timestamp = h.Timestamp.UTC()
	}
	return ev, nil
}

func (p *Parser) parseBattery(payload []byte) (engine.Event, error) {
	var b BatteryPayload
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("invalid battery payload: %w", err)
	}

	state := engine.BatteryState{Level: -1, Charging: b.Charging}
	if b.Level != nil && *b.Level >= 0 {
		if *b.Level > 1 {
			return nil, fmt.Errorf("battery level out of range: %f", *b.Level)
		}
		state.Level = *b.Level
	}
	return engine.BatteryEvent{State: state}, nil
}

// ConfigMessage конфигурация получения координат для устройства
type ConfigMessage struct {
	DistanceFilter      float64 `json:"distance_filter"`
	HeadingFilter       float64 `json:"heading_filter"`
	DesiredAccuracy     string  `json:"desired_accuracy"`
	PausesAutomatically bool    `json:"pauses_automatically"`
}

// CommandMessage команда устройству
type CommandMessage struct {
	Command    string `json:"command"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
}

// Команды устройству
const (
	CommandStartLocation      = "start_location"
	CommandStopLocation       = "stop_location"
	CommandStartAccelerometer = "start_accelerometer"
	CommandStopAccelerometer  = "stop_accelerometer"
)
