package filter

import (
	"math"

	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// MinRecordingSpeedKmh скорость, при которой фиксы вообще рассматриваются для записи
const MinRecordingSpeedKmh = 0.1

// AccuracyBucket класс горизонтальной точности фикса
type AccuracyBucket int

const (
	BucketInvalid AccuracyBucket = iota
	BucketVeryHigh
	BucketHigh
	BucketMedium
	BucketLow
	BucketVeryLow
)

// BucketFor определяет класс по горизонтальной точности (м)
func BucketFor(accuracy float64) AccuracyBucket {
	switch {
	case accuracy < 0 || math.IsNaN(accuracy):
		return BucketInvalid
	case accuracy < 5:
		return BucketVeryHigh
	case accuracy < 10:
		return BucketHigh
	case accuracy < 20:
		return BucketMedium
	case accuracy < 100:
		return BucketLow
	default:
		return BucketVeryLow
	}
}

// Radius радиус допуска в метрах
func (b AccuracyBucket) Radius() float64 {
	switch b {
	case BucketVeryHigh:
		return 3.0
	case BucketHigh:
		return 7.5
	case BucketMedium:
		return 15.0
	case BucketLow:
		return 70.0
	case BucketVeryLow:
		return 100.0
	default:
		return math.Inf(1)
	}
}

func (b AccuracyBucket) String() string {
	switch b {
	case BucketVeryHigh:
		return "very_high"
	case BucketHigh:
		return "high"
	case BucketMedium:
		return "medium"
	case BucketLow:
		return "low"
	case BucketVeryLow:
		return "very_low"
	default:
		return "invalid"
	}
}

// Причины решений гейта
const (
	ReasonFirstPoint      = "first_point"
	ReasonMoved           = "moved"
	ReasonInvalidAccuracy = "invalid_accuracy"
	ReasonTooClose        = "too_close"
)

// GateDecision решение о допуске точки
type GateDecision struct {
	Admitted bool           `json:"admitted"`
	Reason   string         `json:"reason"`
	Bucket   AccuracyBucket `json:"bucket"`
	Distance float64        `json:"distance"` // м от последней допущенной точки
	Radius   float64        `json:"radius"`
}

// RoutePointGate решает, достаточно ли далеко новая точка от последней сохраненной
type RoutePointGate struct {
	logger *utils.Logger
}

// NewRoutePointGate создает гейт
func NewRoutePointGate(logger *utils.Logger) *RoutePointGate {
	return &RoutePointGate{logger: logger}
}

// Admit проверяет кандидата относительно последней допущенной точки (hasLast=false, если точек нет).
// Недостоверная точность отклоняется всегда, даже для первой точки.
func (g *RoutePointGate) Admit(last models.RoutePoint, hasLast bool, candidate models.RoutePoint, accuracy float64) GateDecision {
	bucket := BucketFor(accuracy)
	decision := GateDecision{Bucket: bucket, Radius: bucket.Radius()}

	if bucket == BucketInvalid {
		decision.Reason = ReasonInvalidAccuracy
		g.logger.WithField("accuracy", accuracy).Debug("Fix rejected: invalid accuracy")
		return decision
	}

	if !hasLast {
		decision.Admitted = true
		decision.Reason = ReasonFirstPoint
		return decision
	}

	decision.Distance = models.Distance(last, candidate)
	if decision.Distance > decision.Radius {
		decision.Admitted = true
		decision.Reason = ReasonMoved
		return decision
	}

	decision.Reason = ReasonTooClose
	return decision
}
