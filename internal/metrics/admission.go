package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsConsidered фиксы, дошедшие до гейта
	PointsConsidered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_points_considered_total",
		Help: "Fixes evaluated by the route point gate",
	})

	// PointsAdmitted точки, добавленные в маршрут, по классу точности
	PointsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_points_admitted_total",
		Help: "Route points admitted by accuracy bucket",
	}, []string{"bucket"})

	// PointsRejected отклоненные точки по причине
	PointsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_points_rejected_total",
		Help: "Fixes rejected by the route point gate by reason",
	}, []string{"reason"})

	// SessionDistance накопленное расстояние текущей сессии
	SessionDistance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_session_distance_meters",
		Help: "Distance accumulated by the active recording session",
	})
)
