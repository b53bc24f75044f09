package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/filter"
)

// Status снимок состояния конвейера
type Status struct {
	Recording       bool       `json:"recording"`
	ActiveRouteID   *uuid.UUID `json:"active_route_id,omitempty"`
	ActiveRouteName string     `json:"active_route_name,omitempty"`
	ActivePoints    int        `json:"active_points"`
	SessionDistance float64    `json:"session_distance"` // м
	Odometer        float64    `json:"odometer"`         // м

	SpeedKmh  float64  `json:"speed_kmh"`
	Regime    string   `json:"regime"`
	Heading   *float64 `json:"heading,omitempty"`
	PowerMode string   `json:"power_mode"`

	Acquisition struct {
		DistanceFilter      float64 `json:"distance_filter"`
		HeadingFilter       float64 `json:"heading_filter"`
		DesiredAccuracy     string  `json:"desired_accuracy"`
		PausesAutomatically bool    `json:"pauses_automatically"`
	} `json:"acquisition"`

	SmootherEnabled     bool    `json:"smoother_enabled"`
	AccelerationAverage float64 `json:"acceleration_average"`
	RefreshInterval     string  `json:"refresh_interval"`

	Battery       BatteryState `json:"battery"`
	KeepAwake     bool         `json:"keep_awake"`
	Authorization string       `json:"authorization"`

	LastAccuracy *float64   `json:"last_accuracy,omitempty"`
	LastBucket   string     `json:"last_bucket,omitempty"`
	LastGate     string     `json:"last_gate,omitempty"`
	LastFixAt    *time.Time `json:"last_fix_at,omitempty"`
	Subscribers  int        `json:"subscribers"`
}

// Status возвращает снимок, собранный в горутине движка
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.do(ctx, func() {
		st = e.snapshot()
	})
	return st, err
}

func (e *Engine) snapshot() Status {
	var st Status

	st.Recording = e.recorder.IsRecording()
	if route := e.recorder.ActiveRoute(); route != nil {
		id := route.ID
		st.ActiveRouteID = &id
		st.ActiveRouteName = route.Name
		st.ActivePoints = len(route.Points)
	}
	st.SessionDistance = e.recorder.SessionDistance()
	st.Odometer = e.recorder.Odometer()

	st.SpeedKmh = e.state.speedKmh
	st.Regime = e.classifier.Current().String()
	if e.state.hasHeading {
		h := e.state.heading
		st.Heading = &h
	}

	decision := e.controller.Current()
	st.PowerMode = decision.Mode.String()
	st.Acquisition.DistanceFilter = decision.Config.DistanceFilter
	st.Acquisition.HeadingFilter = decision.Config.HeadingFilter
	st.Acquisition.DesiredAccuracy = decision.Config.DesiredAccuracy.String()
	st.Acquisition.PausesAutomatically = decision.Config.PausesAutomatically

	st.SmootherEnabled = e.smoother.Enabled()
	st.AccelerationAverage = e.smoother.Average()
	st.RefreshInterval = e.refreshInterval().String()

	st.Battery = e.state.battery
	st.KeepAwake = e.state.battery.KeepAwake()
	st.Authorization = e.state.authorization.String()

	if e.state.hasFix {
		acc := e.state.lastAccuracy
		st.LastAccuracy = &acc
		st.LastBucket = filter.BucketFor(acc).String()
		ts := e.state.lastFix.Timestamp
		st.LastFixAt = &ts
	}
	st.LastGate = e.state.lastGate.Reason
	st.Subscribers = e.subscribers.count()

	return st
}
