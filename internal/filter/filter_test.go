package filter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/motion"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

func TestDefaultFilterConfig_Valid(t *testing.T) {
	config := DefaultFilterConfig()
	require.NoError(t, config.Validate())

	// Более быстрые режимы получают больший фильтр расстояния
	prev := -1.0
	for _, regime := range motion.Regimes {
		f := config.GetRegimeFilter(regime)
		assert.Greater(t, f.DistanceFilter, prev, "regime %s", regime)
		prev = f.DistanceFilter
	}

	flying := config.GetRegimeFilter(motion.Flying)
	for _, regime := range motion.Regimes {
		assert.LessOrEqual(t, flying.HeadingFilter, config.GetRegimeFilter(regime).HeadingFilter)
	}
}

func TestFilterConfig_ValidateErrors(t *testing.T) {
	config := DefaultFilterConfig()
	delete(config.Regimes, motion.Running)
	assert.ErrorContains(t, config.Validate(), "running")

	config = DefaultFilterConfig()
	config.MaxModeFactor = 0.5
	assert.Error(t, config.Validate())
}

func TestCompute_DecisionOrder(t *testing.T) {
	config := DefaultFilterConfig()

	tests := []struct {
		name     string
		state    PowerState
		mode     PowerMode
		accuracy DesiredAccuracy
		smoother bool
	}{
		{
			name:     "Charging overrides low battery",
			state:    PowerState{Regime: motion.Cycling, BatteryLevel: 0.1, Charging: true, Threshold: 1},
			mode:     PowerModeOff,
			accuracy: AccuracyBestForNavigation,
			smoother: true,
		},
		{
			name:     "Above user threshold",
			state:    PowerState{Regime: motion.Walking, BatteryLevel: 0.8, Threshold: 0.5},
			mode:     PowerModeOff,
			accuracy: AccuracyBestForNavigation,
			smoother: true,
		},
		{
			name:     "Default threshold keeps power saving on",
			state:    PowerState{Regime: motion.Walking, BatteryLevel: 1.0, Threshold: 1.0},
			mode:     PowerModeNormal,
			accuracy: AccuracyBest,
		},
		{
			name:     "Critical battery",
			state:    PowerState{Regime: motion.Cycling, BatteryLevel: 0.2, Threshold: 1.0},
			mode:     PowerModeMax,
			accuracy: AccuracyCoarsest,
		},
		{
			name:     "Unknown battery level",
			state:    PowerState{Regime: motion.Cycling, BatteryLevel: -1, Threshold: 1.0},
			mode:     PowerModeNormal,
			accuracy: AccuracyBest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := config.Compute(tt.state)
			assert.Equal(t, tt.mode, decision.Mode)
			assert.Equal(t, tt.accuracy, decision.Config.DesiredAccuracy)
			assert.Equal(t, tt.smoother, decision.SmootherEnabled)
		})
	}
}

func TestCompute_PrecisePowerModeOff(t *testing.T) {
	decision := DefaultFilterConfig().Compute(PowerState{Regime: motion.Flying, Charging: true})
	assert.Equal(t, 0.0, decision.Config.DistanceFilter)
	assert.Equal(t, 3.0, decision.Config.HeadingFilter)
	assert.False(t, decision.Config.PausesAutomatically)
}

func TestCompute_CyclingAtTwentyPercent(t *testing.T) {
	decision := DefaultFilterConfig().Compute(PowerState{
		Regime:       motion.Cycling,
		BatteryLevel: 0.2,
		Threshold:    1.0,
		SpeedKmh:     20,
	})

	assert.Equal(t, PowerModeMax, decision.Mode)
	assert.InDelta(t, 63.0, decision.Config.DistanceFilter, 1e-9)
	assert.InDelta(t, 15.0, decision.Config.HeadingFilter, 1e-9)
	assert.Equal(t, AccuracyHundredMeters, decision.Config.DesiredAccuracy)
	assert.False(t, decision.Config.PausesAutomatically)
}

func TestCompute_AutoPauseBelowCeiling(t *testing.T) {
	config := DefaultFilterConfig()
	state := PowerState{Regime: motion.Walking, BatteryLevel: 0.1, Threshold: 1.0, SpeedKmh: 3}

	assert.True(t, config.Compute(state).Config.PausesAutomatically)

	state.SpeedKmh = 6
	assert.False(t, config.Compute(state).Config.PausesAutomatically)
}

func TestCompute_DeterministicAndMonotonic(t *testing.T) {
	config := DefaultFilterConfig()

	for _, regime := range motion.Regimes {
		for _, level := range []float64{0, 0.1, 0.24, 0.25, 0.5, 0.99, 1} {
			for _, threshold := range []float64{0, 0.3, 1} {
				for _, charging := range []bool{false, true} {
					state := PowerState{Regime: regime, BatteryLevel: level, Charging: charging, Threshold: threshold}
					first := config.Compute(state)
					assert.Equal(t, first, config.Compute(state))

					if first.Mode == PowerModeMax {
						normal := config.GetRegimeFilter(regime)
						assert.GreaterOrEqual(t, first.Config.DistanceFilter, normal.DistanceFilter)
						assert.GreaterOrEqual(t, first.Config.HeadingFilter, normal.HeadingFilter)
					}
				}
			}
		}
	}
}

func TestDesiredAccuracy_Coarser(t *testing.T) {
	assert.Equal(t, AccuracyBest, AccuracyBestForNavigation.Coarser(1))
	assert.Equal(t, AccuracyCoarsest, AccuracyNearestTenMeters.Coarser(5))
}

func TestAdaptiveFilterController_ReportsChanges(t *testing.T) {
	controller := NewAdaptiveFilterController(nil, utils.NewNopLogger())
	state := PowerState{Regime: motion.Walking, BatteryLevel: 0.5, Threshold: 1}

	first, changed := controller.Update(state)
	assert.True(t, changed)
	assert.Equal(t, PowerModeNormal, first.Mode)

	_, changed = controller.Update(state)
	assert.False(t, changed)

	state.Regime = motion.Cycling
	decision, changed := controller.Update(state)
	assert.True(t, changed)
	assert.Equal(t, 42.0, decision.Config.DistanceFilter)
	assert.Equal(t, decision, controller.Current())
	assert.Equal(t, motion.Cycling, controller.State().Regime)
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		accuracy float64
		bucket   AccuracyBucket
		radius   float64
	}{
		{-1, BucketInvalid, math.Inf(1)},
		{0, BucketVeryHigh, 3},
		{4.9, BucketVeryHigh, 3},
		{5, BucketHigh, 7.5},
		{10, BucketMedium, 15},
		{20, BucketLow, 70},
		{99, BucketLow, 70},
		{100, BucketVeryLow, 100},
		{1000, BucketVeryLow, 100},
	}

	for _, tt := range tests {
		bucket := BucketFor(tt.accuracy)
		assert.Equal(t, tt.bucket, bucket, "accuracy %v", tt.accuracy)
		assert.Equal(t, tt.radius, bucket.Radius())
	}
	assert.Equal(t, BucketInvalid, BucketFor(math.NaN()))
}

func TestRoutePointGate_Admit(t *testing.T) {
	gate := NewRoutePointGate(utils.NewNopLogger())
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	first := models.NewRoutePoint(10, 0, 0, 24.9384, 60.1699, ts)
	second := models.NewRoutePoint(10, 0, 0, 24.9390, 60.1700, ts.Add(5*time.Second))
	near := models.NewRoutePoint(10, 0, 0, 24.9390, 60.17001, ts.Add(6*time.Second))

	decision := gate.Admit(models.RoutePoint{}, false, first, 3)
	assert.True(t, decision.Admitted)
	assert.Equal(t, ReasonFirstPoint, decision.Reason)

	decision = gate.Admit(first, true, second, 3)
	assert.True(t, decision.Admitted)
	assert.Equal(t, ReasonMoved, decision.Reason)
	assert.Greater(t, decision.Distance, 3.0)

	decision = gate.Admit(second, true, near, 3)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonTooClose, decision.Reason)
	assert.Less(t, decision.Distance, 3.0)

	// Тот же сдвиг при низкой точности тоже отклоняется
	decision = gate.Admit(first, true, second, 50)
	assert.False(t, decision.Admitted)
	assert.Equal(t, BucketLow, decision.Bucket)
}

func TestRoutePointGate_InvalidAccuracyAlwaysRejected(t *testing.T) {
	gate := NewRoutePointGate(utils.NewNopLogger())
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	far := models.NewRoutePoint(10, 0, 0, 25.9, 61.1, ts)
	decision := gate.Admit(models.NewRoutePoint(10, 0, 0, 24.9, 60.1, ts), true, far, -1)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonInvalidAccuracy, decision.Reason)

	decision = gate.Admit(models.RoutePoint{}, false, far, -5)
	assert.False(t, decision.Admitted)
}
