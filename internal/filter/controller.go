package filter

import (
	"sync"

	"github.com/flybeeper/track-recorder/internal/motion"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// PowerState входные данные контроллера
type PowerState struct {
	Regime       motion.Regime
	BatteryLevel float64 // [0,1], отрицательное значение - уровень неизвестен
	Charging     bool
	Threshold    float64 // порог энергосбережения пользователя [0,1]
	SpeedKmh     float64
}

// Decision результат вычисления фильтров
type Decision struct {
	Mode            PowerMode         `json:"mode"`
	Config          AcquisitionConfig `json:"config"`
	SmootherEnabled bool              `json:"smoother_enabled"`
}

// Compute детерминированно вычисляет режим энергосбережения и параметры получения координат
func (c *FilterConfig) Compute(state PowerState) Decision {
	if state.Charging || state.BatteryLevel > state.Threshold {
		return Decision{
			Mode: PowerModeOff,
			Config: AcquisitionConfig{
				DistanceFilter:  c.Precise.DistanceFilter,
				HeadingFilter:   c.Precise.HeadingFilter,
				DesiredAccuracy: AccuracyBestForNavigation,
			},
			SmootherEnabled: true,
		}
	}

	base := c.GetRegimeFilter(state.Regime)

	// Неизвестный уровень батареи не считается критическим
	if state.BatteryLevel >= 0 && state.BatteryLevel < c.CriticalBatteryLevel {
		return Decision{
			Mode: PowerModeMax,
			Config: AcquisitionConfig{
				DistanceFilter:      base.DistanceFilter * c.MaxModeFactor,
				HeadingFilter:       base.HeadingFilter * c.MaxModeFactor,
				DesiredAccuracy:     AccuracyCoarsest,
				PausesAutomatically: state.SpeedKmh < c.AutoPauseSpeedKmh,
			},
		}
	}

	return Decision{
		Mode: PowerModeNormal,
		Config: AcquisitionConfig{
			DistanceFilter:  base.DistanceFilter,
			HeadingFilter:   base.HeadingFilter,
			DesiredAccuracy: AccuracyBestForNavigation.Coarser(1),
		},
	}
}

// AdaptiveFilterController хранит последнее состояние и решение,
// сообщает об изменении параметров
type AdaptiveFilterController struct {
	config *FilterConfig
	logger *utils.Logger

	mu       sync.RWMutex
	state    PowerState
	decision Decision
	computed bool
}

// NewAdaptiveFilterController создает контроллер
func NewAdaptiveFilterController(config *FilterConfig, logger *utils.Logger) *AdaptiveFilterController {
	if config == nil {
		config = DefaultFilterConfig()
	}
	return &AdaptiveFilterController{
		config: config,
		logger: logger,
	}
}

// Update пересчитывает решение для нового состояния.
// changed=true, если режим или параметры изменились (и при первом вызове).
func (c *AdaptiveFilterController) Update(state PowerState) (Decision, bool) {
	decision := c.config.Compute(state)

	c.mu.Lock()
	changed := !c.computed || decision != c.decision
	c.state = state
	c.decision = decision
	c.computed = true
	c.mu.Unlock()

	if changed {
		c.logger.WithFields(map[string]interface{}{
			"regime":          state.Regime.String(),
			"battery":         state.BatteryLevel,
			"charging":        state.Charging,
			"power_mode":      decision.Mode.String(),
			"distance_filter": decision.Config.DistanceFilter,
			"heading_filter":  decision.Config.HeadingFilter,
			"accuracy":        decision.Config.DesiredAccuracy.String(),
			"auto_pause":      decision.Config.PausesAutomatically,
		}).Debug("Acquisition config recomputed")
	}

	return decision, changed
}

// Current последнее решение
func (c *AdaptiveFilterController) Current() Decision {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.decision
}

// State последнее входное состояние
func (c *AdaptiveFilterController) State() PowerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
