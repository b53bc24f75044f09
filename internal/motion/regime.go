package motion

import "sync"

// Regime режим движения, вычисляемый по мгновенной скорости
type Regime int

const (
	Stationary Regime = iota
	Walking
	Running
	Cycling
	Riding
	Flying
)

// Regimes все режимы в порядке возрастания скорости
var Regimes = []Regime{Stationary, Walking, Running, Cycling, Riding, Flying}

// Границы режимов в км/ч, полуинтервалы [lo, hi)
const (
	WalkingMinKmh = 1.0
	RunningMinKmh = 6.0
	CyclingMinKmh = 14.0
	RidingMinKmh  = 40.0
	FlyingMinKmh  = 180.0
)

func (r Regime) String() string {
	switch r {
	case Stationary:
		return "stationary"
	case Walking:
		return "walking"
	case Running:
		return "running"
	case Cycling:
		return "cycling"
	case Riding:
		return "riding"
	case Flying:
		return "flying"
	default:
		return "unknown"
	}
}

// Classify отображает скорость (км/ч) в режим движения.
// Нулевая, отрицательная и NaN скорость дают Stationary.
func Classify(kmh float64) Regime {
	switch {
	case !(kmh >= WalkingMinKmh):
		return Stationary
	case kmh < RunningMinKmh:
		return Walking
	case kmh < CyclingMinKmh:
		return Running
	case kmh < RidingMinKmh:
		return Cycling
	case kmh < FlyingMinKmh:
		return Riding
	default:
		return Flying
	}
}

// Classifier отслеживает текущий режим и сообщает только о переходах
type Classifier struct {
	mu      sync.Mutex
	current Regime
	seen    bool
}

// NewClassifier создает классификатор в режиме Stationary
func NewClassifier() *Classifier {
	return &Classifier{current: Stationary}
}

// Update классифицирует скорость. changed=true только при смене режима
// (и при самом первом вызове).
func (c *Classifier) Update(kmh float64) (regime Regime, changed bool) {
	regime = Classify(kmh)

	c.mu.Lock()
	defer c.mu.Unlock()

	changed = !c.seen || regime != c.current
	c.current = regime
	c.seen = true
	return regime, changed
}

// Current текущий режим
func (c *Classifier) Current() Regime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
