package motion

import (
	"math"
	"sync"
	"time"
)

// DefaultWindowSize размер скользящего окна ускорений
const DefaultWindowSize = 2

// Vector линейное ускорение без гравитации (g)
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude евклидова норма вектора
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// AccelerationSmoother скользящее среднее модуля ускорения
type AccelerationSmoother struct {
	mu      sync.Mutex
	window  []float64
	size    int
	enabled bool
	average float64
}

// NewAccelerationSmoother создает выключенный сглаживатель с окном size
func NewAccelerationSmoother(size int) *AccelerationSmoother {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &AccelerationSmoother{
		window: make([]float64, 0, size),
		size:   size,
	}
}

// Enable включает накопление
func (s *AccelerationSmoother) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
}

// Disable выключает накопление и сбрасывает среднее
func (s *AccelerationSmoother) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.window = s.window[:0]
	s.average = 0
}

// Enabled включен ли сглаживатель
func (s *AccelerationSmoother) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Add добавляет образец и возвращает новое среднее. В выключенном состоянии образец игнорируется.
func (s *AccelerationSmoother) Add(v Vector) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return s.average
	}

	if len(s.window) == s.size {
		copy(s.window, s.window[1:])
		s.window = s.window[:s.size-1]
	}
	s.window = append(s.window, v.Magnitude())

	sum := 0.0
	for _, m := range s.window {
		sum += m
	}
	s.average = sum / float64(len(s.window))
	return s.average
}

// Average текущее среднее
func (s *AccelerationSmoother) Average() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.average
}

// Interval интервал обновления скорости для текущего среднего
func (s *AccelerationSmoother) Interval() time.Duration {
	return RefreshInterval(s.Average())
}

// RefreshInterval интервал до следующего опроса скорости по среднему ускорению
func RefreshInterval(average float64) time.Duration {
	switch {
	case average > 2.0:
		return 400 * time.Millisecond
	case average > 1.5:
		return 800 * time.Millisecond
	case average > 1.0:
		return time.Second
	case average > 0.5:
		return 1200 * time.Millisecond
	default:
		return 4 * time.Second
	}
}
