package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flybeeper/track-recorder/internal/filter"
	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/motion"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// ErrStopped движок остановлен
var ErrStopped = errors.New("engine stopped")

// RouteRecorder операции менеджера маршрутов, нужные движку
type RouteRecorder interface {
	StartNewRoute(name, description string) (*models.Route, error)
	AddRoutePoint(point models.RoutePoint) bool
	EndCurrentRoute(ctx context.Context) (*models.Route, error)
	LastActivePoint() (models.RoutePoint, bool)
	ActiveRoute() *models.Route
	IsRecording() bool
	SessionDistance() float64
	Odometer() float64
}

// Config параметры движка
type Config struct {
	HeadingInterval    time.Duration // минимальный интервал между событиями курса
	MotionInterval     time.Duration // интервал выборки ускорений
	AccelerationWindow int
	InboxSize          int
	SubscriberBuffer   int
}

// DefaultConfig конфигурация по умолчанию
func DefaultConfig() Config {
	return Config{
		HeadingInterval:    time.Second,
		MotionInterval:     200 * time.Millisecond,
		AccelerationWindow: motion.DefaultWindowSize,
		InboxSize:          256,
		SubscriberBuffer:   64,
	}
}

// Dependencies коллабораторы движка
type Dependencies struct {
	Location   LocationProvider
	Motion     MotionProvider
	Battery    BatteryProvider
	Recorder   RouteRecorder
	Controller *filter.AdaptiveFilterController
	Gate       *filter.RoutePointGate
	Logger     *utils.Logger

	// Threshold порог энергосбережения пользователя в долях [0,1]
	Threshold func() float64
	// Now источник времени для фиксов без метки
	Now func() time.Time
}

// message элемент очереди: событие сенсора или команда
type message struct {
	event Event
	cmd   func()
	done  chan struct{}
}

// Engine единственный владелец конвейера классификация -> фильтры -> гейт -> запись.
// Все события и команды обрабатываются последовательно в одной горутине.
type Engine struct {
	cfg        Config
	location   LocationProvider
	motionSrc  MotionProvider
	battery    BatteryProvider
	recorder   RouteRecorder
	controller *filter.AdaptiveFilterController
	gate       *filter.RoutePointGate
	logger     *utils.Logger
	threshold  func() float64
	now        func() time.Time

	inbox chan message
	done  chan struct{}

	runMu   sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	exited  chan struct{}

	subscribers *subscribers

	// Состояние ниже принадлежит горутине Run
	classifier      *motion.Classifier
	smoother        *motion.AccelerationSmoother
	headingLimiter  *rate.Limiter
	speedTimer      *time.Timer
	state           pipelineState
	updatesStarted  bool
	accelerometerOn bool
}

type pipelineState struct {
	lastFix       Fix
	hasFix        bool
	speedKmh      float64
	heading       float64
	hasHeading    bool
	battery       BatteryState
	authorization AuthorizationStatus
	lastAccuracy  float64
	lastGate      filter.GateDecision
}

// New создает движок
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Location == nil || deps.Motion == nil || deps.Battery == nil {
		return nil, fmt.Errorf("location, motion and battery providers are required")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("route recorder is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Controller == nil {
		deps.Controller = filter.NewAdaptiveFilterController(filter.DefaultFilterConfig(), deps.Logger)
	}
	if deps.Gate == nil {
		deps.Gate = filter.NewRoutePointGate(deps.Logger)
	}
	if deps.Threshold == nil {
		deps.Threshold = func() float64 { return 1 }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	defaults := DefaultConfig()
	if cfg.HeadingInterval <= 0 {
		cfg.HeadingInterval = defaults.HeadingInterval
	}
	if cfg.MotionInterval <= 0 {
		cfg.MotionInterval = defaults.MotionInterval
	}
	if cfg.AccelerationWindow <= 0 {
		cfg.AccelerationWindow = defaults.AccelerationWindow
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaults.InboxSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaults.SubscriberBuffer
	}

	return &Engine{
		cfg:            cfg,
		location:       deps.Location,
		motionSrc:      deps.Motion,
		battery:        deps.Battery,
		recorder:       deps.Recorder,
		controller:     deps.Controller,
		gate:           deps.Gate,
		logger:         deps.Logger.WithField("component", "engine"),
		threshold:      deps.Threshold,
		now:            deps.Now,
		inbox:          make(chan message, cfg.InboxSize),
		done:           make(chan struct{}),
		exited:         make(chan struct{}),
		subscribers:    newSubscribers(cfg.SubscriberBuffer),
		classifier:     motion.NewClassifier(),
		smoother:       motion.NewAccelerationSmoother(cfg.AccelerationWindow),
		headingLimiter: rate.NewLimiter(rate.Every(cfg.HeadingInterval), 1),
		state:          pipelineState{battery: BatteryState{Level: -1}, lastAccuracy: -1},
	}, nil
}

// Publish ставит событие сенсора в очередь. После остановки события отбрасываются.
func (e *Engine) Publish(ev Event) {
	select {
	case <-e.done:
		return
	default:
	}

	select {
	case e.inbox <- message{event: ev}:
	case <-e.done:
	}
}

// Run обрабатывает события до отмены контекста или Close
func (e *Engine) Run(ctx context.Context) error {
	e.runMu.Lock()
	if e.running || e.stopped {
		e.runMu.Unlock()
		return fmt.Errorf("engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.runMu.Unlock()

	defer close(e.exited)
	defer e.markStopped()
	defer e.teardown()

	e.state.battery = e.battery.Battery()
	e.recomputeFilters("startup")
	e.speedTimer = time.NewTimer(e.refreshInterval())

	e.logger.Info("Engine started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-e.inbox:
			e.dispatch(msg)
		case <-e.speedTimer.C:
			e.refreshSpeed()
			e.speedTimer.Reset(e.refreshInterval())
		}
	}
}

// Close останавливает движок и ждет завершения Run
func (e *Engine) Close() error {
	e.runMu.Lock()
	if e.stopped {
		e.runMu.Unlock()
		return nil
	}
	e.stopped = true
	running := e.running
	cancel := e.cancel
	e.runMu.Unlock()

	close(e.done)
	if running {
		cancel()
		<-e.exited
	} else {
		e.subscribers.closeAll()
	}
	return nil
}

// markStopped закрывает очередь, если Run завершился по контексту без Close
func (e *Engine) markStopped() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.stopped {
		e.stopped = true
		close(e.done)
	}
}

func (e *Engine) dispatch(msg message) {
	if msg.cmd != nil {
		msg.cmd()
		close(msg.done)
		return
	}
	e.handle(msg.event)
}

// do выполняет fn в горутине Run
func (e *Engine) do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := message{cmd: fn, done: make(chan struct{})}

	select {
	case e.inbox <- msg:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Поставленная команда ожидается до завершения
	select {
	case <-msg.done:
		return nil
	case <-e.exited:
		select {
		case <-msg.done:
			return nil
		default:
			return ErrStopped
		}
	}
}

func (e *Engine) handle(ev Event) {
	metrics.SensorEvents.WithLabelValues(ev.kind()).Inc()

	switch ev := ev.(type) {
	case FixEvent:
		e.handleFix(ev.Fix)
	case HeadingEvent:
		e.handleHeading(ev)
	case AccelerationEvent:
		e.smoother.Add(ev.Vector)
	case BatteryEvent:
		e.state.battery = ev.State
		e.recomputeFilters("battery")
	case AuthorizationEvent:
		e.handleAuthorization(ev.Status)
	case SensorErrorEvent:
		metrics.SensorErrors.WithLabelValues(ev.Source).Inc()
		e.logger.WithError(ev.Err).WithField("source", ev.Source).Debug("Transient sensor error")
	default:
		e.logger.Warnf("Unknown event type %T", ev)
	}
}

func (e *Engine) handleAuthorization(status AuthorizationStatus) {
	e.state.authorization = status

	if status != AuthorizationAuthorized {
		metrics.SensorErrors.WithLabelValues("authorization").Inc()
		e.logger.WithField("status", status.String()).Warn("Location authorization not granted")
		return
	}
	if e.updatesStarted {
		return
	}
	if err := e.location.StartUpdates(); err != nil {
		e.logger.WithError(err).Error("Failed to start location updates")
		return
	}
	e.updatesStarted = true
	e.logger.Info("Location updates started")
}

func (e *Engine) handleFix(fix Fix) {
	if fix.HorizontalAccuracy < 0 || math.IsNaN(fix.HorizontalAccuracy) {
		metrics.SensorErrors.WithLabelValues("invalid_accuracy").Inc()
		metrics.PointsRejected.WithLabelValues(filter.ReasonInvalidAccuracy).Inc()
		e.logger.WithField("accuracy", fix.HorizontalAccuracy).Debug("Fix with invalid accuracy ignored")
		return
	}
	if err := fix.Position().Validate(); err != nil {
		metrics.SensorErrors.WithLabelValues("invalid_position").Inc()
		e.logger.WithError(err).Debug("Fix with invalid position ignored")
		return
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = e.now()
	}

	e.state.lastFix = fix
	e.state.hasFix = true
	e.state.lastAccuracy = fix.HorizontalAccuracy

	e.updateSpeed(fix.SpeedKmh())
	e.recordFix(fix)
}

// updateSpeed классифицирует скорость; фильтры пересчитываются только при смене режима
func (e *Engine) updateSpeed(kmh float64) {
	e.state.speedKmh = kmh

	regime, changed := e.classifier.Update(kmh)
	if !changed {
		return
	}
	metrics.RegimeTransitions.WithLabelValues(regime.String()).Inc()
	e.recomputeFilters("regime")
}

func (e *Engine) currentHeading(fix Fix) float64 {
	if e.state.hasHeading {
		return e.state.heading
	}
	if fix.Course >= 0 {
		return fix.Course
	}
	return 0
}

// recordFix прогоняет фикс через гейт и добавляет точку в активный маршрут
func (e *Engine) recordFix(fix Fix) {
	speed := fix.SpeedKmh()
	if !e.recorder.IsRecording() || speed <= filter.MinRecordingSpeedKmh {
		return
	}

	candidate := models.NewRoutePoint(speed, e.currentHeading(fix), fix.Altitude, fix.Longitude, fix.Latitude, fix.Timestamp)
	last, hasLast := e.recorder.LastActivePoint()

	metrics.PointsConsidered.Inc()
	decision := e.gate.Admit(last, hasLast, candidate, fix.HorizontalAccuracy)
	e.state.lastGate = decision

	if !decision.Admitted {
		metrics.PointsRejected.WithLabelValues(decision.Reason).Inc()
		return
	}
	if !e.recorder.AddRoutePoint(candidate) {
		return
	}

	metrics.PointsAdmitted.WithLabelValues(decision.Bucket.String()).Inc()
	e.subscribers.broadcast(candidate)
}

func (e *Engine) handleHeading(ev HeadingEvent) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	// Токен расходуется только принятым курсом, интервал отсчитывается от него
	if e.headingLimiter.TokensAt(ts) < 1 {
		return
	}
	if e.state.hasHeading {
		hf := e.controller.Current().Config.HeadingFilter
		if angleDelta(e.state.heading, ev.TrueHeading) <= hf {
			return
		}
	}
	e.headingLimiter.AllowN(ts, 1)

	e.state.heading = normalizeHeading(ev.TrueHeading)
	e.state.hasHeading = true

	if e.state.hasFix {
		e.recordFix(e.state.lastFix)
	}
}

// refreshSpeed опрашивает провайдер о последней скорости между доставками фиксов
func (e *Engine) refreshSpeed() {
	fix, ok := e.location.LastFix()
	if !ok {
		return
	}
	e.updateSpeed(fix.SpeedKmh())
}

func (e *Engine) refreshInterval() time.Duration {
	return e.smoother.Interval()
}

func (e *Engine) powerState() filter.PowerState {
	return filter.PowerState{
		Regime:       e.classifier.Current(),
		BatteryLevel: e.state.battery.Level,
		Charging:     e.state.battery.Charging,
		Threshold:    e.threshold(),
		SpeedKmh:     e.state.speedKmh,
	}
}

// recomputeFilters пересчитывает параметры и отдает их провайдеру при изменении
func (e *Engine) recomputeFilters(reason string) {
	decision, changed := e.controller.Update(e.powerState())
	if !changed {
		return
	}

	metrics.PowerMode.Set(float64(decision.Mode))
	metrics.AcquisitionDistanceFilter.Set(decision.Config.DistanceFilter)
	metrics.AcquisitionHeadingFilter.Set(decision.Config.HeadingFilter)

	if err := e.location.Configure(decision.Config); err != nil {
		e.logger.WithError(err).Warn("Failed to push acquisition config")
	} else {
		metrics.ConfigPushes.Inc()
	}

	e.setRefresh(decision.SmootherEnabled)

	e.logger.WithField("reason", reason).
		WithField("power_mode", decision.Mode.String()).
		Debug("Filters updated")
}

// setRefresh включает или выключает сглаживатель ускорений и акселерометр
func (e *Engine) setRefresh(enabled bool) {
	if enabled {
		e.smoother.Enable()
		if !e.accelerometerOn {
			if err := e.motionSrc.StartAccelerometer(e.cfg.MotionInterval); err != nil {
				e.logger.WithError(err).Warn("Failed to start accelerometer")
				return
			}
			e.accelerometerOn = true
		}
		return
	}

	e.smoother.Disable()
	if e.accelerometerOn {
		if err := e.motionSrc.StopAccelerometer(); err != nil {
			e.logger.WithError(err).Warn("Failed to stop accelerometer")
		}
		e.accelerometerOn = false
	}
}

func (e *Engine) teardown() {
	if e.speedTimer != nil {
		e.speedTimer.Stop()
		e.speedTimer = nil
	}

	e.smoother.Disable()
	if e.accelerometerOn {
		if err := e.motionSrc.StopAccelerometer(); err != nil {
			e.logger.WithError(err).Warn("Failed to stop accelerometer")
		}
		e.accelerometerOn = false
	}
	if e.updatesStarted {
		if err := e.location.StopUpdates(); err != nil {
			e.logger.WithError(err).Warn("Failed to stop location updates")
		}
		e.updatesStarted = false
	}

	e.subscribers.closeAll()
	e.logger.Info("Engine stopped")
}

// StartRoute начинает запись маршрута
func (e *Engine) StartRoute(ctx context.Context, name, description string) (*models.Route, error) {
	var (
		route *models.Route
		err   error
	)
	if doErr := e.do(ctx, func() {
		route, err = e.recorder.StartNewRoute(name, description)
	}); doErr != nil {
		return nil, doErr
	}
	return route, err
}

// EndRoute завершает запись маршрута
func (e *Engine) EndRoute(ctx context.Context) (*models.Route, error) {
	var (
		route *models.Route
		err   error
	)
	if doErr := e.do(ctx, func() {
		route, err = e.recorder.EndCurrentRoute(ctx)
	}); doErr != nil {
		return nil, doErr
	}
	return route, err
}

// RecomputeFilters пересчитывает фильтры, например после изменения порога пользователя
func (e *Engine) RecomputeFilters(ctx context.Context) error {
	return e.do(ctx, func() {
		e.recomputeFilters("settings")
	})
}

// Subscribe подписка на допущенные точки маршрута.
// Медленный подписчик теряет точки. cancel закрывает канал.
func (e *Engine) Subscribe() (<-chan models.RoutePoint, func()) {
	return e.subscribers.add()
}

func angleDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
