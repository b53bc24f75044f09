package main

import (
	"context"
	"fmt"
	"time"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/filter"
	"github.com/flybeeper/track-recorder/internal/repository"
	"github.com/flybeeper/track-recorder/internal/service"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// app общие зависимости команд
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	settings *config.SettingsStore
	store    *repository.FileRouteStore
	manager  *service.RouteManager
	closers  []func() error
}

// loadApp читает конфигурацию, настройки и маршруты с диска
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	utils.SetDefaultLogger(logger)

	a := &app{cfg: cfg, logger: logger}

	a.settings = config.NewSettingsStore(cfg.Storage.SettingsFile)
	if _, err := a.settings.Load(); err != nil {
		logger.WithError(err).Warn("Failed to load settings, using defaults")
	}

	a.store, err = repository.NewFileRouteStore(cfg.Storage.RoutesDir, logger)
	if err != nil {
		return nil, err
	}

	odometer, err := a.newOdometer(ctx)
	if err != nil {
		return nil, err
	}

	a.manager = service.NewRouteManager(a.store, odometer, logger)
	if err := a.manager.Init(ctx); err != nil {
		// Поврежденные файлы и недоступный одометр не мешают работе
		logger.WithError(err).Warn("Route manager initialized with errors")
	}

	return a, nil
}

func (a *app) newOdometer(ctx context.Context) (repository.OdometerStore, error) {
	if a.cfg.Storage.OdometerBackend != config.OdometerBackendRedis {
		return repository.NewFileOdometer(a.cfg.Storage.DataDir, a.logger)
	}

	redisOdometer, err := repository.NewRedisOdometer(&a.cfg.Redis, a.logger)
	if err != nil {
		return nil, err
	}
	if err := redisOdometer.Ping(ctx); err != nil {
		_ = redisOdometer.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, redisOdometer.Close)
	a.logger.Info("Connected to Redis")
	return redisOdometer, nil
}

// newEngine собирает движок записи поверх провайдеров устройства
func (a *app) newEngine(location engine.LocationProvider, motion engine.MotionProvider, battery engine.BatteryProvider) (*engine.Engine, error) {
	return engine.New(engine.Config{
		HeadingInterval:    a.cfg.Engine.HeadingInterval,
		MotionInterval:     a.cfg.Engine.MotionInterval,
		AccelerationWindow: a.cfg.Engine.AccelerationWindow,
		SubscriberBuffer:   a.cfg.Engine.SubscriberQueueSize,
	}, engine.Dependencies{
		Location:   location,
		Motion:     motion,
		Battery:    battery,
		Recorder:   a.manager,
		Controller: filter.NewAdaptiveFilterController(filter.DefaultFilterConfig(), a.logger),
		Gate:       filter.NewRoutePointGate(a.logger),
		Logger:     a.logger,
		Threshold: func() float64 {
			return a.settings.Current().ThresholdFraction()
		},
		Now: time.Now,
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Close failed")
		}
	}
}

// idleDevice провайдер без сенсоров, когда MQTT мост выключен
type idleDevice struct{}

func (idleDevice) StartUpdates() error                      { return nil }
func (idleDevice) StopUpdates() error                       { return nil }
func (idleDevice) Configure(filter.AcquisitionConfig) error { return nil }
func (idleDevice) LastFix() (engine.Fix, bool)              { return engine.Fix{}, false }
func (idleDevice) StartAccelerometer(time.Duration) error   { return nil }
func (idleDevice) StopAccelerometer() error                 { return nil }
func (idleDevice) Battery() engine.BatteryState             { return engine.BatteryState{Level: -1} }
