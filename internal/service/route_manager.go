package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/repository"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

var (
	// ErrNoActiveRoute нет записываемого маршрута
	ErrNoActiveRoute = errors.New("no active route")

	// ErrRouteActive маршрут уже записывается
	ErrRouteActive = errors.New("a route is already being recorded")

	// ErrNoPointsToSave попытка завершить маршрут без точек
	ErrNoPointsToSave = errors.New("no points to save")

	// ErrRouteNotFound маршрута нет в коллекции
	ErrRouteNotFound = errors.New("route not found")
)

// LastPointsCount сколько точек последнего маршрута отдается для обратной связи
const LastPointsCount = 5

// defaultNameLayout формат даты в имени маршрута по умолчанию
const defaultNameLayout = "02.01.2006 15.04"

// RouteManager владеет активным маршрутом и коллекцией сохраненных маршрутов
type RouteManager struct {
	store    repository.RouteStore
	odometer repository.OdometerStore
	logger   *utils.Logger
	now      func() time.Time
	location *time.Location

	mu              sync.RWMutex
	active          *models.Route
	sessionDistance float64
	lastRoute       *models.Route
	routes          []*models.Route
	odometerMeters  float64
}

// Option настройка RouteManager
type Option func(*RouteManager)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *RouteManager) { m.now = now }
}

// WithLocation часовой пояс для имени маршрута по умолчанию
func WithLocation(loc *time.Location) Option {
	return func(m *RouteManager) { m.location = loc }
}

// NewRouteManager создает менеджер маршрутов
func NewRouteManager(store repository.RouteStore, odometer repository.OdometerStore, logger *utils.Logger, opts ...Option) *RouteManager {
	m := &RouteManager{
		store:    store,
		odometer: odometer,
		logger:   logger.WithField("component", "route_manager"),
		now:      time.Now,
		location: time.Local,
		routes:   []*models.Route{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init читает одометр и загружает коллекцию маршрутов.
// Ошибки не фатальны: менеджер остается работоспособным.
func (m *RouteManager) Init(ctx context.Context) error {
	var errs []error

	meters, err := m.odometer.Load(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load odometer, starting from zero")
		errs = append(errs, fmt.Errorf("load odometer: %w", err))
	} else {
		m.mu.Lock()
		m.odometerMeters = meters
		m.mu.Unlock()
	}

	if err := m.Reload(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Reload перечитывает коллекцию маршрутов из хранилища
func (m *RouteManager) Reload(ctx context.Context) error {
	routes, err := m.store.LoadAll(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load routes")
		return fmt.Errorf("load routes: %w", err)
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()

	metrics.RoutesStored.Set(float64(len(routes)))
	return nil
}

// StartNewRoute начинает запись нового маршрута.
// Для имени DefaultRouteName (или пустого) генерируется "Route <дата>".
func (m *RouteManager) StartNewRoute(name, description string) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrRouteActive, m.active.ID)
	}

	now := m.now()
	if name == "" || name == models.DefaultRouteName {
		name = "Route " + now.In(m.location).Format(defaultNameLayout)
	}

	m.active = models.NewRoute(name, description, now)
	m.sessionDistance = 0

	metrics.RoutesRecording.Set(1)
	metrics.SessionDistance.Set(0)

	m.logger.WithField("route_id", m.active.ID.String()).
		WithField("name", name).
		Info("Route recording started")

	return m.active.Clone(), nil
}

// AddRoutePoint добавляет точку в активный маршрут и накапливает расстояние.
// Без активного маршрута ничего не делает и возвращает false.
func (m *RouteManager) AddRoutePoint(point models.RoutePoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return false
	}

	if last, ok := m.active.LastPoint(); ok {
		delta := models.Distance(last, point)
		m.active.Distance += delta
		m.sessionDistance += delta
	}
	m.active.Points = append(m.active.Points, point)

	metrics.SessionDistance.Set(m.sessionDistance)
	return true
}

// LastActivePoint последняя точка активного маршрута
func (m *RouteManager) LastActivePoint() (models.RoutePoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return models.RoutePoint{}, false
	}
	return m.active.LastPoint()
}

// IsRecording идет ли запись
func (m *RouteManager) IsRecording() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != nil
}

// ActiveRoute копия активного маршрута или nil
func (m *RouteManager) ActiveRoute() *models.Route {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.Clone()
}

// EndCurrentRoute завершает и сохраняет активный маршрут.
// Пустой маршрут отбрасывается с ErrNoPointsToSave, одометр не меняется.
// При ошибке сохранения маршрут остается активным.
func (m *RouteManager) EndCurrentRoute(ctx context.Context) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveRoute
	}

	route := m.active
	logger := m.logger.WithField("route_id", route.ID.String())

	if len(route.Points) == 0 {
		m.resetSession()
		logger.Warn("Route discarded: no points to save")
		return nil, ErrNoPointsToSave
	}

	end := m.now().UTC()
	if end.Before(route.StartDate) {
		end = route.StartDate
	}
	route.EndDate = &end
	route.ActivityType = models.ClassifyActivity(route.AverageSpeed(), models.MaxSpeed(route.Points))

	if err := m.store.Save(ctx, route); err != nil {
		route.EndDate = nil
		route.ActivityType = models.ActivityOther
		logger.WithError(err).Error("Failed to save route, recording continues")
		return nil, fmt.Errorf("save route %s: %w", route.ID, err)
	}

	if total, err := m.odometer.Add(ctx, m.sessionDistance); err != nil {
		logger.WithError(err).WithField("distance", m.sessionDistance).Error("Failed to update odometer")
	} else {
		m.odometerMeters = total
	}

	logger.WithFields(map[string]interface{}{
		"points":   len(route.Points),
		"distance": route.Distance,
		"activity": route.ActivityType.String(),
	}).Info("Route recording finished")

	m.lastRoute = route
	m.resetSession()

	// Коллекция перечитывается из хранилища; при ошибке добавляем маршрут вручную
	routes, err := m.store.LoadAll(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to reload routes after save")
		m.routes = append([]*models.Route{route.Clone()}, m.routes...)
	} else {
		m.routes = routes
	}
	metrics.RoutesStored.Set(float64(len(m.routes)))

	return route.Clone(), nil
}

func (m *RouteManager) resetSession() {
	m.active = nil
	m.sessionDistance = 0
	metrics.RoutesRecording.Set(0)
	metrics.SessionDistance.Set(0)
}

// LastFivePoints последние пять (или меньше) точек последнего завершенного маршрута
func (m *RouteManager) LastFivePoints() []models.RoutePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRoute == nil {
		return []models.RoutePoint{}
	}
	points := m.lastRoute.Points
	if len(points) > LastPointsCount {
		points = points[len(points)-LastPointsCount:]
	}
	out := make([]models.RoutePoint, len(points))
	copy(out, points)
	return out
}

// Routes копия коллекции маршрутов
func (m *RouteManager) Routes() []*models.Route {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r.Clone())
	}
	return out
}

// Route возвращает маршрут по id
func (m *RouteManager) Route(id uuid.UUID) (*models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	return m.routes[idx].Clone(), nil
}

func (m *RouteManager) indexOf(id uuid.UUID) int {
	for i, r := range m.routes {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// DeleteRoute удаляет маршрут из хранилища, затем из коллекции.
// При ошибке хранилища коллекция не меняется.
func (m *RouteManager) DeleteRoute(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.WithError(err).WithField("route_id", id.String()).Error("Failed to delete route")
		return fmt.Errorf("delete route %s: %w", id, err)
	}

	m.routes = append(m.routes[:idx:idx], m.routes[idx+1:]...)
	if m.lastRoute != nil && m.lastRoute.ID == id {
		m.lastRoute = nil
	}
	metrics.RoutesStored.Set(float64(len(m.routes)))
	return nil
}

// UpdateRoute переносит редактируемые поля (имя, описание, тип активности)
// в сохраненный маршрут и перезаписывает его
func (m *RouteManager) UpdateRoute(ctx context.Context, edited *models.Route) (*models.Route, error) {
	if edited == nil {
		return nil, fmt.Errorf("route cannot be nil")
	}
	if !edited.ActivityType.IsValid() {
		return nil, fmt.Errorf("unknown activity type %d", uint(edited.ActivityType))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(edited.ID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, edited.ID)
	}

	updated := m.routes[idx].Clone()
	updated.Name = edited.Name
	updated.Description = edited.Description
	updated.ActivityType = edited.ActivityType

	if err := m.store.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("update route %s: %w", edited.ID, err)
	}

	m.routes[idx] = updated
	if m.lastRoute != nil && m.lastRoute.ID == updated.ID {
		m.lastRoute = updated.Clone()
	}
	return updated.Clone(), nil
}

// ImportGPX конвертирует GPX трек в маршрут, сохраняет и добавляет в коллекцию
func (m *RouteManager) ImportGPX(ctx context.Context, r io.Reader, name string) (*models.Route, error) {
	route, err := repository.ImportGPX(r, name, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, route); err != nil {
		return nil, fmt.Errorf("save imported route: %w", err)
	}
	m.routes = append([]*models.Route{route}, m.routes...)
	metrics.RoutesStored.Set(float64(len(m.routes)))

	m.logger.WithField("route_id", route.ID.String()).
		WithField("points", len(route.Points)).
		Info("Route imported")
	return route.Clone(), nil
}

// SessionDistance расстояние текущей сессии записи (м)
func (m *RouteManager) SessionDistance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionDistance
}

// Odometer значение одометра (м)
func (m *RouteManager) Odometer() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.odometerMeters
}
