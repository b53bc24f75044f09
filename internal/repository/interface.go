package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/models"
)

var (
	// ErrRouteNotFound маршрут отсутствует в хранилище
	ErrRouteNotFound = errors.New("route not found")

	// ErrInvalidRecord запись не соответствует текущей схеме даже после миграции
	ErrInvalidRecord = errors.New("invalid route record")

	// ErrEmptyTrack во внешнем треке нет точек
	ErrEmptyTrack = errors.New("track log contains no points")

	// ErrNegativeDistance одометр не может уменьшаться
	ErrNegativeDistance = errors.New("odometer increment must be non-negative")
)

// RouteStore хранилище завершенных маршрутов
type RouteStore interface {
	// Save атомарно записывает маршрут (создает или перезаписывает)
	Save(ctx context.Context, route *models.Route) error

	// Delete удаляет маршрут; ErrRouteNotFound если записи нет
	Delete(ctx context.Context, id uuid.UUID) error

	// LoadAll загружает все маршруты, применяя миграции схемы.
	// Поврежденные записи пропускаются и не прерывают загрузку.
	LoadAll(ctx context.Context) ([]*models.Route, error)
}

// OdometerStore персистентный счетчик пройденного расстояния
type OdometerStore interface {
	// Load возвращает текущее значение в метрах
	Load(ctx context.Context) (float64, error)

	// Add увеличивает счетчик и возвращает новое значение
	Add(ctx context.Context, meters float64) (float64, error)
}

// Ensure implementations
var _ RouteStore = (*FileRouteStore)(nil)
var _ OdometerStore = (*FileOdometer)(nil)
var _ OdometerStore = (*RedisOdometer)(nil)
