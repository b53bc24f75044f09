package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

const routeFileExt = ".json"

// routeRecord формат файла маршрута: маршрут плюс версия схемы
type routeRecord struct {
	SchemaVersion int `json:"schemaVersion"`
	models.Route
}

// FileRouteStore хранит каждый маршрут в отдельном JSON файле <dir>/<id>.json
type FileRouteStore struct {
	dir    string
	logger *utils.Logger

	mu    sync.Mutex
	paths map[uuid.UUID]string // id -> файл, для записей с нестандартными именами
}

// NewFileRouteStore создает хранилище, создавая директорию при необходимости
func NewFileRouteStore(dir string, logger *utils.Logger) (*FileRouteStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("routes dir cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create routes dir %s: %w", dir, err)
	}

	return &FileRouteStore{
		dir:    dir,
		logger: logger.WithField("component", "route_store"),
		paths:  make(map[uuid.UUID]string),
	}, nil
}

// Dir директория маршрутов
func (s *FileRouteStore) Dir() string {
	return s.dir
}

func (s *FileRouteStore) pathFor(id uuid.UUID) string {
	if path, ok := s.paths[id]; ok {
		return path
	}
	return filepath.Join(s.dir, id.String()+routeFileExt)
}

// Save атомарно записывает маршрут через временный файл и rename
func (s *FileRouteStore) Save(ctx context.Context, route *models.Route) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if route == nil {
		return fmt.Errorf("route cannot be nil")
	}
	if err := route.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	data, err := encodeRoute(route)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(route.ID)
	if err := writeFileAtomic(s.dir, path, data); err != nil {
		metrics.RouteSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save route %s: %w", route.ID, err)
	}
	s.paths[route.ID] = path
	metrics.RouteSaves.WithLabelValues("ok").Inc()

	s.logger.WithField("route_id", route.ID.String()).
		WithField("points", len(route.Points)).
		WithField("file", filepath.Base(path)).
		Debug("Route saved")
	return nil
}

// Delete удаляет файл маршрута
func (s *FileRouteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(id)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRouteNotFound, id)
		}
		return fmt.Errorf("failed to delete route %s: %w", id, err)
	}
	delete(s.paths, id)
	return nil
}

// LoadAll загружает все маршруты, новые первыми
func (s *FileRouteStore) LoadAll(ctx context.Context) ([]*models.Route, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("dir", s.dir).Warn("Routes directory is missing")
			return []*models.Route{}, nil
		}
		return nil, fmt.Errorf("failed to read routes dir %s: %w", s.dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	routes := make([]*models.Route, 0, len(entries))
	paths := make(map[uuid.UUID]string, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), routeFileExt) {
			continue
		}

		path := filepath.Join(s.dir, name)
		route, err := s.loadFile(path)
		if err != nil {
			metrics.RouteLoadErrors.Inc()
			s.logger.WithError(err).WithField("file", name).Warn("Skipping route file")
			continue
		}
		if existing, dup := paths[route.ID]; dup {
			metrics.RouteLoadErrors.Inc()
			s.logger.WithField("file", name).
				WithField("route_id", route.ID.String()).
				WithField("duplicate_of", filepath.Base(existing)).
				Warn("Skipping duplicate route id")
			continue
		}

		paths[route.ID] = path
		routes = append(routes, route)
	}

	s.paths = paths

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].StartDate.After(routes[j].StartDate)
	})

	s.logger.WithField("routes", len(routes)).Debug("Routes loaded")
	return routes, nil
}

// loadFile мигрирует запись на месте и строго декодирует ее
func (s *FileRouteStore) loadFile(path string) (*models.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result, err := MigrateRecord(data)
	if err != nil {
		return nil, err
	}

	if result.Changed() {
		for _, v := range result.Applied {
			metrics.MigrationsApplied.WithLabelValues(strconv.Itoa(v)).Inc()
		}
		// Ошибка перезаписи не мешает использовать мигрированные данные
		if err := writeFileAtomic(s.dir, path, result.Data); err != nil {
			s.logger.WithError(err).WithField("file", filepath.Base(path)).Warn("Failed to rewrite migrated route file")
		} else {
			s.logger.WithField("file", filepath.Base(path)).
				WithField("from_version", result.FromVersion).
				WithField("to_version", CurrentSchemaVersion).
				Info("Route file migrated")
		}
	}

	return decodeRoute(result.Data)
}

func encodeRoute(route *models.Route) ([]byte, error) {
	rec := routeRecord{SchemaVersion: CurrentSchemaVersion, Route: *route}
	if rec.Points == nil {
		rec.Points = []models.RoutePoint{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode route %s: %w", route.ID, err)
	}
	return data, nil
}

// decodeRoute строгое декодирование записи текущей схемы
func decodeRoute(data []byte) (*models.Route, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var rec routeRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrInvalidRecord, rec.SchemaVersion)
	}

	route := rec.Route
	if route.Points == nil {
		route.Points = []models.RoutePoint{}
	}
	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &route, nil
}

// writeFileAtomic пишет во временный файл в той же директории и переименовывает его
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".route-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
