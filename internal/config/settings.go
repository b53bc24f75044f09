package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flybeeper/track-recorder/internal/models"
)

// DefaultBatteryThreshold порог энергосбережения по умолчанию (%)
const DefaultBatteryThreshold = 100

// UserSettings пользовательские настройки
type UserSettings struct {
	BatteryThreshold int          `yaml:"battery_threshold" json:"battery_threshold"` // %, 0..100
	Units            models.Units `yaml:"units" json:"units"`
}

// DefaultUserSettings настройки по умолчанию
func DefaultUserSettings() UserSettings {
	return UserSettings{
		BatteryThreshold: DefaultBatteryThreshold,
		Units:            models.UnitsMetric,
	}
}

// Normalize ограничивает порог диапазоном 0..100 и приводит единицы к известным
func (s UserSettings) Normalize() UserSettings {
	if s.BatteryThreshold < 0 {
		s.BatteryThreshold = 0
	}
	if s.BatteryThreshold > 100 {
		s.BatteryThreshold = 100
	}
	s.Units = models.ParseUnits(string(s.Units))
	return s
}

// ThresholdFraction порог в долях [0,1] для контроллера фильтров
func (s UserSettings) ThresholdFraction() float64 {
	return float64(s.Normalize().BatteryThreshold) / 100
}

// SettingsStore хранит настройки в YAML файле
type SettingsStore struct {
	path string

	mu       sync.RWMutex
	settings UserSettings
}

// NewSettingsStore создает хранилище настроек
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path, settings: DefaultUserSettings()}
}

// Load читает файл настроек. Отсутствующий файл дает настройки по умолчанию.
func (s *SettingsStore) Load() (UserSettings, error) {
	settings := DefaultUserSettings()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return settings, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return DefaultUserSettings(), fmt.Errorf("failed to parse settings %s: %w", s.path, err)
		}
	}

	settings = settings.Normalize()

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	return settings, nil
}

// Save записывает настройки в файл
func (s *SettingsStore) Save(settings UserSettings) error {
	settings = settings.Normalize()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	return nil
}

// Current последние загруженные или сохраненные настройки
func (s *SettingsStore) Current() UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Path путь к файлу настроек
func (s *SettingsStore) Path() string {
	return s.path
}
