package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// OdometerKey имя скаляра одометра (ключ в defaults.json и в Redis)
const OdometerKey = "odometer"

// DefaultsFileName файл пользовательских значений в директории данных
const DefaultsFileName = "defaults.json"

// FileOdometer хранит одометр в JSON файле значений по умолчанию.
// Прочие ключи файла сохраняются без изменений.
type FileOdometer struct {
	path   string
	logger *utils.Logger

	mu sync.Mutex
}

// NewFileOdometer создает одометр в файле <dataDir>/defaults.json
func NewFileOdometer(dataDir string, logger *utils.Logger) (*FileOdometer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}
	return &FileOdometer{
		path:   filepath.Join(dataDir, DefaultsFileName),
		logger: logger.WithField("component", "odometer"),
	}, nil
}

// Load возвращает значение одометра; отсутствующий файл дает 0
func (o *FileOdometer) Load(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	values, err := o.read()
	if err != nil {
		return 0, err
	}
	meters := odometerValue(values)
	metrics.OdometerMeters.Set(meters)
	return meters, nil
}

// Add увеличивает одометр на meters
func (o *FileOdometer) Add(ctx context.Context, meters float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if meters < 0 || math.IsNaN(meters) {
		return 0, fmt.Errorf("%w: %f", ErrNegativeDistance, meters)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	values, err := o.read()
	if err != nil {
		return 0, err
	}

	total := odometerValue(values) + meters
	values[OdometerKey] = total

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := writeFileAtomic(filepath.Dir(o.path), o.path, data); err != nil {
		return 0, fmt.Errorf("failed to write odometer: %w", err)
	}

	metrics.OdometerMeters.Set(total)
	o.logger.WithField("added", meters).WithField("total", total).Debug("Odometer updated")
	return total, nil
}

func (o *FileOdometer) read() (map[string]interface{}, error) {
	values := make(map[string]interface{})

	data, err := os.ReadFile(o.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", o.path, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", o.path, err)
	}
	return values, nil
}

func odometerValue(values map[string]interface{}) float64 {
	v, ok := values[OdometerKey].(float64)
	if !ok || v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
