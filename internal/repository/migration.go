package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/track-recorder/internal/models"
)

// CurrentSchemaVersion версия схемы, в которой пишутся новые записи
const CurrentSchemaVersion = 3

const schemaVersionKey = "schemaVersion"

// referenceDate эпоха числовых дат в ранних записях (секунды с 2001-01-01 UTC)
var referenceDate = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

type record = map[string]interface{}

// migration переход схемы на version
type migration struct {
	version int
	name    string
	apply   func(rec record) error
}

var migrations = []migration{
	{version: 1, name: "point_ids", apply: backfillPointIDs},
	{version: 2, name: "activity_type", apply: normalizeActivityType},
	{version: 3, name: "timestamps", apply: convertReferenceDates},
}

// MigrationResult результат миграции записи
type MigrationResult struct {
	Data        []byte
	FromVersion int
	Applied     []int
}

// Changed была ли запись изменена
func (r MigrationResult) Changed() bool {
	return len(r.Applied) > 0
}

// MigrateRecord приводит сырую запись маршрута к текущей схеме.
// Повторный запуск на результате ничего не меняет.
func MigrateRecord(data []byte) (MigrationResult, error) {
	rec, err := decodeGeneric(data)
	if err != nil {
		return MigrationResult{}, err
	}

	version, err := schemaVersion(rec)
	if err != nil {
		return MigrationResult{}, err
	}

	result := MigrationResult{Data: data, FromVersion: version}
	if version > CurrentSchemaVersion {
		return result, fmt.Errorf("%w: schema version %d is newer than supported %d", ErrInvalidRecord, version, CurrentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := m.apply(rec); err != nil {
			return result, fmt.Errorf("migration %s (v%d): %w", m.name, m.version, err)
		}
		rec[schemaVersionKey] = m.version
		result.Applied = append(result.Applied, m.version)
	}

	if !result.Changed() {
		return result, nil
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to encode migrated record: %w", err)
	}
	result.Data = out
	return result, nil
}

func decodeGeneric(data []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrInvalidRecord)
	}
	return rec, nil
}

func schemaVersion(rec record) (int, error) {
	raw, ok := rec[schemaVersionKey]
	if !ok || raw == nil {
		return 0, nil
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRecord, schemaVersionKey)
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: bad %s %q", ErrInvalidRecord, schemaVersionKey, n.String())
	}
	return int(v), nil
}

// points возвращает точки записи как объекты
func points(rec record) ([]record, error) {
	raw, ok := rec["points"]
	if !ok || raw == nil {
		rec["points"] = []interface{}{}
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("points must be an array")
	}
	out := make([]record, 0, len(list))
	for i, item := range list {
		p, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("point %d must be an object", i)
		}
		out = append(out, p)
	}
	return out, nil
}

// v1: у точек не было собственных id
func backfillPointIDs(rec record) error {
	pts, err := points(rec)
	if err != nil {
		return err
	}
	for _, p := range pts {
		if id, ok := p["id"].(string); ok && id != "" {
			continue
		}
		p["id"] = uuid.NewString()
	}
	return nil
}

// v2: activityType бывал нулем, пустой строкой, отсутствовал или хранился как {"activity": N}
func normalizeActivityType(rec record) error {
	rec["activityType"] = uint(flattenActivity(rec["activityType"]))
	return nil
}

func flattenActivity(raw interface{}) models.ActivityType {
	switch v := raw.(type) {
	case json.Number:
		return activityFromFloat(v.String())
	case string:
		return activityFromFloat(strings.TrimSpace(v))
	case map[string]interface{}:
		if inner, ok := v["activity"]; ok {
			return flattenActivity(inner)
		}
	}
	return models.ActivityOther
}

func activityFromFloat(s string) models.ActivityType {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxUint32 {
		return models.ActivityOther
	}
	activity := models.ActivityType(uint(f))
	if !activity.IsValid() {
		return models.ActivityOther
	}
	return activity
}

// v3: даты хранились числом секунд от referenceDate
func convertReferenceDates(rec record) error {
	for _, key := range []string{"startDate", "endDate"} {
		converted, err := convertDate(rec[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if converted != nil {
			rec[key] = converted
		}
	}

	pts, err := points(rec)
	if err != nil {
		return err
	}
	for i, p := range pts {
		converted, err := convertDate(p["timestamp"])
		if err != nil {
			return fmt.Errorf("point %d timestamp: %w", i, err)
		}
		if converted != nil {
			p["timestamp"] = converted
		}
	}
	return nil
}

// convertDate возвращает RFC 3339 строку для числовой даты, nil если значение не числовое
func convertDate(raw interface{}) (interface{}, error) {
	n, ok := raw.(json.Number)
	if !ok {
		return nil, nil
	}
	seconds, err := n.Float64()
	if err != nil {
		return nil, err
	}
	whole, frac := math.Modf(seconds)
	ts := referenceDate.Add(time.Duration(whole) * time.Second).Add(time.Duration(math.Round(frac*1e9)))
	return ts.Format(time.RFC3339Nano), nil
}
