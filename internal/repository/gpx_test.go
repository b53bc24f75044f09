package repository

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/track-recorder/internal/models"
)

const trackGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Lunch loop</name>
    <trkseg>
      <trkpt lat="60.1699" lon="24.9384"><ele>12.3</ele><time>2024-06-01T10:00:00Z</time></trkpt>
      <trkpt lat="60.1700" lon="24.9390"><ele>12.8</ele><time>2024-06-01T10:00:10Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="60.1710" lon="24.9400"><time>2024-06-01T10:01:00Z</time></trkpt>
    </trkseg>
  </trk>
  <wpt lat="1" lon="1"></wpt>
</gpx>`

const waypointGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="46.0" lon="8.0"><ele>1500</ele></wpt>
  <wpt lat="46.1" lon="8.1"><ele>1600</ele></wpt>
</gpx>`

func TestImportGPX_Track(t *testing.T) {
	fallback := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	route, err := ImportGPX(strings.NewReader(trackGPX), "", fallback)
	require.NoError(t, err)

	assert.Equal(t, "Lunch loop", route.Name)
	require.Len(t, route.Points, 3, "track points win over waypoints")

	first := route.Points[0]
	assert.Equal(t, 60.1699, first.Latitude)
	assert.Equal(t, 24.9384, first.Longitude)
	assert.Equal(t, 12.3, first.Altitude)
	assert.Zero(t, first.Speed)
	assert.Zero(t, first.Heading)
	assert.Zero(t, route.Points[2].Altitude)

	assert.True(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC).Equal(route.StartDate))
	require.NotNil(t, route.EndDate)
	assert.True(t, time.Date(2024, 6, 1, 10, 1, 0, 0, time.UTC).Equal(*route.EndDate))
	assert.InDelta(t, models.TotalDistance(route.Points), route.Distance, 1e-9)
	assert.Equal(t, models.ActivityOther, route.ActivityType)
}

func TestImportGPX_WaypointsWithoutTime(t *testing.T) {
	fallback := time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)

	route, err := ImportGPX(strings.NewReader(waypointGPX), "Alps", fallback)
	require.NoError(t, err)

	assert.Equal(t, "Alps", route.Name)
	require.Len(t, route.Points, 2)
	assert.Equal(t, 1600.0, route.Points[1].Altitude)
	assert.True(t, fallback.Equal(route.StartDate))
	assert.Greater(t, route.Distance, 10000.0)
}

func TestImportGPX_Empty(t *testing.T) {
	empty := `<?xml version="1.0"?><gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"></gpx>`

	_, err := ImportGPX(strings.NewReader(empty), "", time.Now())
	assert.ErrorIs(t, err, ErrEmptyTrack)

	_, err = ImportGPX(strings.NewReader("definitely not xml"), "", time.Now())
	assert.Error(t, err)
}

func TestExportImportGPX_RoundTrip(t *testing.T) {
	route := sealedRoute("export", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), 5)

	var buf bytes.Buffer
	require.NoError(t, ExportGPX(&buf, route))
	assert.Contains(t, buf.String(), "<trkpt")
	assert.Contains(t, buf.String(), "export")

	imported, err := ImportGPX(&buf, "", time.Now())
	require.NoError(t, err)

	assert.Equal(t, route.Name, imported.Name)
	require.Len(t, imported.Points, len(route.Points))
	for i := range route.Points {
		assert.InDelta(t, route.Points[i].Latitude, imported.Points[i].Latitude, 1e-9)
		assert.InDelta(t, route.Points[i].Longitude, imported.Points[i].Longitude, 1e-9)
		assert.InDelta(t, route.Points[i].Altitude, imported.Points[i].Altitude, 1e-9)
		assert.True(t, route.Points[i].Timestamp.Equal(imported.Points[i].Timestamp))
	}
	assert.InDelta(t, route.Distance, imported.Distance, 1e-6)
}
