package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/motion"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	p := NewParser("recorder/device/", utils.NewNopLogger())
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestParser_Kind(t *testing.T) {
	parser := newTestParser()

	tests := []struct {
		name        string
		topic       string
		expected    string
		expectError bool
	}{
		{name: "Location", topic: "recorder/device/location", expected: KindLocation},
		{name: "Battery", topic: "recorder/device/battery", expected: KindBattery},
		{name: "Wrong prefix", topic: "fb/b/ABC123/f/1", expectError: true},
		{name: "Nested", topic: "recorder/device/location/extra", expectError: true},
		{name: "Outgoing config", topic: "recorder/device/config", expectError: true},
		{name: "Empty kind", topic: "recorder/device/", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := parser.Kind(tt.topic)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrUnknownTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestParser_Location(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/location",
		[]byte(`{"lat":45.5,"lon":7.25,"alt":320,"speed":4.2,"accuracy":8,"course":91.5,"timestamp":"2024-06-01T12:00:00+02:00"}`))
	require.NoError(t, err)

	fix, ok := ev.(engine.FixEvent)
	require.True(t, ok)
	assert.Equal(t, 45.5, fix.Fix.Latitude)
	assert.Equal(t, 7.25, fix.Fix.Longitude)
	assert.Equal(t, 320.0, fix.Fix.Altitude)
	assert.Equal(t, 4.2, fix.Fix.Speed)
	assert.Equal(t, 8.0, fix.Fix.HorizontalAccuracy)
	assert.Equal(t, 91.5, fix.Fix.Course)
	assert.Equal(t, fixedNow, fix.Fix.Timestamp)
}

func TestParser_LocationDefaults(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/location", []byte(`{"lat":45.5,"lon":7.25}`))
	require.NoError(t, err)

	fix := ev.(engine.FixEvent).Fix
	assert.Equal(t, -1.0, fix.HorizontalAccuracy)
	assert.Equal(t, -1.0, fix.Course)
	assert.Equal(t, fixedNow, fix.Timestamp)
}

func TestParser_LocationErrors(t *testing.T) {
	parser := newTestParser()

	payloads := map[string]string{
		"Missing lat":  `{"lon":7.25}`,
		"Out of range": `{"lat":95,"lon":7.25}`,
		"Not JSON":     `lat=45`,
		"Empty":        ``,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			ev, err := parser.Parse("recorder/device/location", []byte(payload))
			assert.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}

func TestParser_Heading(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/heading", []byte(`{"true_heading":181.5}`))
	require.NoError(t, err)
	assert.Equal(t, engine.HeadingEvent{TrueHeading: 181.5, Timestamp: fixedNow}, ev)

	_, err = parser.Parse("recorder/device/heading", []byte(`{"true_heading":-1}`))
	assert.Error(t, err)
}

func TestParser_Motion(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/motion", []byte(`{"x":0.3,"y":0.4,"z":0}`))
	require.NoError(t, err)
	assert.Equal(t, engine.AccelerationEvent{Vector: motion.Vector{X: 0.3, Y: 0.4}}, ev)
}

func TestParser_Battery(t *testing.T) {
	parser := newTestParser()

	tests := []struct {
		name     string
		payload  string
		expected engine.BatteryState
	}{
		{name: "Level", payload: `{"level":0.42}`, expected: engine.BatteryState{Level: 0.42}},
		{name: "Charging", payload: `{"level":0.9,"charging":true}`, expected: engine.BatteryState{Level: 0.9, Charging: true}},
		{name: "Unknown level", payload: `{"charging":true}`, expected: engine.BatteryState{Level: -1, Charging: true}},
		{name: "Negative level", payload: `{"level":-1}`, expected: engine.BatteryState{Level: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parser.Parse("recorder/device/battery", []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, engine.BatteryEvent{State: tt.expected}, ev)
		})
	}

	_, err := parser.Parse("recorder/device/battery", []byte(`{"level":42}`))
	assert.Error(t, err)
}

func TestParser_Authorization(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/authorization", []byte(`{"status":"authorized_when_in_use"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.AuthorizationEvent{Status: engine.AuthorizationAuthorized}, ev)

	ev, err = parser.Parse("recorder/device/authorization", []byte(`{"status":"whatever"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.AuthorizationEvent{Status: engine.AuthorizationNotDetermined}, ev)
}

func TestParser_Error(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("recorder/device/error", []byte(`{"message":"location unknown"}`))
	require.NoError(t, err)

	sensorErr, ok := ev.(engine.SensorErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "device", sensorErr.Source)
	assert.EqualError(t, sensorErr.Err, "location unknown")
}
