package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WebSocket метрики
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)

	// MQTT метрики
	MQTTMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_mqtt_messages_received_total",
			Help: "Total number of MQTT sensor messages received",
		},
		[]string{"topic"},
	)

	MQTTParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_mqtt_parse_errors_total",
			Help: "Total number of MQTT sensor message parse errors",
		},
		[]string{"topic"},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recorder_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Сенсоры
	SensorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_sensor_events_total",
			Help: "Total number of sensor events processed by the engine",
		},
		[]string{"kind"},
	)

	SensorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_sensor_errors_total",
			Help: "Transient sensor errors (unavailable fix, denied authorization)",
		},
		[]string{"kind"},
	)

	// Режим движения и энергосбережение
	RegimeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_regime_transitions_total",
			Help: "Motion regime transitions by target regime",
		},
		[]string{"regime"},
	)

	PowerMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_power_mode",
			Help: "Current power saving mode (0 = off, 1 = normal, 2 = max)",
		},
	)

	AcquisitionDistanceFilter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_acquisition_distance_filter_meters",
			Help: "Distance filter pushed to the location provider",
		},
	)

	AcquisitionHeadingFilter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_acquisition_heading_filter_degrees",
			Help: "Heading filter pushed to the location provider",
		},
	)

	ConfigPushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_acquisition_config_pushes_total",
			Help: "Number of acquisition config updates pushed to the location provider",
		},
	)

	// Маршруты и хранилище
	RoutesRecording = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_route_recording",
			Help: "Whether a route is being recorded (1 = yes)",
		},
	)

	RouteSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_route_saves_total",
			Help: "Route save attempts by result",
		},
		[]string{"result"},
	)

	RouteLoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_route_load_errors_total",
			Help: "Route files skipped during load",
		},
	)

	RoutesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_routes_stored",
			Help: "Number of routes in the loaded collection",
		},
	)

	MigrationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_migrations_applied_total",
			Help: "Schema migrations applied to route files by target version",
		},
		[]string{"version"},
	)

	OdometerMeters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recorder_odometer_meters",
			Help: "Lifetime odometer value in meters",
		},
	)
)
