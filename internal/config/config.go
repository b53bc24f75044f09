package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Бэкенды одометра
const (
	OdometerBackendFile  = "file"
	OdometerBackendRedis = "redis"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	Storage     StorageConfig
	Engine      EngineConfig
	Performance PerformanceConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация локального HTTP API
type ServerConfig struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig конфигурация Redis (одометр)
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MQTTConfig конфигурация MQTT моста сенсоров
type MQTTConfig struct {
	Enabled      bool
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	OrderMatters bool
	TopicPrefix  string
}

// StorageConfig расположение данных на диске
type StorageConfig struct {
	DataDir         string
	RoutesDir       string
	SettingsFile    string
	OdometerBackend string
}

// EngineConfig настройки движка записи
type EngineConfig struct {
	HeadingInterval     time.Duration // троттлинг событий курса
	MotionInterval      time.Duration // интервал выборки ускорений
	AccelerationWindow  int
	SubscriberQueueSize int
}

// PerformanceConfig конфигурация производительности API
type PerformanceConfig struct {
	RateLimitRPS          float64
	RateLimitBurst        int
	WebSocketPingInterval time.Duration
	WebSocketPongTimeout  time.Duration
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", "127.0.0.1"),
			Port:         getEnv("SERVER_PORT", "8091"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 1),
		},
		MQTT: MQTTConfig{
			Enabled:      getBool("MQTT_ENABLED", true),
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "track-recorder"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", true),
			OrderMatters: getBool("MQTT_ORDER_MATTERS", true),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "recorder/device"),
		},
		Storage: StorageConfig{
			DataDir:         dataDir,
			RoutesDir:       getEnv("ROUTES_DIR", filepath.Join(dataDir, "routes")),
			SettingsFile:    getEnv("SETTINGS_FILE", filepath.Join(dataDir, "settings.yaml")),
			OdometerBackend: getEnv("ODOMETER_BACKEND", OdometerBackendFile),
		},
		Engine: EngineConfig{
			HeadingInterval:     getDuration("HEADING_INTERVAL", time.Second),
			MotionInterval:      getDuration("MOTION_INTERVAL", 200*time.Millisecond),
			AccelerationWindow:  getInt("ACCELERATION_WINDOW", 2),
			SubscriberQueueSize: getInt("SUBSCRIBER_QUEUE_SIZE", 64),
		},
		Performance: PerformanceConfig{
			RateLimitRPS:          getFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:        getInt("RATE_LIMIT_BURST", 40),
			WebSocketPingInterval: getDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			WebSocketPongTimeout:  getDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Storage.RoutesDir == "" {
		return fmt.Errorf("ROUTES_DIR is required")
	}

	switch c.Storage.OdometerBackend {
	case OdometerBackendFile:
	case OdometerBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for redis odometer backend")
		}
	default:
		return fmt.Errorf("ODOMETER_BACKEND must be %q or %q, got %q",
			OdometerBackendFile, OdometerBackendRedis, c.Storage.OdometerBackend)
	}

	if c.MQTT.Enabled && c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required when MQTT_ENABLED")
	}

	if c.Engine.HeadingInterval <= 0 {
		return fmt.Errorf("HEADING_INTERVAL must be positive")
	}
	if c.Engine.AccelerationWindow <= 0 {
		return fmt.Errorf("ACCELERATION_WINDOW must be positive")
	}
	if c.Engine.SubscriberQueueSize <= 0 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be positive")
	}

	if c.Performance.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	return nil
}

// ListenAddress адрес для http.Server
func (c *ServerConfig) ListenAddress() string {
	return c.Address + ":" + c.Port
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "text")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
