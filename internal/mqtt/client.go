package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/filter"
	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// Client MQTT мост между сенсорами устройства и движком записи.
// Реализует провайдеры местоположения, ускорения и батареи.
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *utils.Logger
	parser *Parser

	mu        sync.RWMutex
	sink      engine.Sink
	connected bool
	lastFix   engine.Fix
	hasFix    bool
	battery   engine.BatteryState
	acqConfig *filter.AcquisitionConfig
	commands  map[string]CommandMessage // последняя команда по группе, повторяется при переподключении
}

var (
	_ engine.LocationProvider = (*Client)(nil)
	_ engine.MotionProvider   = (*Client)(nil)
	_ engine.BatteryProvider  = (*Client)(nil)
)

// NewClient создает MQTT клиент
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	c := &Client{
		config:   cfg,
		logger:   logger.WithField("component", "mqtt"),
		parser:   NewParser(cfg.TopicPrefix, logger),
		battery:  engine.BatteryState{Level: -1},
		commands: make(map[string]CommandMessage),
	}

	// Настройка MQTT клиента
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetOrderMatters(cfg.OrderMatters)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.logger.WithError(err).Warn("Lost connection to MQTT broker")
		metrics.MQTTConnectionStatus.Set(0)
	})

	c.client = mqtt.NewClient(opts)

	return c, nil
}

// SetSink задает получателя событий. До вызова события только кешируются.
func (c *Client) SetSink(sink engine.Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.WithField("broker", c.config.URL).Info("Connected to MQTT broker")
	metrics.MQTTConnectionStatus.Set(1)

	topic := c.config.TopicPrefix + "/+"
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		c.logger.WithError(token.Error()).WithField("topic", topic).Error("Failed to subscribe to topic")
	} else {
		c.logger.WithField("topic", topic).Info("Subscribed to MQTT topic")
	}

	c.replay()
}

// replay повторяет последнюю конфигурацию и команды после (пере)подключения
func (c *Client) replay() {
	c.mu.RLock()
	acq := c.acqConfig
	commands := make([]CommandMessage, 0, len(c.commands))
	for _, cmd := range c.commands {
		commands = append(commands, cmd)
	}
	c.mu.RUnlock()

	if acq != nil {
		if err := c.publishConfig(*acq); err != nil {
			c.logger.WithError(err).Warn("Failed to replay acquisition config")
		}
	}
	for _, cmd := range commands {
		if err := c.publishJSON(TopicCommand, cmd, false); err != nil {
			c.logger.WithError(err).WithField("command", cmd.Command).Warn("Failed to replay command")
		}
	}
}

// Connect подключается к MQTT брокеру
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.URL).Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Disconnect отключается от MQTT брокера
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	if c.client.IsConnected() {
		c.client.Disconnect(1000) // 1 секунда на graceful disconnect
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	metrics.MQTTConnectionStatus.Set(0)

	c.logger.Info("MQTT client disconnected")
}

// IsConnected проверяет статус подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// messageHandler обрабатывает сообщения синхронно, сохраняя порядок доставки
func (c *Client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.HandleMessage(msg.Topic(), msg.Payload())
}

// HandleMessage разбирает сообщение, обновляет кеш и передает событие движку
func (c *Client) HandleMessage(topic string, payload []byte) {
	ev, err := c.parser.Parse(topic, payload)
	if err != nil {
		c.logger.WithError(err).
			WithField("topic", topic).
			WithField("payload_size", len(payload)).
			Warn("Failed to parse sensor message")
		metrics.MQTTParseErrors.WithLabelValues(topic).Inc()
		return
	}
	metrics.MQTTMessagesReceived.WithLabelValues(topic).Inc()

	c.mu.Lock()
	switch e := ev.(type) {
	case engine.FixEvent:
		c.lastFix = e.Fix
		c.hasFix = true
	case engine.BatteryEvent:
		c.battery = e.State
	}
	sink := c.sink
	c.mu.Unlock()

	if sink == nil {
		c.logger.WithField("topic", topic).Debug("No sink attached, event cached only")
		return
	}
	sink.Publish(ev)
}

// StartUpdates просит устройство начать доставку местоположения
func (c *Client) StartUpdates() error {
	return c.sendCommand("location", CommandMessage{Command: CommandStartLocation})
}

// StopUpdates просит устройство остановить доставку местоположения
func (c *Client) StopUpdates() error {
	return c.sendCommand("location", CommandMessage{Command: CommandStopLocation})
}

// Configure публикует параметры получения координат (retained)
func (c *Client) Configure(cfg filter.AcquisitionConfig) error {
	c.mu.Lock()
	c.acqConfig = &cfg
	c.mu.Unlock()

	if !c.IsConnected() {
		c.logger.Debug("Acquisition config stored until connection")
		return nil
	}
	return c.publishConfig(cfg)
}

// LastFix последний полученный фикс
func (c *Client) LastFix() (engine.Fix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFix, c.hasFix
}

// StartAccelerometer запускает выборку ускорений с интервалом interval
func (c *Client) StartAccelerometer(interval time.Duration) error {
	return c.sendCommand("motion", CommandMessage{
		Command:    CommandStartAccelerometer,
		IntervalMs: interval.Milliseconds(),
	})
}

// StopAccelerometer останавливает выборку ускорений
func (c *Client) StopAccelerometer() error {
	return c.sendCommand("motion", CommandMessage{Command: CommandStopAccelerometer})
}

// Battery последнее известное состояние батареи
func (c *Client) Battery() engine.BatteryState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.battery
}

// AcquisitionConfig последняя переданная конфигурация
func (c *Client) AcquisitionConfig() (filter.AcquisitionConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.acqConfig == nil {
		return filter.AcquisitionConfig{}, false
	}
	return *c.acqConfig, true
}

func (c *Client) sendCommand(group string, cmd CommandMessage) error {
	c.mu.Lock()
	c.commands[group] = cmd
	c.mu.Unlock()

	if !c.IsConnected() {
		c.logger.WithField("command", cmd.Command).Debug("Command stored until connection")
		return nil
	}
	return c.publishJSON(TopicCommand, cmd, false)
}

func (c *Client) publishConfig(cfg filter.AcquisitionConfig) error {
	return c.publishJSON(TopicConfig, ConfigMessage{
		DistanceFilter:      cfg.DistanceFilter,
		HeadingFilter:       cfg.HeadingFilter,
		DesiredAccuracy:     cfg.DesiredAccuracy.String(),
		PausesAutomatically: cfg.PausesAutomatically,
	}, true)
}

func (c *Client) publishJSON(suffix string, v interface{}, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", suffix, err)
	}
	return c.PublishMessage(c.config.TopicPrefix+"/"+suffix, payload, 1, retained)
}

// GetStats возвращает статистику клиента
func (c *Client) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"connected":     c.connected,
		"client_id":     c.config.ClientID,
		"broker_url":    c.config.URL,
		"topic_prefix":  c.config.TopicPrefix,
		"clean_session": c.config.CleanSession,
		"has_fix":       c.hasFix,
	}
}

// PublishMessage отправляет сообщение в MQTT топик
func (c *Client) PublishMessage(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	c.logger.WithFields(map[string]interface{}{
		"topic":        topic,
		"payload_size": len(payload),
		"qos":          qos,
		"retained":     retained,
	}).Debug("Published MQTT message")

	return nil
}
