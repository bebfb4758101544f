package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/eddielth/edge-nodes/logger"
)

// Endpoint roles selectable with the top-level "role" key.
const (
	RoleTelemetry = "telemetry"
	RoleSwitch    = "switch"
	RoleCollector = "collector"
)

// Telemetry scheduling modes.
const (
	ModeInline  = "inline"
	ModeOneshot = "oneshot"
)

// envPrefix is prepended to environment overrides, e.g. EDGE_MQTT_PASSWORD.
const envPrefix = "EDGE"

// Config is the root configuration of an edge node.
type Config struct {
	Role      string          `mapstructure:"role"`
	Network   NetworkConfig   `mapstructure:"network"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Switch    SwitchConfig    `mapstructure:"switch"`
	Collector CollectorConfig `mapstructure:"collector"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// NetworkConfig holds the credentials and link settings used to join the network.
type NetworkConfig struct {
	SSID        string      `mapstructure:"ssid"`
	Password    string      `mapstructure:"password"`
	Interface   string      `mapstructure:"interface"`
	JoinCommand []string    `mapstructure:"join_command"`
	Retry       RetryConfig `mapstructure:"retry"`
}

// RetryConfig bounds the wait for network association. MaxAttempts 0 waits forever.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxInterval    time.Duration `mapstructure:"max_interval"`
	Multiplier     float64       `mapstructure:"multiplier"`
	RejoinInterval time.Duration `mapstructure:"rejoin_interval"`
}

// MQTTConfig describes the broker endpoint shared by every role.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	Port           int           `mapstructure:"port"`
	Protocol       int           `mapstructure:"protocol"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// URL returns the broker address in the tcp://host:port form paho expects.
func (m MQTTConfig) URL() string {
	if strings.Contains(m.Broker, "://") {
		return m.Broker
	}
	return fmt.Sprintf("tcp://%s:%d", m.Broker, m.Port)
}

// TelemetryConfig configures the sensor publishing endpoint.
type TelemetryConfig struct {
	Topic       string            `mapstructure:"topic"`
	ClientID    string            `mapstructure:"client_id"`
	Mode        string            `mapstructure:"mode"`
	Suspend     time.Duration     `mapstructure:"suspend"`
	Settle      time.Duration     `mapstructure:"settle"`
	Indicator   PinConfig         `mapstructure:"indicator"`
	Sensor      SensorConfig      `mapstructure:"sensor"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Limits      LimitsConfig      `mapstructure:"limits"`
}

// SwitchConfig configures the command-actuated switch endpoint.
type SwitchConfig struct {
	Topic      string        `mapstructure:"topic"`
	ClientID   string        `mapstructure:"client_id"`
	OnCommand  string        `mapstructure:"on_command"`
	OffCommand string        `mapstructure:"off_command"`
	Settle     time.Duration `mapstructure:"settle"`
	Output     PinConfig     `mapstructure:"output"`
}

// CollectorConfig configures the telemetry collector.
type CollectorConfig struct {
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// PinConfig identifies a GPIO line.
type PinConfig struct {
	Pin       int  `mapstructure:"pin"`
	ActiveLow bool `mapstructure:"active_low"`
}

// GPIOConfig points at the sysfs GPIO tree.
type GPIOConfig struct {
	Root string `mapstructure:"root"`
}

// SensorConfig locates the environmental sensor and the bus it sits on.
type SensorConfig struct {
	Device  string `mapstructure:"device"`
	BusRoot string `mapstructure:"bus_root"`
	Bus     int    `mapstructure:"bus"`
}

// CalibrationConfig is an optional JavaScript calibration applied to readings.
type CalibrationConfig struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// Enabled reports whether a calibration script was configured.
func (c CalibrationConfig) Enabled() bool {
	return c.ScriptPath != "" || c.ScriptCode != ""
}

// LimitsConfig holds the plausible range of each reading field.
type LimitsConfig struct {
	Temperature RangeConfig `mapstructure:"temperature"`
	Humidity    RangeConfig `mapstructure:"humidity"`
	Pressure    RangeConfig `mapstructure:"pressure"`
}

// RangeConfig is an inclusive [Min, Max] interval.
type RangeConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// LoggerConfig 表示日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// StorageConfig 表示存储配置
type StorageConfig struct {
	File     FileStorageConfig     `mapstructure:"file"`
	Database DatabaseStorageConfig `mapstructure:"database"`
	InfluxDB InfluxDBStorageConfig `mapstructure:"influxdb"`
}

// FileStorageConfig 表示文件存储配置
type FileStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DatabaseStorageConfig 表示数据库存储配置
type DatabaseStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
	DSN     string `mapstructure:"dsn"`
}

// InfluxDBStorageConfig holds InfluxDB v2 write settings.
type InfluxDBStorageConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// ConfigChangeCallback 是配置文件变更时的回调函数类型
type ConfigChangeCallback func(cfg *Config) error

// setDefaults registers the values a device falls back to when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("role", RoleTelemetry)

	// Empty defaults register the keys so EDGE_* overrides reach Unmarshal.
	for _, key := range []string{
		"network.ssid", "network.password",
		"mqtt.broker", "mqtt.client_id", "mqtt.username", "mqtt.password",
		"telemetry.client_id", "switch.client_id", "collector.client_id",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("network.interface", "wlan0")
	v.SetDefault("network.retry.max_attempts", 0)
	v.SetDefault("network.retry.interval", "100ms")
	v.SetDefault("network.retry.multiplier", 1.0)
	v.SetDefault("network.retry.rejoin_interval", "5s")

	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.protocol", 4)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("telemetry.topic", "BME")
	v.SetDefault("telemetry.mode", ModeOneshot)
	v.SetDefault("telemetry.suspend", "30m")
	v.SetDefault("telemetry.settle", "50ms")
	v.SetDefault("telemetry.indicator.pin", 25)
	v.SetDefault("telemetry.sensor.device", "/sys/bus/iio/devices/iio:device0")
	v.SetDefault("telemetry.sensor.bus_root", "/sys/bus/i2c/devices")
	v.SetDefault("telemetry.sensor.bus", 1)
	v.SetDefault("telemetry.limits.temperature.min", -40.0)
	v.SetDefault("telemetry.limits.temperature.max", 85.0)
	v.SetDefault("telemetry.limits.humidity.min", 0.0)
	v.SetDefault("telemetry.limits.humidity.max", 100.0)
	v.SetDefault("telemetry.limits.pressure.min", 300.0)
	v.SetDefault("telemetry.limits.pressure.max", 1100.0)

	v.SetDefault("switch.topic", "AC")
	v.SetDefault("switch.on_command", "rsw03_on")
	v.SetDefault("switch.off_command", "rsw03_off")
	v.SetDefault("switch.settle", "50ms")
	v.SetDefault("switch.output.pin", 13)

	v.SetDefault("collector.topic", "BME")

	v.SetDefault("gpio.root", "/sys/class/gpio")

	v.SetDefault("storage.influxdb.measurement", "environment")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.console", true)
}

// newViper returns a viper instance bound to configPath with defaults and env overrides.
func newViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig 从指定路径加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	return decode(v)
}

// Validate checks the settings the active role depends on.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker address cannot be empty")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos %d out of range", c.MQTT.QoS)
	}
	if c.MQTT.Protocol != 4 && c.MQTT.Protocol != 5 {
		return fmt.Errorf("unsupported mqtt protocol version: %d", c.MQTT.Protocol)
	}

	switch c.Role {
	case RoleTelemetry:
		if c.Telemetry.Topic == "" {
			return fmt.Errorf("telemetry topic cannot be empty")
		}
		if c.Telemetry.Mode != ModeInline && c.Telemetry.Mode != ModeOneshot {
			return fmt.Errorf("unknown telemetry mode: %s", c.Telemetry.Mode)
		}
		if c.Telemetry.Mode == ModeInline && c.Telemetry.Suspend <= 0 {
			return fmt.Errorf("telemetry suspend must be positive")
		}
	case RoleSwitch:
		if c.Switch.Topic == "" {
			return fmt.Errorf("switch topic cannot be empty")
		}
		if c.Switch.OnCommand == "" || c.Switch.OffCommand == "" {
			return fmt.Errorf("switch commands cannot be empty")
		}
		if c.Switch.OnCommand == c.Switch.OffCommand {
			return fmt.Errorf("switch on and off commands must differ")
		}
	case RoleCollector:
		if c.Collector.Topic == "" {
			return fmt.Errorf("collector topic cannot be empty")
		}
	default:
		return fmt.Errorf("unknown role: %q", c.Role)
	}

	// The MQTT 5 transport only publishes.
	if c.MQTT.Protocol == 5 && c.Role != RoleTelemetry {
		return fmt.Errorf("mqtt protocol 5 is only supported for the telemetry role")
	}

	// Co-located endpoints share one broker; identical ids would evict each other.
	if id := c.Telemetry.ClientID; id != "" && (id == c.Switch.ClientID || id == c.Collector.ClientID) {
		return fmt.Errorf("client id %q is used by more than one endpoint", id)
	}
	if id := c.Switch.ClientID; id != "" && id == c.Collector.ClientID {
		return fmt.Errorf("client id %q is used by more than one endpoint", id)
	}

	if c.Network.Retry.MaxAttempts < 0 {
		return fmt.Errorf("network retry max_attempts cannot be negative")
	}
	return nil
}

// ClientID returns the broker client identifier for the active role.
// A role-specific id wins over the shared mqtt.client_id.
func (c *Config) ClientID() string {
	switch c.Role {
	case RoleTelemetry:
		if c.Telemetry.ClientID != "" {
			return c.Telemetry.ClientID
		}
	case RoleSwitch:
		if c.Switch.ClientID != "" {
			return c.Switch.ClientID
		}
	case RoleCollector:
		if c.Collector.ClientID != "" {
			return c.Collector.ClientID
		}
	}
	return c.MQTT.ClientID
}

// WatchConfig 监听配置文件变化并调用回调函数
func WatchConfig(configPath string, callback ConfigChangeCallback) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}

	v := newViper(absPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", absPath, err)
	}

	// 防抖动处理，避免短时间内多次触发
	var lastChangeTime time.Time
	debounceInterval := 2 * time.Second

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) {
			return
		}
		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			return
		}
		lastChangeTime = now

		logger.Info("config file changed: %s", e.Name)

		newConfig, err := decode(v)
		if err != nil {
			logger.Warn("rejecting updated config: %v", err)
			return
		}

		if err := callback(newConfig); err != nil {
			logger.Error("failed to apply updated config: %v", err)
		}
	})
	v.WatchConfig()

	return nil
}
