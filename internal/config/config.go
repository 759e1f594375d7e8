package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

var ErrConfigMissing = errors.New("missing required configuration")

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Host                       string
	Port                       uint
	UnitId                     uint   `mapstructure:"unit_id"`
	TimeoutMillis              uint32 `mapstructure:"timeout_millis"`
	ReadDelayAfterChangeMillis uint32 `mapstructure:"read_delay_after_change_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Host                    string
	Port                    int
	Username                string
	Password                string
	ClientId                string `mapstructure:"client_id"`
	BaseTopic               string `mapstructure:"base_topic"`
	ReconnectIntervalMillis uint32 `mapstructure:"reconnect_interval_millis"`
	HADiscoveryEnable       bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic        string `mapstructure:"ha_discovery_topic"`
}

func (c InverterModbusTCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c InverterModbusTCPConfig) ReadDelayAfterChange() time.Duration {
	return time.Duration(c.ReadDelayAfterChangeMillis) * time.Millisecond
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c MQTTConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMillis) * time.Millisecond
}

// Validate reports every absent required value at once, so a misconfigured
// deployment can be fixed in a single pass.
func (c Config) Validate() error {
	var missing []string
	if c.MQTT.Host == "" {
		missing = append(missing, "mqtt.host (MQTT_IP)")
	}
	if c.MQTT.Username == "" {
		missing = append(missing, "mqtt.username (MQTT_USER)")
	}
	if c.MQTT.Password == "" {
		missing = append(missing, "mqtt.password (MQTT_PASSWORD)")
	}
	if c.InverterModbusTcp.Host == "" {
		missing = append(missing, "inverter_modbus_tcp.host (INVERTER_IP)")
	}
	if c.InverterModbusTcp.Port == 0 {
		missing = append(missing, "inverter_modbus_tcp.port (INVERTER_PORT)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}

	// check bounds
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return errors.New("config param mqtt.port should be in 1..65535")
	}
	if c.InverterModbusTcp.Port > 65535 {
		return errors.New("config param inverter_modbus_tcp.port should be in 1..65535")
	}
	if c.InverterModbusTcp.UnitId > 247 {
		return errors.New("config param inverter_modbus_tcp.unit_id should be <= 247")
	}
	if c.MonitorConfig.PollIntervalMillis < 500 {
		return errors.New("config param monitor.poll_interval_millis should be >= 500")
	}
	if c.InverterModbusTcp.TimeoutMillis == 0 {
		return errors.New("config param inverter_modbus_tcp.timeout_millis should be > 0")
	}
	return nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	return c
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
