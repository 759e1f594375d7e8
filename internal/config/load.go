package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "growatt"

var ErrConfigFile = errors.New("unreadable config file")

// variable names of the legacy container deployment, accepted next to
// the GROWATT_* ones
var envAliases = map[string]string{
	"mqtt.host":                "MQTT_IP",
	"mqtt.port":                "MQTT_PORT",
	"mqtt.username":            "MQTT_USER",
	"mqtt.password":            "MQTT_PASSWORD",
	"inverter_modbus_tcp.host": "INVERTER_IP",
	"inverter_modbus_tcp.port": "INVERTER_PORT",
	"port":                     "PORT",
}

func Load() (*Config, error) {
	v := viper.New()

	setConfigDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, envName(key), alias); err != nil {
			return nil, err
		}
	}

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
		}
		slog.Info("Using config", "file", cfgFile)
		v.SetConfigFile(cfgFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.base_topic", "growatt_rs485")
	v.SetDefault("mqtt.reconnect_interval_millis", 10000)
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("inverter_modbus_tcp.unit_id", 1)
	v.SetDefault("inverter_modbus_tcp.timeout_millis", 2000)
	v.SetDefault("inverter_modbus_tcp.read_delay_after_change_millis", 1000)
	v.SetDefault("monitor.poll_interval_millis", 5000)
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func envName(key string) string {
	return strings.ToUpper(ENV_PREFIX + "_" + strings.ReplaceAll(key, ".", "_"))
}
