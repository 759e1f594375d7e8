package util

import (
	"github.com/berfenger/growatt2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:                       "-.-.-.-",
			Port:                       502,
			UnitId:                     1,
			TimeoutMillis:              2000,
			ReadDelayAfterChangeMillis: 0,
		},
		MQTT: config.MQTTConfig{
			Host:                    "localhost",
			Port:                    1883,
			Username:                "growatt",
			Password:                "growatt",
			BaseTopic:               "growatt_rs485",
			ReconnectIntervalMillis: 10000,
			HADiscoveryTopic:        "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
