package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	for key, alias := range envAliases {
		t.Setenv(alias, "")
		t.Setenv(envName(key), "")
	}
}

func setLegacyEnv(t *testing.T) {
	t.Setenv("MQTT_IP", "broker.lan")
	t.Setenv("MQTT_USER", "growatt")
	t.Setenv("MQTT_PASSWORD", "secret")
	t.Setenv("INVERTER_IP", "10.100.10.216")
	t.Setenv("INVERTER_PORT", "4257")
}

func TestLoadLegacyEnvironment(t *testing.T) {

	require := require.New(t)

	clearEnv(t)
	setLegacyEnv(t)

	cfg, err := Load()
	require.NoError(err)

	require.Equal("broker.lan", cfg.MQTT.Host)
	require.Equal(1883, cfg.MQTT.Port, "mqtt port defaults to 1883")
	require.Equal("growatt", cfg.MQTT.Username)
	require.Equal("secret", cfg.MQTT.Password)
	require.Equal("10.100.10.216", cfg.InverterModbusTcp.Host)
	require.EqualValues(4257, cfg.InverterModbusTcp.Port)
	require.EqualValues(1, cfg.InverterModbusTcp.UnitId)
	require.Equal("growatt_rs485", cfg.MQTT.BaseTopic)
	require.Equal(5*time.Second, cfg.MonitorConfig.PollInterval())
	require.Equal(2*time.Second, cfg.InverterModbusTcp.Timeout())
	require.Equal(zap.WarnLevel, cfg.LogLevel)
}

func TestPrefixedEnvironmentWins(t *testing.T) {

	clearEnv(t)
	setLegacyEnv(t)
	t.Setenv("GROWATT_MQTT_HOST", "mosquitto")
	t.Setenv("GROWATT_MQTT_PORT", "8883")
	t.Setenv("GROWATT_MONITOR_POLL_INTERVAL_MILLIS", "2500")
	t.Setenv("GROWATT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mosquitto", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.MonitorConfig.PollInterval())
	assert.Equal(t, zap.DebugLevel, cfg.LogLevel)
}

func TestLoadFailsFastOnMissingValues(t *testing.T) {

	clearEnv(t)
	t.Setenv("MQTT_IP", "broker.lan")
	t.Setenv("INVERTER_PORT", "502")

	cfg, err := Load()
	require.ErrorIs(t, err, ErrConfigMissing)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "MQTT_USER")
	assert.Contains(t, err.Error(), "MQTT_PASSWORD")
	assert.Contains(t, err.Error(), "INVERTER_IP")
	assert.NotContains(t, err.Error(), "MQTT_IP")
	assert.NotContains(t, err.Error(), "INVERTER_PORT")
}

func TestLoadYAMLFile(t *testing.T) {

	clearEnv(t)

	cfgFile := filepath.Join(t.TempDir(), "cfg.yml")
	err := os.WriteFile(cfgFile, []byte(`
log_level: info
mqtt:
  host: 192.168.1.10
  username: user
  password: pass
  base_topic: Garage_Inverter
  ha_discovery_enable: true
inverter_modbus_tcp:
  host: 192.168.1.20
  port: 502
  unit_id: 3
monitor:
  poll_interval_millis: 10000
`), 0o600)
	require.NoError(t, err)
	t.Setenv("CONFIG_FILE", cfgFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "garage_inverter", cfg.MQTT.BaseTopic, "base topic is lower-cased")
	assert.True(t, cfg.MQTT.HADiscoveryEnable)
	assert.EqualValues(t, 3, cfg.InverterModbusTcp.UnitId)
	assert.Equal(t, 10*time.Second, cfg.MonitorConfig.PollInterval())
	assert.Equal(t, zap.InfoLevel, cfg.LogLevel)
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {

	clearEnv(t)
	setLegacyEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yml"))

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidBaseTopic(t *testing.T) {

	clearEnv(t)
	setLegacyEnv(t)
	t.Setenv("GROWATT_MQTT_BASE_TOPIC", "growatt/#")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateBounds(t *testing.T) {

	cfg := Config{
		InverterModbusTcp: InverterModbusTCPConfig{Host: "inverter", Port: 502, UnitId: 1, TimeoutMillis: 1000},
		MQTT:              MQTTConfig{Host: "broker", Port: 1883, Username: "u", Password: "p"},
		MonitorConfig:     MonitorConfig{PollIntervalMillis: 5000},
	}
	require.NoError(t, cfg.Validate())

	tooFast := cfg
	tooFast.MonitorConfig.PollIntervalMillis = 100
	assert.Error(t, tooFast.Validate())

	badUnit := cfg
	badUnit.InverterModbusTcp.UnitId = 300
	assert.Error(t, badUnit.Validate())

	badPort := cfg
	badPort.MQTT.Port = 0
	assert.Error(t, badPort.Validate())
}

func TestRedacted(t *testing.T) {

	cfg := Config{MQTT: MQTTConfig{Username: "user", Password: "pass"}}
	redacted := cfg.Redacted()

	assert.Equal(t, "*redacted*", redacted.MQTT.Password)
	assert.Equal(t, "*redacted*", redacted.MQTT.Username)
	assert.Equal(t, "pass", cfg.MQTT.Password, "original untouched")
}

func TestCheckMQTTTopic(t *testing.T) {

	topic, err := CheckMQTTTopic("Growatt_RS485")
	require.NoError(t, err)
	assert.Equal(t, "growatt_rs485", topic)

	_, err = CheckMQTTTopic("growatt/rs485")
	assert.Error(t, err)

	_, err = CheckMQTTTopic("")
	assert.Error(t, err)
}
