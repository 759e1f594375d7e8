package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "growatt2mqtt"

const (
	RESULT_OK      = "ok"
	RESULT_ERROR   = "error"
	RESULT_UNKNOWN = "unknown_mode"
)

// Metrics groups the bridge collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	polls          *prometheus.CounterVec
	commands       *prometheus.CounterVec
	modbusDuration *prometheus.HistogramVec
	mqttConnected  prometheus.Gauge
	chargeMode     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_mode_polls_total",
			Help:      "Inverter mode polls by result",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_commands_total",
			Help:      "Charge commands applied by command and result",
		}, []string{"command", "result"}),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_operation_duration_seconds",
			Help:      "Duration of Modbus operations",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT session is connected",
		}),
		chargeMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_mode",
			Help:      "Last value read from the inverter mode register",
		}),
	}
	m.registry.MustRegister(
		m.polls,
		m.commands,
		m.modbusDuration,
		m.mqttConnected,
		m.chargeMode,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncPoll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) SetInverterMode(value uint16) {
	if m == nil {
		return
	}
	m.chargeMode.Set(float64(value))
}

func (m *Metrics) SetMQTTConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.mqttConnected.Set(1)
	} else {
		m.mqttConnected.Set(0)
	}
}

func (m *Metrics) ObserveModbus(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.modbusDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ModbusInstrument feeds Modbus client timings into the duration histogram.
func (m *Metrics) ModbusInstrument() *growatt_modbus.ModbusInstrument {
	if m == nil {
		return nil
	}
	return &growatt_modbus.ModbusInstrument{
		RecordTime: m.ObserveModbus,
	}
}
