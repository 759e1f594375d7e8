package growatt_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var (
	ErrModbusConnect = errors.New("modbus: connect failed")
	ErrModbusIO      = errors.New("modbus: register i/o failed")
)

type InverterClient interface {
	ReadInverterMode() (uint16, error)
	WriteRegisters(writes ...RegisterWrite) error
}

type ClientConfig struct {
	Host    string
	Port    uint
	UnitId  uint8
	Timeout time.Duration
}

// GrowattModbusClient never keeps a connection between operations: each call
// dials the gateway, does its register I/O and closes the socket again.
type GrowattModbusClient struct {
	ModbusClient

	logger *zap.Logger
}

func (inv GrowattModbusClient) ReadInverterMode() (uint16, error) {
	var mode uint16
	err := inv.withConnection(func(conn RegisterConn) error {
		value, err := inv.readRegister(conn, RegInverterMode, modbus.HOLDING_REGISTER)
		if err != nil {
			return fmt.Errorf("%w: read register %d: %w", ErrModbusIO, RegInverterMode, err)
		}
		mode = value
		return nil
	})
	if err != nil {
		return 0, err
	}
	inv.logger.Debug("modbus: inverter mode", zap.Uint16("value", mode), zap.String("mode", InverterModeToString(mode)))
	return mode, nil
}

// WriteRegisters writes each schedule in order and stops at the first failure.
func (inv GrowattModbusClient) WriteRegisters(writes ...RegisterWrite) error {
	return inv.withConnection(func(conn RegisterConn) error {
		for _, w := range writes {
			if err := inv.writeRegisters(conn, w.Address, w.Value[:]); err != nil {
				return fmt.Errorf("%w: write register %d: %w", ErrModbusIO, w.Address, err)
			}
			inv.logger.Debug("modbus: register written", zap.Stringer("write", w), zap.Stringer("window", w.Value))
		}
		return nil
	})
}

func (inv GrowattModbusClient) withConnection(fn func(conn RegisterConn) error) error {
	conn, err := inv.connect()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModbusConnect, err)
	}
	defer RecordTimer("Session", inv.instrument)()
	if err := conn.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrModbusConnect, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			inv.logger.Warn("modbus: close failed", zap.Error(err))
		}
	}()
	return fn(conn)
}

func TCPConnectionFactory(cfg ClientConfig) ConnectionFactory {
	return func() (RegisterConn, error) {
		client, err := modbus.NewClient(&modbus.ClientConfiguration{
			URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if cfg.UnitId > 0 {
			if err := client.SetUnitId(cfg.UnitId); err != nil {
				return nil, err
			}
		}
		return client, nil
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus timing", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func NewGrowattModbusClient(factory ConnectionFactory, logger *zap.Logger, instrumentation *ModbusInstrument) *GrowattModbusClient {
	var inst []ModbusInstrument
	if logInst := debugLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &GrowattModbusClient{
		ModbusClient: ModbusClient{
			connect:    factory,
			instrument: inst,
		},
		logger: logger,
	}
}

func CreateGrowattModbusClient(cfg ClientConfig, logger *zap.Logger, instrumentation *ModbusInstrument) InverterClient {
	return NewGrowattModbusClient(TCPConnectionFactory(cfg),
		logger.With(zap.String("target", "inverter"), zap.String("gateway", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)), zap.Uint8("unit", cfg.UnitId)),
		instrumentation)
}

// ensure interface compliance
var _ InverterClient = (*GrowattModbusClient)(nil)
var _ RegisterConn = (*modbus.ModbusClient)(nil)
