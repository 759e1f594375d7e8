package growatt_modbus

import (
	"time"

	"github.com/simonvetter/modbus"
)

// RegisterConn is a single Modbus TCP connection. *modbus.ModbusClient implements it.
type RegisterConn interface {
	Open() error
	Close() error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

// ConnectionFactory returns a new, not yet opened, connection on every call.
type ConnectionFactory func() (RegisterConn, error)

type ModbusClient struct {
	connect    ConnectionFactory
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readRegister(conn RegisterConn, addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return conn.ReadRegister(addr, regType)
}

func (reader ModbusClient) writeRegisters(conn RegisterConn, addr uint16, values []uint16) error {
	defer RecordTimer("WriteRegisters", reader.instrument)()
	return conn.WriteRegisters(addr, values)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			if instrument[i].RecordTime != nil {
				instrument[i].RecordTime(name, duration)
			}
		}
	}
}
