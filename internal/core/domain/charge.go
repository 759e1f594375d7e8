package domain

import (
	"errors"

	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"
)

var (
	ErrUnknownModeValue      = errors.New("unknown inverter mode value")
	ErrInvalidCommandPayload = errors.New("invalid charge command payload")
)

// payloads of the charge state and command topics
const (
	CHARGE_PAYLOAD_ON      = "on"
	CHARGE_PAYLOAD_OFF     = "off"
	CHARGE_PAYLOAD_UNKNOWN = "unknown"
	// accepted command aliases
	CHARGE_PAYLOAD_CHARGE    = "charge"
	CHARGE_PAYLOAD_DISCHARGE = "discharge"
)

// ChargeMode is the inverter priority mode reported by holding register 1044.
type ChargeMode int

const (
	ChargeModeUnknown ChargeMode = iota
	// battery discharging to serve the load
	ChargeModeLoadFirst
	// battery charging from the grid
	ChargeModeBatteryFirst
	// battery idle
	ChargeModeGridFirst
)

func (m ChargeMode) String() string {
	switch m {
	case ChargeModeLoadFirst:
		return "load_first"
	case ChargeModeBatteryFirst:
		return "battery_first"
	case ChargeModeGridFirst:
		return "grid_first"
	default:
		return "unknown"
	}
}

type ChargeCommand int

const (
	ChargeCommandStart ChargeCommand = iota + 1
	ChargeCommandStop
)

func (c ChargeCommand) String() string {
	switch c {
	case ChargeCommandStart:
		return "start_charge"
	case ChargeCommandStop:
		return "stop_charge"
	default:
		return "invalid"
	}
}

// RegisterWriteSet holds the BF1, LF1 and GF1 schedule writes, in that order.
type RegisterWriteSet [3]growatt_modbus.RegisterWrite

func (ws RegisterWriteSet) Writes() []growatt_modbus.RegisterWrite {
	return ws[:]
}
