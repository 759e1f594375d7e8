package service

import (
	"fmt"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/port"
	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"
)

type GrowattRegisterTranslator struct {
}

func NewGrowattRegisterTranslator() GrowattRegisterTranslator {
	return GrowattRegisterTranslator{}
}

func (GrowattRegisterTranslator) DecodeChargeMode(value uint16) (domain.ChargeMode, error) {
	switch value {
	case growatt_modbus.InverterModeLoadFirst:
		return domain.ChargeModeLoadFirst, nil
	case growatt_modbus.InverterModeBatteryFirst:
		return domain.ChargeModeBatteryFirst, nil
	case growatt_modbus.InverterModeGridFirst:
		return domain.ChargeModeGridFirst, nil
	default:
		return domain.ChargeModeUnknown, fmt.Errorf("%w: register %d = %d", domain.ErrUnknownModeValue, growatt_modbus.RegInverterMode, value)
	}
}

// ChargeModeToPayload returns false for modes that must not be published.
func (GrowattRegisterTranslator) ChargeModeToPayload(mode domain.ChargeMode) (string, bool) {
	switch mode {
	case domain.ChargeModeBatteryFirst:
		return domain.CHARGE_PAYLOAD_ON, true
	case domain.ChargeModeLoadFirst, domain.ChargeModeGridFirst:
		return domain.CHARGE_PAYLOAD_OFF, true
	default:
		return "", false
	}
}

// CommandToWriteSet always writes BF1 first, then LF1, then GF1. The inverter
// arbitrates between the schedules as they land, so the order is part of the
// contract.
func (GrowattRegisterTranslator) CommandToWriteSet(command domain.ChargeCommand) (domain.RegisterWriteSet, error) {
	var bf1, lf1 growatt_modbus.Schedule
	switch command {
	case domain.ChargeCommandStart:
		bf1, lf1 = growatt_modbus.ScheduleOn, growatt_modbus.ScheduleOff
	case domain.ChargeCommandStop:
		bf1, lf1 = growatt_modbus.ScheduleOff, growatt_modbus.ScheduleOn
	default:
		return domain.RegisterWriteSet{}, fmt.Errorf("unsupported charge command %d", command)
	}
	return domain.RegisterWriteSet{
		{Address: growatt_modbus.RegBatteryFirst1, Value: bf1},
		{Address: growatt_modbus.RegLoadFirst1, Value: lf1},
		{Address: growatt_modbus.RegGridFirst1, Value: growatt_modbus.ScheduleOff},
	}, nil
}

// ParseChargeCommand matches the payload exactly. Case or whitespace
// variants are invalid.
func (GrowattRegisterTranslator) ParseChargeCommand(payload string) (domain.ChargeCommand, error) {
	switch payload {
	case domain.CHARGE_PAYLOAD_ON, domain.CHARGE_PAYLOAD_CHARGE:
		return domain.ChargeCommandStart, nil
	case domain.CHARGE_PAYLOAD_OFF, domain.CHARGE_PAYLOAD_DISCHARGE:
		return domain.ChargeCommandStop, nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCommandPayload, payload)
	}
}

// DecodeSchedule reports whether a BF1/LF1/GF1 register pair holds the
// all-day window.
func (GrowattRegisterTranslator) DecodeSchedule(value growatt_modbus.Schedule) (bool, error) {
	switch value {
	case growatt_modbus.ScheduleOn:
		return true, nil
	case growatt_modbus.ScheduleOff:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected schedule window %s", value)
	}
}

// ensure interface compliance
var _ port.RegisterTranslator = GrowattRegisterTranslator{}
