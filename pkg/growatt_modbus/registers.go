package growatt_modbus

import (
	"fmt"
)

// holding registers (SPH firmware family)
const (
	RegInverterMode  uint16 = 1044
	RegGridFirst1    uint16 = 1080
	RegBatteryFirst1 uint16 = 1100
	RegLoadFirst1    uint16 = 1110
)

// inverter mode values (register 1044)
const (
	InverterModeLoadFirst    = 0
	InverterModeBatteryFirst = 1
	InverterModeGridFirst    = 2
)

// inverter mode strings
const (
	InverterModeLoadFirstStr    = "load_first"
	InverterModeBatteryFirstStr = "battery_first"
	InverterModeGridFirstStr    = "grid_first"
	InverterModeUnknownStr      = "unknown"
)

func InverterModeToString(mode uint16) string {
	switch mode {
	case InverterModeLoadFirst:
		return InverterModeLoadFirstStr
	case InverterModeBatteryFirst:
		return InverterModeBatteryFirstStr
	case InverterModeGridFirst:
		return InverterModeGridFirstStr
	default:
		return fmt.Sprintf("%s(%d)", InverterModeUnknownStr, mode)
	}
}

// Schedule is a daily time window stored in two holding registers:
// [start, end] where each word is hour*256+minute.
type Schedule [2]uint16

var (
	// 00:00 - 23:59
	ScheduleOn  = Schedule{0, ScheduleWord(23, 59)}
	ScheduleOff = Schedule{0, 0}
)

func ScheduleWord(hour, minute uint8) uint16 {
	return uint16(hour)*256 + uint16(minute)
}

func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s[0]>>8, s[0]&0xff, s[1]>>8, s[1]&0xff)
}

type RegisterWrite struct {
	Address uint16
	Value   Schedule
}

func (w RegisterWrite) String() string {
	return fmt.Sprintf("%d=%v", w.Address, w.Value[:])
}
