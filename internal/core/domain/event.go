package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// ChargeModeUpdateEvent is emitted after every successfully decoded poll.
type ChargeModeUpdateEvent struct {
	SensorUpdateEventMixIn
	Mode          ChargeMode
	Payload       string
	RegisterValue uint16
}

func NewChargeModeUpdateEvent(mode ChargeMode, payload string, value uint16) ChargeModeUpdateEvent {
	return ChargeModeUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_BATTERY_CHARGE,
		},
		Mode:          mode,
		Payload:       payload,
		RegisterValue: value,
	}
}

// ensure interface compliance
var _ SensorUpdateEvent = ChargeModeUpdateEvent{}
