package domain

import (
	"time"

	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"
)

const (
	ACTOR_ID_MASTER             = "master"
	ACTOR_ID_MODBUS             = "modbus"
	ACTOR_ID_MQTT               = "mqtt"
	ACTOR_ID_CHARGE_MODE_POLLER = "charge_mode_poller"
	ACTOR_ID_CHARGE_CONTROL     = "charge_control"
)

// Modbus

type GetInverterModeRequest struct {
	ActorRequestMixIn
}

type GetInverterModeResponse struct {
	ActorResponseMixIn
	Value uint16
}

type WriteRegistersRequest struct {
	ActorRequestMixIn
	Writes []growatt_modbus.RegisterWrite
}

type WriteRegistersResponse struct {
	ActorResponseMixIn
}

// Poller

type PollNowRequest struct {
	ActorRequestMixIn
	Delay time.Duration
}

type GetChargeModeStateRequest struct {
	ActorRequestMixIn
}

type GetChargeModeStateResponse struct {
	ActorResponseMixIn
	Mode      ChargeMode
	Payload   string
	LastPoll  time.Time
	LastError string
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
