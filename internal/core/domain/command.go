package domain

import "fmt"

// ChargeControlRequest

type ChargeControlRequest interface {
	ActorRequest
	ChargeControlCommand() string
}

type ChargeControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ChargeControlRequestMixIn) ChargeControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ChargeControl commands

type ChargeCommandRequest struct {
	ChargeControlRequestMixIn
	Command ChargeCommand
}

type ChargeCommandResponse struct {
	ActorResponseMixIn
	Command ChargeCommand
	Writes  RegisterWriteSet
}

// ensure interface compliance
var _ ChargeControlRequest = (*ChargeCommandRequest)(nil)
