package port

import (
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
)

// RegisterTranslator maps between charge modes/commands and the inverter
// register layout. Implementations must be stateless.
type RegisterTranslator interface {
	DecodeChargeMode(value uint16) (domain.ChargeMode, error)
	ChargeModeToPayload(mode domain.ChargeMode) (string, bool)
	CommandToWriteSet(command domain.ChargeCommand) (domain.RegisterWriteSet, error)
	ParseChargeCommand(payload string) (domain.ChargeCommand, error)
}
