package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/config"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/port"
	"github.com/berfenger/growatt2mqtt/internal/metrics"
	. "github.com/berfenger/growatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// ChargeControlActor applies charge commands. Only one write set is in
// flight at a time, commands arriving meanwhile wait in the stash.
type ChargeControlActor struct {
	ActorWithStates
	config              *config.Config
	stash               *Stash
	modbusActorProvider ModbusActorProvider
	modbusActor         *actor.PID
	translator          port.RegisterTranslator
	metrics             *metrics.Metrics

	logger *zap.Logger
}

func NewChargeControlActor(config *config.Config, modbusActorProvider ModbusActorProvider, translator port.RegisterTranslator,
	metrics *metrics.Metrics, logger *zap.Logger) *ChargeControlActor {
	act := &ChargeControlActor{
		config:              config,
		stash:               &Stash{},
		modbusActorProvider: modbusActorProvider,
		translator:          translator,
		metrics:             metrics,
		logger:              ActorLogger(domain.ACTOR_ID_CHARGE_CONTROL, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CCIdleState{
		actor: act,
	})
	return act
}

func (state *ChargeControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type CCIdleState struct {
	ActorState
	actor *ChargeControlActor
}

func (state CCIdleState) Name() string {
	return "idle"
}

func (state CCIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("charge_control@idle started")
		modbusActorPID, err := spawnModbusActor(ctx, state.actor.modbusActorProvider)
		if err != nil {
			panic(err)
		}
		state.actor.modbusActor = modbusActorPID
	case domain.ChargeCommandRequest:
		state.actor.logger.Info("charge_control@idle ChargeCommandRequest", zap.Stringer("command", msg.Command))
		replyTo := ForRequest(msg).ReplyTo(ctx)

		writeSet, err := state.actor.translator.CommandToWriteSet(msg.Command)
		if err != nil {
			state.actor.logger.Error("charge_control@idle invalid command", zap.Error(err))
			state.actor.metrics.IncCommand(msg.Command.String(), metrics.RESULT_ERROR)
			respondTo(ctx, replyTo, domain.ChargeCommandResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Command:            msg.Command,
			})
			return
		}

		timeout := time.Duration(len(writeSet)+2) * state.actor.config.InverterModbusTcp.Timeout()
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.WriteRegistersRequest{
			Writes: writeSet.Writes(),
		}, timeout), func(err error) any {
			return domain.WriteRegistersResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.actor.BecomeStacked(CCApplyingState{
			actor:    state.actor,
			command:  msg.Command,
			writeSet: writeSet,
			replyTo:  replyTo,
		})
	default:
		state.actor.commonReceive(ctx)
	}
}

// Applying state: a write set is in flight

type CCApplyingState struct {
	ActorState
	actor    *ChargeControlActor
	command  domain.ChargeCommand
	writeSet domain.RegisterWriteSet
	replyTo  *actor.PID
}

func (state CCApplyingState) Name() string {
	return "applying"
}

func (state CCApplyingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.WriteRegistersResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("charge_control@applying command failed", zap.Stringer("command", state.command),
				zap.Error(msg.GetResponseError()))
			state.actor.metrics.IncCommand(state.command.String(), metrics.RESULT_ERROR)
		} else {
			state.actor.logger.Info("charge_control@applying command applied", zap.Stringer("command", state.command),
				zap.Stringers("writes", state.writeSet.Writes()))
			state.actor.metrics.IncCommand(state.command.String(), metrics.RESULT_OK)
		}
		respondTo(ctx, state.replyTo, domain.ChargeCommandResponse{
			ActorResponseMixIn: msg.ActorResponseMixIn,
			Command:            state.command,
			Writes:             state.writeSet,
		})
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashOldest(ctx)
	case domain.ChargeCommandRequest:
		state.actor.logger.Debug("charge_control@applying stash", zap.Stringer("command", msg.Command))
		state.actor.stash.Stash(ctx, msg)
	default:
		state.actor.commonReceive(ctx)
	}
}

func (state *ChargeControlActor) commonReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CHARGE_CONTROL,
			Healthy: true,
			State:   state.StateName(),
		})
	case *actor.Stopping:
		if state.stash.Len() > 0 {
			state.logger.Warn("charge_control stopping with pending commands", zap.Int("pending", state.stash.Len()))
		}
	case *actor.Restarting, *actor.Stopped, *actor.Terminated:
	default:
		state.logger.Debug("charge_control unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func respondTo(ctx actor.Context, pid *actor.PID, msg any) {
	if pid != nil {
		ctx.Send(pid, msg)
	}
}
