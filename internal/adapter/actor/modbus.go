package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// ModbusActor serializes the register operations of one activity. Every
// operation runs on a fresh connection owned by the InverterClient.
// A requester may be answered early on timeout, but the next operation only
// starts once the previous one has really returned.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   growatt_modbus.InverterClient
	timeout  time.Duration
	logger   *zap.Logger
	replied  bool
	returned bool
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// modbusOperationReturned is sent by the operation goroutine itself, after
// the client call returns, whether or not its task timed out.
type modbusOperationReturned struct{}

func NewModbusActor(client growatt_modbus.InverterClient, timeout time.Duration, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		client:   client,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetInverterModeRequest:
		state.logger.Debug("modbus@default: GetInverterModeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, trackReturn(ctx, state.readInverterMode)),
			mapTaskResult[domain.GetInverterModeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetInverterModeResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.taskTimeout(1)).PipeTo(ctx.Self())
		state.startOperation()
	case domain.WriteRegistersRequest:
		state.logger.Debug("modbus@default: WriteRegistersRequest", zap.Stringers("writes", msg.Writes))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		writes := msg.Writes

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, trackReturn(ctx, func() (*domain.WriteRegistersResponse, error) {
			if err := state.client.WriteRegisters(writes...); err != nil {
				return &domain.WriteRegistersResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}, nil
			}
			return &domain.WriteRegistersResponse{}, nil
		})), mapTaskResult[domain.WriteRegistersResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteRegistersResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.taskTimeout(len(writes))).PipeTo(ctx.Self())
		state.startOperation()
	case *actor.Stopping:
		state.logger.Debug("modbus@default stopping")
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.replied = true
		if !state.returned {
			state.logger.Warn("modbus operation timed out, holding further requests until it returns")
		}
		state.finishOperation(ctx)
	case modbusOperationReturned:
		state.returned = true
		state.finishOperation(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "busy",
		})
	case *actor.Stopping:
		state.logger.Debug("modbus@WaitingModbus stopping with an operation in flight")
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) startOperation() {
	state.replied = false
	state.returned = false
	state.behavior.BecomeStacked(state.WaitingModbus)
}

// finishOperation leaves WaitingModbus once the requester has its answer
// and the client call has returned.
func (state *ModbusActor) finishOperation(ctx actor.Context) {
	if !state.replied || !state.returned {
		return
	}
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func trackReturn[T any](ctx actor.Context, fn func() (*T, error)) func() (*T, error) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	return func() (*T, error) {
		defer root.Send(self, modbusOperationReturned{})
		return fn()
	}
}

func (state *ModbusActor) readInverterMode() (*domain.GetInverterModeResponse, error) {
	value, err := state.client.ReadInverterMode()
	if err != nil {
		return nil, err
	}
	return &domain.GetInverterModeResponse{
		Value: value,
	}, nil
}

// taskTimeout bounds a background operation of n register requests plus
// the connect.
func (state *ModbusActor) taskTimeout(n int) time.Duration {
	return time.Duration(n+1) * state.timeout
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
