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
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// ChargeModePollerActor reads the inverter mode on a fixed interval and
// publishes every decoded mode on the event stream.
type ChargeModePollerActor struct {
	ActorWithStates
	config              *config.Config
	scheduler           *scheduler.TimerScheduler
	cancelTick          scheduler.CancelFunc
	cancelPollNow       scheduler.CancelFunc
	modbusActorProvider ModbusActorProvider
	modbusActor         *actor.PID
	translator          port.RegisterTranslator
	eventStream         *eventstream.EventStream
	metrics             *metrics.Metrics
	last                domain.GetChargeModeStateResponse

	logger *zap.Logger
}

type pollTick struct {
}

func NewChargeModePollerActor(config *config.Config, modbusActorProvider ModbusActorProvider, translator port.RegisterTranslator,
	eventStream *eventstream.EventStream, metrics *metrics.Metrics, logger *zap.Logger) *ChargeModePollerActor {
	act := &ChargeModePollerActor{
		config:              config,
		modbusActorProvider: modbusActorProvider,
		translator:          translator,
		eventStream:         eventStream,
		metrics:             metrics,
		last: domain.GetChargeModeStateResponse{
			Mode:    domain.ChargeModeUnknown,
			Payload: domain.CHARGE_PAYLOAD_UNKNOWN,
		},
		logger: ActorLogger(domain.ACTOR_ID_CHARGE_MODE_POLLER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PollerIdleState{
		actor: act,
	})
	return act
}

func (state *ChargeModePollerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type PollerIdleState struct {
	ActorState
	actor *ChargeModePollerActor
}

func (state PollerIdleState) Name() string {
	return "idle"
}

func (state PollerIdleState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("charge_mode_poller@idle started")

		modbusActorPID, err := spawnModbusActor(ctx, state.actor.modbusActorProvider)
		if err != nil {
			panic(err)
		}
		state.actor.modbusActor = modbusActorPID

		interval := state.actor.config.MonitorConfig.PollInterval()
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.cancelTick = state.actor.scheduler.SendRepeatedly(interval, interval, ctx.Self(), pollTick{})
		// first poll right away
		ctx.Send(ctx.Self(), pollTick{})
	case pollTick:
		state.actor.poll(ctx)
		state.actor.BecomeStacked(PollerPollingState{
			actor: state.actor,
		})
	default:
		state.actor.commonReceive(ctx)
	}
}

// Polling state: a read is in flight

type PollerPollingState struct {
	ActorState
	actor *ChargeModePollerActor
}

func (state PollerPollingState) Name() string {
	return "polling"
}

func (state PollerPollingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		state.actor.logger.Debug("charge_mode_poller@polling previous read still in flight, tick skipped")
	case domain.GetInverterModeResponse:
		state.actor.onInverterMode(msg)
		state.actor.UnbecomeStacked()
	default:
		state.actor.commonReceive(ctx)
	}
}

func (state *ChargeModePollerActor) commonReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CHARGE_MODE_POLLER,
			Healthy: true,
			State:   state.StateName(),
		})
	case domain.GetChargeModeStateRequest:
		ForRequest(msg).Respond(ctx, state.last)
	case domain.PollNowRequest:
		state.logger.Debug("charge_mode_poller PollNowRequest", zap.Duration("delay", msg.Delay))
		if state.cancelPollNow != nil {
			state.cancelPollNow()
			state.cancelPollNow = nil
		}
		if msg.Delay > 0 {
			state.cancelPollNow = state.scheduler.SendOnce(msg.Delay, ctx.Self(), pollTick{})
		} else {
			ctx.Send(ctx.Self(), pollTick{})
		}
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	case *actor.Stopped, *actor.Terminated:
	default:
		state.logger.Debug("charge_mode_poller unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ChargeModePollerActor) poll(ctx actor.Context) {
	state.logger.Debug("charge_mode_poller poll")
	timeout := 3 * state.config.InverterModbusTcp.Timeout()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetInverterModeRequest{}, timeout), func(err error) any {
		return domain.GetInverterModeResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
}

func (state *ChargeModePollerActor) onInverterMode(msg domain.GetInverterModeResponse) {
	state.last.LastPoll = time.Now()

	if msg.HasResponseError() {
		// the next tick retries
		state.logger.Error("charge_mode_poller could not read inverter mode", zap.Error(msg.GetResponseError()))
		state.metrics.IncPoll(metrics.RESULT_ERROR)
		state.last.LastError = msg.GetResponseError().Error()
		return
	}
	state.metrics.SetInverterMode(msg.Value)

	mode, err := state.translator.DecodeChargeMode(msg.Value)
	if err != nil {
		state.logger.Error("charge_mode_poller unknown inverter mode, not published", zap.Uint16("value", msg.Value), zap.Error(err))
		state.metrics.IncPoll(metrics.RESULT_UNKNOWN)
		state.last.Mode = domain.ChargeModeUnknown
		state.last.Payload = domain.CHARGE_PAYLOAD_UNKNOWN
		state.last.LastError = err.Error()
		return
	}
	payload, ok := state.translator.ChargeModeToPayload(mode)
	if !ok {
		state.logger.Error("charge_mode_poller no payload for mode", zap.Stringer("mode", mode))
		state.metrics.IncPoll(metrics.RESULT_UNKNOWN)
		return
	}

	state.logger.Debug("charge_mode_poller mode", zap.Stringer("mode", mode), zap.String("payload", payload))
	state.metrics.IncPoll(metrics.RESULT_OK)
	state.last.Mode = mode
	state.last.Payload = payload
	state.last.LastError = ""
	state.eventStream.Publish(domain.NewChargeModeUpdateEvent(mode, payload, msg.Value))
}

func (state *ChargeModePollerActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if state.cancelPollNow != nil {
		state.cancelPollNow()
		state.cancelPollNow = nil
	}
}

// spawnModbusActor starts the modbus child. Its restarts follow the
// supervisor of the spawning actor's props.
func spawnModbusActor(ctx actor.Context, provider ModbusActorProvider) (*actor.PID, error) {

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return provider()
	})

	return ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
}
