package actor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/growatt2mqtt/internal/adapter/actor"
	"github.com/berfenger/growatt2mqtt/internal/config"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/port"
	"github.com/berfenger/growatt2mqtt/internal/metrics"
	. "github.com/berfenger/growatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	mqttActor           *actor.PID
	pollerActor         *actor.PID
	chargeControlActor  *actor.PID
	modbusActorProvider ModbusActorProvider
	mqttActorProvider   MQTTActorProvider
	translator          port.RegisterTranslator
	metrics             *metrics.Metrics
	logger              *zap.Logger
}

type healthCheckResult struct {
	healthy   map[string]bool
	states    map[string]string
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, modbusActorProvider ModbusActorProvider, mqttActorProvider MQTTActorProvider,
	translator port.RegisterTranslator, metrics *metrics.Metrics, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		modbusActorProvider: modbusActorProvider,
		mqttActorProvider:   mqttActorProvider,
		translator:          translator,
		metrics:             metrics,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start poller child
		pollerActorPID, err := state.startPollerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pollerActor = pollerActorPID

		// start charge control child
		chargeControlActorPID, err := state.startChargeControlActor(ctx)
		if err != nil {
			panic(err)
		}
		state.chargeControlActor = chargeControlActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			id := id // per-iteration copy (captured by the async callback)
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
					State:   "unresponsive",
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := ParsedMQTTCommandToCommand(*msg.Command, state.translator)
		if err != nil {
			state.logger.Warn("master@default invalid command dropped", zap.String("device", msg.Command.DeviceId),
				zap.String("payload", msg.Command.Payload), zap.Error(err))
			return
		}
		switch pcmd := cmd.(type) {
		case domain.ChargeControlRequest:
			ctx.Request(state.chargeControlActor, pcmd)
		}
	case domain.ChargeCommandResponse:
		if msg.HasResponseError() {
			state.logger.Error("master@default charge command failed", zap.Stringer("command", msg.Command), zap.Error(msg.GetResponseError()))
			return
		}
		if delay := state.config.InverterModbusTcp.ReadDelayAfterChange(); delay > 0 {
			ctx.Send(state.pollerActor, domain.PollNowRequest{Delay: delay})
		}
	case domain.PollNowRequest:
		ctx.Forward(state.pollerActor)
	case domain.GetChargeModeStateRequest:
		ctx.Forward(state.pollerActor)
	case *actor.Terminated:
		state.logger.Debug("master@default child terminated", zap.String("child", msg.Who.Id))
	case *actor.ReceiveTimeout:
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.finishHealthCheck(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		state.currentHealthCheck.states[msg.Id] = msg.State
		if state.currentHealthCheck.allReceived() {
			state.finishHealthCheck(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) finishHealthCheck(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.currentHealthCheck.respond(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	return map[string]*actor.PID{
		domain.ACTOR_ID_MQTT:               state.mqttActor,
		domain.ACTOR_ID_CHARGE_MODE_POLLER: state.pollerActor,
		domain.ACTOR_ID_CHARGE_CONTROL:     state.chargeControlActor,
	}
}

// MasterSupervisor is the strategy for the master's props: it decides how
// the mqtt, poller and charge control actors are restarted.
func MasterSupervisor(logger *zap.Logger) actor.SupervisorStrategy {
	logger = ActorLogger(domain.ACTOR_ID_MASTER, logger)
	return actor.NewOneForOneStrategy(10, 10*time.Second, func(reason interface{}) actor.Directive {
		logger.Error("handling failure for child", zap.Any("reason", reason))
		return actor.RestartDirective
	})
}

// modbusSupervisor goes on the props of the actors owning a modbus child,
// so a failing modbus actor is restarted with a backoff.
func modbusSupervisor() actor.SupervisorStrategy {
	return actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	})
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startPollerActor(ctx actor.Context) (*actor.PID, error) {

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeModePollerActor(&state.config, state.modbusActorProvider, state.translator, state.eventStream, state.metrics, state.logger)
	}, actor.WithSupervisor(modbusSupervisor()))
	pollerActorPID, err := ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_CHARGE_MODE_POLLER)
	if err != nil {
		return nil, err
	}

	return pollerActorPID, nil
}

func (state *MasterOfPuppetsActor) startChargeControlActor(ctx actor.Context) (*actor.PID, error) {

	chargeControlProps := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeControlActor(&state.config, state.modbusActorProvider, state.translator, state.metrics, state.logger)
	}, actor.WithSupervisor(modbusSupervisor()))
	chargeControlPID, err := ctx.SpawnNamed(chargeControlProps, domain.ACTOR_ID_CHARGE_CONTROL)
	if err != nil {
		return nil, err
	}

	return chargeControlPID, nil
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.states = map[string]string{}
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.healthy) == 3
}

func (state *healthCheckResult) allHealthy() bool {
	if !state.allReceived() {
		return false
	}
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return true
}

// summary renders the child states as "id=state" pairs, sorted by id.
func (state *healthCheckResult) summary() string {
	parts := make([]string, 0, len(state.states))
	for id, s := range state.states {
		parts = append(parts, fmt.Sprintf("%s=%s", id, s))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.summary(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
