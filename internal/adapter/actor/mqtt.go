package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/config"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/metrics"
	"github.com/berfenger/growatt2mqtt/internal/mqtt"
	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	MQTT_STATE_CONNECTING   = "connecting"
	MQTT_STATE_CONNECTED    = "connected"
	MQTT_STATE_DISCONNECTED = "disconnected"
)

// MQTTActor owns the broker session. Publishes are only issued while
// connected, anything else is logged and dropped.
type MQTTActor struct {
	config          *config.Config
	behavior        actor.Behavior
	status          string
	root            *actor.RootContext
	sessionProvider mqtt.SessionProvider
	session         mqtt.Session
	eventStream     *eventstream.EventStream
	eventStreamSub  *eventstream.Subscription
	scheduler       *scheduler.TimerScheduler
	cancelReconnect scheduler.CancelFunc
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type mqttConnectFailed struct {
	Error error
}

type mqttReconnectTick struct {
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

func NewMQTTActor(config *config.Config, sessionProvider mqtt.SessionProvider, eventStream *eventstream.EventStream,
	metrics *metrics.Metrics, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:          config,
		sessionProvider: sessionProvider,
		eventStream:     eventStream,
		metrics:         metrics,
		behavior:        actor.NewBehavior(),
		logger:          actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.become(MQTT_STATE_CONNECTING, act.ConnectingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) become(status string, receive actor.ReceiveFunc) {
	state.status = status
	state.behavior.Become(receive)
}

func (state *MQTTActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@connecting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.root = ctx.ActorSystem().Root

		root := state.root
		self := ctx.Self()
		state.session = state.sessionProvider(func() {
			root.Send(self, MQTTConnected{})
		}, func(err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// forward bus events to the mailbox
		state.eventStreamSub = state.eventStream.Subscribe(func(evt any) {
			if e, ok := evt.(domain.ChargeModeUpdateEvent); ok {
				root.Send(self, e)
			}
		})

		state.connect(ctx)
	case MQTTConnected:
		state.onConnected(ctx)
	case mqttConnectFailed:
		state.logger.Error("mqtt@connecting could not connect to broker", zap.Error(msg.Error),
			zap.Duration("retry_in", state.config.MQTT.ReconnectInterval()))
		state.become(MQTT_STATE_DISCONNECTED, state.DisconnectedReceive)
		state.scheduleReconnect(ctx)
	default:
		state.commonReceive(ctx)
	}
}

func (state *MQTTActor) ConnectedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case MQTTConnected:
		// session resumed by the client library
		state.onConnected(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@connected connection lost", zap.Error(msg.Error))
		state.metrics.SetMQTTConnected(false)
		state.become(MQTT_STATE_DISCONNECTED, state.DisconnectedReceive)
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@connected parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.ChargeModeUpdateEvent:
		state.logger.Sugar().Debugf("mqtt@connected charge mode %s => %s", msg.Mode, msg.Payload)
		state.publish(state.session.StateTopic(), msg.Payload, false, nil)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@connected PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publish(msg.Topic, msg.Payload, msg.Retain, state.replyTo(ctx, msg))
	default:
		state.commonReceive(ctx)
	}
}

func (state *MQTTActor) DisconnectedReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case MQTTConnected:
		state.onConnected(ctx)
	case mqttReconnectTick:
		state.cancelReconnect = nil
		if state.session.IsConnected() {
			return
		}
		state.logger.Info("mqtt@disconnected reconnecting")
		state.become(MQTT_STATE_CONNECTING, state.ConnectingReceive)
		state.connect(ctx)
	default:
		state.commonReceive(ctx)
	}
}

// commonReceive handles what every state answers the same way.
func (state *MQTTActor) commonReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.status == MQTT_STATE_CONNECTED,
			State:   state.status,
		})
	case domain.ChargeModeUpdateEvent:
		state.logger.Error("mqtt@"+state.status+" dropped state publish, not connected", zap.String("payload", msg.Payload))
	case domain.PublishMessageRequest:
		state.logger.Error("mqtt@"+state.status+" dropped publish, not connected", zap.String("topic", msg.Topic))
		if replyTo := state.replyTo(ctx, msg); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("mqtt %s", state.status)),
			})
		}
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case MQTTConnectionLost:
		state.logger.Debug("mqtt@" + state.status + " connection lost")
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@"+state.status+" unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) connect(ctx actor.Context) {
	root := state.root
	self := ctx.Self()
	state.session.Connect(func(err error) {
		// success is reported by the OnConnect callback
		if err != nil {
			root.Send(self, mqttConnectFailed{Error: err})
		}
	}, 10*time.Second)
}

func (state *MQTTActor) scheduleReconnect(ctx actor.Context) {
	interval := state.config.MQTT.ReconnectInterval()
	if interval <= 0 || state.cancelReconnect != nil {
		return
	}
	state.cancelReconnect = state.scheduler.SendOnce(interval, ctx.Self(), mqttReconnectTick{})
}

func (state *MQTTActor) onConnected(ctx actor.Context) {
	state.logger.Info("mqtt connected")
	if state.cancelReconnect != nil {
		state.cancelReconnect()
		state.cancelReconnect = nil
	}
	state.become(MQTT_STATE_CONNECTED, state.ConnectedReceive)
	state.metrics.SetMQTTConnected(true)

	root := state.root
	self := ctx.Self()
	state.session.Subscribe(state.session.CommandTopic(), 0, func(topic string, payload []byte) {
		cmd, err := state.session.ParseMQTTCommand(topic, payload)
		if err != nil {
			state.logger.Warn("mqtt ignored message", zap.String("topic", topic), zap.Error(err))
			return
		}
		root.Send(self, ParsedCommand{Command: cmd})
	}, func(err error) {
		if err != nil {
			state.logger.Error("mqtt could not subscribe to command topic", zap.Error(err))
		}
	}, 1*time.Second)

	state.publish(state.session.StateTopic(), mqtt.MQTT_PAYLOAD_UNKNOWN, false, nil)
	state.publish(state.session.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, true, nil)

	if state.config.MQTT.HADiscoveryEnable {
		if err := state.publishHomeAssistantDiscovery(); err != nil {
			state.logger.Error("mqtt could not publish discovery", zap.Error(err))
		}
	}
}

// publish is fire and forget at QoS 0.
func (state *MQTTActor) publish(topic string, payload any, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: %s => %v", topic, payload)
	root := state.root
	state.session.Publish(topic, payload, 0, retain, func(err error) {
		if err != nil {
			state.logger.Error("mqtt could not publish a message", zap.String("topic", topic), zap.Error(err))
		}
		if replyTo != nil {
			root.Send(replyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			})
		}
	}, 5*time.Second)
}

func (state *MQTTActor) publishHomeAssistantDiscovery() error {
	messages, err := mqtt.HADiscoveryMessages(state.session, state.config.MQTT.HADiscoveryTopic, state.config.MQTT.BaseTopic)
	if err != nil {
		return err
	}
	for topic, payload := range messages {
		state.publish(topic, payload, true, nil)
	}
	return nil
}

func (state *MQTTActor) replyTo(ctx actor.Context, msg domain.PublishMessageRequest) *actor.PID {
	return actorutil.ForRequest(msg).ReplyTo(ctx)
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.cancelReconnect != nil {
		state.cancelReconnect()
		state.cancelReconnect = nil
	}
	if state.session != nil && state.session.IsConnected() {
		state.session.Publish(state.session.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 250*time.Millisecond)
		state.session.Disconnect(250 * time.Millisecond)
	}
	state.metrics.SetMQTTConnected(false)
}
