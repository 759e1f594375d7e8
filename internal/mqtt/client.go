package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/config"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = domain.CHARGE_PAYLOAD_ON
	MQTT_PAYLOAD_OFF     = domain.CHARGE_PAYLOAD_OFF
	MQTT_PAYLOAD_UNKNOWN = domain.CHARGE_PAYLOAD_UNKNOWN
)

var ErrMQTTConnect = errors.New("mqtt connect failed")

type MessageHandler func(topic string, payload []byte)

// Session is the MQTT connection used by the bridge. Continuations are
// invoked from library goroutines.
type Session interface {
	Connect(continuation func(error), timeout time.Duration)
	Disconnect(timeout time.Duration)
	IsConnected() bool
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
	Subscribe(topic string, qos byte, handler MessageHandler, continuation func(error), timeout time.Duration)
	StateTopic() string
	CommandTopic() string
	BridgeStateTopic() string
	ParseMQTTCommand(topic string, payload []byte) (*ParsedMQTTCommand, error)
}

// SessionProvider builds a session whose connection events are reported
// through the given callbacks.
type SessionProvider func(onConnect func(), onConnectionLost func(error)) Session

type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	clientId := cfg.MQTT.ClientId
	if clientId == "" {
		clientId = fmt.Sprintf("growatt2mqtt_%d", rand.Intn(1000))
	}
	opts.SetClientID(clientId)
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	if cfg.MQTT.ReconnectIntervalMillis > 0 {
		opts.SetMaxReconnectInterval(cfg.MQTT.ReconnectInterval())
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnect func(),
	onConnectionLost func(error)) *MQTTClient {
	if onConnect != nil {
		opts.OnConnect = func(_ mqtt.Client) {
			onConnect()
		}
	}
	if onConnectionLost != nil {
		opts.OnConnectionLost = func(_ mqtt.Client, err error) {
			onConnectionLost(err)
		}
	}
	return &MQTTClient{
		client:              mqtt.NewClient(opts),
		cfg:                 cfg.MQTT,
		switchCommandRegexp: switchCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

// NewSessionProvider returns a provider of paho backed sessions.
func NewSessionProvider(cfg *config.Config) SessionProvider {
	return func(onConnect func(), onConnectionLost func(error)) Session {
		return CreateMQTTClient(cfg, OptsFromConfig(cfg), onConnect, onConnectionLost)
	}
}

type MQTTClient struct {
	client              mqtt.Client
	cfg                 config.MQTTConfig
	switchCommandRegexp *regexp.Regexp
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) StateTopic() string {
	return stateTopic(c.baseTopic(), domain.SWITCH_ID_BATTERY_CHARGE)
}

func (c *MQTTClient) CommandTopic() string {
	return commandTopic(c.baseTopic(), domain.SWITCH_ID_BATTERY_CHARGE)
}

func (c *MQTTClient) ParseMQTTCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	return parseSwitchMQTTCommand(c.switchCommandRegexp, topic, payload)
}

func parseSwitchMQTTCommand(r *regexp.Regexp, topic string, payload []byte) (*ParsedMQTTCommand, error) {
	matches := r.FindAllStringSubmatch(topic, 1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid command topic %q", topic)
	}
	if len(matches[0]) != 2 {
		return nil, errors.New("invalid switch command")
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[0][1],
		Command:  "switch",
		Payload:  string(payload),
	}, nil
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(fmt.Errorf("%w: timed out", ErrMQTTConnect))
		} else if err := token.Error(); err != nil {
			continuation(fmt.Errorf("%w: %w", ErrMQTTConnect, err))
		} else {
			continuation(nil)
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic)))
}

func stateTopic(baseTopic, switchId string) string {
	return fmt.Sprintf("%s/%s", baseTopic, switchId)
}

func commandTopic(baseTopic, switchId string) string {
	return fmt.Sprintf("%s/%s/set", baseTopic, switchId)
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}

// ensure interface compliance
var _ Session = (*MQTTClient)(nil)
