package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"
)

type PublishedMessage struct {
	Topic   string
	Payload string
	Qos     byte
	Retain  bool
}

// TestSession is an in-memory Session. Callbacks run synchronously on the
// calling goroutine.
type TestSession struct {
	mu               sync.Mutex
	baseTopic        string
	connectErr       error
	connected        bool
	connects         int
	disconnects      int
	published        []PublishedMessage
	subscriptions    map[string]MessageHandler
	subscriptionQos  map[string]byte
	onConnect        func()
	onConnectionLost func(error)
}

func NewTestSession(baseTopic string) *TestSession {
	return &TestSession{
		baseTopic:       baseTopic,
		subscriptions:   map[string]MessageHandler{},
		subscriptionQos: map[string]byte{},
	}
}

func (s *TestSession) Provider() SessionProvider {
	return func(onConnect func(), onConnectionLost func(error)) Session {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.onConnect = onConnect
		s.onConnectionLost = onConnectionLost
		return s
	}
}

func (s *TestSession) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

func (s *TestSession) Connect(continuation func(error), timeout time.Duration) {
	s.mu.Lock()
	s.connects++
	err := s.connectErr
	if err == nil {
		s.connected = true
	}
	onConnect := s.onConnect
	s.mu.Unlock()

	if err != nil {
		continuation(fmt.Errorf("%w: %w", ErrMQTTConnect, err))
		return
	}
	continuation(nil)
	if onConnect != nil {
		onConnect()
	}
}

func (s *TestSession) Disconnect(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
}

func (s *TestSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *TestSession) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	var text string
	switch p := payload.(type) {
	case string:
		text = p
	case []byte:
		text = string(p)
	default:
		continuation(fmt.Errorf("unsupported payload type %T", payload))
		return
	}
	s.mu.Lock()
	s.published = append(s.published, PublishedMessage{Topic: topic, Payload: text, Qos: qos, Retain: retain})
	s.mu.Unlock()
	continuation(nil)
}

func (s *TestSession) Subscribe(topic string, qos byte, handler MessageHandler, continuation func(error), timeout time.Duration) {
	s.mu.Lock()
	s.subscriptions[topic] = handler
	s.subscriptionQos[topic] = qos
	s.mu.Unlock()
	continuation(nil)
}

func (s *TestSession) StateTopic() string {
	return stateTopic(s.baseTopic, domain.SWITCH_ID_BATTERY_CHARGE)
}

func (s *TestSession) CommandTopic() string {
	return commandTopic(s.baseTopic, domain.SWITCH_ID_BATTERY_CHARGE)
}

func (s *TestSession) BridgeStateTopic() string {
	return bridgeStateTopic(s.baseTopic)
}

func (s *TestSession) ParseMQTTCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	return parseSwitchMQTTCommand(switchCommandExtractor(s.baseTopic), topic, payload)
}

// Deliver simulates a broker message on a subscribed topic.
func (s *TestSession) Deliver(topic, payload string) bool {
	s.mu.Lock()
	handler, ok := s.subscriptions[topic]
	s.mu.Unlock()
	if !ok {
		return false
	}
	handler(topic, []byte(payload))
	return true
}

// DropConnection simulates a lost broker connection.
func (s *TestSession) DropConnection(err error) {
	s.mu.Lock()
	s.connected = false
	s.subscriptions = map[string]MessageHandler{}
	onConnectionLost := s.onConnectionLost
	s.mu.Unlock()
	if onConnectionLost != nil {
		onConnectionLost(err)
	}
}

// Reconnect simulates a successful automatic reconnection.
func (s *TestSession) Reconnect() {
	s.mu.Lock()
	s.connected = true
	s.connects++
	onConnect := s.onConnect
	s.mu.Unlock()
	if onConnect != nil {
		onConnect()
	}
}

func (s *TestSession) Published() []PublishedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PublishedMessage(nil), s.published...)
}

func (s *TestSession) PublishedTo(topic string) []PublishedMessage {
	var msgs []PublishedMessage
	for _, m := range s.Published() {
		if m.Topic == topic {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (s *TestSession) SubscriptionQos(topic string) (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qos, ok := s.subscriptionQos[topic]
	return qos, ok
}

func (s *TestSession) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *TestSession) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// ensure interface compliance
var _ Session = (*TestSession)(nil)
