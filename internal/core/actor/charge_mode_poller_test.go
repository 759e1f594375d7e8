package actor

import (
	"testing"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/service"
	"github.com/berfenger/growatt2mqtt/internal/util"
	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventRecorder struct {
	events chan domain.ChargeModeUpdateEvent
}

func recordEvents(es *eventstream.EventStream) *eventRecorder {
	r := &eventRecorder{events: make(chan domain.ChargeModeUpdateEvent, 100)}
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.ChargeModeUpdateEvent); ok {
			r.events <- e
		}
	})
	return r
}

func (r *eventRecorder) count() int {
	return len(r.events)
}

func spawnPoller(t *testing.T, pollInterval time.Duration, inv growatt_modbus.InverterClient) (*actor.ActorSystem, *actor.PID, *eventRecorder) {
	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = uint32(pollInterval.Milliseconds())
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}
	recorder := recordEvents(es)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeModePollerActor(&cfg, testModbusActorProvider(inv, logger), service.NewGrowattRegisterTranslator(), es, nil, logger)
	})
	return as, as.Root.Spawn(props), recorder
}

func TestPollerPublishesModeOncePerPoll(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeBatteryFirst)
	as, pid, recorder := spawnPoller(t, 10*time.Second, inv)

	select {
	case evt := <-recorder.events:
		assert.Equal(t, domain.ChargeModeBatteryFirst, evt.Mode)
		assert.Equal(t, "on", evt.Payload)
		assert.EqualValues(t, 1, evt.RegisterValue)
	case <-time.After(2 * time.Second):
		t.Fatal("no charge mode published")
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, recorder.count(), "exactly one publish per poll")
	assert.Equal(t, 1, inv.Reads())

	result, err := as.Root.RequestFuture(pid, domain.GetChargeModeStateRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	state := result.(domain.GetChargeModeStateResponse)
	assert.Equal(t, domain.ChargeModeBatteryFirst, state.Mode)
	assert.Equal(t, "on", state.Payload)
	assert.Empty(t, state.LastError)
	assert.False(t, state.LastPoll.IsZero())

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerMapsModes(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeLoadFirst)
	as, pid, recorder := spawnPoller(t, 100*time.Millisecond, inv)

	evt := <-recorder.events
	assert.Equal(t, "off", evt.Payload)
	assert.Equal(t, domain.ChargeModeLoadFirst, evt.Mode)

	inv.SetMode(growatt_modbus.InverterModeGridFirst)
	assert.Eventually(t, func() bool {
		select {
		case evt := <-recorder.events:
			return evt.Mode == domain.ChargeModeGridFirst && evt.Payload == "off"
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerSkipsUnknownMode(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(7)
	as, pid, recorder := spawnPoller(t, 100*time.Millisecond, inv)

	assert.Eventually(t, func() bool {
		return inv.Reads() >= 3
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, recorder.count(), "unknown mode is never published")

	result, err := as.Root.RequestFuture(pid, domain.GetChargeModeStateRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	state := result.(domain.GetChargeModeStateResponse)
	assert.Equal(t, domain.ChargeModeUnknown, state.Mode)
	assert.Contains(t, state.LastError, "unknown inverter mode")

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerSurvivesTransportFailures(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeBatteryFirst)
	inv.SetReadError(growatt_modbus.ErrTestConnRefused)
	as, pid, recorder := spawnPoller(t, 100*time.Millisecond, inv)

	assert.Eventually(t, func() bool {
		return inv.Reads() >= 3
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, recorder.count())

	// the loop keeps going and recovers
	inv.SetReadError(nil)
	select {
	case evt := <-recorder.events:
		assert.Equal(t, "on", evt.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not recover")
	}

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerSkipsTickWhileReadInFlight(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeBatteryFirst)
	inv.SetReadDelay(500 * time.Millisecond)
	as, pid, _ := spawnPoller(t, 100*time.Millisecond, inv)

	time.Sleep(1200 * time.Millisecond)

	// a read takes five ticks, so at most three reads can complete
	assert.LessOrEqual(t, inv.Reads(), 3)
	assert.GreaterOrEqual(t, inv.Reads(), 1)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerPollNow(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeBatteryFirst)
	as, pid, recorder := spawnPoller(t, 10*time.Second, inv)

	<-recorder.events

	as.Root.Send(pid, domain.PollNowRequest{Delay: 100 * time.Millisecond})

	select {
	case evt := <-recorder.events:
		assert.Equal(t, "on", evt.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("poll now not served")
	}
	assert.Equal(t, 2, inv.Reads())

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestPollerStopCancelsTimer(t *testing.T) {

	inv := growatt_modbus.CreateTestInverterClient(growatt_modbus.InverterModeBatteryFirst)
	as, pid, _ := spawnPoller(t, 100*time.Millisecond, inv)

	assert.Eventually(t, func() bool {
		return inv.Reads() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	err := as.Root.StopFuture(pid).Wait()
	require.NoError(t, err)
	reads := inv.Reads()

	time.Sleep(400 * time.Millisecond)
	assert.LessOrEqual(t, inv.Reads(), reads+1, "no polling after stop")

	as.Shutdown()
}
