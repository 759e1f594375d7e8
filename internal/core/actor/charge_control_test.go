package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/growatt2mqtt/internal/adapter/actor"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/service"
	"github.com/berfenger/growatt2mqtt/internal/metrics"
	"github.com/berfenger/growatt2mqtt/internal/util"
	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testModbusActorProvider(inv growatt_modbus.InverterClient, logger *zap.Logger) ModbusActorProvider {
	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(inv, time.Second, logger)
	}
}

var (
	startChargeWrites = []growatt_modbus.RegisterWrite{
		{Address: 1100, Value: growatt_modbus.Schedule{0, 5999}},
		{Address: 1110, Value: growatt_modbus.Schedule{0, 0}},
		{Address: 1080, Value: growatt_modbus.Schedule{0, 0}},
	}
	stopChargeWrites = []growatt_modbus.RegisterWrite{
		{Address: 1100, Value: growatt_modbus.Schedule{0, 0}},
		{Address: 1110, Value: growatt_modbus.Schedule{0, 5999}},
		{Address: 1080, Value: growatt_modbus.Schedule{0, 0}},
	}
)

func TestChargeControlActorAppliesCommands(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	inv := growatt_modbus.CreateTestInverterClient(0)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeControlActor(&cfg, testModbusActorProvider(inv, logger), service.NewGrowattRegisterTranslator(), metrics.New(), logger)
	})
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStart}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ChargeCommandResponse)
	assert.False(t, resp.HasResponseError())
	assert.Equal(t, domain.ChargeCommandStart, resp.Command)
	assert.Equal(t, startChargeWrites, resp.Writes.Writes())

	result, err = context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStop}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, result.(domain.ChargeCommandResponse).HasResponseError())

	assert.Equal(t, [][]growatt_modbus.RegisterWrite{startChargeWrites, stopChargeWrites}, inv.Writes())

	context.Stop(pid)

	as.Shutdown()
}

func TestChargeControlActorOneWriteSetInFlight(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	// the device is slower than the modbus task timeout
	inv := growatt_modbus.CreateTestInverterClient(0)
	inv.SetWriteDelay(300 * time.Millisecond)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeControlActor(&cfg, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(inv, 20*time.Millisecond, logger)
		}, service.NewGrowattRegisterTranslator(), nil, logger)
	})
	pid := context.Spawn(props)

	f1 := context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStart}, 5*time.Second)
	f2 := context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStop}, 5*time.Second)
	f3 := context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStart}, 5*time.Second)

	for _, f := range []*actor.Future{f1, f2, f3} {
		_, err := f.Result()
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return len(inv.Writes()) == 3
	}, 3*time.Second, 20*time.Millisecond)

	// write sets never overlap on the device, even after a timeout
	assert.Equal(t, 1, inv.MaxInFlight())
	assert.Equal(t, [][]growatt_modbus.RegisterWrite{startChargeWrites, stopChargeWrites, startChargeWrites}, inv.Writes())

	context.Stop(pid)

	as.Shutdown()
}

func TestChargeControlActorFailureIsContained(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	inv := growatt_modbus.CreateTestInverterClient(0)
	inv.SetWriteError(growatt_modbus.ErrModbusConnect)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewChargeControlActor(&cfg, testModbusActorProvider(inv, logger), service.NewGrowattRegisterTranslator(), nil, logger)
	})
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStart}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, result.(domain.ChargeCommandResponse).GetResponseError(), growatt_modbus.ErrModbusConnect)

	// invalid commands never reach the inverter
	result, err = context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommand(42)}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, result.(domain.ChargeCommandResponse).HasResponseError())

	inv.SetWriteError(nil)
	result, err = context.RequestFuture(pid, domain.ChargeCommandRequest{Command: domain.ChargeCommandStop}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, result.(domain.ChargeCommandResponse).HasResponseError())
	assert.Equal(t, [][]growatt_modbus.RegisterWrite{stopChargeWrites}, inv.Writes())

	health, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "idle", health.(domain.ActorHealthResponse).State)

	context.Stop(pid)

	as.Shutdown()
}
