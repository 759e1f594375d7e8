package actor

import (
	"testing"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type crash struct{}

// crashingChild panics on crash and reports every start.
type crashingChild struct {
	started chan time.Time
}

func (c *crashingChild) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Started:
		c.started <- time.Now()
	case crash:
		panic("register i/o blew up")
	}
}

// parentOf spawns one crashingChild and forwards crash to it.
type parentOf struct {
	started chan time.Time
	child   *actor.PID
}

func (p *parentOf) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		p.child = ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
			return &crashingChild{started: p.started}
		}))
	case crash:
		ctx.Send(p.child, msg)
	}
}

func spawnParent(t *testing.T, strategy actor.SupervisorStrategy) (*actor.ActorSystem, *actor.PID, chan time.Time) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	started := make(chan time.Time, 4)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &parentOf{started: started}
	}, actor.WithSupervisor(strategy)))

	select {
	case <-started:
	case <-time.After(time.Second):
		require.FailNow(t, "child did not start")
	}
	return as, pid, started
}

func TestModbusChildRestartBacksOff(t *testing.T) {

	as, pid, started := spawnParent(t, modbusSupervisor())
	defer as.Shutdown()

	crashedAt := time.Now()
	as.Root.Send(pid, crash{})

	select {
	case restartedAt := <-started:
		assert.GreaterOrEqual(t, restartedAt.Sub(crashedAt), 900*time.Millisecond, "restart waits for the backoff")
	case <-time.After(3 * time.Second):
		require.FailNow(t, "child was not restarted")
	}
}

func TestMasterSupervisorRestartsChild(t *testing.T) {

	as, pid, started := spawnParent(t, MasterSupervisor(zap.NewNop()))
	defer as.Shutdown()

	as.Root.Send(pid, crash{})

	select {
	case <-started:
	case <-time.After(time.Second):
		require.FailNow(t, "child was not restarted")
	}
}
