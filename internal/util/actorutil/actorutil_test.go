package actorutil

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedState struct {
	name string
}

func (s namedState) Name() string {
	return s.name
}

func (s namedState) Receive(actor.Context) {}

func TestActorWithStatesTracksName(t *testing.T) {
	assert := assert.New(t)

	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal("", s.StateName())

	s.Become(namedState{"idle"})
	assert.Equal("idle", s.StateName())

	s.BecomeStacked(namedState{"busy"})
	assert.Equal("busy", s.StateName())

	s.UnbecomeStacked()
	assert.Equal("idle", s.StateName())

	// the base state is never popped
	s.UnbecomeStacked()
	assert.Equal("idle", s.StateName())
}

func TestTaskSuccess(t *testing.T) {
	var got int
	NewBackgroundTask(nil, func() (*int, error) {
		v := 42
		return &v, nil
	}).OnSuccess(func(v int) { got = v }).Run()

	assert.Equal(t, 42, got)
}

func TestTaskRecover(t *testing.T) {
	var got string
	NewBackgroundTask(nil, func() (*string, error) {
		return nil, errors.New("boom")
	}).Recover(func(err error) string {
		return "recovered: " + err.Error()
	}).OnSuccess(func(v string) { got = v }).Run()

	assert.Contains(t, got, "recovered")
}

func TestTaskErrorSkipsSuccess(t *testing.T) {
	var gotErr error
	succeeded := false
	NewBackgroundTask(nil, func() (*int, error) {
		return nil, errors.New("boom")
	}).OnError(func(err error) {
		gotErr = err
	}).OnSuccess(func(int) { succeeded = true }).Run()

	require.Error(t, gotErr)
	assert.False(t, succeeded)
}

func TestTaskTimeout(t *testing.T) {
	var gotErr error
	NewBackgroundTask(nil, func() (*int, error) {
		time.Sleep(500 * time.Millisecond)
		v := 1
		return &v, nil
	}).WithTimeout(20 * time.Millisecond).OnError(func(err error) {
		gotErr = err
	}).Run()

	assert.Error(t, gotErr)
}

func TestMapBackgroundTask(t *testing.T) {
	var got string
	MapBackgroundTask(NewBackgroundTask(nil, func() (*int, error) {
		v := 7
		return &v, nil
	}), func(v *int) *string {
		s := "n=" + strconv.Itoa(*v)
		return &s
	}).OnSuccess(func(v string) { got = v }).Run()

	assert.Equal(t, "n=7", got)
}

type unstashMsg struct {
	n int
}

type releaseMsg struct {
	all bool
}

// stashingActor holds unstashMsg until released and records the order it
// finally handles them in.
type stashingActor struct {
	stash    Stash
	holding  bool
	passOne  bool
	received chan int
}

func (a *stashingActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case unstashMsg:
		if a.holding && !a.passOne {
			a.stash.Stash(ctx, msg)
			return
		}
		a.passOne = false
		a.received <- msg.n
	case releaseMsg:
		if msg.all {
			a.holding = false
			a.stash.UnstashAll(ctx)
		} else {
			a.passOne = true
			a.stash.UnstashOldest(ctx)
		}
	}
}

func TestStashUnstashAll(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	received := make(chan int, 3)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &stashingActor{holding: true, received: received}
	}))
	for i := 1; i <= 3; i++ {
		as.Root.Send(pid, unstashMsg{n: i})
	}
	as.Root.Send(pid, releaseMsg{all: true})

	for i := 1; i <= 3; i++ {
		select {
		case n := <-received:
			assert.Equal(t, i, n)
		case <-time.After(time.Second):
			t.Fatalf("message %d not unstashed", i)
		}
	}
}

func TestStashUnstashOldest(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	received := make(chan int, 3)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &stashingActor{holding: true, received: received}
	}))
	as.Root.Send(pid, unstashMsg{n: 1})
	as.Root.Send(pid, unstashMsg{n: 2})
	as.Root.Send(pid, releaseMsg{})

	select {
	case n := <-received:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("oldest message not unstashed")
	}

	select {
	case n := <-received:
		t.Fatalf("unexpected message %d", n)
	case <-time.After(100 * time.Millisecond):
	}
}
