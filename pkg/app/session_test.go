package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fieldbus.go/pkg/console"
	"github.com/robotalks/fieldbus.go/pkg/cycle"
	"github.com/robotalks/fieldbus.go/pkg/stack"
	"github.com/robotalks/fieldbus.go/pkg/stack/sim"
)

// recordingStack counts software resets issued to a simulated stack.
type recordingStack struct {
	*sim.Stack

	lock   sync.Mutex
	resets int
}

func (s *recordingStack) ExecNMTCommand(cmd stack.NMTCommand) error {
	if cmd == stack.NMTSwReset {
		s.lock.Lock()
		s.resets++
		s.lock.Unlock()
	}
	return s.Stack.ExecNMTCommand(cmd)
}

func (s *recordingStack) Resets() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.resets
}

type sessionTestEnv struct {
	t       *testing.T
	session *Session
	cancel  func()
	doneCh  chan error

	lock   sync.Mutex
	stacks []*recordingStack
}

func newSessionTestEnv(t *testing.T, modify func(*Config)) *sessionTestEnv {
	conf := NewConfig()
	conf.Nodes = "1,2"
	conf.CycleLen = 2 * time.Millisecond
	conf.TickTimeout = 50 * time.Millisecond
	conf.MaxCycleFailures = 3
	conf.RestartDelay = 10 * time.Millisecond
	if modify != nil {
		modify(conf)
	}
	env := &sessionTestEnv{t: t, session: NewSession(conf), doneCh: make(chan error, 1)}
	env.session.Open = func(conf *Config) (stack.Stack, error) {
		st, err := OpenStack(conf)
		if err != nil {
			return nil, err
		}
		rec := &recordingStack{Stack: st.(*sim.Stack)}
		env.lock.Lock()
		env.stacks = append(env.stacks, rec)
		env.lock.Unlock()
		return rec, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.doneCh <- env.session.Run(ctx) }()
	return env
}

func (e *sessionTestEnv) stack(n int) *recordingStack {
	e.lock.Lock()
	defer e.lock.Unlock()
	if n < len(e.stacks) {
		return e.stacks[n]
	}
	return nil
}

func (e *sessionTestEnv) waitFor(what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			e.t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *sessionTestEnv) waitOperational() {
	e.waitFor("operational", func() bool {
		r := e.session.Status()
		if r.LocalState != stack.NMTOperational || len(r.Nodes) != 2 {
			return false
		}
		for _, n := range r.Nodes {
			if n.State != stack.NMTOperational {
				return false
			}
		}
		return true
	})
}

func (e *sessionTestEnv) stop() {
	e.cancel()
	select {
	case <-e.doneCh:
	case <-time.After(5 * time.Second):
		e.t.Fatal("session did not stop")
	}
}

func TestSessionRunsCycles(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	env.waitOperational()
	cycles := env.session.Counters().Get(cycle.CounterCycles)
	env.waitFor("cycles", func() bool {
		return env.session.Counters().Get(cycle.CounterCycles) > cycles+20
	})
	r := env.session.Status()
	assert.Equal(t, 0, r.Restarts)
	for _, n := range r.Nodes {
		assert.Equal(t, 1, n.OutputPeriod)
	}

	require.NoError(t, env.session.Do(console.ActionExit))
	select {
	case err := <-env.doneCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	assert.Equal(t, stack.NMTOff, env.session.LocalState())
	assert.Equal(t, ErrNotRunning, env.session.SetOutputPeriod(0, 2))
}

func TestSessionConsoleRequests(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	defer env.stop()
	env.waitOperational()

	require.NoError(t, env.session.Do(console.ActionCycleError))
	env.waitFor("cycle error counted", func() bool {
		return env.session.Counters().Get(cycle.CounterCycleErrors) == 1
	})
	env.waitOperational()

	require.NoError(t, env.session.Do(console.ActionClearCounters))
	assert.Zero(t, env.session.Counters().Get(cycle.CounterCycleErrors))

	require.NoError(t, env.session.Do(console.ActionReset))
	assert.Equal(t, 2, env.stack(0).Resets())
	env.waitOperational()

	require.NoError(t, env.session.SetOutputPeriod(1, 4))
	env.waitFor("period applied", func() bool {
		return env.session.Status().Nodes[1].OutputPeriod == 4
	})
	assert.Error(t, env.session.SetNodeOperationalState(5, stack.NMTOperational))
}

func TestSessionRestartsOnHeartbeatLoss(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	defer env.stop()
	env.waitOperational()

	env.stack(0).Kill()
	env.waitFor("restart", func() bool { return env.session.Restarts() == 1 })
	assert.Equal(t, uint64(1), env.session.Counters().Get(cycle.CounterHeartbeatErrors))
	env.waitOperational()
	require.NotNil(t, env.stack(1))
	assert.False(t, env.stack(0).CheckKernelStack())
}

func TestSessionRestartsOnStackLoss(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	defer env.stop()
	env.waitOperational()

	timeouts := env.session.Counters().Get(cycle.CounterTickTimeouts)
	require.NoError(t, env.stack(0).Stack.Shutdown())
	env.waitFor("restart", func() bool { return env.session.Restarts() == 1 })
	assert.Equal(t, 1, env.stack(0).Resets())
	assert.Equal(t, timeouts, env.session.Counters().Get(cycle.CounterTickTimeouts))
	assert.True(t, env.session.Counters().Get(cycle.CounterHeartbeatErrors) >= 1)
	env.waitOperational()
}

func TestSessionMetaReportsBadNodes(t *testing.T) {
	conf := NewConfig()
	conf.Nodes = "1,x"
	meta := NewSession(conf).Meta()
	assert.Equal(t, conf.MNID, meta.MNID)
	assert.Empty(t, meta.Nodes)

	conf.Nodes = "2-4"
	assert.Equal(t, []int{2, 3, 4}, NewSession(conf).Meta().Nodes)
}

func TestSessionRestartsOnSwitchOff(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	defer env.stop()
	env.waitOperational()

	require.NoError(t, env.stack(0).Stack.ExecNMTCommand(stack.NMTSwitchOff))
	env.waitFor("restart", func() bool { return env.session.Restarts() == 1 })
	env.waitOperational()
}

func TestSessionResetsWithoutSync(t *testing.T) {
	env := newSessionTestEnv(t, nil)
	defer env.stop()
	env.waitOperational()

	env.stack(0).DropTicks(100)
	env.waitFor("reset", func() bool { return env.stack(0).Resets() == 2 })
	assert.True(t, env.session.Counters().Get(cycle.CounterTickTimeouts) >= 3)
	assert.Zero(t, env.session.Restarts())
	env.waitOperational()
}

func TestSessionOpenFailure(t *testing.T) {
	conf := NewConfig()
	conf.StackURL = "tcp://127.0.0.1:1"
	s := NewSession(conf)
	require.Error(t, s.Run(context.Background()))
	assert.Equal(t, uint64(1), s.Counters().Get(cycle.CounterStackErrors))
	assert.Equal(t, ErrNotRunning, s.SetNodeOperationalState(0, stack.NMTOperational))
}
