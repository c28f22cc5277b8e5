// Package app runs an MN: it supervises the stack and the cycle
// controller, and restarts the stack when it fails.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/console"
	"github.com/robotalks/fieldbus.go/pkg/cycle"
	"github.com/robotalks/fieldbus.go/pkg/monitor"
	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// ExitReason tells why the supervision of a stack ended.
type ExitReason int

// Exit reasons.
const (
	// ExitNone means the session was canceled.
	ExitNone ExitReason = iota
	// ExitUser means the operator stopped the MN.
	ExitUser
	// ExitCycleError means too many consecutive cycles failed.
	ExitCycleError
	// ExitNoSync means too many consecutive cycle ticks were missed.
	ExitNoSync
	// ExitResetFailure means the software reset could not be issued.
	ExitResetFailure
	// ExitHeartbeat means the kernel stack was lost.
	ExitHeartbeat
	// ExitGsOff means the MN switched off.
	ExitGsOff
)

var exitReasonNames = []string{"canceled", "user", "cycle-error", "no-sync", "reset-failure", "heartbeat", "gs-off"}

// String implements fmt.Stringer.
func (r ExitReason) String() string {
	if int(r) < len(exitReasonNames) {
		return exitReasonNames[r]
	}
	return "exit-reason(" + strconv.Itoa(int(r)) + ")"
}

// ErrNotRunning indicates no stack is being supervised.
var ErrNotRunning = errors.New("MN not running")

const (
	supervisePeriod = 100 * time.Millisecond
	requestTimeout  = time.Second
)

var errorCounters = map[stack.ErrorKind]cycle.Counter{
	stack.ErrorKindCycle: cycle.CounterCycleErrors,
	stack.ErrorKindStack: cycle.CounterStackErrors,
	stack.ErrorKindNMT:   cycle.CounterNMTErrors,
	stack.ErrorKindConf:  cycle.CounterConfErrors,
	stack.ErrorKindNode:  cycle.CounterNodeErrors,
}

type request struct {
	action console.Action
	done   chan error
}

// Session owns the stack, the cycle controller and the counters of an
// MN. It implements console.Control and monitor.Source.
type Session struct {
	Config *Config
	Open   StackFactory

	counters   *cycle.Counters
	requests   chan request
	localState int32
	restarts   int32

	lock sync.RWMutex
	ctl  *cycle.Controller
}

// NewSession creates a session.
func NewSession(conf *Config) *Session {
	return &Session{
		Config:   conf,
		Open:     OpenStack,
		counters: cycle.NewCounters(),
		requests: make(chan request),
	}
}

// Name implements Named.
func (s *Session) Name() string {
	return "session"
}

// Counters returns the session counters, kept across restarts.
func (s *Session) Counters() *cycle.Counters {
	return s.counters
}

// LocalState returns the last NMT state reported for the MN.
func (s *Session) LocalState() stack.NMTState {
	return stack.NMTState(atomic.LoadInt32(&s.localState))
}

func (s *Session) setLocalState(state stack.NMTState) {
	atomic.StoreInt32(&s.localState, int32(state))
}

// Restarts returns how many times the stack was restarted.
func (s *Session) Restarts() int {
	return int(atomic.LoadInt32(&s.restarts))
}

func (s *Session) controller() *cycle.Controller {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.ctl
}

func (s *Session) setController(ctl *cycle.Controller) {
	s.lock.Lock()
	s.ctl = ctl
	s.lock.Unlock()
}

// Meta describes the MN for publishing.
func (s *Session) Meta() monitor.Meta {
	meta := monitor.Meta{
		MNID:     s.Config.MNID,
		Period:   s.Config.AppCycle,
		Channels: s.Config.Channels,
		Stack:    s.Config.StackURL,
	}
	ids, err := s.Config.NodeIDs()
	if err != nil {
		glog.Warningf("meta: %v", err)
	}
	for _, id := range ids {
		meta.Nodes = append(meta.Nodes, int(id))
	}
	return meta
}

// Status implements monitor.Source.
func (s *Session) Status() monitor.Report {
	r := monitor.Report{
		LocalState: s.LocalState(),
		Restarts:   s.Restarts(),
		Counters:   s.counters.Snapshot(),
	}
	if ctl := s.controller(); ctl != nil {
		r.Nodes = ctl.Nodes()
	}
	return r
}

// Do implements console.Control.
func (s *Session) Do(action console.Action) error {
	req := request{action: action, done: make(chan error, 1)}
	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case s.requests <- req:
	case <-timer.C:
		return ErrNotRunning
	}
	return <-req.done
}

// SetNodeOperationalState implements console.Control.
func (s *Session) SetNodeOperationalState(slot int, state stack.NMTState) error {
	ctl := s.controller()
	if ctl == nil {
		return ErrNotRunning
	}
	return ctl.SetNodeOperationalState(slot, state)
}

// SetOutputPeriod implements console.Control.
func (s *Session) SetOutputPeriod(slot, period int) error {
	ctl := s.controller()
	if ctl == nil {
		return ErrNotRunning
	}
	return ctl.SetOutputPeriod(slot, period)
}

// Run implements Runnable. It returns nil when the operator exits.
func (s *Session) Run(ctx context.Context) error {
	conf, err := s.Config.CycleConfig()
	if err != nil {
		s.counters.Inc(cycle.CounterConfErrors)
		return err
	}
	for {
		reason, err := s.runStack(ctx, conf)
		if err != nil {
			if s.Restarts() == 0 || ctx.Err() != nil {
				return err
			}
			glog.Errorf("restart failed: %v", err)
			reason = ExitResetFailure
		}
		switch reason {
		case ExitUser:
			glog.Info("MN stopped")
			return nil
		case ExitNone:
			return ctx.Err()
		}
		glog.Warningf("restarting stack (%s) in %v", reason, s.Config.RestartDelay)
		atomic.AddInt32(&s.restarts, 1)
		timer := time.NewTimer(s.Config.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runStack opens the stack with a fresh node table and supervises it
// until it must be restarted.
func (s *Session) runStack(ctx context.Context, conf cycle.Config) (ExitReason, error) {
	st, err := s.Open(s.Config)
	if err != nil {
		s.counters.Inc(cycle.CounterStackErrors)
		return ExitNone, fmt.Errorf("open stack: %w", err)
	}
	defer s.shutdownStack(st)

	ctl, err := cycle.New(conf, st, s.counters)
	if err != nil {
		s.counters.Inc(cycle.CounterStackErrors)
		return ExitNone, err
	}
	s.setController(ctl)
	defer s.setController(nil)

	for {
		reason := s.supervise(ctx, st, ctl)
		switch reason {
		case ExitCycleError, ExitNoSync:
			glog.Warningf("resetting network (%s)", reason)
			continue
		}
		return reason, nil
	}
}

func (s *Session) shutdownStack(st stack.Stack) {
	if err := st.ExecNMTCommand(stack.NMTSwitchOff); err != nil {
		glog.V(2).Infof("switch off: %v", err)
	}
	if err := st.FreeProcessImage(); err != nil {
		glog.V(2).Infof("free process image: %v", err)
	}
	if err := st.Shutdown(); err != nil {
		glog.Warningf("shutdown stack: %v", err)
	}
	s.setLocalState(stack.NMTOff)
}

func (s *Session) supervise(ctx context.Context, st stack.Stack, ctl *cycle.Controller) ExitReason {
	glog.Info("NMT software reset")
	if err := st.ExecNMTCommand(stack.NMTSwReset); err != nil {
		glog.Errorf("software reset: %v", err)
		s.counters.Inc(cycle.CounterStackErrors)
		return ExitResetFailure
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	escalateCh := make(chan ExitReason, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runCycles(cycleCtx, ctl, escalateCh)
	}()
	defer wg.Wait()
	defer cancel()

	ticker := time.NewTicker(supervisePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ExitNone
		case reason := <-escalateCh:
			return reason
		case req := <-s.requests:
			if reason := s.handleRequest(req, st, ctl); reason != ExitNone {
				return reason
			}
		case ev := <-st.Events():
			if reason := s.handleEvent(ev, ctl); reason != ExitNone {
				return reason
			}
		case <-ticker.C:
			if !st.CheckKernelStack() {
				glog.Error("kernel stack lost")
				s.counters.Inc(cycle.CounterHeartbeatErrors)
				return ExitHeartbeat
			}
		}
	}
}

// runCycles runs cycles back to back until ctx is done, the stack is
// gone, or MaxCycleFailures consecutive cycles failed.
func (s *Session) runCycles(ctx context.Context, ctl *cycle.Controller, escalateCh chan<- ExitReason) {
	var failures, timeouts int
	for ctx.Err() == nil {
		err := ctl.RunCycle()
		if err == nil {
			failures, timeouts = 0, 0
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, stack.ErrShutdown) {
			glog.Errorf("kernel stack lost: %v", err)
			s.counters.Inc(cycle.CounterHeartbeatErrors)
			escalateCh <- ExitHeartbeat
			return
		}
		failures++
		if errors.Is(err, cycle.ErrTickTimeout) {
			timeouts++
		}
		glog.V(2).Infof("cycle failed (%d in a row): %v", failures, err)
		if failures >= s.Config.MaxCycleFailures {
			reason := ExitCycleError
			if timeouts == failures {
				reason = ExitNoSync
			}
			glog.Errorf("%d cycles failed in a row: %v", failures, err)
			escalateCh <- reason
			return
		}
	}
}

func (s *Session) handleRequest(req request, st stack.Stack, ctl *cycle.Controller) ExitReason {
	glog.Infof("request: %s", req.action)
	var err error
	reason := ExitNone
	switch req.action {
	case console.ActionReset:
		err = st.ExecNMTCommand(stack.NMTSwReset)
	case console.ActionCycleError:
		err = st.ExecNMTCommand(stack.NMTCycleError)
	case console.ActionClearCounters:
		ctl.ClearCounters()
	case console.ActionExit:
		reason = ExitUser
	default:
		err = fmt.Errorf("unsupported action %s", req.action)
	}
	req.done <- err
	return reason
}

func (s *Session) handleEvent(ev stack.Event, ctl *cycle.Controller) ExitReason {
	switch ev.Type {
	case stack.EventNodeState:
		glog.Infof("node %d: %s", ev.NodeID, ev.State)
		if err := ctl.SetNodeOperationalStateByID(ev.NodeID, ev.State); err != nil {
			glog.Warningf("state of unconfigured node: %v", err)
		}
	case stack.EventLocalState:
		glog.Infof("MN: %s", ev.State)
		s.setLocalState(ev.State)
		if ev.State == stack.NMTOff {
			return ExitGsOff
		}
	case stack.EventError:
		glog.Warningf("%s", ev)
		counter, ok := errorCounters[ev.Kind]
		if !ok {
			counter = cycle.CounterStackErrors
		}
		s.counters.Inc(counter)
	default:
		glog.Warningf("unknown event: %s", ev)
	}
	return ExitNone
}
