// Package sim provides an in-process simulated stack whose controlled
// nodes wire their digital outputs back to their digital inputs.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Config configures the simulated network.
type Config struct {
	// NodeIDs are the simulated controlled nodes.
	NodeIDs []uint8
	// CycleLen is the cycle duration; 0 disables the internal clock
	// and cycles are driven with Step.
	CycleLen time.Duration
	// Latency is the number of extra cycles before outputs show up
	// as inputs.
	Latency int
}

// Stack is a simulated stack.Stack.
type Stack struct {
	conf Config

	lock     sync.Mutex
	appIn    []byte
	appOut   []byte
	busIn    []byte   // last outputs received by the nodes
	busOut   []byte   // inputs currently sent by the nodes
	delay    [][]byte // outputs on their way back
	local    stack.NMTState
	nodes    map[uint8]stack.NMTState
	corrupt  func(cycle uint64, inputs []byte)
	failIn   int
	failOut  int
	dropTick int
	dead     bool
	shutdown bool
	cycle    uint64

	tickCh chan struct{}
	events chan stack.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ErrInjected is returned by injected exchange failures.
var ErrInjected = errors.New("injected failure")

// New creates the simulated stack. If CycleLen is set, the clock starts
// immediately and runs until Shutdown.
func New(conf Config) *Stack {
	s := &Stack{
		conf:   conf,
		local:  stack.NMTOff,
		nodes:  make(map[uint8]stack.NMTState),
		tickCh: make(chan struct{}, 1),
		events: make(chan stack.Event, 64),
		stopCh: make(chan struct{}),
	}
	for _, id := range conf.NodeIDs {
		s.nodes[id] = stack.NMTBasicEthernet
	}
	if conf.CycleLen > 0 {
		s.wg.Add(1)
		go s.clock()
	}
	return s
}

func (s *Stack) clock() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.conf.CycleLen)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step runs one bus cycle: the nodes sample the outputs last pushed
// and the cycle tick is signaled.
func (s *Stack) Step() {
	s.lock.Lock()
	if s.shutdown {
		s.lock.Unlock()
		return
	}
	s.cycle++
	s.advanceNMT()
	if s.busIn != nil {
		echo := append([]byte(nil), s.busIn...)
		s.delay = append(s.delay, echo)
		if len(s.delay) > s.conf.Latency {
			copy(s.busOut, s.delay[0])
			s.delay = s.delay[1:]
		}
		if fn := s.corrupt; fn != nil {
			fn(s.cycle, s.busOut)
		}
	}
	drop := s.dropTick > 0
	if drop {
		s.dropTick--
	}
	s.lock.Unlock()

	if drop {
		return
	}
	select {
	case s.tickCh <- struct{}{}:
	default:
		glog.V(4).Info("sim: tick overrun")
	}
}

// advanceNMT moves the MN and every node one state closer to operational.
func (s *Stack) advanceNMT() {
	switch s.local {
	case stack.NMTResetCommunication, stack.NMTResetConfiguration:
		s.setLocal(s.local + 1)
		return
	case stack.NMTNotActive:
		s.setLocal(stack.NMTPreOperational1)
	case stack.NMTPreOperational1, stack.NMTPreOperational2, stack.NMTReadyToOperate:
		s.setLocal(s.local + 1)
	case stack.NMTOperational:
	default:
		return
	}
	for id, state := range s.nodes {
		var next stack.NMTState
		switch state {
		case stack.NMTBasicEthernet, stack.NMTNotActive:
			next = stack.NMTPreOperational1
		case stack.NMTPreOperational1, stack.NMTPreOperational2, stack.NMTReadyToOperate:
			next = state + 1
		default:
			continue
		}
		s.nodes[id] = next
		s.emit(stack.Event{Type: stack.EventNodeState, NodeID: id, State: next})
	}
}

func (s *Stack) setLocal(state stack.NMTState) {
	s.local = state
	s.emit(stack.Event{Type: stack.EventLocalState, State: state})
}

func (s *Stack) emit(ev stack.Event) {
	select {
	case s.events <- ev:
	default:
		glog.Warningf("sim: event dropped: %s", ev)
	}
}

// AllocProcessImage implements stack.ProcessImage.
func (s *Stack) AllocProcessImage(sizeIn, sizeOut int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.shutdown {
		return stack.ErrShutdown
	}
	s.appIn, s.busIn = make([]byte, sizeIn), make([]byte, sizeIn)
	s.appOut, s.busOut = make([]byte, sizeOut), make([]byte, sizeOut)
	s.delay = nil
	return nil
}

// FreeProcessImage implements stack.ProcessImage.
func (s *Stack) FreeProcessImage() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.appIn, s.appOut, s.busIn, s.busOut, s.delay = nil, nil, nil, nil, nil
	return nil
}

// ImageIn implements stack.ProcessImage.
func (s *Stack) ImageIn() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.appIn
}

// ImageOut implements stack.ProcessImage.
func (s *Stack) ImageOut() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.appOut
}

// ExchangeImageIn implements stack.ProcessImage.
func (s *Stack) ExchangeImageIn() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkImage(); err != nil {
		return err
	}
	if s.failIn > 0 {
		s.failIn--
		return ErrInjected
	}
	copy(s.busIn, s.appIn)
	return nil
}

// ExchangeImageOut implements stack.ProcessImage.
func (s *Stack) ExchangeImageOut() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkImage(); err != nil {
		return err
	}
	if s.failOut > 0 {
		s.failOut--
		return ErrInjected
	}
	copy(s.appOut, s.busOut)
	return nil
}

func (s *Stack) checkImage() error {
	if s.shutdown {
		return stack.ErrShutdown
	}
	if s.appIn == nil {
		return stack.ErrNotAllocated
	}
	return nil
}

// WaitSyncEvent implements stack.SyncImage.
func (s *Stack) WaitSyncEvent(timeout time.Duration) error {
	s.lock.Lock()
	down := s.shutdown
	s.lock.Unlock()
	if down {
		return stack.ErrShutdown
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.tickCh:
		return nil
	case <-s.stopCh:
		return stack.ErrShutdown
	case <-timer.C:
		return stack.ErrTimeout
	}
}

// ExecNMTCommand implements stack.Stack.
func (s *Stack) ExecNMTCommand(cmd stack.NMTCommand) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.shutdown {
		return stack.ErrShutdown
	}
	switch cmd {
	case stack.NMTSwReset:
		for id := range s.nodes {
			s.nodes[id] = stack.NMTNotActive
		}
		s.setLocal(stack.NMTResetCommunication)
	case stack.NMTCycleError:
		s.emit(stack.Event{Type: stack.EventError, Kind: stack.ErrorKindCycle, Msg: "NMT cycle error requested"})
		for id := range s.nodes {
			s.nodes[id] = stack.NMTPreOperational1
			s.emit(stack.Event{Type: stack.EventNodeState, NodeID: id, State: stack.NMTPreOperational1})
		}
		s.setLocal(stack.NMTPreOperational1)
	case stack.NMTSwitchOff:
		for id := range s.nodes {
			s.nodes[id] = stack.NMTOff
		}
		s.setLocal(stack.NMTOff)
	default:
		return errors.New("unsupported NMT command " + cmd.String())
	}
	return nil
}

// CheckKernelStack implements stack.Stack.
func (s *Stack) CheckKernelStack() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return !s.dead && !s.shutdown
}

// Events implements stack.Stack.
func (s *Stack) Events() <-chan stack.Event {
	return s.events
}

// Shutdown implements stack.Stack.
func (s *Stack) Shutdown() error {
	s.lock.Lock()
	if s.shutdown {
		s.lock.Unlock()
		return nil
	}
	s.shutdown = true
	close(s.stopCh)
	s.lock.Unlock()
	s.wg.Wait()
	return nil
}

// Run implements Runnable for stacks driven by a context.
func (s *Stack) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
	s.Shutdown()
	return ctx.Err()
}

// LocalState returns the NMT state of the simulated MN.
func (s *Stack) LocalState() stack.NMTState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.local
}

// NodeState returns the NMT state of a simulated node.
func (s *Stack) NodeState(id uint8) stack.NMTState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.nodes[id]
}

// Corrupt installs a function altering the node inputs each cycle.
// nil removes it.
func (s *Stack) Corrupt(fn func(cycle uint64, inputs []byte)) {
	s.lock.Lock()
	s.corrupt = fn
	s.lock.Unlock()
}

// FailExchanges makes the next exchanges fail.
func (s *Stack) FailExchanges(in, out int) {
	s.lock.Lock()
	s.failIn, s.failOut = in, out
	s.lock.Unlock()
}

// DropTicks suppresses the next n cycle ticks.
func (s *Stack) DropTicks(n int) {
	s.lock.Lock()
	s.dropTick = n
	s.lock.Unlock()
}

// Kill simulates the loss of the kernel stack.
func (s *Stack) Kill() {
	s.lock.Lock()
	s.dead = true
	s.lock.Unlock()
}
