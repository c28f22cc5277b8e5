// Package monitor periodically reports the counters and node states of
// an MN to sinks.
package monitor

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/fieldbus.go/pkg/framework"
	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Source provides the current status of an MN.
type Source interface {
	Status() Report
}

// Sink consumes reports.
type Sink interface {
	Report(ctx context.Context, r *Report) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Report implements Sink.
func (f SinkFunc) Report(ctx context.Context, r *Report) error {
	return f(ctx, r)
}

// Monitor samples a Source on each loop iteration and forwards the
// report to all sinks while the MN is operational. One more report is
// sent when the MN leaves the operational state.
type Monitor struct {
	Source Source
	Sinks  []Sink

	lock        sync.Mutex
	current     *Report
	operational bool
}

// New creates a Monitor.
func New(src Source, sinks ...Sink) *Monitor {
	return &Monitor{Source: src, Sinks: sinks}
}

// AddToLoop implements LoopAdder.
func (m *Monitor) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.StageSample, fx.ControlFunc(m.sample))
	loop.AddController(fx.StageReport, fx.ControlFunc(m.report))
	for _, sink := range m.Sinks {
		if runner, ok := sink.(fx.Runnable); ok {
			loop.AddRunnable(runner)
		}
	}
}

// Last returns the last report sampled.
func (m *Monitor) Last() *Report {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.current
}

func (m *Monitor) sample(cc fx.ControlContext) error {
	r := m.Source.Status()
	r.Time = cc.Time()
	m.lock.Lock()
	m.current = &r
	m.lock.Unlock()
	return nil
}

func (m *Monitor) report(cc fx.ControlContext) error {
	r := m.Last()
	if r == nil {
		return nil
	}
	operational := r.LocalState == stack.NMTOperational
	wasOperational := m.operational
	m.operational = operational
	if !operational && !wasOperational {
		return nil
	}
	var errs fx.AggregatedError
	for _, sink := range m.Sinks {
		errs.Add(sink.Report(cc.Context(), r))
	}
	return errs.Aggregate()
}

// LogSink logs the counters whenever an error counter changes.
type LogSink struct {
	last   *Report
	logged bool
}

// Report implements Sink.
func (s *LogSink) Report(_ context.Context, r *Report) error {
	changed := !s.logged || errorsOf(s.last.Counters) != errorsOf(r.Counters) ||
		s.last.LocalState != r.LocalState
	s.last, s.logged = r, true
	if !changed {
		return nil
	}
	c := r.Counters
	glog.Infof("%s: cycles=%d data=%d tick=%d exchange=%d heartbeat=%d cycle=%d conf=%d stack=%d nmt=%d node=%d",
		r.LocalState, c.Cycles, c.DataErrors, c.TickTimeouts, c.ExchangeErrors, c.HeartbeatErrors,
		c.CycleErrors, c.ConfErrors, c.StackErrors, c.NMTErrors, c.NodeErrors)
	if glog.V(2) {
		for _, n := range r.Nodes {
			glog.Infof("node %d [%s]: in=%#05x expected=%#05x (%s) out=%#05x (%s) errors=%d",
				n.ID, n.State, uint32(n.Input), uint32(n.Expected), n.InputPhase,
				uint32(n.Output), n.OutputPhase, n.DataErrors)
		}
	}
	return nil
}
