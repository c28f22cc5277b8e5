package monitor

import (
	"time"

	"github.com/robotalks/fieldbus.go/pkg/cycle"
	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Report is a point-in-time view of an MN.
type Report struct {
	Time       time.Time
	LocalState stack.NMTState
	Restarts   int
	Counters   cycle.Snapshot
	Nodes      []cycle.NodeStatus
}

// Proto converts the report into its wire form.
func (r *Report) Proto(mnID string) *StatusReport {
	c := r.Counters
	msg := &StatusReport{
		MnId:       mnID,
		Timestamp:  r.Time.UnixNano(),
		LocalState: r.LocalState.String(),
		Restarts:   uint32(r.Restarts),
		Counters: &CountersReport{
			Cycles:          c.Cycles,
			DataErrors:      c.DataErrors,
			TickTimeouts:    c.TickTimeouts,
			ExchangeErrors:  c.ExchangeErrors,
			HeartbeatErrors: c.HeartbeatErrors,
			CycleErrors:     c.CycleErrors,
			ConfErrors:      c.ConfErrors,
			StackErrors:     c.StackErrors,
			NmtErrors:       c.NMTErrors,
			NodeErrors:      c.NodeErrors,
		},
		Nodes: make([]*NodeReport, 0, len(r.Nodes)),
	}
	for _, n := range r.Nodes {
		msg.Nodes = append(msg.Nodes, &NodeReport{
			Slot:         uint32(n.Slot),
			Id:           uint32(n.ID),
			State:        n.State.String(),
			Input:        uint32(n.Input),
			Expected:     uint32(n.Expected),
			InputPhase:   n.InputPhase.String(),
			Tolerance:    uint32(n.Tolerance),
			Output:       uint32(n.Output),
			OutputPhase:  n.OutputPhase.String(),
			OutputPeriod: uint32(n.OutputPeriod),
			DataErrors:   n.DataErrors,
		})
	}
	return msg
}

// errorsOf drops the cycle count so reports differing only in cycles
// compare equal.
func errorsOf(s cycle.Snapshot) cycle.Snapshot {
	s.Cycles = 0
	return s
}
