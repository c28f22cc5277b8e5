package cycle

import (
	"sync/atomic"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Node is the runtime state of one controlled node.
// It is owned by the goroutine running cycles, except the fields
// accessed through atomic accessors.
type Node struct {
	// dataErrors comes first: 64-bit atomics need 8-byte alignment,
	// which 32-bit platforms only guarantee for the first word of an
	// allocated struct. Nodes are therefore always handled by pointer.
	dataErrors uint64
	opState    int32
	period     int32

	ID uint8

	Input       Pattern
	PrevInput   Pattern
	Expected    Pattern
	InputPhase  InputPhase
	Tolerance   int
	Output      Pattern
	PrevOutput  Pattern
	OutputPhase OutputPhase

	// lastMatch is the input seen at the last successful match and
	// held counts the repeats of it absorbed since.
	lastMatch Pattern
	held      int
}

// NewNode creates a node record in its initial state.
func NewNode(id uint8, period int) *Node {
	return &Node{
		ID:      id,
		opState: int32(stack.NMTBasicEthernet),
		period:  int32(period),
	}
}

// OperationalState returns the externally supplied NMT state.
func (n *Node) OperationalState() stack.NMTState {
	return stack.NMTState(atomic.LoadInt32(&n.opState))
}

// SetOperationalState stores the NMT state of the node.
func (n *Node) SetOperationalState(state stack.NMTState) {
	atomic.StoreInt32(&n.opState, int32(state))
}

// Operational tells whether the inputs of the node are verified.
func (n *Node) Operational() bool {
	return n.OperationalState() == stack.NMTOperational
}

// OutputPeriod is the number of cycles between output advances.
func (n *Node) OutputPeriod() int {
	return int(atomic.LoadInt32(&n.period))
}

// SetOutputPeriod changes the output period, which must be positive.
func (n *Node) SetOutputPeriod(period int) {
	atomic.StoreInt32(&n.period, int32(period))
}

// DataErrors returns the data faults declared for this node.
func (n *Node) DataErrors() uint64 {
	return atomic.LoadUint64(&n.dataErrors)
}

func (n *Node) addDataError() {
	atomic.AddUint64(&n.dataErrors, 1)
}

func (n *Node) clearDataErrors() {
	atomic.StoreUint64(&n.dataErrors, 0)
}

// NodeStatus is a copy of the node state for display.
type NodeStatus struct {
	Slot         int
	ID           uint8
	State        stack.NMTState
	Input        Pattern
	Expected     Pattern
	InputPhase   InputPhase
	Tolerance    int
	Output       Pattern
	OutputPhase  OutputPhase
	OutputPeriod int
	DataErrors   uint64
}

// Status copies the state of the node.
func (n *Node) Status(slot int) NodeStatus {
	return NodeStatus{
		Slot:         slot,
		ID:           n.ID,
		State:        n.OperationalState(),
		Input:        n.Input,
		Expected:     n.Expected,
		InputPhase:   n.InputPhase,
		Tolerance:    n.Tolerance,
		Output:       n.Output,
		OutputPhase:  n.OutputPhase,
		OutputPeriod: n.OutputPeriod(),
		DataErrors:   n.DataErrors(),
	}
}
