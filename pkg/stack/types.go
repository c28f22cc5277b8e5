// Package stack defines the contract between the MN application and the
// real-time network stack delivering process images and cycle ticks.
package stack

import (
	"errors"
	"fmt"
	"time"
)

// Process image directions follow the stack's point of view:
// ImageIn is written by the application and pushed into the stack
// (outputs of the controlled nodes), ImageOut is filled by the stack
// (inputs of the controlled nodes).

// ProcessImage provides access to the exchanged process images.
type ProcessImage interface {
	// AllocProcessImage allocates the input and output images.
	AllocProcessImage(sizeIn, sizeOut int) error
	// FreeProcessImage releases the images.
	FreeProcessImage() error
	// ImageIn returns the local buffer pushed by ExchangeImageIn.
	ImageIn() []byte
	// ImageOut returns the local buffer filled by ExchangeImageOut.
	ImageOut() []byte
	// ExchangeImageIn pushes ImageIn into the stack.
	ExchangeImageIn() error
	// ExchangeImageOut pulls the latest received data into ImageOut.
	ExchangeImageOut() error
}

// SyncImage is a ProcessImage synchronized to the cycle.
type SyncImage interface {
	ProcessImage
	// WaitSyncEvent blocks until the next cycle tick.
	// It returns ErrTimeout if no tick arrives within timeout.
	WaitSyncEvent(timeout time.Duration) error
}

// Stack is the full stack collaborator used by the application.
type Stack interface {
	SyncImage
	// ExecNMTCommand sends a network management command.
	ExecNMTCommand(NMTCommand) error
	// CheckKernelStack reports whether the kernel part is alive.
	CheckKernelStack() bool
	// Events delivers asynchronous stack events.
	Events() <-chan Event
	// Shutdown stops the stack and releases resources.
	Shutdown() error
}

var (
	// ErrTimeout indicates a sync event wait expired.
	ErrTimeout = errors.New("sync event timeout")
	// ErrNotAllocated indicates the process image is not allocated.
	ErrNotAllocated = errors.New("process image not allocated")
	// ErrShutdown indicates the stack has been shut down.
	ErrShutdown = errors.New("stack shut down")
)

// NMTState is the network management state of a node.
type NMTState int

// NMT states.
const (
	NMTOff NMTState = iota
	NMTInitialising
	NMTResetApplication
	NMTResetCommunication
	NMTResetConfiguration
	NMTNotActive
	NMTPreOperational1
	NMTPreOperational2
	NMTReadyToOperate
	NMTOperational
	NMTStopped
	NMTBasicEthernet
)

var nmtStateNames = map[NMTState]string{
	NMTOff:                "off",
	NMTInitialising:       "initialising",
	NMTResetApplication:   "reset-application",
	NMTResetCommunication: "reset-communication",
	NMTResetConfiguration: "reset-configuration",
	NMTNotActive:          "not-active",
	NMTPreOperational1:    "pre-operational-1",
	NMTPreOperational2:    "pre-operational-2",
	NMTReadyToOperate:     "ready-to-operate",
	NMTOperational:        "operational",
	NMTStopped:            "stopped",
	NMTBasicEthernet:      "basic-ethernet",
}

// String implements fmt.Stringer.
func (s NMTState) String() string {
	if name, ok := nmtStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("nmt-state(%d)", int(s))
}

// ParseNMTState parses the name produced by NMTState.String.
func ParseNMTState(name string) (NMTState, error) {
	for state, n := range nmtStateNames {
		if n == name {
			return state, nil
		}
	}
	return NMTOff, fmt.Errorf("unknown NMT state %q", name)
}

// NMTCommand is a network management command.
type NMTCommand int

// NMT commands.
const (
	NMTSwReset NMTCommand = iota + 1
	NMTCycleError
	NMTSwitchOff
)

// String implements fmt.Stringer.
func (c NMTCommand) String() string {
	switch c {
	case NMTSwReset:
		return "sw-reset"
	case NMTCycleError:
		return "cycle-error"
	case NMTSwitchOff:
		return "switch-off"
	}
	return fmt.Sprintf("nmt-command(%d)", int(c))
}

// EventType classifies a stack event.
type EventType int

// Event types.
const (
	// EventNodeState reports an NMT state change of a controlled node.
	EventNodeState EventType = iota + 1
	// EventLocalState reports an NMT state change of the MN itself.
	EventLocalState
	// EventError reports an error detected by the stack.
	EventError
)

// ErrorKind classifies errors reported by EventError.
type ErrorKind int

// Error kinds.
const (
	ErrorKindCycle ErrorKind = iota + 1
	ErrorKindStack
	ErrorKindNMT
	ErrorKindConf
	ErrorKindNode
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindCycle:
		return "cycle"
	case ErrorKindStack:
		return "stack"
	case ErrorKindNMT:
		return "nmt"
	case ErrorKindConf:
		return "configuration"
	case ErrorKindNode:
		return "node"
	}
	return fmt.Sprintf("error-kind(%d)", int(k))
}

// Event is an asynchronous notification from the stack.
type Event struct {
	Type   EventType
	NodeID uint8
	State  NMTState
	Kind   ErrorKind
	Msg    string
}

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e.Type {
	case EventNodeState:
		return fmt.Sprintf("node %d: %s", e.NodeID, e.State)
	case EventLocalState:
		return fmt.Sprintf("local: %s", e.State)
	case EventError:
		if e.NodeID != 0 {
			return fmt.Sprintf("%s error (node %d): %s", e.Kind, e.NodeID, e.Msg)
		}
		return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("event(%d)", int(e.Type))
}
