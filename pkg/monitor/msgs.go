package monitor

import (
	"github.com/golang/protobuf/proto"
)

// StatusReport is the status of an MN published on <mn-id>/status.
type StatusReport struct {
	MnId       string          `protobuf:"bytes,1,opt,name=mn_id,proto3" json:"mn_id,omitempty"`
	Timestamp  int64           `protobuf:"varint,2,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	LocalState string          `protobuf:"bytes,3,opt,name=local_state,proto3" json:"local_state,omitempty"`
	Counters   *CountersReport `protobuf:"bytes,4,opt,name=counters,proto3" json:"counters,omitempty"`
	Nodes      []*NodeReport   `protobuf:"bytes,5,rep,name=nodes,proto3" json:"nodes,omitempty"`
	Restarts   uint32          `protobuf:"varint,6,opt,name=restarts,proto3" json:"restarts,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *StatusReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusReport) Reset() { *m = StatusReport{} }

// String implements proto.Message.
func (m *StatusReport) String() string { return proto.CompactTextString(m) }

// CountersReport carries the session counters.
type CountersReport struct {
	Cycles          uint64 `protobuf:"varint,1,opt,name=cycles,proto3" json:"cycles,omitempty"`
	DataErrors      uint64 `protobuf:"varint,2,opt,name=data_errors,proto3" json:"data_errors,omitempty"`
	TickTimeouts    uint64 `protobuf:"varint,3,opt,name=tick_timeouts,proto3" json:"tick_timeouts,omitempty"`
	ExchangeErrors  uint64 `protobuf:"varint,4,opt,name=exchange_errors,proto3" json:"exchange_errors,omitempty"`
	HeartbeatErrors uint64 `protobuf:"varint,5,opt,name=heartbeat_errors,proto3" json:"heartbeat_errors,omitempty"`
	CycleErrors     uint64 `protobuf:"varint,6,opt,name=cycle_errors,proto3" json:"cycle_errors,omitempty"`
	ConfErrors      uint64 `protobuf:"varint,7,opt,name=conf_errors,proto3" json:"conf_errors,omitempty"`
	StackErrors     uint64 `protobuf:"varint,8,opt,name=stack_errors,proto3" json:"stack_errors,omitempty"`
	NmtErrors       uint64 `protobuf:"varint,9,opt,name=nmt_errors,proto3" json:"nmt_errors,omitempty"`
	NodeErrors      uint64 `protobuf:"varint,10,opt,name=node_errors,proto3" json:"node_errors,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *CountersReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CountersReport) Reset() { *m = CountersReport{} }

// String implements proto.Message.
func (m *CountersReport) String() string { return proto.CompactTextString(m) }

// NodeReport is the status of a controlled node.
type NodeReport struct {
	Slot         uint32 `protobuf:"varint,1,opt,name=slot,proto3" json:"slot,omitempty"`
	Id           uint32 `protobuf:"varint,2,opt,name=id,proto3" json:"id,omitempty"`
	State        string `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Input        uint32 `protobuf:"varint,4,opt,name=input,proto3" json:"input,omitempty"`
	Expected     uint32 `protobuf:"varint,5,opt,name=expected,proto3" json:"expected,omitempty"`
	InputPhase   string `protobuf:"bytes,6,opt,name=input_phase,proto3" json:"input_phase,omitempty"`
	Tolerance    uint32 `protobuf:"varint,7,opt,name=tolerance,proto3" json:"tolerance,omitempty"`
	Output       uint32 `protobuf:"varint,8,opt,name=output,proto3" json:"output,omitempty"`
	OutputPhase  string `protobuf:"bytes,9,opt,name=output_phase,proto3" json:"output_phase,omitempty"`
	OutputPeriod uint32 `protobuf:"varint,10,opt,name=output_period,proto3" json:"output_period,omitempty"`
	DataErrors   uint64 `protobuf:"varint,11,opt,name=data_errors,proto3" json:"data_errors,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *NodeReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeReport) Reset() { *m = NodeReport{} }

// String implements proto.Message.
func (m *NodeReport) String() string { return proto.CompactTextString(m) }
