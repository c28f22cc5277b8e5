package link

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Seq is the sequence number of a command frame.
type Seq byte

// NewSeq creates a random starting sequence number.
func NewSeq() Seq {
	return Seq(byte(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return Seq(n)
}

// IsValid checks if it's a valid command sequence number.
func (s Seq) IsValid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Code identifies the purpose of a frame.
type Code byte

// Command codes.
const (
	CodeAlloc       Code = 0x01
	CodeFree        Code = 0x02
	CodeExchangeIn  Code = 0x03
	CodeExchangeOut Code = 0x04
	CodeNMT         Code = 0x05
	CodeHeartbeat   Code = 0x06
)

// Event codes.
const (
	CodeSync  Code = 0x81
	CodeEvent Code = 0x82
)

const (
	codeReply Code = 0x40
	codeError Code = 0x20
	codeMask  Code = 0x1f
)

// IsEvent tells the frame is unsolicited.
func (c Code) IsEvent() bool {
	return c&0x80 != 0
}

// IsReply tells the frame replies a command.
func (c Code) IsReply() bool {
	return !c.IsEvent() && c&codeReply != 0
}

// IsError tells the reply carries an error.
func (c Code) IsError() bool {
	return c.IsReply() && c&codeError != 0
}

// Command returns the command code a reply answers.
func (c Code) Command() Code {
	return c & codeMask
}

// Reply returns the success reply code for a command.
func (c Code) Reply() Code {
	return c.Command() | codeReply
}

// ErrorReply returns the error reply code for a command.
func (c Code) ErrorReply() Code {
	return c.Command() | codeReply | codeError
}

// Frame is the unit exchanged over the link.
type Frame struct {
	Seq  Seq
	Code Code
	Data []byte
}

// Bytes encodes the frame.
func (f *Frame) Bytes() []byte {
	b := make([]byte, len(f.Data)+2)
	b[0], b[1] = byte(f.Seq), byte(f.Code)
	copy(b[2:], f.Data)
	return b
}

// DecodeFrame decodes a frame from a packet.
func DecodeFrame(pkt []byte) (*Frame, error) {
	if len(pkt) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(pkt))
	}
	f := &Frame{Seq: Seq(pkt[0]), Code: Code(pkt[1])}
	if len(pkt) > 2 {
		f.Data = pkt[2:]
	}
	return f, nil
}

func encodeSizes(in, out int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, uint32(in))
	binary.LittleEndian.PutUint32(b[4:], uint32(out))
	return b
}

func decodeSizes(b []byte) (in, out int, err error) {
	if len(b) != 8 {
		return 0, 0, fmt.Errorf("%w: alloc payload %d bytes", ErrShortFrame, len(b))
	}
	return int(binary.LittleEndian.Uint32(b)), int(binary.LittleEndian.Uint32(b[4:])), nil
}

// encodeEvent lays out: type, node ID, state, kind, message.
func encodeEvent(ev stack.Event) []byte {
	b := make([]byte, 4+len(ev.Msg))
	b[0], b[1], b[2], b[3] = byte(ev.Type), ev.NodeID, byte(ev.State), byte(ev.Kind)
	copy(b[4:], ev.Msg)
	return b
}

func decodeEvent(b []byte) (ev stack.Event, err error) {
	if len(b) < 4 {
		return ev, fmt.Errorf("%w: event payload %d bytes", ErrShortFrame, len(b))
	}
	ev.Type = stack.EventType(b[0])
	ev.NodeID = b[1]
	ev.State = stack.NMTState(b[2])
	ev.Kind = stack.ErrorKind(b[3])
	ev.Msg = string(b[4:])
	return ev, nil
}
