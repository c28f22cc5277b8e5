package link

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Result is the result of a command.
type Result struct {
	Err  error
	Data []byte
}

// Command represents a pending command waiting for reply.
type Command struct {
	seq      Seq
	code     Code
	resultCh chan Result
	next     *Command
}

// Seq returns the request sequence number.
func (c *Command) Seq() Seq {
	return c.seq
}

// ResultChan returns the chan to retrieve result.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

// Wait waits for the result up to timeout.
func (c *Command) Wait(timeout time.Duration) Result {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-c.resultCh:
		return r
	case <-timer.C:
		return Result{Err: context.DeadlineExceeded}
	}
}

// Client provides the application side of a link.
type Client struct {
	rw PacketReadWriter

	seq      Seq
	cmdsHead *Command
	cmdsTail *Command
	cmdsLock sync.Mutex
	closed   bool

	syncCh  chan struct{}
	eventCh chan stack.Event
}

// NewClient creates a client over the transport.
func NewClient(rw PacketReadWriter) *Client {
	return &Client{
		rw:      rw,
		seq:     NewSeq(),
		syncCh:  make(chan struct{}, 1),
		eventCh: make(chan stack.Event, 64),
	}
}

// SyncChan delivers cycle ticks. A tick not consumed before the next
// one arrives is dropped.
func (c *Client) SyncChan() <-chan struct{} {
	return c.syncCh
}

// EventChan delivers stack events.
func (c *Client) EventChan() <-chan stack.Event {
	return c.eventCh
}

// Do sends a command and returns a Command for result.
func (c *Client) Do(code Code, data []byte) *Command {
	cmd := &Command{code: code, resultCh: make(chan Result, 1)}

	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	if c.closed {
		cmd.resultCh <- Result{Err: ErrClosed}
		return cmd
	}
	cmd.seq, c.seq = c.seq, c.seq.Next()
	frame := Frame{Seq: cmd.seq, Code: code, Data: data}
	if err := c.rw.WritePacket(frame.Bytes()); err != nil {
		cmd.resultCh <- Result{Err: err}
		return cmd
	}
	if c.cmdsHead == nil {
		c.cmdsHead = cmd
	} else {
		c.cmdsTail.next = cmd
	}
	c.cmdsTail = cmd
	return cmd
}

// Run reads frames until the transport fails or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.readLoop()
	}()
	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
		c.rw.Close()
		<-errCh
	case err = <-errCh:
	}
	c.abort()
	return err
}

func (c *Client) readLoop() error {
	for {
		pkt, err := c.rw.ReadPacket()
		if err != nil {
			return err
		}
		frame, err := DecodeFrame(pkt)
		if err != nil {
			glog.Warningf("link: %v", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame *Frame) {
	switch {
	case frame.Code == CodeSync:
		select {
		case c.syncCh <- struct{}{}:
		default:
			glog.V(4).Info("link: sync overrun")
		}
		return
	case frame.Code == CodeEvent:
		ev, err := decodeEvent(frame.Data)
		if err != nil {
			glog.Warningf("link: %v", err)
			return
		}
		select {
		case c.eventCh <- ev:
		default:
			glog.Warningf("link: event dropped: %s", ev)
		}
		return
	case !frame.Code.IsReply() || !frame.Seq.IsValid():
		glog.Warningf("link: unexpected frame seq=%d code=%#x", frame.Seq, byte(frame.Code))
		return
	}

	c.cmdsLock.Lock()
	head := c.cmdsHead
	curr := c.cmdsHead
	for ; curr != nil; curr = curr.next {
		if curr.seq == frame.Seq {
			if c.cmdsHead = curr.next; c.cmdsHead == nil {
				c.cmdsTail = nil
			}
			curr.next = nil
			break
		}
	}
	c.cmdsLock.Unlock()
	if curr == nil {
		return
	}
	for ; head != curr; head = head.next {
		head.resultCh <- Result{Err: ErrNoReply}
	}
	if frame.Code.IsError() {
		curr.resultCh <- Result{Err: &RemoteError{Code: frame.Code, Message: string(frame.Data)}}
	} else {
		curr.resultCh <- Result{Data: frame.Data}
	}
}

// abort fails all pending commands and rejects new ones.
func (c *Client) abort() {
	c.cmdsLock.Lock()
	head := c.cmdsHead
	c.cmdsHead, c.cmdsTail, c.closed = nil, nil, true
	c.cmdsLock.Unlock()
	for ; head != nil; head = head.next {
		head.resultCh <- Result{Err: ErrClosed}
	}
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.rw.Close()
}
