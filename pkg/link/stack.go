package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// DefaultCommandTimeout bounds the wait for a command reply.
const DefaultCommandTimeout = time.Second

// Stack implements stack.Stack against a remote kernel stack.
type Stack struct {
	client  *Client
	timeout time.Duration

	lock   sync.Mutex
	in     []byte
	out    []byte
	closed bool

	cancel func()
	doneCh chan struct{}
	err    error
}

// Open dials the kernel stack and starts receiving frames.
func Open(rawURL string, timeout time.Duration) (*Stack, error) {
	rw, err := Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	glog.Infof("link: connected to %s", rawURL)
	return NewStack(rw, timeout), nil
}

// NewStack creates a Stack over an established transport.
func NewStack(rw PacketReadWriter, timeout time.Duration) *Stack {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stack{
		client:  NewClient(rw),
		timeout: timeout,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}
	go func() {
		defer close(s.doneCh)
		err := s.client.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("link: %v", err)
		}
		s.lock.Lock()
		s.err = err
		s.lock.Unlock()
	}()
	return s
}

func (s *Stack) exec(code Code, data []byte) ([]byte, error) {
	r := s.client.Do(code, data).Wait(s.timeout)
	return r.Data, r.Err
}

// AllocProcessImage implements stack.ProcessImage.
func (s *Stack) AllocProcessImage(sizeIn, sizeOut int) error {
	if _, err := s.exec(CodeAlloc, encodeSizes(sizeIn, sizeOut)); err != nil {
		return err
	}
	s.lock.Lock()
	s.in, s.out = make([]byte, sizeIn), make([]byte, sizeOut)
	s.lock.Unlock()
	return nil
}

// FreeProcessImage implements stack.ProcessImage.
func (s *Stack) FreeProcessImage() error {
	s.lock.Lock()
	s.in, s.out = nil, nil
	s.lock.Unlock()
	_, err := s.exec(CodeFree, nil)
	return err
}

// ImageIn implements stack.ProcessImage.
func (s *Stack) ImageIn() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.in
}

// ImageOut implements stack.ProcessImage.
func (s *Stack) ImageOut() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.out
}

// ExchangeImageIn implements stack.ProcessImage.
func (s *Stack) ExchangeImageIn() error {
	in := s.ImageIn()
	if in == nil {
		return stack.ErrNotAllocated
	}
	_, err := s.exec(CodeExchangeIn, in)
	return err
}

// ExchangeImageOut implements stack.ProcessImage.
func (s *Stack) ExchangeImageOut() error {
	out := s.ImageOut()
	if out == nil {
		return stack.ErrNotAllocated
	}
	data, err := s.exec(CodeExchangeOut, nil)
	if err != nil {
		return err
	}
	if len(data) != len(out) {
		return fmt.Errorf("exchange out: got %d bytes, want %d", len(data), len(out))
	}
	copy(out, data)
	return nil
}

// WaitSyncEvent implements stack.SyncImage.
func (s *Stack) WaitSyncEvent(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.client.SyncChan():
		return nil
	case <-s.doneCh:
		return stack.ErrShutdown
	case <-timer.C:
		return stack.ErrTimeout
	}
}

// ExecNMTCommand implements stack.Stack.
func (s *Stack) ExecNMTCommand(cmd stack.NMTCommand) error {
	_, err := s.exec(CodeNMT, []byte{byte(cmd)})
	return err
}

// CheckKernelStack implements stack.Stack.
func (s *Stack) CheckKernelStack() bool {
	data, err := s.exec(CodeHeartbeat, nil)
	return err == nil && len(data) > 0 && data[0] != 0
}

// Events implements stack.Stack.
func (s *Stack) Events() <-chan stack.Event {
	return s.client.EventChan()
}

// Done is closed when the link is lost or shut down.
func (s *Stack) Done() <-chan struct{} {
	return s.doneCh
}

// Err returns the reason the link stopped.
func (s *Stack) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

// Shutdown implements stack.Stack.
func (s *Stack) Shutdown() error {
	s.lock.Lock()
	closed := s.closed
	s.closed = true
	s.lock.Unlock()
	if closed {
		return nil
	}
	if _, err := s.exec(CodeFree, nil); err != nil {
		glog.V(2).Infof("link: free on shutdown: %v", err)
	}
	s.cancel()
	<-s.doneCh
	return nil
}
