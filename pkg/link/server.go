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

// syncPollInterval bounds each wait for a backend tick so the forwarder
// notices the end of a session.
const syncPollInterval = 100 * time.Millisecond

// Server exposes a stack.Stack (the kernel stack) to a remote MN
// application. One session is served at a time.
type Server struct {
	Backend stack.Stack

	session sync.Mutex
}

// NewServer creates a server for the backend.
func NewServer(backend stack.Stack) *Server {
	return &Server{Backend: backend}
}

type serverSession struct {
	backend   stack.Stack
	rw        PacketReadWriter
	writeLock sync.Mutex
}

// Serve runs a session over rw until the peer disconnects or ctx is done.
// It closes rw on return.
func (s *Server) Serve(ctx context.Context, rw PacketReadWriter) error {
	s.session.Lock()
	defer s.session.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := &serverSession{backend: s.Backend, rw: rw}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sess.forwardSync(ctx)
	}()
	go func() {
		defer wg.Done()
		sess.forwardEvents(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.serveCommands()
	}()
	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
		rw.Close()
		<-errCh
	case err = <-errCh:
		rw.Close()
	}
	cancel()
	wg.Wait()
	return err
}

func (s *serverSession) send(frame *Frame) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.rw.WritePacket(frame.Bytes())
}

func (s *serverSession) forwardSync(ctx context.Context) {
	for ctx.Err() == nil {
		err := s.backend.WaitSyncEvent(syncPollInterval)
		switch {
		case err == nil:
			if err := s.send(&Frame{Code: CodeSync}); err != nil {
				return
			}
		case errors.Is(err, stack.ErrTimeout):
		case errors.Is(err, stack.ErrShutdown):
			return
		default:
			glog.Warningf("link: wait sync: %v", err)
		}
	}
}

func (s *serverSession) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.backend.Events():
			if err := s.send(&Frame{Code: CodeEvent, Data: encodeEvent(ev)}); err != nil {
				return
			}
		}
	}
}

func (s *serverSession) serveCommands() error {
	for {
		pkt, err := s.rw.ReadPacket()
		if err != nil {
			return err
		}
		frame, err := DecodeFrame(pkt)
		if err != nil {
			glog.Warningf("link: %v", err)
			continue
		}
		if frame.Code.IsEvent() || frame.Code.IsReply() || !frame.Seq.IsValid() {
			glog.Warningf("link: unexpected frame seq=%d code=%#x", frame.Seq, byte(frame.Code))
			continue
		}
		reply := &Frame{Seq: frame.Seq, Code: frame.Code.Reply()}
		data, err := s.handle(frame)
		if err != nil {
			reply.Code, reply.Data = frame.Code.ErrorReply(), []byte(err.Error())
		} else {
			reply.Data = data
		}
		if err := s.send(reply); err != nil {
			return err
		}
	}
}

func (s *serverSession) handle(frame *Frame) ([]byte, error) {
	switch frame.Code {
	case CodeAlloc:
		in, out, err := decodeSizes(frame.Data)
		if err != nil {
			return nil, err
		}
		return nil, s.backend.AllocProcessImage(in, out)
	case CodeFree:
		return nil, s.backend.FreeProcessImage()
	case CodeExchangeIn:
		in := s.backend.ImageIn()
		if in == nil {
			return nil, stack.ErrNotAllocated
		}
		if len(frame.Data) != len(in) {
			return nil, fmt.Errorf("exchange in: got %d bytes, want %d", len(frame.Data), len(in))
		}
		copy(in, frame.Data)
		return nil, s.backend.ExchangeImageIn()
	case CodeExchangeOut:
		if err := s.backend.ExchangeImageOut(); err != nil {
			return nil, err
		}
		return append([]byte(nil), s.backend.ImageOut()...), nil
	case CodeNMT:
		if len(frame.Data) != 1 {
			return nil, fmt.Errorf("%w: NMT payload %d bytes", ErrShortFrame, len(frame.Data))
		}
		return nil, s.backend.ExecNMTCommand(stack.NMTCommand(frame.Data[0]))
	case CodeHeartbeat:
		if s.backend.CheckKernelStack() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return nil, fmt.Errorf("unknown command %#x", byte(frame.Code))
}
