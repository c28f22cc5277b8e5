package link

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fieldbus.go/pkg/stack"
	"github.com/robotalks/fieldbus.go/pkg/stack/sim"
)

func TestSeq(t *testing.T) {
	assert.Equal(t, Seq(1), Seq(0xef).Next())
	assert.Equal(t, Seq(1), Seq(0).Next())
	assert.Equal(t, Seq(0x10), Seq(0x0f).Next())
	assert.False(t, Seq(0).IsValid())
	assert.False(t, Seq(0xf0).IsValid())
	assert.True(t, NewSeq().IsValid())
}

func TestCode(t *testing.T) {
	assert.True(t, CodeSync.IsEvent())
	assert.False(t, CodeSync.IsReply())
	reply := CodeNMT.Reply()
	assert.True(t, reply.IsReply())
	assert.False(t, reply.IsError())
	assert.Equal(t, CodeNMT, reply.Command())
	errReply := CodeExchangeIn.ErrorReply()
	assert.True(t, errReply.IsError())
	assert.Equal(t, CodeExchangeIn, errReply.Command())
}

func TestDecodeFrame(t *testing.T) {
	_, err := DecodeFrame([]byte{1})
	assert.True(t, errors.Is(err, ErrShortFrame))

	f := Frame{Seq: 3, Code: CodeExchangeIn, Data: []byte{0x95, 0x0a}}
	decoded, err := DecodeFrame(f.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f, *decoded)

	ev := stack.Event{Type: stack.EventError, NodeID: 7, Kind: stack.ErrorKindNode, Msg: "lost"}
	decodedEv, err := decodeEvent(encodeEvent(ev))
	require.NoError(t, err)
	assert.Equal(t, ev, decodedEv)
}

type peer struct {
	t  *testing.T
	rw PacketReadWriter
}

func (p *peer) read() *Frame {
	pkt, err := p.rw.ReadPacket()
	require.NoError(p.t, err)
	f, err := DecodeFrame(pkt)
	require.NoError(p.t, err)
	return f
}

func (p *peer) write(f *Frame) {
	require.NoError(p.t, p.rw.WritePacket(f.Bytes()))
}

func newClientPair(t *testing.T) (*Client, *peer, func()) {
	a, b := net.Pipe()
	c := NewClient(NewStream(a))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	return c, &peer{t: t, rw: NewStream(b)}, func() {
		cancel()
		b.Close()
		<-done
	}
}

func TestClientNoReply(t *testing.T) {
	c, p, stop := newClientPair(t)
	defer stop()

	frames := make(chan *Frame, 2)
	go func() {
		frames <- p.read()
		frames <- p.read()
	}()
	cmd1 := c.Do(CodeHeartbeat, nil)
	cmd2 := c.Do(CodeExchangeOut, nil)
	<-frames
	second := <-frames
	require.Equal(t, cmd2.Seq(), second.Seq)

	p.write(&Frame{Seq: second.Seq, Code: CodeExchangeOut.Reply(), Data: []byte{1, 2}})
	r1 := cmd1.Wait(time.Second)
	assert.Equal(t, ErrNoReply, r1.Err)
	r2 := cmd2.Wait(time.Second)
	require.NoError(t, r2.Err)
	assert.Equal(t, []byte{1, 2}, r2.Data)
}

func TestClientErrorReplyAndEvents(t *testing.T) {
	c, p, stop := newClientPair(t)
	defer stop()

	frames := make(chan *Frame, 1)
	go func() { frames <- p.read() }()
	cmd := c.Do(CodeNMT, []byte{byte(stack.NMTSwReset)})
	f := <-frames

	p.write(&Frame{Code: CodeSync})
	p.write(&Frame{Code: CodeEvent, Data: encodeEvent(stack.Event{Type: stack.EventLocalState, State: stack.NMTOperational})})
	p.write(&Frame{Seq: f.Seq, Code: CodeNMT.ErrorReply(), Data: []byte("busy")})

	r := cmd.Wait(time.Second)
	var remoteErr *RemoteError
	require.True(t, errors.As(r.Err, &remoteErr))
	assert.Equal(t, "busy", remoteErr.Message)

	select {
	case <-c.SyncChan():
	case <-time.After(time.Second):
		t.Fatal("sync not delivered")
	}
	select {
	case ev := <-c.EventChan():
		assert.Equal(t, stack.NMTOperational, ev.State)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestClientClosed(t *testing.T) {
	c, p, stop := newClientPair(t)
	go p.read()
	cmd := c.Do(CodeHeartbeat, nil)
	stop()
	assert.Equal(t, ErrClosed, cmd.Wait(time.Second).Err)
	assert.Equal(t, ErrClosed, c.Do(CodeHeartbeat, nil).Wait(time.Second).Err)
}

type stackTestEnv struct {
	t       *testing.T
	backend *sim.Stack
	remote  *Stack
	served  chan error
}

func newStackTestEnv(t *testing.T) *stackTestEnv {
	a, b := net.Pipe()
	env := &stackTestEnv{
		t:       t,
		backend: sim.New(sim.Config{NodeIDs: []uint8{1}}),
		served:  make(chan error, 1),
	}
	go func() {
		env.served <- NewServer(env.backend).Serve(context.Background(), NewStream(a))
	}()
	env.remote = NewStack(NewStream(b), time.Second)
	return env
}

func (e *stackTestEnv) tick() {
	e.backend.Step()
	require.NoError(e.t, e.remote.WaitSyncEvent(time.Second))
}

func (e *stackTestEnv) close() {
	require.NoError(e.t, e.remote.Shutdown())
	select {
	case <-e.served:
	case <-time.After(time.Second):
		e.t.Fatal("server did not stop")
	}
	e.backend.Shutdown()
}

func TestStackOverLink(t *testing.T) {
	env := newStackTestEnv(t)
	defer env.close()
	s := env.remote

	assert.Equal(t, stack.ErrNotAllocated, s.ExchangeImageIn())
	require.NoError(t, s.AllocProcessImage(2, 2))
	require.Len(t, s.ImageIn(), 2)

	env.tick()
	require.NoError(t, s.ExchangeImageOut())
	s.ImageIn()[0], s.ImageIn()[1] = 0x95, 0x0a
	require.NoError(t, s.ExchangeImageIn())
	env.tick()
	require.NoError(t, s.ExchangeImageOut())
	assert.Equal(t, []byte{0x95, 0x0a}, s.ImageOut())

	assert.Equal(t, stack.ErrTimeout, s.WaitSyncEvent(10*time.Millisecond))

	env.backend.FailExchanges(1, 0)
	var remoteErr *RemoteError
	require.True(t, errors.As(s.ExchangeImageIn(), &remoteErr))
	assert.Contains(t, remoteErr.Message, sim.ErrInjected.Error())

	require.NoError(t, s.ExecNMTCommand(stack.NMTSwReset))
	select {
	case ev := <-s.Events():
		assert.Equal(t, stack.Event{Type: stack.EventLocalState, State: stack.NMTResetCommunication}, ev)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	assert.True(t, s.CheckKernelStack())
	env.backend.Kill()
	assert.False(t, s.CheckKernelStack())
}

func TestStackShutdown(t *testing.T) {
	env := newStackTestEnv(t)
	require.NoError(t, env.remote.AllocProcessImage(2, 2))
	env.close()
	assert.Equal(t, stack.ErrShutdown, env.remote.WaitSyncEvent(time.Second))
	assert.Equal(t, ErrClosed, env.remote.ExecNMTCommand(stack.NMTSwReset))
	require.NoError(t, env.remote.Shutdown())
}

func TestTransports(t *testing.T) {
	echo := func(rw PacketReadWriter) {
		defer rw.Close()
		for {
			pkt, err := rw.ReadPacket()
			if err != nil {
				return
			}
			if rw.WritePacket(pkt) != nil {
				return
			}
		}
	}
	for _, scheme := range []string{"tcp", "ws"} {
		t.Run(scheme, func(t *testing.T) {
			ln, err := Listen(scheme+"://127.0.0.1:0/link", echo)
			require.NoError(t, err)
			defer ln.Close()

			rw, err := Dial(scheme + "://" + ln.Addr() + "/link")
			require.NoError(t, err)
			defer rw.Close()
			require.NoError(t, rw.WritePacket([]byte{1, 2, 3}))
			pkt, err := rw.ReadPacket()
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3}, pkt)
		})
	}

	_, err := Dial("serial:///dev/ttyS0")
	assert.Error(t, err)
}
