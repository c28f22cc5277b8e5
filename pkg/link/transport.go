package link

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
	io.Closer
}

// MaxFrameSize bounds the size of a packet on stream transports.
const MaxFrameSize = 1 << 16

// StreamReadWriter implements PacketReadWriter over a byte stream.
// Each packet is prefixed by 4-byte (little-endian) indicate the length.
type StreamReadWriter struct {
	io.ReadWriteCloser
}

// NewStream wraps a byte stream.
func NewStream(s io.ReadWriteCloser) *StreamReadWriter {
	return &StreamReadWriter{s}
}

// ReadPacket implements PacketReader.
func (p *StreamReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(p, pkt)
	return pkt, err
}

// WritePacket implements PacketWriter.
func (p *StreamReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(pkt))
	}
	buf := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
	copy(buf[4:], pkt)
	_, err := p.Write(buf)
	return err
}

// WebsocketReadWriter implements PacketReadWriter with one websocket
// message per packet.
type WebsocketReadWriter websocket.Conn

// NewWebsocket wraps websocket.Conn.
func NewWebsocket(conn *websocket.Conn) *WebsocketReadWriter {
	return (*WebsocketReadWriter)(conn)
}

// ReadPacket implements PacketReader.
func (p *WebsocketReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *WebsocketReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *WebsocketReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Dial connects a transport by URL:
// tcp://host:port, unix:///path/to/socket, ws://host:port/path.
func Dial(rawURL string) (PacketReadWriter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	switch u.Scheme {
	case "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return NewStream(conn), nil
	case "unix":
		conn, err := net.Dial("unix", u.Path)
		if err != nil {
			return nil, err
		}
		return NewStream(conn), nil
	case "ws", "wss":
		origin := "http://localhost/"
		if u.Scheme == "wss" {
			origin = "https://localhost/"
		}
		conn, err := websocket.Dial(rawURL, "", origin)
		if err != nil {
			return nil, err
		}
		return NewWebsocket(conn), nil
	}
	return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}

// Listener accepts transports.
type Listener struct {
	addr   string
	closer io.Closer
}

// Addr returns the listening address.
func (l *Listener) Addr() string {
	return l.addr
}

// Close stops accepting.
func (l *Listener) Close() error {
	return l.closer.Close()
}

// Listen accepts transports by URL and passes each to handle on its own
// goroutine. handle owns the transport.
func Listen(rawURL string, handle func(PacketReadWriter)) (*Listener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	var ln net.Listener
	switch u.Scheme {
	case "tcp":
		ln, err = net.Listen("tcp", u.Host)
	case "unix":
		ln, err = net.Listen("unix", u.Path)
	case "ws":
		ln, err = net.Listen("tcp", u.Host)
	default:
		return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	l := &Listener{addr: ln.Addr().String(), closer: ln}
	if u.Scheme == "ws" {
		path := u.Path
		if path == "" {
			path = "/"
		}
		mux := http.NewServeMux()
		mux.Handle(path, websocket.Handler(func(conn *websocket.Conn) {
			conn.PayloadType = websocket.BinaryFrame
			handle(NewWebsocket(conn))
		}))
		srv := &http.Server{Handler: mux}
		l.closer = srv
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				glog.Errorf("link: serve %s: %v", rawURL, err)
			}
		}()
		return l, nil
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !strings.Contains(err.Error(), "use of closed network connection") {
					glog.Errorf("link: accept %s: %v", rawURL, err)
				}
				return
			}
			glog.V(2).Infof("link: accepted %s", conn.RemoteAddr())
			go handle(NewStream(conn))
		}
	}()
	return l, nil
}
