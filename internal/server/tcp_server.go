package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/relaydns/internal/proxy"
)

// TCP server configuration constants.
const (
	maxTCPMessageSize        = 65535            // DNS message bound over TCP (RFC 1035 Section 4.2.2)
	tcpReadTimeout           = 10 * time.Second // per-message read timeout
	tcpConnectionIdleTimeout = 30 * time.Second // idle timeout between messages
	maxTCPConnectionsPerIP   = 10               // concurrent connections per source IP
)

// TCPServer receives DNS queries over TCP, each message prefixed with a
// 2-byte big-endian length. A peer close (or read failure) is reported to
// the engine as an empty message so the client pinned to the connection
// is torn down.
type TCPServer struct {
	Logger   *slog.Logger
	Engine   *proxy.Proxy
	Dispatch Dispatcher

	listeners []net.Listener
	wg        sync.WaitGroup

	mu        sync.Mutex
	connPerIP map[netip.Addr]int
}

// Run opens SO_REUSEPORT listeners (one per CPU) on addr and serves until
// the context is cancelled.
func (s *TCPServer) Run(ctx context.Context, addr string) error {
	socketCount := runtime.NumCPU()
	s.listeners = make([]net.Listener, 0, socketCount)

	s.mu.Lock()
	if s.connPerIP == nil {
		s.connPerIP = map[netip.Addr]int{}
	}
	s.mu.Unlock()

	for range socketCount {
		ln, err := listenTCPReusePort(ctx, addr)
		if err != nil {
			for _, l := range s.listeners {
				_ = l.Close()
			}
			return err
		}
		s.listeners = append(s.listeners, ln)

		listener := ln
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptLoop(ctx, listener)
		}()
	}

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

func (s *TCPServer) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return // listener closed or shutting down
		}

		src := remoteAddrPort(c)
		if !s.tryAcquireConn(src.Addr()) {
			if s.Logger != nil {
				s.Logger.Warn("tcp connection limit exceeded", "ip", src.Addr())
			}
			_ = c.Close()
			continue
		}

		conn, src := c, src
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.readLoop(ctx, conn, src)
		}()
	}
}

// readLoop reads length-prefixed messages from one connection and posts
// them to the engine. The engine owns the write and close side of the
// connection through the stream handle; the loop exits when the peer
// closes or the engine does.
func (s *TCPServer) readLoop(ctx context.Context, conn net.Conn, src netip.AddrPort) {
	defer s.releaseConn(src.Addr())

	ifindex := interfaceIndexForIP(conn.LocalAddr())
	stream := &tcpStream{conn: conn}
	engine := s.Engine

	defer func() {
		// Peer close, timeout or shutdown: let the engine retire the
		// pinned client (and close the socket) on the loop.
		s.Dispatch(func() {
			engine.OnTCPMessage(nil, src, ifindex, stream)
		})
	}()

	_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok := s.readMessage(conn)
		if !ok {
			return
		}
		if len(msg) == 0 {
			continue
		}
		_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))

		s.Dispatch(func() {
			engine.OnTCPMessage(msg, src, ifindex, stream)
		})
	}
}

// readMessage reads one length-prefixed DNS message.
func (s *TCPServer) readMessage(conn net.Conn) ([]byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, false
	}
	msgLen := int(binary.BigEndian.Uint16(lenBuf[:]))
	if msgLen == 0 {
		return nil, true
	}

	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, false
	}
	return msg, true
}

// Stop closes the listeners and waits for connections to drain.
func (s *TCPServer) Stop(timeout time.Duration) error {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("tcp server: timeout waiting for connections")
	}
}

func (s *TCPServer) tryAcquireConn(ip netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connPerIP[ip] >= maxTCPConnectionsPerIP {
		return false
	}
	s.connPerIP[ip]++
	return true
}

func (s *TCPServer) releaseConn(ip netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connPerIP[ip] <= 1 {
		delete(s.connPerIP, ip)
		return
	}
	s.connPerIP[ip]--
}

// tcpStream is the engine's return path for one accepted connection.
type tcpStream struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// WriteMessage sends a length-prefixed reply.
func (t *tcpStream) WriteMessage(msg []byte) error {
	if len(msg) > maxTCPMessageSize {
		return errors.New("tcp reply exceeds length prefix bound")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return net.ErrClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(tcpReadTimeout))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	bufs := net.Buffers{lenBuf[:], msg}
	_, err := bufs.WriteTo(t.conn)
	return err
}

// Close closes the connection. Safe to call more than once.
func (t *tcpStream) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// remoteAddrPort extracts the peer address, unmapped for key stability.
func remoteAddrPort(c net.Conn) netip.AddrPort {
	ta, ok := c.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := ta.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// interfaceIndexForIP finds the index of the interface owning the local
// address of an accepted connection. TCP sockets carry no per-message
// control data, so the interface is derived from the bound address once
// at accept time.
func interfaceIndexForIP(local net.Addr) uint32 {
	ta, ok := local.(*net.TCPAddr)
	if !ok || ta.IP == nil {
		return 0
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if ok && ipn.IP.Equal(ta.IP) {
				return uint32(ifi.Index)
			}
		}
	}
	return 0
}

// listenTCPReusePort creates a TCP listener with SO_REUSEPORT so several
// listeners share the port across CPUs.
func listenTCPReusePort(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}
