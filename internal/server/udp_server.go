// Package server implements the DNS socket layer for the relay: UDP and
// TCP listeners that hand received messages, together with their source
// address and input interface index, to the engine on the resolver's
// event loop.
//
// Goroutine model: the UDP server runs one receiver goroutine per socket
// (multiple sockets via SO_REUSEPORT); the TCP server runs one listener
// goroutine per socket plus one reader per accepted connection. All of
// them only read from the network and post work onto the event loop; no
// engine state is touched off-loop.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"

	"github.com/jroosing/relaydns/internal/pool"
	"github.com/jroosing/relaydns/internal/proxy"
)

// Socket buffer sizes for burst handling (4MB each).
const (
	socketRecvBufferSize = 4 * 1024 * 1024
	socketSendBufferSize = 4 * 1024 * 1024

	// maxUDPMessageSize bounds a received datagram; a larger datagram is
	// cut to this size on read and the engine sees only its first bytes.
	maxUDPMessageSize = 4096
)

// bufferPool reduces allocations on the receive path.
var bufferPool = pool.New(func() *[]byte {
	buf := make([]byte, maxUDPMessageSize)
	return &buf
})

// Dispatcher posts a function onto the resolver's event loop.
type Dispatcher func(fn func())

// UDPServer receives DNS queries over UDP and forwards them to the
// engine. Interface indexes are taken from packet control messages so the
// engine's input filter sees the real ingress interface per datagram.
type UDPServer struct {
	Logger   *slog.Logger
	Engine   *proxy.Proxy
	Dispatch Dispatcher

	conns []net.PacketConn
	wg    sync.WaitGroup
}

// packetReader abstracts the address-family specific control-message
// plumbing of golang.org/x/net.
type packetReader interface {
	read(buf []byte) (n int, ifindex uint32, src netip.AddrPort, err error)
	writeTo(msg []byte, addr netip.AddrPort) error
}

// Run opens SO_REUSEPORT sockets (one per CPU) on addr and serves until
// the context is cancelled.
func (s *UDPServer) Run(ctx context.Context, addr string) error {
	socketCount := runtime.NumCPU()
	s.conns = make([]net.PacketConn, 0, socketCount)

	for range socketCount {
		pc, err := listenPacketReusePort(ctx, addr)
		if err != nil {
			for _, c := range s.conns {
				_ = c.Close()
			}
			return err
		}
		if uc, ok := pc.(*net.UDPConn); ok {
			_ = uc.SetReadBuffer(socketRecvBufferSize)
			_ = uc.SetWriteBuffer(socketSendBufferSize)
		}
		s.conns = append(s.conns, pc)

		reader := newPacketReader(pc, addr)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.recvLoop(ctx, reader)
		}()
	}

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

// recvLoop reads datagrams, copies them out of the pooled buffer and
// posts them to the engine.
func (s *UDPServer) recvLoop(ctx context.Context, r packetReader) {
	for {
		bufPtr := bufferPool.Get()
		buf := *bufPtr

		n, ifindex, src, err := r.read(buf)
		if err != nil {
			bufferPool.Put(bufPtr)
			if ctx.Err() != nil {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return // socket closed
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		bufferPool.Put(bufPtr)

		engine, src, idx := s.Engine, src, ifindex
		s.Dispatch(func() {
			engine.OnUDPMessage(msg, src, idx, packetWriterFunc(r.writeTo))
		})
	}
}

// Stop closes the sockets and waits for receivers to exit.
func (s *UDPServer) Stop(timeout time.Duration) error {
	for _, c := range s.conns {
		_ = c.Close()
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
		return errors.New("udp server: timeout waiting for receivers to exit")
	}
}

// packetWriterFunc adapts a write function to proxy.PacketWriter.
type packetWriterFunc func(msg []byte, addr netip.AddrPort) error

func (f packetWriterFunc) WriteTo(msg []byte, addr netip.AddrPort) error {
	return f(msg, addr)
}

// newPacketReader wraps the socket with the control-message reader for
// its address family so every datagram carries its ingress interface.
func newPacketReader(pc net.PacketConn, addr string) packetReader {
	host, _, err := net.SplitHostPort(addr)
	ip := net.ParseIP(host)
	if err == nil && ip != nil && ip.To4() != nil {
		p := ipv4.NewPacketConn(pc)
		_ = p.SetControlMessage(ipv4.FlagInterface, true)
		return &packetReader4{conn: p}
	}
	p := ipv6.NewPacketConn(pc)
	_ = p.SetControlMessage(ipv6.FlagInterface, true)
	return &packetReader6{conn: p}
}

type packetReader4 struct {
	conn *ipv4.PacketConn
}

func (r *packetReader4) read(buf []byte) (int, uint32, netip.AddrPort, error) {
	n, cm, src, err := r.conn.ReadFrom(buf)
	if err != nil {
		return 0, 0, netip.AddrPort{}, err
	}
	var ifindex uint32
	if cm != nil && cm.IfIndex > 0 {
		ifindex = uint32(cm.IfIndex)
	}
	return n, ifindex, addrPortOf(src), nil
}

func (r *packetReader4) writeTo(msg []byte, addr netip.AddrPort) error {
	_, err := r.conn.WriteTo(msg, nil, net.UDPAddrFromAddrPort(addr))
	return err
}

type packetReader6 struct {
	conn *ipv6.PacketConn
}

func (r *packetReader6) read(buf []byte) (int, uint32, netip.AddrPort, error) {
	n, cm, src, err := r.conn.ReadFrom(buf)
	if err != nil {
		return 0, 0, netip.AddrPort{}, err
	}
	var ifindex uint32
	if cm != nil && cm.IfIndex > 0 {
		ifindex = uint32(cm.IfIndex)
	}
	return n, ifindex, addrPortOf(src), nil
}

func (r *packetReader6) writeTo(msg []byte, addr netip.AddrPort) error {
	_, err := r.conn.WriteTo(msg, nil, net.UDPAddrFromAddrPort(addr))
	return err
}

// addrPortOf converts a packet source address, unmapping v4-in-v6 so the
// duplicate-suppression key is stable across socket families.
func addrPortOf(src net.Addr) netip.AddrPort {
	ua, ok := src.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := ua.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// listenPacketReusePort creates a UDP socket with SO_REUSEPORT so several
// sockets can share the port and the kernel spreads load across them.
func listenPacketReusePort(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	return lc.ListenPacket(ctx, "udp", addr)
}
