package resolvers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/jroosing/relaydns/internal/dns"
)

// Upstream exchange defaults.
const (
	defaultExchangeTimeout = 3 * time.Second
	upstreamReadBufferSize = 4096
)

// ErrNoUpstream is returned when no configured server produced a reply.
var ErrNoUpstream = errors.New("resolvers: no upstream reply")

// Upstream forwards queries to the configured recursive servers over UDP,
// retrying over TCP when a reply comes back truncated. Sockets are bound
// to the question's egress interface when one is set.
type Upstream struct {
	Servers []string // host:port
	Timeout time.Duration
	Logger  *slog.Logger
}

// Exchange sends the question upstream and returns the parsed reply.
// Servers are tried in order; the first usable reply wins.
func (u *Upstream) Exchange(q *Question) (dns.Message, error) {
	query, err := u.buildQuery(q)
	if err != nil {
		return dns.Message{}, err
	}

	var lastErr error = ErrNoUpstream
	for _, server := range u.Servers {
		reply, err := u.exchangeUDP(q, server, query)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Header.Flags&dns.TCFlag != 0 {
			tcpReply, err := u.exchangeTCP(q, server, query)
			if err != nil {
				lastErr = err
				continue
			}
			reply = tcpReply
		}
		return reply, nil
	}
	return dns.Message{}, lastErr
}

// buildQuery encodes the upstream query. Proxy questions echo the
// downstream client's flags word and raw OPT record so the upstream sees
// the original request attributes.
func (u *Upstream) buildQuery(q *Question) ([]byte, error) {
	flags := q.RequestFlags &^ dns.QRFlag
	if !q.ProxyQuestion {
		flags = dns.RDFlag
	}

	b := dns.NewBuilder(uint16(rand.Uint32()), flags, dns.AbsoluteMaxMessageData)
	if err := b.PutQuestion(dns.Question{Name: q.Name, Type: q.Qtype, Class: q.Qclass}); err != nil {
		return nil, err
	}
	if len(q.OptRR) > 0 {
		if err := b.PutRawRR(dns.SectionAdditional, q.OptRR); err != nil {
			return nil, err
		}
	}
	return b.Finish(), nil
}

func (u *Upstream) exchangeUDP(q *Question, server string, query []byte) (dns.Message, error) {
	conn, err := u.dial(q, "udp", server)
	if err != nil {
		return dns.Message{}, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(u.timeout()))
	if _, err := conn.Write(query); err != nil {
		return dns.Message{}, fmt.Errorf("resolvers: udp write to %s: %w", server, err)
	}

	buf := make([]byte, upstreamReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return dns.Message{}, fmt.Errorf("resolvers: udp read from %s: %w", server, err)
		}
		reply, err := dns.ParseMessage(buf[:n])
		if err != nil {
			if u.Logger != nil {
				u.Logger.Debug("discarding unparseable upstream reply", "server", server, "err", err)
			}
			continue
		}
		if reply.Header.ID != binary.BigEndian.Uint16(query[0:2]) {
			continue // stale reply for an earlier query on this port
		}
		return reply, nil
	}
}

func (u *Upstream) exchangeTCP(q *Question, server string, query []byte) (dns.Message, error) {
	conn, err := u.dial(q, "tcp", server)
	if err != nil {
		return dns.Message{}, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(u.timeout()))

	prefixed := make([]byte, 2+len(query))
	binary.BigEndian.PutUint16(prefixed[0:2], uint16(len(query)))
	copy(prefixed[2:], query)
	if _, err := conn.Write(prefixed); err != nil {
		return dns.Message{}, fmt.Errorf("resolvers: tcp write to %s: %w", server, err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return dns.Message{}, fmt.Errorf("resolvers: tcp read from %s: %w", server, err)
	}
	body := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		return dns.Message{}, fmt.Errorf("resolvers: tcp read from %s: %w", server, err)
	}
	return dns.ParseMessage(body)
}

// dial opens a connection to the server, bound to the question's egress
// interface when one is configured.
func (u *Upstream) dial(q *Question, network, server string) (net.Conn, error) {
	d := net.Dialer{Timeout: u.timeout()}
	if q.InterfaceIndex != 0 {
		ifi, err := net.InterfaceByIndex(int(q.InterfaceIndex))
		if err != nil {
			return nil, fmt.Errorf("resolvers: egress interface %d: %w", q.InterfaceIndex, err)
		}
		name := ifi.Name
		d.Control = func(_, _ string, rc syscall.RawConn) error {
			var bindErr error
			if err := rc.Control(func(fd uintptr) {
				bindErr = bindToDevice(int(fd), name)
			}); err != nil {
				return err
			}
			return bindErr
		}
	}
	conn, err := d.Dial(network, server)
	if err != nil {
		return nil, fmt.Errorf("resolvers: dial %s %s: %w", network, server, err)
	}
	return conn, nil
}

func (u *Upstream) timeout() time.Duration {
	if u.Timeout > 0 {
		return u.Timeout
	}
	return defaultExchangeTimeout
}
